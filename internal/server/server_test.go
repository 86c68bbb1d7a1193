package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/pipeline"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

type stubProcessor struct {
	lastHint classify.FormatType
	err      error
}

func (s *stubProcessor) Process(_ context.Context, content []byte, hint classify.FormatType) (*session.ProcessingSession, error) {
	s.lastHint = hint
	if s.err != nil {
		return nil, s.err
	}
	return &session.ProcessingSession{
		ID:          "sess-1",
		FinalStatus: session.StatusCompleted,
		Classification: &classify.Result{
			FormatType: classify.FormatEmail, BusinessIntent: classify.IntentComplaint, Confidence: 0.7,
		},
	}, nil
}

type stubReader struct {
	sessions map[string]*session.ProcessingSession
	counters map[string]int64
}

func (s *stubReader) GetSession(_ context.Context, id string) (*session.ProcessingSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
}

func (s *stubReader) ListRecent(_ context.Context, limit int) ([]session.ProcessingSession, error) {
	var out []session.ProcessingSession
	for _, sess := range s.sessions {
		if len(out) == limit {
			break
		}
		out = append(out, *sess)
	}
	return out, nil
}

func (s *stubReader) Counters(context.Context) (map[string]int64, error) {
	return s.counters, nil
}

func newTestServer(t *testing.T, proc Processor, cfg Config) (*Server, *stubReader) {
	t.Helper()
	reader := &stubReader{
		sessions: map[string]*session.ProcessingSession{
			"sess-1": {ID: "sess-1", FinalStatus: session.StatusCompleted},
		},
		counters: map[string]int64{"classifications_total": 3},
	}
	if proc == nil {
		proc = &stubProcessor{}
	}
	return NewServer(proc, reader, nil, cfg), reader
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})
	rec := doRequest(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestProcessEndpoint(t *testing.T) {
	proc := &stubProcessor{}
	srv, _ := newTestServer(t, proc, Config{})

	rec := doRequest(srv, http.MethodPost, "/v1/process",
		`{"content":"From: a@b.com\nSubject: Hi\n\nThanks!","content_type":"email"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")
	assert.Equal(t, classify.FormatEmail, proc.lastHint)
}

func TestProcessRequiresContent(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})
	rec := doRequest(srv, http.MethodPost, "/v1/process", `{"content_type":"email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessRejectsUnknownHint(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})
	rec := doRequest(srv, http.MethodPost, "/v1/process", `{"content":"x","content_type":"xml"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "content_type")
}

func TestProcessEnforcesSizeCap(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{MaxInputKB: 1})
	big := strings.Repeat("a", 2048)
	rec := doRequest(srv, http.MethodPost, "/v1/process", `{"content":"`+big+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProcessStoreUnavailable(t *testing.T) {
	proc := &stubProcessor{err: fmt.Errorf("%w: disk gone", pipeline.ErrStoreUnavailable)}
	srv, _ := newTestServer(t, proc, Config{})
	rec := doRequest(srv, http.MethodPost, "/v1/process", `{"content":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionGet(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/sessions/sess-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")

	rec = doRequest(srv, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsListValidatesLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})

	rec := doRequest(srv, http.MethodGet, "/v1/sessions?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/sessions?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{})
	rec := doRequest(srv, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classifications_total":3`)
}

func TestPerCallerRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil, Config{PerCallerRPM: 10})

	first := doRequest(srv, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, first.Code)

	// Burst of one: the immediate second request is rejected.
	second := doRequest(srv, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
