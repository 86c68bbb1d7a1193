package trigger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

type stubProcessor struct {
	lastContent []byte
	lastHint    classify.FormatType
	calls       int
	err         error
}

func (s *stubProcessor) Process(_ context.Context, content []byte, hint classify.FormatType) (*session.ProcessingSession, error) {
	s.calls++
	s.lastContent = content
	s.lastHint = hint
	if s.err != nil {
		return nil, s.err
	}
	return &session.ProcessingSession{ID: "sess-1", FinalStatus: session.StatusCompleted}, nil
}

func webhookRequest(t *testing.T, handler *WebhookHandler, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/webhooks/{name}", handler.HandleWebhook)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+name, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRendersTemplateAndProcesses(t *testing.T) {
	proc := &stubProcessor{}
	handler := NewWebhookHandler(proc, &Config{Webhooks: []WebhookTrigger{{
		Name:            "support-email",
		ContentTemplate: "From: {{.payload.from}}\nSubject: {{.payload.subject}}\n\n{{.payload.body}}",
		Hint:            "email",
	}}})

	rec := webhookRequest(t, handler, "support-email",
		`{"from":"a@b.com","subject":"Hi","body":"Thanks!"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")
	assert.Equal(t, classify.FormatEmail, proc.lastHint)
	assert.Equal(t, "From: a@b.com\nSubject: Hi\n\nThanks!", string(proc.lastContent))
}

func TestWebhookUnknownTrigger(t *testing.T) {
	handler := NewWebhookHandler(&stubProcessor{}, &Config{})
	rec := webhookRequest(t, handler, "nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookInvalidJSONBody(t *testing.T) {
	handler := NewWebhookHandler(&stubProcessor{}, &Config{Webhooks: []WebhookTrigger{{
		Name: "t", ContentTemplate: "{{.payload}}",
	}}})
	rec := webhookRequest(t, handler, "t", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookProcessorErrorSurfaces(t *testing.T) {
	proc := &stubProcessor{err: errors.New("store down")}
	handler := NewWebhookHandler(proc, &Config{Webhooks: []WebhookTrigger{{
		Name: "t", ContentTemplate: "x",
	}}})
	rec := webhookRequest(t, handler, "t", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store down")
}

type stubPurger struct{ purged int64 }

func (p *stubPurger) PurgeExpired(context.Context) (int64, error) { return p.purged, nil }

func TestSchedulerRegistersEntries(t *testing.T) {
	s := NewScheduler(&stubProcessor{}, &stubPurger{})
	err := s.RegisterSchedules(&Config{Schedules: []ScheduleTrigger{
		{Cron: "0 9 * * 1-5", Content: "daily check", Hint: "email"},
		{Cron: "*/5 * * * *", Content: `{"event_type":"heartbeat"}`, Hint: "json"},
	}})
	require.NoError(t, err)

	// Two schedules plus the hourly TTL purge.
	assert.Equal(t, 3, s.Entries())
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	s := NewScheduler(&stubProcessor{}, nil)
	err := s.RegisterSchedules(&Config{Schedules: []ScheduleTrigger{
		{Cron: "not a cron", Content: "x"},
	}})
	assert.Error(t, err)
}

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Webhooks)
	assert.Empty(t, cfg.Schedules)
}

func TestLoadConfigParsesTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
webhooks:
  - name: orders
    content_template: "{{.payload}}"
    hint: json
schedules:
  - cron: "0 * * * *"
    content: "ping"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, "orders", cfg.Webhooks[0].Name)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "0 * * * *", cfg.Schedules[0].Cron)
}
