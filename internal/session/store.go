package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/agents"
	flowbitotel "github.com/HarinGuptha/FlowBit-Harin/internal/otel"
)

var tracer = flowbitotel.Tracer("github.com/HarinGuptha/FlowBit-Harin/internal/session")

// ErrNotFound is returned when no session exists for the requested id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions, counters, and baseline samples in SQLite.
// All mutations are atomic statements; concurrent sessions never touch
// each other's rows.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	window int
	bus    *bus
	signer *Signer
	now    func() time.Time
}

// StoreOption configures optional store behavior.
type StoreOption func(*Store)

// WithSigner enables HMAC signing of finalized session documents.
func WithSigner(signer *Signer) StoreOption {
	return func(s *Store) { s.signer = signer }
}

// NewStore opens (or creates) the session database. ttl bounds how long
// session records are readable; window bounds per-field sample retention.
func NewStore(dbPath string, ttl time.Duration, window int, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	// One writer connection; concurrent sessions serialize here instead
	// of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		final_status TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMP NOT NULL,
		session_json TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS field_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		field TEXT NOT NULL,
		value REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_field_samples_field ON field_samples(field);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating session schema: %w", err)
	}

	store := &Store{db: db, ttl: ttl, window: window, bus: newBus(), now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close releases the database connection and drops all subscribers.
func (s *Store) Close() error {
	s.bus.close()
	return s.db.Close()
}

// CreateSession inserts a new session record with a TTL stamp.
func (s *Store) CreateSession(ctx context.Context, sess *ProcessingSession) error {
	ctx, span := tracer.Start(ctx, "session.create",
		trace.WithAttributes(attribute.String("session.id", sess.ID)))
	defer span.End()

	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	query := `INSERT INTO sessions (id, created_at, final_status, expires_at, session_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.CreatedAt, string(sess.FinalStatus), s.now().Add(s.ttl), string(doc), s.sign(doc))
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// AppendDecision attaches the agent decision to the session record.
func (s *Store) AppendDecision(ctx context.Context, id string, d *agents.Decision) error {
	ctx, span := tracer.Start(ctx, "session.append_decision",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	return s.update(ctx, id, func(sess *ProcessingSession) {
		sess.Decision = d
	})
}

// AppendActionResult appends one executed action's result to the session.
func (s *Store) AppendActionResult(ctx context.Context, id string, r action.Result) error {
	ctx, span := tracer.Start(ctx, "session.append_action_result",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("action.type", string(r.Request.Type)),
			attribute.String("action.status", string(r.Status)),
		))
	defer span.End()

	return s.update(ctx, id, func(sess *ProcessingSession) {
		sess.Actions = append(sess.Actions, r)
	})
}

// FinalizeSession sets final_status exactly once and publishes the
// terminal event. A second call for the same id is a no-op returning
// false, tolerating orchestration retries.
func (s *Store) FinalizeSession(ctx context.Context, id string, status Status, errMsg string) (bool, error) {
	ctx, span := tracer.Start(ctx, "session.finalize",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("session.status", string(status)),
		))
	defer span.End()

	applied := false
	err := s.update(ctx, id, func(sess *ProcessingSession) {
		if sess.FinalStatus == StatusCompleted || sess.FinalStatus == StatusFailed {
			return
		}
		done := s.now().UTC()
		sess.FinalStatus = status
		sess.Error = errMsg
		sess.CompletedAt = &done
		applied = true
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.bus.publish(Event{SessionID: id, Status: status})
	}
	return applied, nil
}

// update performs a read-modify-write of one session document inside a
// transaction. Session rows are only ever written by their own unit of
// work, so the read cannot race a foreign writer.
func (s *Store) update(ctx context.Context, id string, mutate func(*ProcessingSession)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session update: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT session_json FROM sessions WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("updating session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess ProcessingSession
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return fmt.Errorf("unmarshaling session %s: %w", id, err)
	}

	mutate(&sess)

	updated, err := json.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", id, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET session_json = ?, final_status = ?, signature = ? WHERE id = ?`,
		string(updated), string(sess.FinalStatus), s.sign(updated), id)
	if err != nil {
		return fmt.Errorf("writing session %s: %w", id, err)
	}
	return tx.Commit()
}

// sign returns the document signature, or "" when signing is disabled.
func (s *Store) sign(doc []byte) string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Sign(doc)
}

// VerifySession checks the stored signature of one session document.
// It returns false when the record was altered outside the store, and
// an error when the session is missing or signing is disabled.
func (s *Store) VerifySession(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "session.verify",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if s.signer == nil {
		return false, errors.New("session signing is not enabled")
	}

	var doc, sig string
	query := `SELECT session_json, signature FROM sessions WHERE id = ?`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc, &sig)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("querying session %s: %w", id, err)
	}
	return s.signer.Verify([]byte(doc), sig), nil
}

// GetSession retrieves one session by id. Expired records are invisible.
func (s *Store) GetSession(ctx context.Context, id string) (*ProcessingSession, error) {
	ctx, span := tracer.Start(ctx, "session.get",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	var doc string
	query := `SELECT session_json FROM sessions WHERE id = ? AND expires_at > ?`
	err := s.db.QueryRowContext(ctx, query, id, s.now()).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}

	var sess ProcessingSession
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", id, err)
	}
	return &sess, nil
}

// ListRecent returns the newest unexpired sessions, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ProcessingSession, error) {
	ctx, span := tracer.Start(ctx, "session.list_recent",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	query := `SELECT session_json FROM sessions WHERE expires_at > ? ORDER BY created_at DESC`
	args := []interface{}{s.now()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []ProcessingSession
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			continue
		}
		var sess ProcessingSession
		if err := json.Unmarshal([]byte(doc), &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// IncrementCounter atomically bumps a named process-wide counter and
// returns its new value.
func (s *Store) IncrementCounter(ctx context.Context, name string) (int64, error) {
	ctx, span := tracer.Start(ctx, "session.increment_counter",
		trace.WithAttributes(attribute.String("counter", name)))
	defer span.End()

	var value int64
	query := `INSERT INTO counters (name, value) VALUES (?, 1)
	          ON CONFLICT(name) DO UPDATE SET value = value + 1
	          RETURNING value`
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("incrementing counter %s: %w", name, err)
	}
	return value, nil
}

// Counters returns a snapshot of all counters.
func (s *Store) Counters(ctx context.Context) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "session.counters")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			continue
		}
		out[name] = value
	}
	return out, rows.Err()
}

// RecordFieldSample appends one numeric observation for a field and
// trims the field's window to the configured retention bound.
func (s *Store) RecordFieldSample(ctx context.Context, field string, value float64) error {
	ctx, span := tracer.Start(ctx, "session.record_field_sample",
		trace.WithAttributes(attribute.String("field", field)))
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sample write: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO field_samples (field, value, recorded_at) VALUES (?, ?, ?)`,
		field, value, s.now())
	if err != nil {
		return fmt.Errorf("recording sample for %s: %w", field, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM field_samples WHERE field = ? AND id NOT IN (
			SELECT id FROM field_samples WHERE field = ? ORDER BY id DESC LIMIT ?
		)`, field, field, s.window)
	if err != nil {
		return fmt.Errorf("trimming samples for %s: %w", field, err)
	}
	return tx.Commit()
}

// Baseline implements agents.BaselineSource: count, mean, and standard
// deviation over the field's retained window.
func (s *Store) Baseline(ctx context.Context, field string) (agents.FieldBaseline, error) {
	ctx, span := tracer.Start(ctx, "session.baseline",
		trace.WithAttributes(attribute.String("field", field)))
	defer span.End()

	var b agents.FieldBaseline
	var mean, meanSq sql.NullFloat64
	query := `SELECT COUNT(*), AVG(value), AVG(value * value) FROM field_samples WHERE field = ?`
	if err := s.db.QueryRowContext(ctx, query, field).Scan(&b.Count, &mean, &meanSq); err != nil {
		return b, fmt.Errorf("reading baseline for %s: %w", field, err)
	}
	if b.Count == 0 {
		return b, nil
	}
	b.Mean = mean.Float64
	if variance := meanSq.Float64 - mean.Float64*mean.Float64; variance > 0 {
		b.StdDev = math.Sqrt(variance)
	}
	return b, nil
}

// PurgeExpired deletes session records past their TTL and returns how
// many were removed. Counters and samples are deliberately untouched.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "session.purge_expired")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Subscribe registers for terminal session events. The returned cancel
// func must be called exactly once to release the subscription.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.bus.subscribe()
}
