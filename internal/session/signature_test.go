package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef" // 32 raw bytes

func TestNewSignerRejectsShortKey(t *testing.T) {
	_, err := NewSigner("too-short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestNewSignerAcceptsRawAndHexKeys(t *testing.T) {
	_, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	// 64 hex chars decoding to 32 bytes.
	_, err = NewSigner(strings.Repeat("ab", 32))
	require.NoError(t, err)
}

func TestSignerSignAndVerify(t *testing.T) {
	signer, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	doc := []byte(`{"id":"sess-1","final_status":"completed"}`)
	sig := signer.Sign(doc)
	assert.True(t, strings.HasPrefix(sig, "hmac-sha256:"))

	assert.True(t, signer.Verify(doc, sig))
	assert.False(t, signer.Verify([]byte(`{"id":"sess-1","final_status":"failed"}`), sig))
	assert.False(t, signer.Verify(doc, "hmac-sha256:deadbeef"))
	assert.False(t, signer.Verify(doc, "hmac-sha256:not hex"))
	assert.False(t, signer.Verify(doc, "unsigned"))
}

func TestStoreVerifySession(t *testing.T) {
	signer, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "sessions.db"), 24*time.Hour, 100, WithSigner(signer))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	sess := newTestSession("sess-signed")
	require.NoError(t, store.CreateSession(ctx, sess))

	ok, err := store.VerifySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Signature follows the document through updates.
	_, err = store.FinalizeSession(ctx, sess.ID, StatusCompleted, "")
	require.NoError(t, err)

	ok, err = store.VerifySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreVerifySessionDetectsTampering(t *testing.T) {
	signer, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "sessions.db"), 24*time.Hour, 100, WithSigner(signer))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	sess := newTestSession("sess-tampered")
	require.NoError(t, store.CreateSession(ctx, sess))

	// Rewrite the document behind the store's back.
	_, err = store.db.ExecContext(ctx,
		`UPDATE sessions SET session_json = ? WHERE id = ?`,
		`{"id":"sess-tampered","final_status":"completed"}`, sess.ID)
	require.NoError(t, err)

	ok, err := store.VerifySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySessionWithoutSigner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, newTestSession("sess-unsigned")))

	_, err := store.VerifySession(ctx, "sess-unsigned")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}
