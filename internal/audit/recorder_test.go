package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extensao.org/internal/apperr"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	last    Filter
}

func (s *fakeStore) AppendAudit(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) ListAudit(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = f
	return append([]Entry(nil), s.entries...), s.err
}

type capturePublisher struct{ got []Entry }

func (p *capturePublisher) Publish(e Entry) { p.got = append(p.got, e) }

func TestRecordStoresEntry(t *testing.T) {
	observeLogs(t)
	store := &fakeStore{}
	pub := &capturePublisher{}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, WithPublisher(pub), WithClock(func() time.Time { return fixed }))

	ctx := WithRequestID(context.Background(), "req-1")
	id, err := rec.Record(ctx, Record{
		ActorID:     "user-1",
		Entity:      "proof",
		EntityID:    "proof-1",
		Action:      "proof.update_status",
		Before:      map[string]string{"status": "pending"},
		After:       map[string]string{"status": "accepted"},
		Description: "proof accepted",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, store.entries, 1)

	e := store.entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, fixed, e.CreatedAt)
	assert.JSONEq(t, `{"status":"pending"}`, string(e.Before))
	assert.JSONEq(t, `{"status":"accepted"}`, string(e.After))
	require.Len(t, pub.got, 1)
	assert.Equal(t, id, pub.got[0].ID)
}

func TestRecordAllowsNullActorAndSnapshots(t *testing.T) {
	observeLogs(t)
	store := &fakeStore{}
	rec := NewRecorder(store)

	_, err := rec.Record(context.Background(), Record{
		Entity:      EntityAuth,
		Action:      "auth.login_failed",
		Description: "unknown email",
	})
	require.NoError(t, err)
	e := store.entries[0]
	assert.Empty(t, e.ActorID)
	assert.Empty(t, e.EntityID)
	assert.Nil(t, e.Before)
	assert.Nil(t, e.After)
}

func TestRecordFailureIsAuditFailed(t *testing.T) {
	logs := observeLogs(t)
	store := &fakeStore{err: errors.New("disk full")}
	pub := &capturePublisher{}
	rec := NewRecorder(store, WithPublisher(pub))

	_, err := rec.Record(context.Background(), Record{Entity: "user", Action: "user.delete"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuditFailed)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Empty(t, pub.got, "failed entries must not be published")
	assert.Equal(t, 1, logs.FilterMessage("audit recording failed").Len())
}

func TestRecordRejectsMalformedAction(t *testing.T) {
	observeLogs(t)
	store := &fakeStore{}
	rec := NewRecorder(store)

	for _, action := range []string{"", "delete", ".delete", "user."} {
		_, err := rec.Record(context.Background(), Record{Entity: "user", Action: action})
		assert.ErrorIs(t, err, apperr.ErrAuditFailed, "action %q", action)
	}
	assert.Empty(t, store.entries)
}

func TestRecordUnmarshalableSnapshot(t *testing.T) {
	observeLogs(t)
	rec := NewRecorder(&fakeStore{})
	_, err := rec.Record(context.Background(), Record{Entity: "user", Action: "user.update", After: make(chan int)})
	assert.ErrorIs(t, err, apperr.ErrAuditFailed)
}

func TestRecordKeepsRawSnapshot(t *testing.T) {
	observeLogs(t)
	store := &fakeStore{}
	rec := NewRecorder(store)
	_, err := rec.Record(context.Background(), Record{Entity: "user", Action: "user.update", After: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(store.entries[0].After))
}

func TestListClampsLimit(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store)

	_, err := rec.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 50, store.last.Limit)

	_, err = rec.List(context.Background(), Filter{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 500, store.last.Limit)

	_, err = rec.List(context.Background(), Filter{Limit: 7, Action: "proof.create"})
	require.NoError(t, err)
	assert.Equal(t, 7, store.last.Limit)
	assert.Equal(t, "proof.create", store.last.Action)
}

func TestListStoreErrorIsInternal(t *testing.T) {
	rec := NewRecorder(&fakeStore{err: errors.New("boom")})
	_, err := rec.List(context.Background(), Filter{})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
