// Package audit records the append-only trail of state changes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"extensao.org/internal/apperr"
	"extensao.org/internal/ids"
	"extensao.org/internal/obs"
)

// EntityAuth is the sentinel entity of authentication events that touch no record.
const EntityAuth = "auth"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Record is one audit request. ActorID and EntityID may be empty; Before and After are
// marshalled to JSON and may be nil.
type Record struct {
	ActorID     string
	Entity      string
	EntityID    string
	Action      string
	Before      any
	After       any
	Description string
}

// Entry is a stored, immutable audit entry.
type Entry struct {
	ID          string          `json:"id"`
	ActorID     string          `json:"actor_id,omitempty"`
	Entity      string          `json:"entity"`
	EntityID    string          `json:"entity_id,omitempty"`
	Action      string          `json:"action"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	Description string          `json:"description"`
	RequestID   string          `json:"request_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  string
	Limit    int
}

// Store appends and lists entries. It exposes no update or delete.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	ListAudit(ctx context.Context, f Filter) ([]Entry, error)
}

// Publisher receives every entry after it was stored.
type Publisher interface {
	Publish(e Entry)
}

// Recorder writes audit entries synchronously.
type Recorder struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher fans stored entries out to live subscribers.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.pub = p }
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a recorder over store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry and returns its id. Any failure is reported as
// apperr.ErrAuditFailed.
func (r *Recorder) Record(ctx context.Context, rec Record) (string, error) {
	if err := validAction(rec.Action); err != nil {
		return "", r.fail(rec, err)
	}
	if strings.TrimSpace(rec.Entity) == "" {
		return "", r.fail(rec, fmt.Errorf("entity is required"))
	}
	before, err := snapshot(rec.Before)
	if err != nil {
		return "", r.fail(rec, fmt.Errorf("marshal before: %w", err))
	}
	after, err := snapshot(rec.After)
	if err != nil {
		return "", r.fail(rec, fmt.Errorf("marshal after: %w", err))
	}

	e := Entry{
		ID:          ids.New(),
		ActorID:     rec.ActorID,
		Entity:      rec.Entity,
		EntityID:    rec.EntityID,
		Action:      rec.Action,
		Before:      before,
		After:       after,
		Description: rec.Description,
		RequestID:   RequestIDFromContext(ctx),
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.AppendAudit(ctx, e); err != nil {
		return "", r.fail(rec, err)
	}

	obs.AuditEntries.WithLabelValues(e.Action).Inc()
	_ = LogEvent(ctx, e.Action, e.ActorID, map[string]any{
		"audit_id":    e.ID,
		"entity":      e.Entity,
		"entity_id":   e.EntityID,
		"description": e.Description,
	})
	if r.pub != nil {
		r.pub.Publish(e)
	}
	return e.ID, nil
}

// List returns entries newest first. The limit defaults to 50 and is capped at 500.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	entries, err := r.store.ListAudit(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list audit", err)
	}
	return entries, nil
}

func (r *Recorder) fail(rec Record, err error) error {
	obs.AuditFailures.Inc()
	obs.Logger().Error("audit recording failed",
		zap.String("action", rec.Action),
		zap.String("entity", rec.Entity),
		zap.String("entity_id", rec.EntityID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", apperr.ErrAuditFailed, rec.Action, err)
}

// validAction accepts dot-namespaced tags such as "proof.update_status".
func validAction(action string) error {
	entity, verb, ok := strings.Cut(action, ".")
	if !ok || strings.TrimSpace(entity) == "" || strings.TrimSpace(verb) == "" {
		return fmt.Errorf("action %q is not entity.verb", action)
	}
	return nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
