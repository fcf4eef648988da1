package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventLogout               ActivityEventType = "auth.logout"
	ActivityEventPasswordSet          ActivityEventType = "auth.password.set"
	ActivityEventAccountProvisioned   ActivityEventType = "account.provisioned"
	ActivityEventAccountUpdated       ActivityEventType = "account.updated"
	ActivityEventAccountStatusChanged ActivityEventType = "account.status.changed"
	ActivityEventAccountDeleted       ActivityEventType = "account.deleted"
)

// ActorRef identifies who or what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// Actor types
const (
	ActorTypeSystem    = "system"
	ActorTypeAnonymous = "anonymous"
)

// ActorFromIdentity builds the actor for an authenticated caller
func ActorFromIdentity(id Identity) ActorRef {
	if id == nil {
		return ActorRef{Type: ActorTypeAnonymous}
	}
	return ActorRef{ID: id.ID(), Type: id.Role()}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	ID          string
	EventType   ActivityEventType
	Actor       ActorRef
	PrincipalID string
	Kind        PrincipalKind
	FromStatus  AccountStatus
	ToStatus    AccountStatus
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes every event to a Logger at info level.
type LoggerActivitySink struct {
	Logger Logger
}

func (s LoggerActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}

	args := []any{
		"event_id", event.ID,
		"event", string(event.EventType),
		"actor_id", event.Actor.ID,
		"actor_type", event.Actor.Type,
		"principal_id", event.PrincipalID,
		"kind", string(event.Kind),
	}
	if event.FromStatus != "" || event.ToStatus != "" {
		args = append(args, "from", string(event.FromStatus), "to", string(event.ToStatus))
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	logger.Info("activity", args...)
	return nil
}

// stampEvent fills the id and timestamp of an event that has none
func stampEvent(event ActivityEvent, now func() time.Time) ActivityEvent {
	if event.OccurredAt.IsZero() {
		if now == nil {
			now = time.Now
		}
		event.OccurredAt = now().UTC()
	}
	if event.ID == "" {
		event.ID = ulid.MustNew(ulid.Timestamp(event.OccurredAt), ulid.DefaultEntropy()).String()
	}
	return event
}

// recordActivity stamps and forwards an event, logging sink failures
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if sink == nil {
		return
	}
	event = stampEvent(event, now)
	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
