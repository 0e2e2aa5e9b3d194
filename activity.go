package signin

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignInSuccess      ActivityEventType = "signin.success"
	ActivityEventSignInFailure      ActivityEventType = "signin.failure"
	ActivityEventSignInRejected     ActivityEventType = "signin.rejected"
	ActivityEventTwoFactorRequested ActivityEventType = "signin.two_factor.requested"
	ActivityEventTwoFactorVerified  ActivityEventType = "signin.two_factor.verified"
	ActivityEventTwoFactorFailure   ActivityEventType = "signin.two_factor.failure"
)

// ActivityEvent captures audit-friendly information about a sign in attempt.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Identifier string
	Code       string
	Metadata   map[string]any
	OccurredAt time.Time
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

// recordActivity sends event to sink, failures are only logged
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink record error: %v", err)
	}
}
