package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered        ActivityEventType = "auth.principal.registered"
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed    ActivityEventType = "auth.token.refreshed"
	ActivityEventRefreshReuse      ActivityEventType = "auth.token.reuse_detected"
	ActivityEventLogout            ActivityEventType = "auth.logout"
	ActivityEventPasswordChanged   ActivityEventType = "auth.password.changed"
	ActivityEventPrincipalDeleted  ActivityEventType = "auth.principal.deleted"
	ActivityEventCredentialFailure ActivityEventType = "auth.credential.failure"
)

// ActivityEvent captures audit-friendly information about an action.
// Metadata never carries passwords, digests or token values.
type ActivityEvent struct {
	EventType   ActivityEventType
	PrincipalID string
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
