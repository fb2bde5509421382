package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-fitauth"
)

const (
	// MetadataKeyOutcome is "success" or "failure", derived from the event type
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "principal"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Failure reports whether the record describes a rejected attempt
func (n Normalized) Failure() bool {
	return n.Metadata[MetadataKeyOutcome] == "failure"
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

var failures = map[auth.ActivityEventType]bool{
	auth.ActivityEventLoginFailure:      true,
	auth.ActivityEventCredentialFailure: true,
	auth.ActivityEventRefreshReuse:      true,
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	principal := strings.TrimSpace(event.PrincipalID)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(principal, options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   principal,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no principal,
// e.g. a login attempt for an unknown identifier.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock stamps events that carry no timestamp
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// LoggerSink normalizes every event and writes it to logger. Failures are
// logged at warn level.
func LoggerSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)

		args := []any{
			"verb", n.Verb,
			"actor", n.ActorID,
			"object", n.ObjectType + ":" + n.ObjectID,
			"channel", n.Channel,
		}
		for key, value := range n.Metadata {
			if key == MetadataKeyOutcome {
				continue
			}
			args = append(args, key, value)
		}

		if n.Failure() {
			logger.Warn("activity", args...)
		} else {
			logger.Info("activity", args...)
		}
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+1)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if _, exists := metadata[MetadataKeyOutcome]; !exists {
		outcome := "success"
		if failures[event.EventType] {
			outcome = "failure"
		}
		metadata[MetadataKeyOutcome] = outcome
	}

	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
