package model

import (
	"context"
	"time"
)

// WebhookHandler validates and normalizes one service's webhooks. A handler is
// constructed per request with that request's headers and payload.
type WebhookHandler interface {
	// ValidateSignature checks the request signature against the raw body.
	ValidateSignature(body []byte) error
	// ValidateEventType returns the event type or ErrUnsupportedEvent.
	ValidateEventType() (string, error)
	// IsVerificationEvent reports whether the event type is the service's
	// ping/verification event, which is acknowledged but never queued.
	IsVerificationEvent(eventType string) bool
	// VerificationAck is the response body for a verification event.
	VerificationAck() map[string]any
	// Standardize builds the service-agnostic event. Missing optional payload
	// fields are left unset, not treated as errors.
	Standardize() (*StandardizedEvent, error)
}

// PipelineStore is durable keyed storage of pipeline records.
type PipelineStore interface {
	Get(ctx context.Context, pipelineID string) (*Pipeline, error)
	Save(ctx context.Context, pipeline *Pipeline) error
	SetExpiry(ctx context.Context, pipelineID string, ttl time.Duration) error
	Delete(ctx context.Context, pipelineID string) error

	// Scan enumerates stored pipeline ids in batches. It returns the ids of the
	// batch and the cursor for the next call; a zero next cursor means the
	// iteration wrapped around to its starting point.
	Scan(ctx context.Context, cursor uint64, count int64) (ids []string, next uint64, err error)

	// BindEvent maps a delivery's dedup key to a pipeline id, create-if-absent.
	// It returns the bound pipeline id and whether this call created the binding.
	BindEvent(ctx context.Context, dedupKey, pipelineID string) (string, bool, error)
}

// EventQueue hands accepted events to the asynchronous task runner.
type EventQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// Dispatcher selects and prepares downstream work for an event.
type Dispatcher interface {
	Dispatch(ctx context.Context, pipelineID string, event *StandardizedEvent) error
}

// Executor runs the dispatched work for a pipeline.
type Executor interface {
	Execute(ctx context.Context, pipelineID string, event *StandardizedEvent) error
}

// ResultProcessor handles the outcome of executed work.
type ResultProcessor interface {
	ProcessResults(ctx context.Context, pipelineID string, event *StandardizedEvent) error
}

// RateLimiter decides whether an inbound request may proceed. Rate limiting
// itself is an external concern; the default implementation always allows.
type RateLimiter interface {
	Allow(service ServiceName) bool
}

// ConnectionStore persists organizations and service connections created from
// installation events. The relational storage behind it is out of scope here.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, conn *ServiceConnection) error
	GetConnection(ctx context.Context, connectionID string) (*ServiceConnection, error)
	ListConnections(ctx context.Context) ([]*ServiceConnection, error)
	UpdateConnectionStatus(ctx context.Context, connectionID string, status ConnectionStatus) error
}

// CredentialCipher protects secrets before they are persisted.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// InstallationHandler reacts to installation-type events by creating the
// organization and service-connection records.
type InstallationHandler interface {
	HandleInstallation(ctx context.Context, event *StandardizedEvent) error
}

// HealthChecker probes the health of known service connections.
type HealthChecker interface {
	CheckAll(ctx context.Context) ([]HealthResult, error)
}
