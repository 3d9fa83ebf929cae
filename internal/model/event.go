package model

import (
	"time"
)

// ServiceName identifies the external service that produced a webhook.
type ServiceName string

const (
	ServiceGitHub ServiceName = "github"
	ServiceSlack  ServiceName = "slack"
)

// RepositoryContext carries repository information extracted from an event.
type RepositoryContext struct {
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	DefaultBranch  string `json:"default_branch"`
	InstallationID int64  `json:"installation_id"`
	CanWrite       bool   `json:"can_write"`
}

// FullName returns the owner/name form of the repository.
func (r RepositoryContext) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// StandardizedEvent is the service-agnostic form of an inbound webhook.
// It is built once by a webhook handler and never mutated afterwards.
type StandardizedEvent struct {
	EventID     string             `json:"event_id"`
	Service     ServiceName        `json:"service"`
	EventType   string             `json:"event_type"`
	Repository  *RepositoryContext `json:"repository,omitempty"`
	UserRequest string             `json:"user_request,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Metadata    map[string]string  `json:"metadata,omitempty"`

	// Raw request data kept verbatim for audit and replay.
	RawHeaders map[string]string `json:"raw_headers,omitempty"`
	RawPayload []byte            `json:"raw_payload,omitempty"`
}

// DedupKey is the stable identity of a delivery, used to make ingestion
// idempotent across retried deliveries of the same event.
func (e StandardizedEvent) DedupKey() string {
	return string(e.Service) + ":" + e.EventID
}
