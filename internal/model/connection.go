package model

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the lifecycle status of a service connection.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionError    ConnectionStatus = "error"
)

// HealthStatus is the result class of a connection health probe.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ServiceConnection links an organization to an external service installation.
type ServiceConnection struct {
	ID             string            `json:"id"`
	Organization   string            `json:"organization"`
	Service        ServiceName       `json:"service"`
	Status         ConnectionStatus  `json:"status"`
	InstallationID int64             `json:"installation_id,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`

	// Secrets encrypted with the credential cipher before persistence.
	EncryptedCredentials map[string]string `json:"encrypted_credentials,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewServiceConnection creates a pending connection for an organization.
func NewServiceConnection(organization string, service ServiceName) *ServiceConnection {
	now := time.Now().UTC()
	return &ServiceConnection{
		ID:           uuid.NewString(),
		Organization: organization,
		Service:      service,
		Status:       ConnectionPending,
		Settings:     make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HealthResult is the outcome of one connection health probe.
type HealthResult struct {
	ConnectionID string            `json:"connection_id"`
	Status       HealthStatus      `json:"status"`
	Message      string            `json:"message"`
	Details      map[string]string `json:"details,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}
