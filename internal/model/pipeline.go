package model

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState is a stage in the pipeline lifecycle.
type PipelineState string

const (
	StateReceived          PipelineState = "received"
	StateProcessing        PipelineState = "processing"
	StateDispatching       PipelineState = "dispatching"
	StateExecuting         PipelineState = "executing"
	StateProcessingResults PipelineState = "processing_results"
	StateCompleted         PipelineState = "completed"
	StateFailed            PipelineState = "failed"
	StateCleaned           PipelineState = "cleaned"
	StateExpired           PipelineState = "expired"
)

// validTransitions is the exhaustive transition table. A pair absent here is
// illegal no matter who asks, including retried task callbacks.
var validTransitions = map[PipelineState][]PipelineState{
	StateReceived:          {StateProcessing, StateFailed},
	StateProcessing:        {StateDispatching, StateFailed},
	StateDispatching:       {StateExecuting, StateFailed},
	StateExecuting:         {StateProcessingResults, StateFailed},
	StateProcessingResults: {StateCompleted, StateFailed},
	StateCompleted:         {StateCleaned},
	StateFailed:            {StateCleaned},
	StateCleaned:           {StateExpired},
	StateExpired:           {},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to PipelineState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state ends normal processing. Terminal
// pipelines only move along the expiry path.
func (s PipelineState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsValid reports whether the value is a known state.
func (s PipelineState) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Pipeline tracks a single accepted event from receipt to expiry. It is owned
// by the state manager; nothing else writes its fields once it is stored.
type Pipeline struct {
	PipelineID    string            `json:"pipeline_id"`
	CurrentState  PipelineState     `json:"current_state"`
	CurrentTaskID string            `json:"current_task_id,omitempty"`
	Service       ServiceName       `json:"service"`
	Repository    string            `json:"repository,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewPipeline creates a pipeline in the received state for an accepted event.
func NewPipeline(service ServiceName, repository string) *Pipeline {
	now := time.Now().UTC()
	return &Pipeline{
		PipelineID:   uuid.NewString(),
		CurrentState: StateReceived,
		Service:      service,
		Repository:   repository,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     make(map[string]string),
	}
}

// MergeMetadata overwrites existing keys and keeps the rest.
func (p *Pipeline) MergeMetadata(updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		p.Metadata[k] = v
	}
}
