package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskKind names a unit of pipeline-driving work. Each kind has its own retry
// budget and backoff configured in the worker.
type TaskKind string

const (
	TaskAcceptEvent    TaskKind = "accept_event"
	TaskDispatch       TaskKind = "dispatch"
	TaskExecute        TaskKind = "execute"
	TaskProcessResults TaskKind = "process_results"
	TaskCleanup        TaskKind = "cleanup"
	TaskHealthCheck    TaskKind = "health_check"
	TaskCollectMetrics TaskKind = "collect_metrics"
)

// Task is one retryable unit of work carried by the event queue.
type Task struct {
	TaskID     string             `json:"task_id"`
	Kind       TaskKind           `json:"kind"`
	PipelineID string             `json:"pipeline_id,omitempty"`
	Event      *StandardizedEvent `json:"event,omitempty"`
	Attempt    int                `json:"attempt"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// NewTask creates a first-attempt task of the given kind.
func NewTask(kind TaskKind, pipelineID string, event *StandardizedEvent) Task {
	return Task{
		TaskID:     uuid.NewString(),
		Kind:       kind,
		PipelineID: pipelineID,
		Event:      event,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}
