// Package metrics records pipeline and webhook measurements.
package metrics

import (
	"time"

	"github.com/maxbolgarin/hookflow/internal/model"
)

// Recorder is the measurement surface used by the core components. Counters
// are aggregate-only and safe for concurrent increment.
type Recorder interface {
	// WebhookReceived counts inbound deliveries by service and outcome
	// (accepted, verification, rejected, failed).
	WebhookReceived(service model.ServiceName, outcome string)
	// PipelineCreated counts new pipelines by service.
	PipelineCreated(service model.ServiceName)
	// Transition counts a state transition by (from, to).
	Transition(from, to model.PipelineState)
	// TerminalDuration observes created-to-terminal latency.
	TerminalDuration(service model.ServiceName, d time.Duration)
	// SetStateCount sets the current number of pipelines in a state.
	SetStateCount(state model.PipelineState, n float64)
	// TaskRetry counts a retried task by kind.
	TaskRetry(kind model.TaskKind)
	// TaskExhausted counts a task that ran out of retries.
	TaskExhausted(kind model.TaskKind)
	// Reaped counts reaper actions by outcome (expired, force_failed).
	Reaped(outcome string)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) WebhookReceived(model.ServiceName, string)          {}
func (Noop) PipelineCreated(model.ServiceName)                  {}
func (Noop) Transition(model.PipelineState, model.PipelineState) {}
func (Noop) TerminalDuration(model.ServiceName, time.Duration)  {}
func (Noop) SetStateCount(model.PipelineState, float64)         {}
func (Noop) TaskRetry(model.TaskKind)                           {}
func (Noop) TaskExhausted(model.TaskKind)                       {}
func (Noop) Reaped(string)                                      {}
