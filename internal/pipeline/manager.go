// Package pipeline owns pipeline records, their state machine and storage.
package pipeline

import (
	"context"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/metrics"
	"github.com/maxbolgarin/hookflow/internal/model"
)

const defaultRetention = 24 * time.Hour

// Manager is the only writer of pipeline state. Every mutation goes through
// Transition, which enforces the transition table under a per-pipeline lock.
type Manager struct {
	store     model.PipelineStore
	locker    Locker
	recorder  metrics.Recorder
	retention time.Duration
	log       logze.Logger
}

// NewManager creates a state manager. retention bounds how long terminal
// pipelines stay queryable before the reaper removes them.
func NewManager(store model.PipelineStore, locker Locker, recorder metrics.Recorder, retention time.Duration) *Manager {
	return &Manager{
		store:     store,
		locker:    locker,
		recorder:  lang.If[metrics.Recorder](recorder != nil, recorder, metrics.Noop{}),
		retention: lang.Check(retention, defaultRetention),
		log:       logze.With("module", "pipeline"),
	}
}

// Get loads a pipeline by id.
func (m *Manager) Get(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	return m.store.Get(ctx, pipelineID)
}

// CreateForEvent creates a pipeline for an accepted event, idempotently on the
// event's dedup key. Retried deliveries return the originally created pipeline.
func (m *Manager) CreateForEvent(ctx context.Context, event *model.StandardizedEvent) (*model.Pipeline, bool, error) {
	repository := ""
	if event.Repository != nil {
		repository = event.Repository.FullName()
	}
	p := model.NewPipeline(event.Service, repository)
	p.Metadata["event_id"] = event.EventID
	p.Metadata["event_type"] = event.EventType

	boundID, created, err := m.store.BindEvent(ctx, event.DedupKey(), p.PipelineID)
	if err != nil {
		return nil, false, errm.Wrap(err, "bind event to pipeline")
	}
	if !created {
		existing, err := m.store.Get(ctx, boundID)
		if err != nil {
			return nil, false, errm.Wrap(err, "load pipeline for duplicate delivery")
		}
		m.log.Debug("duplicate delivery ignored", "event_id", event.EventID, "pipeline_id", boundID)
		return existing, false, nil
	}

	if err := m.store.Save(ctx, p); err != nil {
		return nil, false, errm.Wrap(err, "save new pipeline")
	}
	m.recorder.PipelineCreated(event.Service)
	m.log.Info("pipeline created",
		"pipeline_id", p.PipelineID,
		"service", event.Service,
		"event_type", event.EventType,
		"repository", repository,
	)
	return p, true, nil
}

// Update carries the optional fields applied together with a transition.
type Update struct {
	TaskID   string
	Error    string
	Metadata map[string]string
}

// Transition moves a pipeline to newState. The read-check-write sequence runs
// under the per-pipeline lock so concurrent attempts are linearized; an
// illegal (from, to) pair fails with ErrInvalidTransition and changes nothing.
func (m *Manager) Transition(ctx context.Context, pipelineID string, newState model.PipelineState, upd Update) (*model.Pipeline, error) {
	unlock, err := m.locker.Lock(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := m.store.Get(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	from := p.CurrentState
	if !model.CanTransition(from, newState) {
		return nil, errm.Wrap(model.ErrInvalidTransition,
			"from "+string(from)+" to "+string(newState))
	}

	m.recorder.Transition(from, newState)

	now := time.Now().UTC()
	p.CurrentState = newState
	p.CurrentTaskID = upd.TaskID
	p.UpdatedAt = now
	if upd.Error != "" {
		p.Error = upd.Error
	}
	p.MergeMetadata(upd.Metadata)

	if newState.IsTerminal() {
		m.recorder.TerminalDuration(p.Service, now.Sub(p.CreatedAt))
		deadline := now.Add(m.retention)
		p.ExpiresAt = &deadline
	}

	if err := m.store.Save(ctx, p); err != nil {
		return nil, errm.Wrap(err, "persist transition")
	}
	if newState.IsTerminal() {
		if err := m.store.SetExpiry(ctx, pipelineID, m.retention); err != nil {
			return nil, errm.Wrap(err, "arm retention expiry")
		}
	}

	m.log.Debug("pipeline transitioned",
		"pipeline_id", pipelineID,
		"from", from,
		"to", newState,
		"task_id", upd.TaskID,
	)
	return p, nil
}

// ForceFail moves a non-terminal pipeline to failed with the error recorded.
// Used when a task exhausts its retries or its owner disappeared.
func (m *Manager) ForceFail(ctx context.Context, pipelineID, reason string) (*model.Pipeline, error) {
	return m.Transition(ctx, pipelineID, model.StateFailed, Update{Error: reason})
}

// Retention reports the configured terminal retention window.
func (m *Manager) Retention() time.Duration {
	return m.retention
}
