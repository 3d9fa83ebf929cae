package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbolgarin/hookflow/internal/model"
)

func newTestManager(t *testing.T, retention time.Duration) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewManager(store, NewMemoryLocker(), nil, retention), store
}

func testEvent(id string) *model.StandardizedEvent {
	return &model.StandardizedEvent{
		EventID:   id,
		Service:   model.ServiceGitHub,
		EventType: "issue_comment",
		Repository: &model.RepositoryContext{
			Owner: "maxbolgarin",
			Name:  "hookflow",
		},
	}
}

func TestManager_CreateForEvent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, time.Hour)

	p, created, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, model.StateReceived, p.CurrentState)
	assert.Equal(t, "maxbolgarin/hookflow", p.Repository)
	assert.Equal(t, "d-1", p.Metadata["event_id"])
}

func TestManager_CreateForEvent_Idempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, time.Hour)

	first, created, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)
	require.True(t, created)

	// Same delivery again: no new pipeline.
	second, created, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PipelineID, second.PipelineID)

	// A different delivery id gets its own pipeline.
	third, created, err := m.CreateForEvent(ctx, testEvent("d-2"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.PipelineID, third.PipelineID)
}

func TestManager_Transition(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, time.Hour)

	p, _, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)

	got, err := m.Transition(ctx, p.PipelineID, model.StateProcessing, Update{TaskID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, model.StateProcessing, got.CurrentState)
	assert.Equal(t, "task-1", got.CurrentTaskID)
	assert.Nil(t, got.ExpiresAt)
}

func TestManager_Transition_Illegal(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, time.Hour)

	p, _, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)

	_, err = m.Transition(ctx, p.PipelineID, model.StateCompleted, Update{})
	require.Error(t, err)
	assert.True(t, errm.Is(err, model.ErrInvalidTransition))

	// The record did not move.
	stored, err := m.Get(ctx, p.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, model.StateReceived, stored.CurrentState)
}

func TestManager_Transition_NotFound(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	_, err := m.Transition(context.Background(), "missing", model.StateProcessing, Update{})
	require.Error(t, err)
	assert.True(t, errm.Is(err, model.ErrPipelineNotFound))
}

func TestManager_TerminalSetsExpiry(t *testing.T) {
	ctx := context.Background()
	retention := 2 * time.Hour
	m, _ := newTestManager(t, retention)

	p, _, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)

	for _, state := range []model.PipelineState{
		model.StateProcessing, model.StateDispatching, model.StateExecuting,
		model.StateProcessingResults, model.StateCompleted,
	} {
		p, err = m.Transition(ctx, p.PipelineID, state, Update{})
		require.NoError(t, err, "%s", state)
	}

	require.NotNil(t, p.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(retention), *p.ExpiresAt, time.Minute)
}

func TestManager_ForceFail(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, time.Hour)

	p, _, err := m.CreateForEvent(ctx, testEvent("d-1"))
	require.NoError(t, err)

	failed, err := m.ForceFail(ctx, p.PipelineID, "executor exploded")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, failed.CurrentState)
	assert.Equal(t, "executor exploded", failed.Error)
	require.NotNil(t, failed.ExpiresAt)

	// Terminal pipelines cannot be failed again.
	_, err = m.ForceFail(ctx, p.PipelineID, "again")
	require.Error(t, err)
	assert.True(t, errm.Is(err, model.ErrInvalidTransition))
}

func TestMemoryStore_BindEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id, created, err := store.BindEvent(ctx, "github:d-1", "p-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "p-1", id)

	id, created, err = store.BindEvent(ctx, "github:d-1", "p-2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "p-1", id)
}

func TestMemoryStore_ScanCursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		p := model.NewPipeline(model.ServiceGitHub, "")
		require.NoError(t, store.Save(ctx, p))
	}

	var all []string
	var cursor uint64
	for {
		ids, next, err := store.Scan(ctx, cursor, 2)
		require.NoError(t, err)
		all = append(all, ids...)
		cursor = next
		if next == 0 {
			break
		}
	}
	assert.Len(t, all, 5)
}
