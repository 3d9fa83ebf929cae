package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbolgarin/hookflow/internal/model"
)

func newTestReaper(t *testing.T, cfg ReaperConfig) (*Reaper, *Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	manager := NewManager(store, NewMemoryLocker(), nil, time.Hour)
	return NewReaper(store, manager, nil, cfg), manager, store
}

func savePipeline(t *testing.T, store *MemoryStore, state model.PipelineState, expiresAt *time.Time, updatedAt time.Time) *model.Pipeline {
	t.Helper()
	p := model.NewPipeline(model.ServiceGitHub, "maxbolgarin/hookflow")
	p.CurrentState = state
	p.ExpiresAt = expiresAt
	p.UpdatedAt = updatedAt
	require.NoError(t, store.Save(context.Background(), p))
	return p
}

func TestReaper_ExpiresElapsedTerminal(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{})

	elapsed := time.Now().Add(-time.Minute)
	done := savePipeline(t, store, model.StateCompleted, &elapsed, time.Now())

	require.NoError(t, r.Sweep(ctx))

	_, err := store.Get(ctx, done.PipelineID)
	require.Error(t, err)
	assert.True(t, errm.Is(err, model.ErrPipelineNotFound))
}

func TestReaper_KeepsUnelapsedTerminal(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{})

	future := time.Now().Add(time.Hour)
	kept := savePipeline(t, store, model.StateFailed, &future, time.Now())

	require.NoError(t, r.Sweep(ctx))

	p, err := store.Get(ctx, kept.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, p.CurrentState)
}

func TestReaper_NeverDeletesActivePipelines(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{})

	active := savePipeline(t, store, model.StateExecuting, nil, time.Now())

	require.NoError(t, r.Sweep(ctx))

	p, err := store.Get(ctx, active.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, model.StateExecuting, p.CurrentState)
}

func TestReaper_ForceFailsStuckPipelines(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{MaxNonterminalAge: time.Hour})

	stuck := savePipeline(t, store, model.StateDispatching, nil, time.Now().Add(-2*time.Hour))
	fresh := savePipeline(t, store, model.StateDispatching, nil, time.Now())

	require.NoError(t, r.Sweep(ctx))

	p, err := store.Get(ctx, stuck.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, p.CurrentState)
	assert.NotEmpty(t, p.Error)

	p, err = store.Get(ctx, fresh.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDispatching, p.CurrentState)
}

func TestReaper_ConcurrentSweeps(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{ScanBatch: 2})

	elapsed := time.Now().Add(-time.Minute)
	var gone []string
	for i := 0; i < 6; i++ {
		gone = append(gone, savePipeline(t, store, model.StateCompleted, &elapsed, time.Now()).PipelineID)
	}

	// A slow sweep can overlap the next scheduled cleanup task. Overlapping
	// calls must serialize on the shared cursor instead of interleaving.
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Sweep(ctx))
		}()
	}
	wg.Wait()

	for i := 0; i < len(gone); i++ {
		require.NoError(t, r.Sweep(ctx))
	}
	for _, id := range gone {
		_, err := store.Get(ctx, id)
		assert.True(t, errm.Is(err, model.ErrPipelineNotFound), "%s should be gone", id)
	}
}

func TestReaper_SweepMixedBatches(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestReaper(t, ReaperConfig{ScanBatch: 2})

	elapsed := time.Now().Add(-time.Minute)
	var gone, kept []string
	for i := 0; i < 3; i++ {
		gone = append(gone, savePipeline(t, store, model.StateCompleted, &elapsed, time.Now()).PipelineID)
		kept = append(kept, savePipeline(t, store, model.StateProcessing, nil, time.Now()).PipelineID)
	}

	// Deletions shift the scan window, so one pass may skip records; repeated
	// sweeps must still converge on removing every elapsed pipeline.
	for i := 0; i < len(gone); i++ {
		require.NoError(t, r.Sweep(ctx))
	}

	for _, id := range gone {
		_, err := store.Get(ctx, id)
		assert.True(t, errm.Is(err, model.ErrPipelineNotFound), "%s should be gone", id)
	}
	for _, id := range kept {
		_, err := store.Get(ctx, id)
		assert.NoError(t, err, "%s should survive", id)
	}
}
