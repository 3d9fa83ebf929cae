package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/metrics"
	"github.com/maxbolgarin/hookflow/internal/model"
)

const defaultScanBatch = 100

// ReaperConfig tunes the cleanup sweep.
type ReaperConfig struct {
	// ScanBatch is the SCAN count hint per store call.
	ScanBatch int64
	// MaxNonterminalAge force-fails pipelines stuck in a non-terminal state
	// longer than this, covering owners that crashed without retrying.
	// Zero disables the check.
	MaxNonterminalAge time.Duration
}

// Reaper reclaims terminal pipelines whose retention elapsed:
// terminal -> cleaned -> expired, then delete. Sweeps are triggered by the
// worker's periodic cleanup task, independent of request handling. The scan
// cursor survives a failed sweep so the retry resumes instead of restarting.
type Reaper struct {
	store    model.PipelineStore
	manager  *Manager
	recorder metrics.Recorder
	cfg      ReaperConfig
	log      logze.Logger

	// mu serializes sweeps: a slow sweep can overlap the next scheduled
	// cleanup task, and both would walk the same cursor.
	mu     sync.Mutex
	cursor uint64
}

// NewReaper creates a reaper over the shared store and manager.
func NewReaper(store model.PipelineStore, manager *Manager, recorder metrics.Recorder, cfg ReaperConfig) *Reaper {
	cfg.ScanBatch = lang.Check(cfg.ScanBatch, defaultScanBatch)
	return &Reaper{
		store:    store,
		manager:  manager,
		recorder: lang.If[metrics.Recorder](recorder != nil, recorder, metrics.Noop{}),
		cfg:      cfg,
		log:      logze.With("module", "reaper"),
	}
}

// Sweep walks the store once from the saved cursor. Pipelines already handled
// in an interrupted sweep are not revisited: iteration ends when the cursor
// wraps back to its starting point.
func (r *Reaper) Sweep(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired, failed int
	for {
		ids, next, err := r.store.Scan(ctx, r.cursor, r.cfg.ScanBatch)
		if err != nil {
			return errm.Wrap(err, "scan pipelines")
		}
		for _, id := range ids {
			e, f := r.reapOne(ctx, id)
			expired += e
			failed += f
		}
		r.cursor = next
		if next == 0 {
			break
		}
	}
	if expired > 0 || failed > 0 {
		r.log.Info("sweep finished", "expired", expired, "force_failed", failed)
	}
	return nil
}

func (r *Reaper) reapOne(ctx context.Context, pipelineID string) (expired, failed int) {
	p, err := r.store.Get(ctx, pipelineID)
	if err != nil {
		if errm.Is(err, model.ErrPipelineNotFound) {
			return 0, 0 // removed between scan and action
		}
		r.log.Err(err, "load pipeline during sweep", "pipeline_id", pipelineID)
		return 0, 0
	}

	now := time.Now().UTC()
	switch {
	case p.CurrentState.IsTerminal() && p.ExpiresAt != nil && now.After(*p.ExpiresAt):
		if err := r.expire(ctx, p); err != nil {
			r.log.Err(err, "expire pipeline", "pipeline_id", pipelineID)
			return 0, 0
		}
		r.recorder.Reaped("expired")
		return 1, 0

	case r.cfg.MaxNonterminalAge > 0 &&
		!p.CurrentState.IsTerminal() &&
		p.CurrentState != model.StateCleaned && p.CurrentState != model.StateExpired &&
		now.Sub(p.UpdatedAt) > r.cfg.MaxNonterminalAge:
		if _, err := r.manager.ForceFail(ctx, pipelineID, "pipeline exceeded maximum non-terminal lifetime"); err != nil {
			// A concurrent transition may have won the race; the transition
			// table already protects terminal records.
			r.log.Warn("force-fail skipped", "pipeline_id", pipelineID, "error", err.Error())
			return 0, 0
		}
		r.recorder.Reaped("force_failed")
		return 0, 1
	}
	return 0, 0
}

// expire records the full expiry path before deleting, so the transitions and
// their metrics are observable like every other state change.
func (r *Reaper) expire(ctx context.Context, p *model.Pipeline) error {
	if _, err := r.manager.Transition(ctx, p.PipelineID, model.StateCleaned, Update{}); err != nil {
		return err
	}
	if _, err := r.manager.Transition(ctx, p.PipelineID, model.StateExpired, Update{}); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, p.PipelineID); err != nil {
		return errm.Wrap(err, "delete expired pipeline")
	}
	r.log.Debug("pipeline expired and removed", "pipeline_id", p.PipelineID, "service", p.Service)
	return nil
}
