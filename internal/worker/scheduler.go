package worker

import (
	"context"
	"time"

	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/model"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultHealthInterval  = 10 * time.Minute
	defaultMetricsInterval = time.Minute
)

// SchedulerConfig sets the periodic task intervals.
type SchedulerConfig struct {
	CleanupInterval time.Duration
	HealthInterval  time.Duration
	MetricsInterval time.Duration
}

// Scheduler enqueues the periodic task kinds so they run through the same
// retryable machinery as event-driven tasks, independent of request handling.
type Scheduler struct {
	queue model.EventQueue
	cfg   SchedulerConfig
	log   logze.Logger
}

// NewScheduler creates a scheduler over the shared queue.
func NewScheduler(queue model.EventQueue, cfg SchedulerConfig) *Scheduler {
	cfg.CleanupInterval = lang.Check(cfg.CleanupInterval, defaultCleanupInterval)
	cfg.HealthInterval = lang.Check(cfg.HealthInterval, defaultHealthInterval)
	cfg.MetricsInterval = lang.Check(cfg.MetricsInterval, defaultMetricsInterval)
	return &Scheduler{
		queue: queue,
		cfg:   cfg,
		log:   logze.With("module", "scheduler"),
	}
}

// Run blocks enqueueing periodic tasks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	health := time.NewTicker(s.cfg.HealthInterval)
	collect := time.NewTicker(s.cfg.MetricsInterval)
	defer cleanup.Stop()
	defer health.Stop()
	defer collect.Stop()

	s.log.Info("scheduler started",
		"cleanup_interval", s.cfg.CleanupInterval.String(),
		"health_interval", s.cfg.HealthInterval.String(),
		"metrics_interval", s.cfg.MetricsInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			s.enqueue(ctx, model.TaskCleanup)
		case <-health.C:
			s.enqueue(ctx, model.TaskHealthCheck)
		case <-collect.C:
			s.enqueue(ctx, model.TaskCollectMetrics)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, kind model.TaskKind) {
	if err := s.queue.Enqueue(ctx, model.NewTask(kind, "", nil)); err != nil {
		s.log.Err(err, "enqueue periodic task", "kind", kind)
	}
}
