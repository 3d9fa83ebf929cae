// Package worker executes queued tasks and drives pipelines to completion.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/metrics"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/maxbolgarin/hookflow/internal/pipeline"
	"github.com/maxbolgarin/hookflow/internal/queue"
	"github.com/panjf2000/ants/v2"
)

const defaultPoolSize = 100

// TaskSource is the queue surface the runner consumes from.
type TaskSource interface {
	model.EventQueue
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, messageID string) error
	Requeue(ctx context.Context, msg queue.Message) error
}

// Config tunes the runner.
type Config struct {
	PoolSize int
	// Policies overrides the per-kind retry policies; mostly for tests.
	Policies map[model.TaskKind]Policy
}

// Runner reads tasks from the queue and executes them on a goroutine pool.
// A task that exhausts its retry budget leaves its pipeline failed with the
// error recorded, never stuck in a non-terminal state with nothing scheduled.
type Runner struct {
	source        TaskSource
	manager       *pipeline.Manager
	store         model.PipelineStore
	reaper        *pipeline.Reaper
	dispatcher    model.Dispatcher
	executor      model.Executor
	results       model.ResultProcessor
	installations model.InstallationHandler
	health        model.HealthChecker
	recorder      metrics.Recorder

	policies map[model.TaskKind]Policy
	pool     *ants.Pool
	log      logze.Logger
	wg       sync.WaitGroup
}

// Deps collects the runner's collaborators.
type Deps struct {
	Source        TaskSource
	Manager       *pipeline.Manager
	Store         model.PipelineStore
	Reaper        *pipeline.Reaper
	Dispatcher    model.Dispatcher
	Executor      model.Executor
	Results       model.ResultProcessor
	Installations model.InstallationHandler
	Health        model.HealthChecker
	Recorder      metrics.Recorder
}

// NewRunner creates a runner with its goroutine pool.
func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	pool, err := ants.NewPool(lang.Check(cfg.PoolSize, defaultPoolSize))
	if err != nil {
		return nil, errm.Wrap(err, "create worker pool")
	}
	policies := cfg.Policies
	if policies == nil {
		policies = defaultPolicies()
	}
	return &Runner{
		source:        deps.Source,
		manager:       deps.Manager,
		store:         deps.Store,
		reaper:        deps.Reaper,
		dispatcher:    deps.Dispatcher,
		executor:      deps.Executor,
		results:       deps.Results,
		installations: deps.Installations,
		health:        deps.Health,
		recorder:      lang.If[metrics.Recorder](deps.Recorder != nil, deps.Recorder, metrics.Noop{}),
		policies:      policies,
		pool:          pool,
		log:           logze.With("module", "worker"),
	}, nil
}

// Run consumes the queue until the context is canceled.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("task runner started", "pool_size", r.pool.Cap())
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := r.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Err(err, "read tasks")
			continue
		}
		for _, msg := range messages {
			msg := msg
			r.wg.Add(1)
			if err := r.pool.Submit(func() {
				defer r.wg.Done()
				r.process(ctx, msg)
			}); err != nil {
				r.wg.Done()
				r.log.Err(err, "submit task", "task_id", msg.Task.TaskID)
			}
		}
	}
}

// Stop waits for in-flight tasks and releases the pool.
func (r *Runner) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.pool.Release()
	return nil
}

func (r *Runner) process(ctx context.Context, msg queue.Message) {
	task := msg.Task
	log := r.log.WithFields(
		"task_id", task.TaskID,
		"kind", task.Kind,
		"pipeline_id", task.PipelineID,
		"attempt", task.Attempt,
	)

	err := r.execute(ctx, task)
	if err == nil {
		if err := r.source.Ack(ctx, msg.ID); err != nil {
			log.Err(err, "ack task")
		}
		return
	}

	// A duplicate delivery lands on a pipeline that already advanced. The
	// transition table rejected it and there is no valid state to recompute,
	// so the message is dropped rather than retried.
	if errm.Is(err, model.ErrInvalidTransition) || errm.Is(err, model.ErrPipelineNotFound) {
		log.Warn("task dropped", "error", err.Error())
		if err := r.source.Ack(ctx, msg.ID); err != nil {
			log.Err(err, "ack dropped task")
		}
		return
	}

	policy := r.policyFor(task.Kind)
	if task.Attempt < policy.MaxAttempts {
		r.recorder.TaskRetry(task.Kind)
		delay := policy.Backoff(task.Attempt)
		log.Warn("task failed, will retry", "error", err.Error(), "delay", delay.String())
		if !sleep(ctx, delay) {
			return // shutting down, message stays pending for redelivery
		}
		if err := r.source.Requeue(ctx, msg); err != nil {
			log.Err(err, "requeue task")
		}
		return
	}

	r.recorder.TaskExhausted(task.Kind)
	log.Error("task failed permanently", "error", err.Error())
	if task.PipelineID != "" {
		if _, failErr := r.manager.ForceFail(ctx, task.PipelineID, err.Error()); failErr != nil &&
			!errm.Is(failErr, model.ErrInvalidTransition) && !errm.Is(failErr, model.ErrPipelineNotFound) {
			log.Err(failErr, "force-fail pipeline after exhausted retries")
		}
	}
	if err := r.source.Ack(ctx, msg.ID); err != nil {
		log.Err(err, "ack exhausted task")
	}
}

func (r *Runner) execute(ctx context.Context, task model.Task) error {
	switch task.Kind {
	case model.TaskAcceptEvent:
		return r.acceptEvent(ctx, task)
	case model.TaskDispatch:
		return r.dispatch(ctx, task)
	case model.TaskExecute:
		return r.runExecution(ctx, task)
	case model.TaskProcessResults:
		return r.processResults(ctx, task)
	case model.TaskCleanup:
		return r.reaper.Sweep(ctx)
	case model.TaskHealthCheck:
		return r.checkHealth(ctx)
	case model.TaskCollectMetrics:
		return r.collectStateCounts(ctx)
	default:
		return errm.New("unknown task kind " + string(task.Kind))
	}
}

// acceptEvent creates the pipeline for an event and hands it to dispatch.
// It is idempotent: a retried delivery binds to the existing pipeline and
// enqueues nothing new.
func (r *Runner) acceptEvent(ctx context.Context, task model.Task) error {
	if task.Event == nil {
		return errm.New("accept task without event")
	}

	p, created, err := r.manager.CreateForEvent(ctx, task.Event)
	if err != nil {
		return err
	}
	if !created && p.CurrentState != model.StateReceived {
		return nil // duplicate delivery, pipeline already in flight
	}

	if task.Event.EventType == "installation" && r.installations != nil {
		if err := r.installations.HandleInstallation(ctx, task.Event); err != nil {
			return errm.Wrap(err, "handle installation event")
		}
	}

	if _, err := r.manager.Transition(ctx, p.PipelineID, model.StateProcessing, pipeline.Update{
		TaskID:   task.TaskID,
		Metadata: map[string]string{"event_type": task.Event.EventType},
	}); err != nil {
		return err
	}

	return r.source.Enqueue(ctx, model.NewTask(model.TaskDispatch, p.PipelineID, task.Event))
}

// advance moves the pipeline to state unless a previous attempt of the same
// task already recorded that transition; a retry resumes instead of tripping
// over the transition table.
func (r *Runner) advance(ctx context.Context, task model.Task, state model.PipelineState) error {
	p, err := r.manager.Get(ctx, task.PipelineID)
	if err != nil {
		return err
	}
	if task.Attempt > 1 && p.CurrentState == state {
		return nil
	}
	_, err = r.manager.Transition(ctx, task.PipelineID, state, pipeline.Update{TaskID: task.TaskID})
	return err
}

func (r *Runner) dispatch(ctx context.Context, task model.Task) error {
	if err := r.advance(ctx, task, model.StateDispatching); err != nil {
		return err
	}
	if err := r.dispatcher.Dispatch(ctx, task.PipelineID, task.Event); err != nil {
		return errm.Wrap(err, "dispatch")
	}
	return r.source.Enqueue(ctx, model.NewTask(model.TaskExecute, task.PipelineID, task.Event))
}

func (r *Runner) runExecution(ctx context.Context, task model.Task) error {
	if err := r.advance(ctx, task, model.StateExecuting); err != nil {
		return err
	}
	if err := r.executor.Execute(ctx, task.PipelineID, task.Event); err != nil {
		return errm.Wrap(err, "execute")
	}
	return r.source.Enqueue(ctx, model.NewTask(model.TaskProcessResults, task.PipelineID, task.Event))
}

func (r *Runner) processResults(ctx context.Context, task model.Task) error {
	if err := r.advance(ctx, task, model.StateProcessingResults); err != nil {
		return err
	}
	if err := r.results.ProcessResults(ctx, task.PipelineID, task.Event); err != nil {
		return errm.Wrap(err, "process results")
	}
	_, err := r.manager.Transition(ctx, task.PipelineID, model.StateCompleted, pipeline.Update{TaskID: task.TaskID})
	return err
}

func (r *Runner) checkHealth(ctx context.Context) error {
	if r.health == nil {
		return nil
	}
	results, err := r.health.CheckAll(ctx)
	if err != nil {
		return errm.Wrap(err, "check connection health")
	}
	for _, res := range results {
		if res.Status != model.HealthHealthy {
			r.log.Warn("connection unhealthy",
				"connection_id", res.ConnectionID,
				"status", res.Status,
				"message", res.Message,
			)
		}
	}
	return nil
}

// collectStateCounts walks the whole store and publishes per-state gauges.
func (r *Runner) collectStateCounts(ctx context.Context) error {
	counts := map[model.PipelineState]float64{
		model.StateReceived:          0,
		model.StateProcessing:        0,
		model.StateDispatching:       0,
		model.StateExecuting:         0,
		model.StateProcessingResults: 0,
		model.StateCompleted:         0,
		model.StateFailed:            0,
		model.StateCleaned:           0,
		model.StateExpired:           0,
	}

	var cursor uint64
	for {
		ids, next, err := r.store.Scan(ctx, cursor, 100)
		if err != nil {
			return errm.Wrap(err, "scan pipelines for metrics")
		}
		for _, id := range ids {
			p, err := r.store.Get(ctx, id)
			if err != nil {
				continue // removed between scan and read
			}
			counts[p.CurrentState]++
		}
		cursor = next
		if next == 0 {
			break
		}
	}

	for state, n := range counts {
		r.recorder.SetStateCount(state, n)
	}
	return nil
}

func (r *Runner) policyFor(kind model.TaskKind) Policy {
	if p, ok := r.policies[kind]; ok {
		return p
	}
	return Policy{MaxAttempts: 3, Delay: time.Minute, Mode: BackoffFixed}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
