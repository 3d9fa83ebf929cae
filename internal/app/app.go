// Package app assembles the webhook ingestion service from its components.
package app

import (
	"context"
	"net/http"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/maxbolgarin/hookflow/internal/config"
	"github.com/maxbolgarin/hookflow/internal/metrics"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/maxbolgarin/hookflow/internal/pipeline"
	"github.com/maxbolgarin/hookflow/internal/queue"
	"github.com/maxbolgarin/hookflow/internal/server"
	"github.com/maxbolgarin/hookflow/internal/service"
	"github.com/maxbolgarin/hookflow/internal/webhook"
	"github.com/maxbolgarin/hookflow/internal/webhook/github"
	"github.com/maxbolgarin/hookflow/internal/webhook/slack"
	"github.com/maxbolgarin/hookflow/internal/worker"
)

// Hookflow is the main service that orchestrates all components
type Hookflow struct {
	server    *server.Server
	runner    *worker.Runner
	scheduler *worker.Scheduler
	manager   *pipeline.Manager
	reaper    *pipeline.Reaper

	cfg config.Config
	log logze.Logger
}

// New creates a new webhook ingestion service
func New(ctx contem.Context, cfg config.Config) (*Hookflow, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	s := &Hookflow{
		cfg: cfg,
		log: logze.With("component", "app"),
	}

	if err := s.init(ctx, cfg); err != nil {
		return nil, errm.Wrap(err, "failed to initialize service")
	}

	return s, nil
}

// Start starts the webhook server, the task runner and the periodic scheduler.
func (s *Hookflow) Start(ctx context.Context) error {
	go s.runner.Run(ctx)
	go s.scheduler.Run(ctx)

	if err := s.server.Start(ctx); err != nil {
		return errm.Wrap(err, "failed to start webhook server")
	}
	return nil
}

func (s *Hookflow) init(ctx contem.Context, cfg config.Config) error {
	var (
		store  model.PipelineStore
		locker pipeline.Locker
		source worker.TaskSource
	)

	// Backends: redis in production, in-memory for local runs.
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return errm.Wrap(err, "failed to connect to redis")
		}
		ctx.Add(func(context.Context) error { return client.Close() })

		store = pipeline.NewRedisStore(client)
		locker = pipeline.NewRedsyncLocker(client)

		q, err := queue.NewRedisQueue(client, queue.Config{})
		if err != nil {
			return errm.Wrap(err, "failed to create task queue")
		}
		source = q
	} else {
		s.log.Warn("no redis address configured, using in-memory backends")
		store = pipeline.NewMemoryStore()
		locker = pipeline.NewMemoryLocker()
		source = queue.NewMemoryQueue(1024)
	}

	// Metrics.
	var (
		recorder       metrics.Recorder = metrics.Noop{}
		metricsHandler http.Handler
	)
	if cfg.EnableMetrics {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Pipeline core.
	s.manager = pipeline.NewManager(store, locker, recorder, cfg.Pipeline.Retention)
	s.reaper = pipeline.NewReaper(store, s.manager, recorder, pipeline.ReaperConfig{
		ScanBatch:         cfg.Pipeline.ReaperScanBatch,
		MaxNonterminalAge: cfg.Pipeline.MaxNonterminalAge,
	})

	// Webhook handlers.
	registry := webhook.NewRegistry()
	if cfg.Services.GitHub.Enabled {
		registry.Register(model.ServiceGitHub, github.NewConstructor(cfg.Services.GitHub.WebhookSecret))
	}
	if cfg.Services.Slack.Enabled {
		registry.Register(model.ServiceSlack, slack.NewConstructor(cfg.Services.Slack.SigningSecret))
	}
	s.log.Info("webhook services registered", "services", registry.Services())

	// Service connections.
	cipher, err := service.NewAESCipher(cfg.EncryptionSecret)
	if err != nil {
		return errm.Wrap(err, "failed to create credential cipher")
	}
	connStore := service.NewMemoryConnectionStore()
	connections := service.NewConnectionManager(connStore, cipher)
	if token := cfg.Services.GitHub.APIToken; token != "" {
		ghc, err := service.NewGitHubClient(ctx, token)
		if err != nil {
			return errm.Wrap(err, "failed to create github client")
		}
		connections.WithGitHub(ghc)
	}
	health, err := service.NewHealthChecker(connStore)
	if err != nil {
		return errm.Wrap(err, "failed to create health checker")
	}

	// Task runner and periodic scheduler.
	s.runner, err = worker.NewRunner(worker.Config{PoolSize: cfg.Worker.PoolSize}, worker.Deps{
		Source:        source,
		Manager:       s.manager,
		Store:         store,
		Reaper:        s.reaper,
		Dispatcher:    service.NewCommandDispatcher(),
		Executor:      service.NewCommandExecutor(),
		Results:       service.NewResultLogger(),
		Installations: connections,
		Health:        health,
		Recorder:      recorder,
	})
	if err != nil {
		return errm.Wrap(err, "failed to create task runner")
	}
	ctx.Add(s.runner.Stop)

	s.scheduler = worker.NewScheduler(source, worker.SchedulerConfig{
		CleanupInterval: cfg.Tasks.CleanupInterval,
		HealthInterval:  cfg.Tasks.HealthInterval,
		MetricsInterval: cfg.Tasks.MetricsInterval,
	})

	// Ingestion boundary.
	var limiter model.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = server.NewServiceRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	s.server, err = server.New(cfg.Server, registry, source, s.manager, limiter, recorder, metricsHandler)
	if err != nil {
		return errm.Wrap(err, "failed to create webhook server")
	}
	ctx.Add(s.server.Stop)

	return nil
}
