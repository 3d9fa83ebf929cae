// Package server is the HTTP ingestion boundary: webhook endpoints,
// pipeline lookup and metrics exposure.
package server

import (
	"context"
	"net/http"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/servex/v2"

	"github.com/maxbolgarin/hookflow/internal/metrics"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/maxbolgarin/hookflow/internal/webhook"
)

const (
	webhookPath   = "/webhooks/{service}"
	pipelinesPath = "/api/v1/pipelines"
	metricsPath   = "/metrics"
)

// PipelineGetter is the read side of the pipeline manager used by the
// lookup endpoint.
type PipelineGetter interface {
	Get(ctx context.Context, pipelineID string) (*model.Pipeline, error)
}

// Server handles webhook requests from external services
type Server struct {
	registry  *webhook.Registry
	queue     model.EventQueue
	pipelines PipelineGetter
	limiter   model.RateLimiter
	recorder  metrics.Recorder
	config    Config
	log       logze.Logger
	server    *servex.Server
}

// New creates a new webhook server. A nil limiter allows everything and a
// nil metricsHandler leaves /metrics unregistered.
func New(
	cfg Config,
	registry *webhook.Registry,
	queue model.EventQueue,
	pipelines PipelineGetter,
	limiter model.RateLimiter,
	recorder metrics.Recorder,
	metricsHandler http.Handler,
) (*Server, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	log := logze.With("module", "server")

	srv, err := servex.NewServer(
		servex.WithReadTimeout(cfg.Timeout),
		servex.WithIdleTimeout(cfg.Timeout*2),
		servex.WithLogger(log),
		servex.WithHealthEndpoint(),
		servex.WithCertificate(cfg.Certificate),
	)
	if err != nil {
		return nil, errm.Wrap(err, "failed to create server")
	}

	h := &Server{
		registry:  registry,
		queue:     queue,
		pipelines: pipelines,
		limiter:   lang.If[model.RateLimiter](limiter != nil, limiter, AllowAll{}),
		recorder:  lang.If[metrics.Recorder](recorder != nil, recorder, metrics.Noop{}),
		config:    cfg,
		log:       log,
		server:    srv,
	}

	// One route for all services: the registry rejects unknown names, so
	// posting to an unregistered service answers 400, not 404.
	srv.HandleFunc(webhookPath, h.handleWebhook, http.MethodPost)
	srv.HandleFunc(pipelinesPath, h.handlePipelineLookup)
	if metricsHandler != nil {
		srv.HandleFunc(metricsPath, metricsHandler.ServeHTTP)
	}

	return h, nil
}

// Start starts the webhook server
func (h *Server) Start(ctx context.Context) error {
	if h.config.EnableHTTPS {
		return h.server.StartHTTPS(h.config.Address)
	}
	return h.server.StartHTTP(h.config.Address)
}

// Stop stops the webhook server
func (h *Server) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// handleWebhook validates one inbound delivery and queues it for acceptance.
// The response commits only to receipt: pipeline work happens asynchronously.
func (h *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := servex.NewContext(w, r)
	service := model.ServiceName(ctx.Path("service"))

	body, err := ctx.Read()
	if err != nil {
		h.recorder.WebhookReceived(service, "rejected")
		ctx.BadRequest(err, "failed to read webhook body")
		return
	}

	if !h.limiter.Allow(service) {
		h.recorder.WebhookReceived(service, "rejected")
		h.log.Warn("rate limit exceeded", "service", service)
		ctx.Response(http.StatusTooManyRequests, map[string]string{
			"error": model.ErrRateLimited.Error(),
		})
		return
	}

	handler, err := h.registry.Create(service, flattenHeaders(r.Header), body)
	if err != nil {
		h.recorder.WebhookReceived(service, "rejected")
		ctx.BadRequest(err, "unsupported service")
		return
	}

	if err := handler.ValidateSignature(body); err != nil {
		h.recorder.WebhookReceived(service, "rejected")
		ctx.Unauthorized(err, "signature validation failed")
		return
	}

	eventType, err := handler.ValidateEventType()
	if err != nil {
		h.recorder.WebhookReceived(service, "rejected")
		ctx.BadRequest(err, "unsupported event type")
		return
	}

	// Verification handshakes are acknowledged without creating a pipeline.
	if handler.IsVerificationEvent(eventType) {
		h.recorder.WebhookReceived(service, "verification")
		h.log.Info("verification event acknowledged", "service", service, "event_type", eventType)
		ctx.Response(http.StatusOK, handler.VerificationAck())
		return
	}

	event, err := handler.Standardize()
	if err != nil {
		h.recorder.WebhookReceived(service, "rejected")
		ctx.BadRequest(err, "failed to standardize event")
		return
	}

	task := model.NewTask(model.TaskAcceptEvent, "", event)
	if err := h.queue.Enqueue(ctx, task); err != nil {
		h.recorder.WebhookReceived(service, "failed")
		ctx.InternalServerError(err, "failed to queue event")
		return
	}

	h.recorder.WebhookReceived(service, "accepted")
	h.log.Info("webhook accepted",
		"service", service,
		"event_type", event.EventType,
		"event_id", event.EventID,
	)
	ctx.Response(http.StatusOK, map[string]string{
		"status":     "accepted",
		"event_id":   event.EventID,
		"event_type": event.EventType,
	})
}

// handlePipelineLookup returns the current state of one pipeline by id.
func (h *Server) handlePipelineLookup(w http.ResponseWriter, r *http.Request) {
	ctx := servex.NewContext(w, r)

	id := r.URL.Query().Get("id")
	if id == "" {
		ctx.BadRequest(errm.New("missing id parameter"), "pipeline id is required")
		return
	}

	pipeline, err := h.pipelines.Get(ctx, id)
	if err != nil {
		if errm.Is(err, model.ErrPipelineNotFound) {
			ctx.NotFound(err, "pipeline not found")
			return
		}
		ctx.InternalServerError(err, "failed to load pipeline")
		return
	}

	ctx.Response(http.StatusOK, pipeline)
}

// flattenHeaders keeps the first value of each header, which is all the
// signature and event-type headers ever carry.
func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}
