package service

import (
	"context"
	"time"

	"github.com/maxbolgarin/cliex"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/model"
)

const (
	githubAPIURL = "https://api.github.com"
	slackAPIURL  = "https://slack.com/api"
)

var _ model.HealthChecker = (*HealthChecker)(nil)

// HealthChecker probes the external services behind active connections.
type HealthChecker struct {
	store  model.ConnectionStore
	github *cliex.HTTP
	slack  *cliex.HTTP
	log    logze.Logger
}

// NewHealthChecker creates a checker over the given connection store.
func NewHealthChecker(store model.ConnectionStore) (*HealthChecker, error) {
	log := logze.With("module", "health")

	github, err := cliex.New(cliex.WithBaseURL(githubAPIURL), cliex.WithLogger(log))
	if err != nil {
		return nil, errm.Wrap(err, "create github client")
	}
	slack, err := cliex.New(cliex.WithBaseURL(slackAPIURL), cliex.WithLogger(log))
	if err != nil {
		return nil, errm.Wrap(err, "create slack client")
	}

	return &HealthChecker{
		store:  store,
		github: github,
		slack:  slack,
		log:    log,
	}, nil
}

// CheckAll probes every active connection and records status changes.
func (h *HealthChecker) CheckAll(ctx context.Context) ([]model.HealthResult, error) {
	connections, err := h.store.ListConnections(ctx)
	if err != nil {
		return nil, errm.Wrap(err, "list connections")
	}

	results := make([]model.HealthResult, 0, len(connections))
	for _, conn := range connections {
		if conn.Status != model.ConnectionActive {
			continue
		}
		result := h.check(ctx, conn)
		results = append(results, result)

		if result.Status == model.HealthUnhealthy {
			if err := h.store.UpdateConnectionStatus(ctx, conn.ID, model.ConnectionError); err != nil {
				h.log.Err(err, "update connection status", "connection_id", conn.ID)
			}
		}
	}
	return results, nil
}

func (h *HealthChecker) check(ctx context.Context, conn *model.ServiceConnection) model.HealthResult {
	result := model.HealthResult{
		ConnectionID: conn.ID,
		Status:       model.HealthHealthy,
		CheckedAt:    time.Now().UTC(),
	}

	var err error
	switch conn.Service {
	case model.ServiceGitHub:
		_, err = h.github.Get(ctx, "/rate_limit")
	case model.ServiceSlack:
		_, err = h.slack.Get(ctx, "/api.test")
	default:
		result.Status = model.HealthDegraded
		result.Message = "no health probe for service " + string(conn.Service)
		return result
	}

	if err != nil {
		result.Status = model.HealthUnhealthy
		result.Message = err.Error()
		h.log.Warn("connection unhealthy",
			"connection_id", conn.ID,
			"service", conn.Service,
			"error", err.Error(),
		)
	}
	return result
}
