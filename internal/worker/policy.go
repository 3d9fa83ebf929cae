package worker

import (
	"time"

	"github.com/maxbolgarin/hookflow/internal/model"
)

// BackoffMode selects how the retry delay grows with the attempt number.
type BackoffMode string

const (
	BackoffFixed  BackoffMode = "fixed"
	BackoffLinear BackoffMode = "linear"
)

// Policy is the retry budget and backoff for one task kind. Immutable.
type Policy struct {
	// MaxAttempts counts the first run plus retries.
	MaxAttempts int
	// Delay is the base backoff before a retry.
	Delay time.Duration
	// Mode is how Delay scales with the attempt number.
	Mode BackoffMode
	// MaxDelay caps backoff growth; zero means no cap.
	MaxDelay time.Duration
}

// Backoff returns the delay before the given retry (attempt is 1-based, so
// the first retry passes 1).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := p.Delay
	if p.Mode == BackoffLinear {
		d = time.Duration(attempt) * p.Delay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// defaultPolicies gives event acceptance more attempts with a shorter delay
// than the slow background sweeps.
func defaultPolicies() map[model.TaskKind]Policy {
	return map[model.TaskKind]Policy{
		model.TaskAcceptEvent:    {MaxAttempts: 5, Delay: 30 * time.Second, Mode: BackoffFixed},
		model.TaskDispatch:       {MaxAttempts: 3, Delay: time.Minute, Mode: BackoffLinear, MaxDelay: 5 * time.Minute},
		model.TaskExecute:        {MaxAttempts: 3, Delay: time.Minute, Mode: BackoffLinear, MaxDelay: 5 * time.Minute},
		model.TaskProcessResults: {MaxAttempts: 3, Delay: time.Minute, Mode: BackoffLinear, MaxDelay: 5 * time.Minute},
		model.TaskCleanup:        {MaxAttempts: 3, Delay: 5 * time.Minute, Mode: BackoffFixed},
		model.TaskHealthCheck:    {MaxAttempts: 3, Delay: time.Minute, Mode: BackoffFixed},
		model.TaskCollectMetrics: {MaxAttempts: 3, Delay: time.Minute, Mode: BackoffFixed},
	}
}
