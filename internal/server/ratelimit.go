package server

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/maxbolgarin/hookflow/internal/model"
)

var (
	_ model.RateLimiter = (*ServiceRateLimiter)(nil)
	_ model.RateLimiter = AllowAll{}
)

// ServiceRateLimiter enforces a per-service request budget at the ingestion
// boundary. Each service gets its own token bucket.
type ServiceRateLimiter struct {
	mu       sync.Mutex
	limiters map[model.ServiceName]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewServiceRateLimiter creates a limiter allowing rps requests per second
// per service with the given burst.
func NewServiceRateLimiter(rps float64, burst int) *ServiceRateLimiter {
	return &ServiceRateLimiter{
		limiters: make(map[model.ServiceName]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ServiceRateLimiter) Allow(service model.ServiceName) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[service]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[service] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// AllowAll never limits. Used when no rate limit is configured.
type AllowAll struct{}

func (AllowAll) Allow(model.ServiceName) bool { return true }
