// Package webhook normalizes inbound service webhooks into standardized events.
package webhook

import (
	"net/http"
	"sync"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
)

// Constructor builds a handler for one request's headers and raw payload.
type Constructor func(headers map[string]string, payload []byte) (model.WebhookHandler, error)

// Registry maps service names to handler constructors. It is built at startup
// and injected into the server, so separate configurations can coexist.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.ServiceName]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[model.ServiceName]Constructor),
	}
}

// Register adds a constructor for a service, replacing any previous one.
func (r *Registry) Register(service model.ServiceName, c Constructor) {
	r.mu.Lock()
	r.handlers[service] = c
	r.mu.Unlock()
}

// Create builds a handler for the service or fails with ErrUnsupportedEvent.
func (r *Registry) Create(service model.ServiceName, headers map[string]string, payload []byte) (model.WebhookHandler, error) {
	r.mu.RLock()
	c, ok := r.handlers[service]
	r.mu.RUnlock()
	if !ok {
		return nil, errm.Wrap(model.ErrUnsupportedEvent, "no handler for service "+string(service))
	}
	return c(headers, payload)
}

// Services returns the registered service names.
func (r *Registry) Services() []model.ServiceName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ServiceName, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Header looks up a header in a plain map the way http.Header would,
// tolerating non-canonical keys from tests and proxies.
func Header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	canonical := http.CanonicalHeaderKey(name)
	if v, ok := headers[canonical]; ok {
		return v
	}
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}
