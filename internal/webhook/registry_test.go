package webhook

import (
	"testing"

	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbolgarin/hookflow/internal/model"
)

type stubHandler struct {
	model.WebhookHandler
	headers map[string]string
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(model.ServiceGitHub, func(headers map[string]string, payload []byte) (model.WebhookHandler, error) {
		return &stubHandler{headers: headers}, nil
	})

	t.Run("registered service", func(t *testing.T) {
		h, err := r.Create(model.ServiceGitHub, map[string]string{"X-Test": "1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "1", h.(*stubHandler).headers["X-Test"])
	})

	t.Run("unregistered service", func(t *testing.T) {
		_, err := r.Create(model.ServiceName("discord"), nil, nil)
		require.Error(t, err)
		assert.True(t, errm.Is(err, model.ErrUnsupportedEvent))
	})

	t.Run("services", func(t *testing.T) {
		assert.Equal(t, []model.ServiceName{model.ServiceGitHub}, r.Services())
	})
}

func TestHeader(t *testing.T) {
	headers := map[string]string{
		"X-Github-Event":    "push",
		"x-slack-signature": "v0=abc",
	}

	assert.Equal(t, "push", Header(headers, "X-GitHub-Event"))
	assert.Equal(t, "v0=abc", Header(headers, "X-Slack-Signature"))
	assert.Equal(t, "", Header(headers, "X-Missing"))
}
