// Package github normalizes GitHub webhooks.
package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/maxbolgarin/hookflow/internal/webhook"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	headerSignature = "X-Hub-Signature-256"
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"

	signaturePrefix = "sha256="

	// EventPing is GitHub's webhook verification event.
	EventPing = "ping"
)

var supportedEvents = map[string]bool{
	"issue_comment": true,
	"pull_request":  true,
	"push":          true,
	"installation":  true,
}

var _ model.WebhookHandler = (*Handler)(nil)

// Handler validates and standardizes a single GitHub delivery.
type Handler struct {
	secret  string
	headers map[string]string
	payload []byte
}

// NewConstructor returns a registry constructor bound to the webhook secret.
func NewConstructor(secret string) webhook.Constructor {
	return func(headers map[string]string, payload []byte) (model.WebhookHandler, error) {
		return &Handler{
			secret:  secret,
			headers: headers,
			payload: payload,
		}, nil
	}
}

// ValidateSignature checks X-Hub-Signature-256 against an HMAC-SHA256 of the
// raw body. The comparison is constant time.
func (h *Handler) ValidateSignature(body []byte) error {
	signature := webhook.Header(h.headers, headerSignature)
	if signature == "" {
		return errm.Wrap(model.ErrInvalidSignature, "no signature provided")
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return errm.Wrap(model.ErrInvalidSignature, "unexpected signature format")
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.TrimPrefix(signature, signaturePrefix)), []byte(expected)) {
		return errm.Wrap(model.ErrInvalidSignature, "signature mismatch")
	}
	return nil
}

// ValidateEventType returns the X-GitHub-Event value if it is supported.
func (h *Handler) ValidateEventType() (string, error) {
	eventType := webhook.Header(h.headers, headerEvent)
	if eventType == "" {
		eventType = EventPing
	}
	if eventType != EventPing && !supportedEvents[eventType] {
		return "", errm.Wrap(model.ErrUnsupportedEvent, "unsupported event type "+eventType)
	}
	return eventType, nil
}

func (h *Handler) IsVerificationEvent(eventType string) bool {
	return eventType == EventPing
}

func (h *Handler) VerificationAck() map[string]any {
	return map[string]any{
		"status":  "ok",
		"message": "webhook configured successfully",
	}
}

// Standardize builds the standardized event. The delivery id keeps ingestion
// idempotent across GitHub's redeliveries.
func (h *Handler) Standardize() (*model.StandardizedEvent, error) {
	deliveryID := webhook.Header(h.headers, headerDelivery)
	if deliveryID == "" {
		return nil, errm.New("missing delivery id header")
	}

	var p githubPayload
	if err := json.Unmarshal(h.payload, &p); err != nil {
		return nil, errm.Wrap(err, "parse github payload")
	}

	return &model.StandardizedEvent{
		EventID:     deliveryID,
		Service:     model.ServiceGitHub,
		EventType:   webhook.Header(h.headers, headerEvent),
		Repository:  p.repositoryContext(),
		UserRequest: p.userRequest(),
		CreatedAt:   time.Now().UTC(),
		Metadata:    p.metadata(),
		RawHeaders:  h.headers,
		RawPayload:  h.payload,
	}, nil
}
