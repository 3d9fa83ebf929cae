// Package slack normalizes Slack Events API webhooks.
package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/maxbolgarin/hookflow/internal/webhook"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	headerSignature = "X-Slack-Signature"
	headerTimestamp = "X-Slack-Request-Timestamp"

	signatureVersion = "v0"

	// EventURLVerification is Slack's endpoint verification event. Its
	// acknowledgement must echo the challenge token.
	EventURLVerification = "url_verification"

	// replayTolerance bounds how old a delivery timestamp may be before it is
	// rejected as a possible replay.
	replayTolerance = 5 * time.Minute
)

var supportedEvents = map[string]bool{
	"app_mention": true,
	"message":     true,
}

var _ model.WebhookHandler = (*Handler)(nil)

// Handler validates and standardizes a single Slack delivery.
type Handler struct {
	signingSecret string
	headers       map[string]string
	payload       []byte

	parsed *slackPayload
}

// NewConstructor returns a registry constructor bound to the signing secret.
func NewConstructor(signingSecret string) webhook.Constructor {
	return func(headers map[string]string, payload []byte) (model.WebhookHandler, error) {
		return &Handler{
			signingSecret: signingSecret,
			headers:       headers,
			payload:       payload,
		}, nil
	}
}

// ValidateSignature checks the v0 signing scheme: an HMAC-SHA256 of
// "v0:<timestamp>:<body>" compared in constant time, with the timestamp
// bounded by the replay tolerance window.
func (h *Handler) ValidateSignature(body []byte) error {
	timestamp := webhook.Header(h.headers, headerTimestamp)
	signature := webhook.Header(h.headers, headerSignature)
	if timestamp == "" || signature == "" {
		return errm.Wrap(model.ErrInvalidSignature, "missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errm.Wrap(model.ErrInvalidSignature, "malformed timestamp")
	}
	age := time.Since(time.Unix(ts, 0))
	if age > replayTolerance || age < -replayTolerance {
		return errm.Wrap(model.ErrInvalidSignature, "timestamp outside tolerance window")
	}

	base := signatureVersion + ":" + timestamp + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	mac.Write([]byte(base))
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errm.Wrap(model.ErrInvalidSignature, "signature mismatch")
	}
	return nil
}

// ValidateEventType returns the inner event type for event_callback envelopes
// or the url_verification type for endpoint checks.
func (h *Handler) ValidateEventType() (string, error) {
	p, err := h.parse()
	if err != nil {
		return "", err
	}
	if p.Type == EventURLVerification {
		return EventURLVerification, nil
	}
	if p.Type != "event_callback" {
		return "", errm.Wrap(model.ErrUnsupportedEvent, "unsupported envelope type "+p.Type)
	}
	if !supportedEvents[p.Event.Type] {
		return "", errm.Wrap(model.ErrUnsupportedEvent, "unsupported event type "+p.Event.Type)
	}
	return p.Event.Type, nil
}

func (h *Handler) IsVerificationEvent(eventType string) bool {
	return eventType == EventURLVerification
}

func (h *Handler) VerificationAck() map[string]any {
	challenge := ""
	if p, err := h.parse(); err == nil {
		challenge = p.Challenge
	}
	return map[string]any{"challenge": challenge}
}

// Standardize builds the standardized event. Slack messages carry no
// repository context, so that field stays unset.
func (h *Handler) Standardize() (*model.StandardizedEvent, error) {
	p, err := h.parse()
	if err != nil {
		return nil, err
	}
	if p.EventID == "" {
		return nil, errm.New("missing event_id in payload")
	}

	createdAt := time.Now().UTC()
	if raw := webhook.Header(h.headers, headerTimestamp); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			createdAt = time.Unix(ts, 0).UTC()
		}
	}

	return &model.StandardizedEvent{
		EventID:     p.EventID,
		Service:     model.ServiceSlack,
		EventType:   p.Event.Type,
		UserRequest: p.Event.Text,
		CreatedAt:   createdAt,
		Metadata:    p.metadata(),
		RawHeaders:  h.headers,
		RawPayload:  h.payload,
	}, nil
}

func (h *Handler) parse() (*slackPayload, error) {
	if h.parsed != nil {
		return h.parsed, nil
	}
	var p slackPayload
	if err := json.Unmarshal(h.payload, &p); err != nil {
		return nil, errm.Wrap(err, "parse slack payload")
	}
	h.parsed = &p
	return h.parsed, nil
}

type slackPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	TeamID    string `json:"team_id"`
	EventTime int64  `json:"event_time"`
	Event     struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Channel string `json:"channel"`
		User    string `json:"user"`
	} `json:"event"`
}

func (p *slackPayload) metadata() map[string]string {
	md := map[string]string{
		"team_id": p.TeamID,
		"channel": p.Event.Channel,
		"user":    p.Event.User,
	}
	if p.EventTime != 0 {
		md["event_time"] = strconv.FormatInt(p.EventTime, 10)
	}
	return md
}
