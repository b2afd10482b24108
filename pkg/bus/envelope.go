package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/pkg/engine"
)

// Topic names for the message streams the control plane produces and
// consumes.
const (
	// TopicDeploymentRequest carries step deployment messages to resource
	// processors.
	TopicDeploymentRequest = "deployment.request"

	// TopicStepResult carries step outcomes reported by resource processors.
	TopicStepResult = "deployment.step_result"

	// TopicAirlockStatusChanged carries airlock status-changed events.
	TopicAirlockStatusChanged = "airlock.status_changed"

	// TopicAirlockNotification carries airlock notification fan-out events.
	TopicAirlockNotification = "airlock.notification"

	// TopicScanResult carries inbound malware-scan verdicts.
	TopicScanResult = "airlock.scan_result"
)

// Envelope wraps one message on the bus. Data holds the topic-specific
// payload as raw JSON.
type Envelope struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`

	// Topic is the stream this message belongs to.
	Topic string `json:"topic"`

	// Subject identifies the entity the message is about.
	Subject string `json:"subject,omitempty"`

	// CorrelationID ties the message to the operation or request that
	// produced it.
	CorrelationID string `json:"correlationId,omitempty"`

	// SessionID is the ordering key; messages sharing a session are
	// delivered in send order.
	SessionID string `json:"sessionId,omitempty"`

	// Timestamp is when the message was published.
	Timestamp time.Time `json:"timestamp"`

	// Data contains the topic-specific payload.
	Data json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope around a payload.
func NewEnvelope(topic, subject string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, engine.NewInternalError("failed to marshal message payload", err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		Topic:     topic,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// DecodePayload unmarshals the envelope's payload into out.
func (e Envelope) DecodePayload(out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return engine.NewValidationError("malformed message payload on topic "+e.Topic, err)
	}
	return nil
}
