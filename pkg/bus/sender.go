package bus

import (
	"context"
	"sync"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/engine"
)

// DeploymentQueue sends step deployment messages over the bus and keeps a
// per-session FIFO so a processor can drain one resource's messages in send
// order. Implements engine.DeploymentSender.
type DeploymentQueue struct {
	bus *Bus

	mu       sync.Mutex
	sessions map[string][]Envelope
}

// NewDeploymentQueue creates a deployment queue over the bus.
func NewDeploymentQueue(b *Bus) *DeploymentQueue {
	return &DeploymentQueue{
		bus:      b,
		sessions: make(map[string][]Envelope),
	}
}

// SendDeploymentMessage envelopes a deployment message and publishes it,
// appending it to the session's FIFO.
func (q *DeploymentQueue) SendDeploymentMessage(ctx context.Context, msg engine.DeploymentMessage, correlationID, sessionID string) error {
	envelope, err := NewEnvelope(TopicDeploymentRequest, msg.ID, msg)
	if err != nil {
		return err
	}
	envelope.CorrelationID = correlationID
	envelope.SessionID = sessionID

	q.mu.Lock()
	q.sessions[sessionID] = append(q.sessions[sessionID], envelope)
	q.mu.Unlock()

	q.bus.Publish(envelope)
	return nil
}

// Next pops the oldest undelivered envelope for a session, or false when
// the session queue is empty.
func (q *DeploymentQueue) Next(sessionID string) (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.sessions[sessionID]
	if len(queue) == 0 {
		return Envelope{}, false
	}
	envelope := queue[0]
	q.sessions[sessionID] = queue[1:]
	return envelope, true
}

// Pending reports the number of undelivered envelopes for a session.
func (q *DeploymentQueue) Pending(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sessions[sessionID])
}

// AirlockPublisher publishes airlock domain events on the bus. Implements
// airlock.Publisher.
type AirlockPublisher struct {
	bus *Bus
}

// NewAirlockPublisher creates an airlock event publisher over the bus.
func NewAirlockPublisher(b *Bus) *AirlockPublisher {
	return &AirlockPublisher{bus: b}
}

// PublishStatusChanged publishes a status-changed event.
func (p *AirlockPublisher) PublishStatusChanged(ctx context.Context, event airlock.StatusChangedEvent) error {
	envelope, err := NewEnvelope(TopicAirlockStatusChanged, event.RequestID, event)
	if err != nil {
		return err
	}
	envelope.CorrelationID = event.RequestID
	p.bus.Publish(envelope)
	return nil
}

// PublishNotification publishes a notification fan-out event.
func (p *AirlockPublisher) PublishNotification(ctx context.Context, event airlock.NotificationEvent) error {
	envelope, err := NewEnvelope(TopicAirlockNotification, event.RequestID, event)
	if err != nil {
		return err
	}
	envelope.CorrelationID = event.RequestID
	p.bus.Publish(envelope)
	return nil
}

// PublishStepResult publishes the step-result event produced after a scan
// verdict was applied.
func (p *AirlockPublisher) PublishStepResult(ctx context.Context, event airlock.StepResultEvent) error {
	envelope, err := NewEnvelope(TopicStepResult, event.RequestID, event)
	if err != nil {
		return err
	}
	envelope.CorrelationID = event.RequestID
	p.bus.Publish(envelope)
	return nil
}
