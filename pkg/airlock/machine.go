package airlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

// Store persists airlock requests. UpdateRequest performs a compare-and-swap
// on the stored etag and must return a conflict-classified error when the
// document changed underneath the caller.
type Store interface {
	GetRequestByID(ctx context.Context, requestID string) (*AirlockRequest, error)
	SaveRequest(ctx context.Context, request *AirlockRequest) error
	UpdateRequest(ctx context.Context, request *AirlockRequest, etag string) (*AirlockRequest, error)
}

// Publisher receives the domain events raised by status transitions.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
	PublishNotification(ctx context.Context, event NotificationEvent) error
}

// EmailDirectory resolves the notification recipients for a workspace.
// A nil directory produces notifications with empty recipient lists.
type EmailDirectory interface {
	EmailsFor(ctx context.Context, workspaceID string) (researchers, owners []string, err error)
}

// StateMachine applies airlock status transitions. Transitions are
// serialized per request by the store's optimistic concurrency: of two
// concurrent conflicting attempts exactly one wins and the loser gets a
// conflict error back, never a silent drop.
type StateMachine struct {
	store     Store
	publisher Publisher
	emails    EmailDirectory
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStateMachine creates the transition engine. The publisher and email
// directory may be nil; the clock is injectable for tests, pass nil for
// time.Now.
func NewStateMachine(store Store, publisher Publisher, emails EmailDirectory, now func() time.Time, logger zerolog.Logger) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{
		store:     store,
		publisher: publisher,
		emails:    emails,
		now:       now,
		logger:    logger.With().Str("component", "airlock").Logger(),
	}
}

// CreateDraftRequest validates and persists a new request in draft status
// and publishes the creation events.
func (m *StateMachine) CreateDraftRequest(ctx context.Context, workspaceID string, requestType RequestType, justification string, user engine.User) (*AirlockRequest, error) {
	if err := requestType.Validate(); err != nil {
		return nil, err
	}
	if workspaceID == "" {
		return nil, engine.NewValidationError("airlock request requires a workspace id", nil)
	}

	timestamp := m.now()
	request := &AirlockRequest{
		ID:                    uuid.New().String(),
		WorkspaceID:           workspaceID,
		Type:                  requestType,
		Status:                StatusDraft,
		BusinessJustification: justification,
		ResourceVersion:       0,
		CreatedWhen:           timestamp,
		UpdatedWhen:           timestamp,
		User:                  user,
	}

	if err := m.store.SaveRequest(ctx, request); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("request_id", request.ID).
		Str("workspace_id", request.WorkspaceID).
		Str("type", string(requestType)).
		Msg("airlock request created")

	if err := m.publishEvents(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateStatus transitions a request to newStatus. A target outside the
// current status's allowed set is a validation error and nothing is
// persisted. On success the prior state is appended to the request history,
// the resource version is bumped, the document is swapped under its etag,
// and the status-changed events are published.
func (m *StateMachine) UpdateStatus(ctx context.Context, requestID string, newStatus Status, user engine.User, statusMessage string) (*AirlockRequest, error) {
	if err := newStatus.Validate(); err != nil {
		return nil, err
	}

	request, err := m.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if !request.Status.CanTransitionTo(newStatus) {
		return nil, engine.NewValidationError(
			"airlock request cannot transition from "+string(request.Status)+" to "+string(newStatus), nil)
	}

	request.History = append(request.History, request.snapshot())
	request.Status = newStatus
	request.StatusMessage = statusMessage
	request.ResourceVersion++
	request.UpdatedWhen = m.now()
	request.User = user

	updated, err := m.store.UpdateRequest(ctx, request, request.ETag)
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("request_id", updated.ID).
		Str("status", string(newStatus)).
		Msg("airlock request status changed")

	if err := m.publishEvents(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *StateMachine) publishEvents(ctx context.Context, request *AirlockRequest) error {
	if m.publisher == nil {
		return nil
	}
	if err := m.publisher.PublishStatusChanged(ctx, StatusChangedEventFor(request)); err != nil {
		return err
	}

	var researchers, owners []string
	if m.emails != nil {
		var err error
		researchers, owners, err = m.emails.EmailsFor(ctx, request.WorkspaceID)
		if err != nil {
			// Notification recipients are best-effort; the transition itself
			// already committed.
			m.logger.Warn().Err(err).
				Str("request_id", request.ID).
				Msg("failed to resolve notification recipients")
		}
	}
	return m.publisher.PublishNotification(ctx, NotificationEventFor(request, researchers, owners))
}
