package airlock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

type mockStore struct {
	requests map[string]*AirlockRequest

	// updateErr, when set, is returned by every UpdateRequest call.
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{requests: make(map[string]*AirlockRequest)}
}

func (m *mockStore) GetRequestByID(ctx context.Context, requestID string) (*AirlockRequest, error) {
	if r, ok := m.requests[requestID]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, engine.NewNotFoundError("airlock request not found", nil)
}

func (m *mockStore) SaveRequest(ctx context.Context, request *AirlockRequest) error {
	request.ETag = "etag-0"
	m.requests[request.ID] = request
	return nil
}

func (m *mockStore) UpdateRequest(ctx context.Context, request *AirlockRequest, etag string) (*AirlockRequest, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	stored, ok := m.requests[request.ID]
	if !ok {
		return nil, engine.NewNotFoundError("airlock request not found", nil)
	}
	if stored.ETag != etag {
		return nil, engine.NewConflictError("etag mismatch", nil)
	}
	updated := *request
	updated.ETag = etag + "'"
	m.requests[updated.ID] = &updated
	return &updated, nil
}

type mockPublisher struct {
	statusChanged []StatusChangedEvent
	notifications []NotificationEvent
}

func (m *mockPublisher) PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	m.statusChanged = append(m.statusChanged, event)
	return nil
}

func (m *mockPublisher) PublishNotification(ctx context.Context, event NotificationEvent) error {
	m.notifications = append(m.notifications, event)
	return nil
}

type mockDirectory struct{}

func (mockDirectory) EmailsFor(ctx context.Context, workspaceID string) ([]string, []string, error) {
	return []string{"researcher@example.org"}, []string{"owner@example.org"}, nil
}

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func requestUser() engine.User {
	return engine.User{ID: "user-1", Name: "researcher"}
}

func newFixture() (*StateMachine, *mockStore, *mockPublisher) {
	store := newMockStore()
	publisher := &mockPublisher{}
	machine := NewStateMachine(store, publisher, mockDirectory{}, testClock, zerolog.Nop())
	return machine, store, publisher
}

func draftRequest(t *testing.T, machine *StateMachine) *AirlockRequest {
	t.Helper()
	request, err := machine.CreateDraftRequest(context.Background(), "workspace-abcd1234", RequestTypeImport, "need the data", requestUser())
	if err != nil {
		t.Fatalf("CreateDraftRequest() error = %v", err)
	}
	return request
}

func TestCreateDraftRequest(t *testing.T) {
	machine, store, publisher := newFixture()

	request := draftRequest(t, machine)

	if request.Status != StatusDraft {
		t.Errorf("status = %s, want %s", request.Status, StatusDraft)
	}
	if request.Type != RequestTypeImport {
		t.Errorf("type = %s, want import", request.Type)
	}
	if request.ID == "" {
		t.Error("request has no id")
	}
	if _, ok := store.requests[request.ID]; !ok {
		t.Error("request was not persisted")
	}

	if len(publisher.statusChanged) != 1 {
		t.Fatalf("published %d status events, want 1", len(publisher.statusChanged))
	}
	event := publisher.statusChanged[0]
	if event.Status != StatusDraft || event.RequestID != request.ID {
		t.Errorf("status event = %+v", event)
	}
	if event.WorkspaceID != "1234" {
		t.Errorf("event workspace id = %s, want last 4 chars 1234", event.WorkspaceID)
	}

	if len(publisher.notifications) != 1 {
		t.Fatalf("published %d notifications, want 1", len(publisher.notifications))
	}
	note := publisher.notifications[0]
	if note.EventType != "status_changed" || note.EventValue != StatusDraft {
		t.Errorf("notification = %+v", note)
	}
	if len(note.ResearchersEmails) != 1 || len(note.OwnersEmails) != 1 {
		t.Errorf("notification recipients = %+v", note)
	}
}

func TestCreateDraftRequestValidation(t *testing.T) {
	machine, _, _ := newFixture()

	_, err := machine.CreateDraftRequest(context.Background(), "workspace-1", RequestType("sideways"), "j", requestUser())
	if !engine.IsValidation(err) {
		t.Fatalf("CreateDraftRequest() with bad type error = %v, want validation", err)
	}

	_, err = machine.CreateDraftRequest(context.Background(), "", RequestTypeExport, "j", requestUser())
	if !engine.IsValidation(err) {
		t.Fatalf("CreateDraftRequest() without workspace error = %v, want validation", err)
	}
}

// TestTransitionMatrix checks every (current, next) status pair against the
// allowed set: UpdateStatus must succeed exactly for the allowed pairs.
func TestTransitionMatrix(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDraft:               {StatusSubmitted, StatusCancelled},
		StatusSubmitted:           {StatusInReview, StatusBlockingInProgress},
		StatusInReview:            {StatusApprovalInProgress, StatusRejectionInProgress, StatusCancelled},
		StatusApprovalInProgress:  {StatusApproved},
		StatusRejectionInProgress: {StatusRejected},
		StatusBlockingInProgress:  {StatusBlocked},
		StatusApproved:            {},
		StatusRejected:            {},
		StatusCancelled:           {},
		StatusBlocked:             {},
	}

	isAllowed := func(from, to Status) bool {
		for _, s := range allowed[from] {
			if s == to {
				return true
			}
		}
		return false
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			machine, store, _ := newFixture()
			request := draftRequest(t, machine)
			stored := store.requests[request.ID]
			stored.Status = from

			_, err := machine.UpdateStatus(context.Background(), request.ID, to, requestUser(), "")
			if isAllowed(from, to) {
				if err != nil {
					t.Errorf("UpdateStatus(%s -> %s) error = %v, want success", from, to, err)
				}
			} else if !engine.IsValidation(err) {
				t.Errorf("UpdateStatus(%s -> %s) error = %v, want validation", from, to, err)
			}
		}
	}
}

// Every status must appear as a key in the transition graph so no state can
// be reached that the graph has no entry for.
func TestTransitionGraphCompleteness(t *testing.T) {
	known := []Status{
		StatusDraft, StatusSubmitted, StatusInReview, StatusApprovalInProgress,
		StatusApproved, StatusRejectionInProgress, StatusRejected,
		StatusCancelled, StatusBlockingInProgress, StatusBlocked,
	}

	if len(AllStatuses()) != len(known) {
		t.Fatalf("transition graph has %d statuses, want %d", len(AllStatuses()), len(known))
	}
	for _, status := range known {
		if status.Validate() != nil {
			t.Errorf("status %s missing from transition graph", status)
		}
	}
}

func TestUpdateStatusRecordsHistory(t *testing.T) {
	machine, store, publisher := newFixture()
	request := draftRequest(t, machine)

	updated, err := machine.UpdateStatus(context.Background(), request.ID, StatusSubmitted, requestUser(), "")
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if updated.Status != StatusSubmitted {
		t.Errorf("status = %s, want %s", updated.Status, StatusSubmitted)
	}
	if updated.ResourceVersion != request.ResourceVersion+1 {
		t.Errorf("resource version = %d, want %d", updated.ResourceVersion, request.ResourceVersion+1)
	}
	if len(updated.History) != 1 {
		t.Fatalf("history has %d items, want 1", len(updated.History))
	}
	snapshot := updated.History[0]
	if snapshot.Status != StatusDraft || snapshot.ResourceVersion != request.ResourceVersion {
		t.Errorf("history snapshot = %+v, want prior draft state", snapshot)
	}
	if updated.ETag == request.ETag {
		t.Error("etag did not change on update")
	}

	// Creation plus one transition.
	if len(publisher.statusChanged) != 2 {
		t.Errorf("published %d status events, want 2", len(publisher.statusChanged))
	}
	if got := publisher.statusChanged[1].Status; got != StatusSubmitted {
		t.Errorf("second status event = %s, want %s", got, StatusSubmitted)
	}
	if stored := store.requests[request.ID]; stored.Status != StatusSubmitted {
		t.Errorf("stored status = %s, want %s", stored.Status, StatusSubmitted)
	}
}

func TestUpdateStatusRejectsInvalidTransitionWithoutPersisting(t *testing.T) {
	machine, store, publisher := newFixture()
	request := draftRequest(t, machine)

	_, err := machine.UpdateStatus(context.Background(), request.ID, StatusApproved, requestUser(), "")
	if !engine.IsValidation(err) {
		t.Fatalf("UpdateStatus() error = %v, want validation", err)
	}

	stored := store.requests[request.ID]
	if stored.Status != StatusDraft || len(stored.History) != 0 {
		t.Errorf("stored request mutated by rejected transition: %+v", stored)
	}
	if len(publisher.statusChanged) != 1 {
		t.Errorf("published %d status events, want 1 (creation only)", len(publisher.statusChanged))
	}
}

func TestUpdateStatusSurfacesConcurrencyConflict(t *testing.T) {
	machine, store, _ := newFixture()
	request := draftRequest(t, machine)
	store.updateErr = engine.NewConflictError("etag mismatch", nil)

	_, err := machine.UpdateStatus(context.Background(), request.ID, StatusSubmitted, requestUser(), "")
	if !engine.IsConflict(err) {
		t.Fatalf("UpdateStatus() error = %v, want conflict", err)
	}
}

func TestUpdateStatusUnknownRequest(t *testing.T) {
	machine, _, _ := newFixture()

	_, err := machine.UpdateStatus(context.Background(), "no-such-request", StatusSubmitted, requestUser(), "")
	if !engine.IsNotFound(err) {
		t.Fatalf("UpdateStatus() error = %v, want not_found", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []Status{StatusApproved, StatusRejected, StatusCancelled, StatusBlocked} {
		if !status.IsTerminal() {
			t.Errorf("%s is not terminal", status)
		}
	}
	for _, status := range []Status{StatusDraft, StatusSubmitted, StatusInReview} {
		if status.IsTerminal() {
			t.Errorf("%s is terminal", status)
		}
	}
}
