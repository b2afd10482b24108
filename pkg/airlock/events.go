package airlock

// StatusChangedEvent is published on every request creation and status
// transition. WorkspaceID carries only the last four characters of the
// workspace id, matching what downstream automation keys on.
type StatusChangedEvent struct {
	RequestID   string      `json:"request_id"`
	Status      Status      `json:"status"`
	Type        RequestType `json:"type"`
	WorkspaceID string      `json:"workspace_id"`
}

// NotificationEvent is published alongside StatusChangedEvent and fans out
// to workspace researchers and owners.
type NotificationEvent struct {
	RequestID         string   `json:"request_id"`
	EventType         string   `json:"event_type"`
	EventValue        Status   `json:"event_value"`
	ResearchersEmails []string `json:"researchers_emails"`
	OwnersEmails      []string `json:"owners_emails"`
	WorkspaceID       string   `json:"workspace_id"`
}

// eventTypeStatusChanged is the only notification event type emitted today.
const eventTypeStatusChanged = "status_changed"

// shortWorkspaceID returns the last four characters of a workspace id.
func shortWorkspaceID(workspaceID string) string {
	if len(workspaceID) <= 4 {
		return workspaceID
	}
	return workspaceID[len(workspaceID)-4:]
}

// StatusChangedEventFor builds the status-changed event for a request.
func StatusChangedEventFor(request *AirlockRequest) StatusChangedEvent {
	return StatusChangedEvent{
		RequestID:   request.ID,
		Status:      request.Status,
		Type:        request.Type,
		WorkspaceID: shortWorkspaceID(request.WorkspaceID),
	}
}

// NotificationEventFor builds the notification event for a request with the
// given recipient lists.
func NotificationEventFor(request *AirlockRequest, researchers, owners []string) NotificationEvent {
	return NotificationEvent{
		RequestID:         request.ID,
		EventType:         eventTypeStatusChanged,
		EventValue:        request.Status,
		ResearchersEmails: researchers,
		OwnersEmails:      owners,
		WorkspaceID:       shortWorkspaceID(request.WorkspaceID),
	}
}
