package airlock

import (
	"time"

	"github.com/atriumhq/atrium/pkg/engine"
)

// RequestType is the direction of an airlock data transfer.
type RequestType string

const (
	// RequestTypeImport brings data from outside into a workspace.
	RequestTypeImport RequestType = "import"

	// RequestTypeExport takes data out of a workspace.
	RequestTypeExport RequestType = "export"
)

// Validate checks the request type is a known direction.
func (t RequestType) Validate() error {
	switch t {
	case RequestTypeImport, RequestTypeExport:
		return nil
	default:
		return engine.NewValidationError("invalid airlock request type: "+string(t), nil)
	}
}

// Status is the lifecycle state of an airlock request.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusSubmitted           Status = "submitted"
	StatusInReview            Status = "in_review"
	StatusApprovalInProgress  Status = "approval_in_progress"
	StatusApproved            Status = "approved"
	StatusRejectionInProgress Status = "rejection_in_progress"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
	StatusBlockingInProgress  Status = "blocking_in_progress"
	StatusBlocked             Status = "blocked"
)

// allowedTransitions is the status graph. Every status appears as a key;
// terminal statuses map to an empty set.
var allowedTransitions = map[Status][]Status{
	StatusDraft:               {StatusSubmitted, StatusCancelled},
	StatusSubmitted:           {StatusInReview, StatusBlockingInProgress},
	StatusInReview:            {StatusApprovalInProgress, StatusRejectionInProgress, StatusCancelled},
	StatusApprovalInProgress:  {StatusApproved},
	StatusApproved:            {},
	StatusRejectionInProgress: {StatusRejected},
	StatusRejected:            {},
	StatusCancelled:           {},
	StatusBlockingInProgress:  {StatusBlocked},
	StatusBlocked:             {},
}

// AllStatuses lists every status in the graph.
func AllStatuses() []Status {
	statuses := make([]Status, 0, len(allowedTransitions))
	for status := range allowedTransitions {
		statuses = append(statuses, status)
	}
	return statuses
}

// Validate checks the status is a member of the graph.
func (s Status) Validate() error {
	if _, ok := allowedTransitions[s]; !ok {
		return engine.NewValidationError("invalid airlock status: "+string(s), nil)
	}
	return nil
}

// CanTransitionTo reports whether the graph allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// FileReference names one blob attached to a request.
type FileReference struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// HistoryItem is a snapshot of a request's mutable fields taken before a
// transition was applied.
type HistoryItem struct {
	Properties      map[string]any `json:"properties,omitempty"`
	Status          Status         `json:"status"`
	ResourceVersion int            `json:"resourceVersion"`
	UpdatedWhen     time.Time      `json:"updatedWhen"`
	User            engine.User    `json:"user"`
}

// AirlockRequest is a request to move data in or out of a workspace.
type AirlockRequest struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspaceId"`
	Type        RequestType `json:"type"`
	Status      Status      `json:"status"`

	// BusinessJustification is the researcher's stated reason for the
	// transfer; reviewed before approval.
	BusinessJustification string `json:"businessJustification"`

	Properties    map[string]any  `json:"properties,omitempty"`
	Files         []FileReference `json:"files,omitempty"`
	StatusMessage string          `json:"statusMessage,omitempty"`

	ETag            string        `json:"_etag"`
	ResourceVersion int           `json:"resourceVersion"`
	CreatedWhen     time.Time     `json:"createdWhen"`
	UpdatedWhen     time.Time     `json:"updatedWhen"`
	User            engine.User   `json:"user"`
	History         []HistoryItem `json:"history,omitempty"`
}

// snapshot captures the request's current mutable state as a history item.
func (r *AirlockRequest) snapshot() HistoryItem {
	return HistoryItem{
		Properties:      r.Properties,
		Status:          r.Status,
		ResourceVersion: r.ResourceVersion,
		UpdatedWhen:     r.UpdatedWhen,
		User:            r.User,
	}
}
