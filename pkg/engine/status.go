package engine

import "fmt"

// RequestAction is the lifecycle action requested of a resource. Beyond the
// standard actions, templates may declare custom actions which pass through
// verbatim.
type RequestAction string

const (
	// ActionInstall deploys the resource for the first time.
	ActionInstall RequestAction = "install"

	// ActionUpgrade re-deploys the resource with updated properties.
	ActionUpgrade RequestAction = "upgrade"

	// ActionUnInstall tears the resource down.
	ActionUnInstall RequestAction = "uninstall"
)

// IsStandard reports whether the action is one of the built-in lifecycle
// actions rather than a template-defined custom action.
func (a RequestAction) IsStandard() bool {
	return a == ActionInstall || a == ActionUpgrade || a == ActionUnInstall
}

// Status is the deployment status of an operation or an operation step.
type Status string

const (
	// StatusAwaitingDeployment indicates an install step not yet picked up.
	StatusAwaitingDeployment Status = "awaiting_deployment"

	// StatusDeploying indicates the resource processor reported progress.
	StatusDeploying Status = "deploying"

	// StatusDeployed indicates the install completed.
	StatusDeployed Status = "deployed"

	// StatusDeploymentFailed indicates the install failed.
	StatusDeploymentFailed Status = "deployment_failed"

	// StatusAwaitingDeletion indicates an uninstall step not yet picked up.
	StatusAwaitingDeletion Status = "awaiting_deletion"

	// StatusDeleting indicates deletion is in progress.
	StatusDeleting Status = "deleting"

	// StatusDeleted indicates the uninstall completed.
	StatusDeleted Status = "deleted"

	// StatusDeletingFailed indicates the uninstall failed.
	StatusDeletingFailed Status = "deleting_failed"

	// StatusAwaitingUpdate indicates an upgrade step not yet picked up.
	StatusAwaitingUpdate Status = "awaiting_update"

	// StatusUpdating indicates the upgrade is in progress.
	StatusUpdating Status = "updating"

	// StatusUpdated indicates the upgrade completed.
	StatusUpdated Status = "updated"

	// StatusUpdatingFailed indicates the upgrade failed.
	StatusUpdatingFailed Status = "updating_failed"

	// StatusAwaitingAction indicates a custom-action step not yet picked up.
	StatusAwaitingAction Status = "awaiting_action"

	// StatusInvokingAction indicates the custom action is in progress.
	StatusInvokingAction Status = "invoking_action"

	// StatusActionSucceeded indicates the custom action completed.
	StatusActionSucceeded Status = "action_succeeded"

	// StatusActionFailed indicates the custom action failed.
	StatusActionFailed Status = "action_failed"

	// StatusPipelineFailed indicates a multi-step operation aborted because
	// one of its steps failed. Sibling steps already dispatched are not
	// rolled back.
	StatusPipelineFailed Status = "pipeline_failed"
)

// Initial status messages shown while a step waits for the resource
// processor.
const (
	messageAwaitingDeployment = "This resource is waiting to be deployed"
	messageAwaitingDeletion   = "This resource is waiting to be deleted"
	messageAwaitingUpdate     = "This resource is waiting to be updated"
	messageAwaitingAction     = "This resource is waiting for an action to be invoked"
)

// InitialStatus returns the status and message a step starts in, determined
// purely by the step's own action.
func InitialStatus(action RequestAction) (Status, string) {
	switch action {
	case ActionInstall:
		return StatusAwaitingDeployment, messageAwaitingDeployment
	case ActionUnInstall:
		return StatusAwaitingDeletion, messageAwaitingDeletion
	case ActionUpgrade:
		return StatusAwaitingUpdate, messageAwaitingUpdate
	default:
		return StatusAwaitingAction, messageAwaitingAction
	}
}

// CompletionStatuses returns the success and failure terminal statuses for a
// step running the given action.
func CompletionStatuses(action RequestAction) (success, failure Status) {
	switch action {
	case ActionInstall:
		return StatusDeployed, StatusDeploymentFailed
	case ActionUnInstall:
		return StatusDeleted, StatusDeletingFailed
	case ActionUpgrade:
		return StatusUpdated, StatusUpdatingFailed
	default:
		return StatusActionSucceeded, StatusActionFailed
	}
}

// IsTerminal reports whether the status is a final state for a step or
// operation.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDeployed, StatusDeploymentFailed,
		StatusDeleted, StatusDeletingFailed,
		StatusUpdated, StatusUpdatingFailed,
		StatusActionSucceeded, StatusActionFailed,
		StatusPipelineFailed:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status is a terminal failure.
func (s Status) IsFailure() bool {
	switch s {
	case StatusDeploymentFailed, StatusDeletingFailed, StatusUpdatingFailed,
		StatusActionFailed, StatusPipelineFailed:
		return true
	default:
		return false
	}
}

// Validate checks if the status is a known value.
func (s Status) Validate() error {
	switch s {
	case StatusAwaitingDeployment, StatusDeploying, StatusDeployed, StatusDeploymentFailed,
		StatusAwaitingDeletion, StatusDeleting, StatusDeleted, StatusDeletingFailed,
		StatusAwaitingUpdate, StatusUpdating, StatusUpdated, StatusUpdatingFailed,
		StatusAwaitingAction, StatusInvokingAction, StatusActionSucceeded, StatusActionFailed,
		StatusPipelineFailed:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}
