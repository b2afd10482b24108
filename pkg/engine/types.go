package engine

import (
	"time"
)

// ResourceType identifies the kind of resource a document represents.
type ResourceType string

const (
	// ResourceTypeWorkspace is a secure research workspace.
	ResourceTypeWorkspace ResourceType = "workspace"

	// ResourceTypeWorkspaceService is a service deployed inside a workspace.
	ResourceTypeWorkspaceService ResourceType = "workspace-service"

	// ResourceTypeUserResource is a per-user resource owned by a workspace service.
	ResourceTypeUserResource ResourceType = "user-resource"

	// ResourceTypeSharedService is a platform-wide singleton service.
	ResourceTypeSharedService ResourceType = "shared-service"
)

// Validate checks if the resource type is one of the known kinds.
func (t ResourceType) Validate() error {
	switch t {
	case ResourceTypeWorkspace, ResourceTypeWorkspaceService,
		ResourceTypeUserResource, ResourceTypeSharedService:
		return nil
	default:
		return NewValidationError("invalid resource type: "+string(t), nil)
	}
}

// User identifies the acting principal on a mutation.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// ResourceHistoryItem preserves a snapshot of resource properties prior to a
// mutation. History is append-only.
type ResourceHistoryItem struct {
	Properties      map[string]any `json:"properties"`
	IsEnabled       bool           `json:"isEnabled"`
	ResourceVersion int            `json:"resourceVersion"`
	UpdatedWhen     time.Time      `json:"updatedWhen"`
	User            User           `json:"user"`
}

// Resource is a deployed or deployable entity managed by the control plane.
type Resource struct {
	// ID is the GUID identifying the resource.
	ID string `json:"id"`

	// TemplateName is the resource template (bundle) the resource was
	// deployed from.
	TemplateName string `json:"templateName"`

	// TemplateVersion is the version of that template.
	TemplateVersion string `json:"templateVersion"`

	// Properties is the free-form parameter document for the deployment.
	Properties map[string]any `json:"properties"`

	// IsEnabled must be false before the resource may be deleted.
	IsEnabled bool `json:"isEnabled"`

	ResourceType ResourceType `json:"resourceType"`

	// DeploymentStatus is the overall deployment status reported by the
	// resource processor.
	DeploymentStatus string `json:"deploymentStatus,omitempty"`

	// ETag is the optimistic-concurrency token compared on every write.
	ETag string `json:"_etag"`

	ResourcePath string `json:"resourcePath"`

	// ResourceVersion increments exactly once per accepted mutation.
	ResourceVersion int `json:"resourceVersion"`

	User        User      `json:"user"`
	UpdatedWhen time.Time `json:"updatedWhen"`

	// History holds prior property snapshots, oldest first.
	History []ResourceHistoryItem `json:"history,omitempty"`

	// WorkspaceID is set for workspace services and user resources.
	WorkspaceID string `json:"workspaceId,omitempty"`

	// ParentWorkspaceServiceID is set for user resources only.
	ParentWorkspaceServiceID string `json:"parentWorkspaceServiceId,omitempty"`

	// OwnerID is set for user resources only.
	OwnerID string `json:"ownerId,omitempty"`
}

// DeploymentMessage is the payload sent to the resource processor queue for
// one operation step. All messages for the same target resource are sent
// with the resource id as the session key so they are processed in order.
type DeploymentMessage struct {
	OperationID string         `json:"operationId"`
	StepID      string         `json:"stepId"`
	Action      RequestAction  `json:"action"`
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Parameters  map[string]any `json:"parameters"`

	WorkspaceID              string `json:"workspaceId,omitempty"`
	OwnerID                  string `json:"ownerId,omitempty"`
	ParentWorkspaceServiceID string `json:"parentWorkspaceServiceId,omitempty"`
}

// RequestMessagePayload builds the deployment message for this resource.
// Workspace services carry their workspace id; user resources additionally
// carry owner and parent workspace service ids.
func (r *Resource) RequestMessagePayload(operationID, stepID string, action RequestAction) DeploymentMessage {
	msg := DeploymentMessage{
		OperationID: operationID,
		StepID:      stepID,
		Action:      action,
		ID:          r.ID,
		Name:        r.TemplateName,
		Version:     r.TemplateVersion,
		Parameters:  r.Properties,
	}

	switch r.ResourceType {
	case ResourceTypeWorkspaceService:
		msg.WorkspaceID = r.WorkspaceID
	case ResourceTypeUserResource:
		msg.WorkspaceID = r.WorkspaceID
		msg.OwnerID = r.OwnerID
		msg.ParentWorkspaceServiceID = r.ParentWorkspaceServiceID
	}

	return msg
}

// SubstitutionAction is the array mutation applied by a pipeline property
// substitution. The empty string means plain assignment.
type SubstitutionAction string

const (
	// SubstitutionSet assigns the value at the property path.
	SubstitutionSet SubstitutionAction = ""

	// SubstitutionAppend appends the value to the array at the path.
	SubstitutionAppend SubstitutionAction = "append"

	// SubstitutionRemove removes the first array element whose name matches.
	SubstitutionRemove SubstitutionAction = "remove"

	// SubstitutionReplace replaces the matching array element in place, or
	// appends when no element matches.
	SubstitutionReplace SubstitutionAction = "replace"
)

// PipelineProperty declares one property substitution performed by a
// pipeline step against its target resource.
type PipelineProperty struct {
	// Name is the property path on the target resource, dot separated.
	Name string `json:"name"`

	// Type is the declared JSON type of the value (string, object, array).
	Type string `json:"type"`

	// Value is the templated value. Strings may contain
	// {{ resource.<path> }} placeholders resolved against the primary
	// resource; objects and arrays are substituted recursively.
	Value any `json:"value"`

	// ArraySubstitutionAction selects append/remove/replace semantics for
	// array-valued targets. Empty means assignment.
	ArraySubstitutionAction SubstitutionAction `json:"arraySubstitutionAction,omitempty"`
}

// PipelineStep is one declarative step in a template pipeline. The reserved
// step id "main" stands for the primary resource itself.
type PipelineStep struct {
	StepID    string `json:"stepId"`
	StepTitle string `json:"stepTitle,omitempty"`

	// ResourceType is the kind of the target resource (ignored for "main").
	ResourceType ResourceType `json:"resourceType,omitempty"`

	// ResourceTemplateName selects the shared-service singleton when
	// ResourceType is shared-service.
	ResourceTemplateName string `json:"resourceTemplateName,omitempty"`

	// ResourceAction is the action requested of the target resource.
	ResourceAction RequestAction `json:"resourceAction,omitempty"`

	Properties []PipelineProperty `json:"properties,omitempty"`
}

// Pipeline maps a request action to the ordered steps it triggers.
type Pipeline struct {
	Install   []PipelineStep `json:"install,omitempty"`
	Upgrade   []PipelineStep `json:"upgrade,omitempty"`
	UnInstall []PipelineStep `json:"uninstall,omitempty"`
}

// StepsFor returns the declared steps for the given action, or nil when the
// pipeline does not cover it.
func (p *Pipeline) StepsFor(action RequestAction) []PipelineStep {
	if p == nil {
		return nil
	}
	switch action {
	case ActionInstall:
		return p.Install
	case ActionUpgrade:
		return p.Upgrade
	case ActionUnInstall:
		return p.UnInstall
	default:
		return nil
	}
}

// ResourceTemplate is a versioned schema for a resource kind. At most one
// template per (name, resourceType[, parentWorkspaceService]) may have
// Current set.
type ResourceTemplate struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version"`
	ResourceType ResourceType `json:"resourceType"`

	// Current marks the template version offered to new deployments.
	Current bool `json:"current"`

	// Required lists the property names a deployment must provide.
	Required []string `json:"required,omitempty"`

	// Properties is the JSON-schema property map for deployment parameters.
	Properties map[string]any `json:"properties,omitempty"`

	// CustomActions lists additional actions beyond install/upgrade/uninstall.
	CustomActions []CustomAction `json:"customActions,omitempty"`

	// Pipeline optionally declares additional resource-mutation steps per
	// action.
	Pipeline *Pipeline `json:"pipeline,omitempty"`

	// ParentWorkspaceService scopes user-resource templates to the service
	// template they belong to. Empty for all other kinds.
	ParentWorkspaceService string `json:"parentWorkspaceService,omitempty"`
}

// CustomAction is a template-defined action beyond the standard lifecycle.
type CustomAction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Operation is the persisted record of one client-initiated action on a
// primary resource, created atomically with its full step plan.
type Operation struct {
	ID string `json:"id"`

	// ResourceID is the primary resource the client action targeted.
	ResourceID string `json:"resourceId"`

	ResourcePath string `json:"resourcePath"`

	// ResourceVersion snapshots the primary resource version at creation.
	ResourceVersion int `json:"resourceVersion"`

	Action  RequestAction `json:"action"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`

	CreatedWhen time.Time `json:"createdWhen"`
	UpdatedWhen time.Time `json:"updatedWhen"`

	User User `json:"user"`

	// Steps is the ordered step plan. Never persisted partially: an
	// operation is visible only with its complete plan.
	Steps []OperationStep `json:"steps"`
}

// FindStep returns the step with the given id, or nil.
func (o *Operation) FindStep(stepID string) *OperationStep {
	for i := range o.Steps {
		if o.Steps[i].StepID == stepID {
			return &o.Steps[i]
		}
	}
	return nil
}

// NextPendingStep returns the first step whose status is not terminal, or
// nil when every step has finished.
func (o *Operation) NextPendingStep() *OperationStep {
	for i := range o.Steps {
		if !o.Steps[i].Status.IsTerminal() {
			return &o.Steps[i]
		}
	}
	return nil
}

// OperationStep is one resource mutation within an operation. StepID is
// "main" for the primary resource or the pipeline-defined id otherwise.
type OperationStep struct {
	StepID    string `json:"stepId"`
	StepTitle string `json:"stepTitle"`

	// ResourceID is the resolved target resource of this step.
	ResourceID string `json:"resourceId"`

	ResourceTemplateName string        `json:"resourceTemplateName"`
	ResourceType         ResourceType  `json:"resourceType"`
	ResourceAction       RequestAction `json:"resourceAction"`

	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	UpdatedWhen time.Time `json:"updatedWhen"`
}

// MainStepID is the reserved pipeline step id standing for the primary
// resource itself.
const MainStepID = "main"
