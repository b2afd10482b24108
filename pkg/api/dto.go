package api

import (
	"github.com/atriumhq/atrium/pkg/engine"
)

// CreateAirlockRequestDTO creates a draft airlock request in a workspace.
type CreateAirlockRequestDTO struct {
	Type                  string `json:"type" binding:"required,oneof=import export"`
	BusinessJustification string `json:"businessJustification"`
}

// ReviewDecisionDTO records a reviewer's decision on an in-review request.
type ReviewDecisionDTO struct {
	Approve             bool   `json:"approve"`
	DecisionExplanation string `json:"decisionExplanation" binding:"required"`
}

// ScanResultDTO is the inbound malware scan verdict webhook payload.
type ScanResultDTO struct {
	BlobURI string `json:"blobUri" binding:"required"`
	Verdict string `json:"verdict" binding:"required"`
}

// StepResultDTO is the inbound deployment step result webhook payload.
type StepResultDTO struct {
	OperationID string `json:"operationId" binding:"required"`
	StepID      string `json:"stepId" binding:"required"`
	Status      string `json:"status" binding:"required"`
	Message     string `json:"message"`
}

// CreateResourceDTO creates a resource from a current template and starts
// its install operation.
type CreateResourceDTO struct {
	TemplateName             string         `json:"templateName" binding:"required"`
	ResourceType             string         `json:"resourceType" binding:"required,oneof=workspace workspace-service user-resource shared-service"`
	ParentServiceName        string         `json:"parentServiceName"`
	Properties               map[string]any `json:"properties"`
	WorkspaceID              string         `json:"workspaceId"`
	ParentWorkspaceServiceID string         `json:"parentWorkspaceServiceId"`
	OwnerID                  string         `json:"ownerId"`
}

// InvokeActionDTO starts an operation with the given action on an existing
// resource. ParentServiceName is required when the resource is a user
// resource, matching the template key.
type InvokeActionDTO struct {
	Action            string `json:"action" binding:"required"`
	ParentServiceName string `json:"parentServiceName"`
}

// ToggleEnabledDTO flips the resource's isEnabled flag.
type ToggleEnabledDTO struct {
	IsEnabled *bool `json:"isEnabled" binding:"required"`
}

// userFromHeaders builds the acting user from the gateway-injected identity
// headers. Authentication itself happens upstream.
func userFromHeaders(id, name string) engine.User {
	if id == "" {
		id = "anonymous"
	}
	return engine.User{ID: id, Name: name}
}
