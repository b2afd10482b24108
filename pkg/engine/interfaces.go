package engine

import (
	"context"
)

// ResourceStore is the persistence surface the engine needs for resources.
// Implementations live in pkg/stores.
type ResourceStore interface {
	// GetResourceByID returns the resource document, or a not_found error.
	GetResourceByID(ctx context.Context, resourceID string) (*Resource, error)

	// GetResourceByTemplateName returns the live singleton deployed from
	// the named template. Used to resolve shared-service pipeline targets.
	GetResourceByTemplateName(ctx context.Context, templateName string) (*Resource, error)

	// SaveResource inserts a new resource document.
	SaveResource(ctx context.Context, resource *Resource) error

	// PatchResource replaces the resource's property document under
	// optimistic concurrency: the write succeeds only when etag matches the
	// stored token, otherwise a conflict error is returned and nothing is
	// written. On success the store appends a history snapshot of the prior
	// properties, increments resourceVersion, assigns a fresh etag and
	// returns the updated document.
	PatchResource(ctx context.Context, resource *Resource, properties map[string]any, etag string, user User) (*Resource, error)
}

// TemplateStore is the persistence surface for resource templates. The
// exactly-one semantics live in TemplateResolver; the store only reports
// what matched.
type TemplateStore interface {
	// FindCurrentTemplates returns all templates with current=true for the
	// key. More than one result is a data-integrity violation diagnosed by
	// the caller.
	FindCurrentTemplates(ctx context.Context, name string, resourceType ResourceType, parentServiceName string) ([]*ResourceTemplate, error)

	// FindTemplateVersions returns all templates matching name+version for
	// the key.
	FindTemplateVersions(ctx context.Context, name, version string, resourceType ResourceType, parentServiceName string) ([]*ResourceTemplate, error)

	// SaveTemplate inserts a new template document.
	SaveTemplate(ctx context.Context, template *ResourceTemplate) error

	// UpdateTemplate rewrites an existing template document (used to demote
	// the previous current version).
	UpdateTemplate(ctx context.Context, template *ResourceTemplate) error
}

// OperationStore is the persistence surface for operations. An operation and
// its steps are always written as one unit.
type OperationStore interface {
	SaveOperation(ctx context.Context, operation *Operation) error
	GetOperationByID(ctx context.Context, operationID string) (*Operation, error)
	ListOperationsByResourceID(ctx context.Context, resourceID string) ([]*Operation, error)
	UpdateOperation(ctx context.Context, operation *Operation) error
}

// DeploymentSender sends one deployment message to the resource processor
// queue. The correlation id ties the message to its operation; the session
// id (the target resource id) guarantees per-resource ordering.
type DeploymentSender interface {
	SendDeploymentMessage(ctx context.Context, msg DeploymentMessage, correlationID, sessionID string) error
}
