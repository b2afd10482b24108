package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Builder expands a template's declarative pipeline into a concrete,
// ordered Operation. The operation and its full step plan are persisted as
// one unit before any step is dispatched, so a crash mid-dispatch can
// resume from the last un-sent step without re-deriving the plan.
type Builder struct {
	resources  ResourceStore
	operations OperationStore
	now        func() time.Time
}

// NewBuilder creates an operation builder. The clock is injectable for
// tests; pass nil for time.Now.
func NewBuilder(resources ResourceStore, operations OperationStore, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		resources:  resources,
		operations: operations,
		now:        now,
	}
}

// CreateOperation builds and persists the operation for an action on the
// primary resource. When the template declares a pipeline for the action,
// every declared step is resolved to its real target resource in order;
// otherwise the operation holds a single synthetic "main" step.
func (b *Builder) CreateOperation(ctx context.Context, primary *Resource, action RequestAction, user User, template *ResourceTemplate) (*Operation, error) {
	status, message := InitialStatus(action)

	steps, err := b.buildStepList(ctx, primary, action, template)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		steps = append(steps, b.mainStep(primary, action, template, status, message))
	}

	timestamp := b.now()
	operation := &Operation{
		ID:              uuid.New().String(),
		ResourceID:      primary.ID,
		ResourcePath:    primary.ResourcePath,
		ResourceVersion: primary.ResourceVersion,
		Action:          action,
		Status:          status,
		Message:         message,
		CreatedWhen:     timestamp,
		UpdatedWhen:     timestamp,
		User:            user,
		Steps:           steps,
	}

	if err := b.operations.SaveOperation(ctx, operation); err != nil {
		return nil, err
	}
	return operation, nil
}

// buildStepList expands the pipeline declared for the action, resolving
// each step's target resource. Returns an empty list when the template has
// no pipeline for this action.
func (b *Builder) buildStepList(ctx context.Context, primary *Resource, action RequestAction, template *ResourceTemplate) ([]OperationStep, error) {
	if template == nil || template.Pipeline == nil {
		return nil, nil
	}

	var steps []OperationStep
	for _, step := range template.Pipeline.StepsFor(action) {
		if step.StepID == MainStepID {
			status, message := InitialStatus(action)
			steps = append(steps, b.mainStep(primary, action, template, status, message))
			continue
		}

		target, err := b.resolveStepTarget(ctx, primary, step)
		if err != nil {
			return nil, err
		}

		// Each step's initial status follows its own action, not the
		// primary action.
		status, message := InitialStatus(step.ResourceAction)
		steps = append(steps, OperationStep{
			StepID:               step.StepID,
			StepTitle:            step.StepTitle,
			ResourceID:           target.ID,
			ResourceTemplateName: target.TemplateName,
			ResourceType:         target.ResourceType,
			ResourceAction:       step.ResourceAction,
			Status:               status,
			Message:              message,
			UpdatedWhen:          b.now(),
		})
	}
	return steps, nil
}

// resolveStepTarget finds the real resource a non-main pipeline step
// mutates. Resolution failures are configuration errors: the template
// pipeline references a target that cannot exist for this primary resource.
func (b *Builder) resolveStepTarget(ctx context.Context, primary *Resource, step PipelineStep) (*Resource, error) {
	switch step.ResourceType {
	case ResourceTypeSharedService:
		// Shared services are singletons: exactly one live instance per
		// template name.
		target, err := b.resources.GetResourceByTemplateName(ctx, step.ResourceTemplateName)
		if err != nil {
			return nil, NewConfigurationError("pipeline step targets shared service "+step.ResourceTemplateName+" which does not exist", err).
				WithResource(primary.ID).WithStep(step.StepID)
		}
		return target, nil

	case ResourceTypeWorkspace:
		// Only resources living inside a workspace have a parent workspace.
		if primary.ResourceType == ResourceTypeWorkspace || primary.ResourceType == ResourceTypeSharedService {
			return nil, NewConfigurationError("only workspace services and user resources can reference their parent workspace", nil).
				WithResource(primary.ID).WithStep(step.StepID)
		}
		target, err := b.resources.GetResourceByID(ctx, primary.WorkspaceID)
		if err != nil {
			return nil, NewConfigurationError("parent workspace of resource not found", err).
				WithResource(primary.ID).WithStep(step.StepID)
		}
		return target, nil

	case ResourceTypeWorkspaceService:
		if primary.ResourceType != ResourceTypeUserResource {
			return nil, NewConfigurationError("only user resources can update their parent workspace service", nil).
				WithResource(primary.ID).WithStep(step.StepID)
		}
		target, err := b.resources.GetResourceByID(ctx, primary.ParentWorkspaceServiceID)
		if err != nil {
			return nil, NewConfigurationError("parent workspace service of resource not found", err).
				WithResource(primary.ID).WithStep(step.StepID)
		}
		return target, nil

	default:
		return nil, NewConfigurationError("pipeline step has unsupported target type "+string(step.ResourceType), nil).
			WithResource(primary.ID).WithStep(step.StepID)
	}
}

// mainStep synthesizes the step targeting the primary resource itself.
func (b *Builder) mainStep(primary *Resource, action RequestAction, template *ResourceTemplate, status Status, message string) OperationStep {
	return OperationStep{
		StepID:               MainStepID,
		StepTitle:            "Main step for " + primary.ID,
		ResourceID:           primary.ID,
		ResourceTemplateName: template.Name,
		ResourceType:         template.ResourceType,
		ResourceAction:       action,
		Status:               status,
		Message:              message,
		UpdatedWhen:          b.now(),
	}
}
