package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// MetricsRecorder receives engine-level counters. Implemented by
// pkg/telemetry; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordOperationCreated(action string)
	RecordStepDispatched(action string)
	RecordPatchConflict()
	RecordStepFailed(action string)
}

// Dispatcher sends operation steps to the resource processor queue and
// applies pipeline-step patches to secondary target resources under
// optimistic concurrency with bounded retries.
type Dispatcher struct {
	builder    *Builder
	resources  ResourceStore
	templates  *TemplateResolver
	sender     DeploymentSender
	metrics    MetricsRecorder
	numRetries int
	logger     zerolog.Logger
}

// DefaultPatchRetries is the retry budget applied to optimistic-concurrency
// conflicts when patching a step's target resource. The initial attempt is
// not counted against the budget.
const DefaultPatchRetries = 5

// NewDispatcher creates a step dispatcher. A nil metrics recorder is
// allowed; numRetries <= 0 selects DefaultPatchRetries.
func NewDispatcher(builder *Builder, resources ResourceStore, templates *TemplateResolver, sender DeploymentSender, metrics MetricsRecorder, numRetries int, logger zerolog.Logger) *Dispatcher {
	if numRetries <= 0 {
		numRetries = DefaultPatchRetries
	}
	return &Dispatcher{
		builder:    builder,
		resources:  resources,
		templates:  templates,
		sender:     sender,
		metrics:    metrics,
		numRetries: numRetries,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// SendResourceRequestMessage creates the operation for the action and
// dispatches its first step. Exactly one deployment message is sent per
// dispatch call, tagged with the operation id as correlation id and the
// target resource id as session key.
func (d *Dispatcher) SendResourceRequestMessage(ctx context.Context, primary *Resource, action RequestAction, user User, template *ResourceTemplate) (*Operation, error) {
	operation, err := d.builder.CreateOperation(ctx, primary, action, user, template)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.RecordOperationCreated(string(action))
	}

	firstStep := operation.Steps[0]
	resourceToSend, err := d.UpdateResourceForStep(ctx, firstStep, primary, firstStep.ResourceID, action, user)
	if err != nil {
		return nil, err
	}

	if err := d.dispatchStep(ctx, operation, firstStep, resourceToSend); err != nil {
		return nil, err
	}
	return operation, nil
}

// UpdateResourceForStep produces the resource document a step's deployment
// message is built from. The main step sends the primary resource as-is;
// any other step patches its target with the substituted properties first,
// so the processor deploys the already-updated document.
func (d *Dispatcher) UpdateResourceForStep(ctx context.Context, step OperationStep, primary *Resource, resourceToUpdateID string, primaryAction RequestAction, user User) (*Resource, error) {
	if step.StepID == MainStepID {
		return primary, nil
	}

	templateStep, err := d.findTemplateStep(ctx, primary, primaryAction, step.StepID)
	if err != nil {
		return nil, err
	}

	return d.tryUpgradeWithRetries(ctx, d.numRetries, templateStep, primary, resourceToUpdateID, user)
}

// findTemplateStep re-reads the primary resource's template pipeline and
// returns the declared step definition the operation step was built from.
func (d *Dispatcher) findTemplateStep(ctx context.Context, primary *Resource, primaryAction RequestAction, stepID string) (PipelineStep, error) {
	parentService := ""
	if primary.ResourceType == ResourceTypeUserResource {
		parentService = primary.ParentWorkspaceServiceID
	}

	template, err := d.templates.GetTemplateByNameAndVersion(ctx, primary.TemplateName, primary.TemplateVersion, primary.ResourceType, parentService)
	if err != nil {
		return PipelineStep{}, err
	}

	if template.Pipeline != nil {
		for _, templateStep := range template.Pipeline.StepsFor(primaryAction) {
			if templateStep.StepID == stepID {
				return templateStep, nil
			}
		}
	}
	return PipelineStep{}, NewConfigurationError("pipeline step "+stepID+" not declared in template "+template.Name, nil).
		WithResource(primary.ID).WithStep(stepID)
}

// tryUpgradeWithRetries applies an optimistic-concurrency patch to a step's
// target resource. On an etag conflict the current document is re-fetched
// and the substitution re-applied, up to numRetries additional attempts.
// Exhausting the budget propagates the conflict: the step is failed rather
// than skipped. An explicit loop rather than recursion keeps the retry
// budget visible and the stack flat.
func (d *Dispatcher) tryUpgradeWithRetries(ctx context.Context, numRetries int, templateStep PipelineStep, primary *Resource, resourceToUpdateID string, user User) (*Resource, error) {
	var lastErr error
	for attempt := 0; attempt <= numRetries; attempt++ {
		target, err := d.resources.GetResourceByID(ctx, resourceToUpdateID)
		if err != nil {
			return nil, err
		}

		properties, err := SubstituteProperties(templateStep, primary, target)
		if err != nil {
			return nil, err
		}

		patched, err := d.resources.PatchResource(ctx, target, properties, target.ETag, user)
		if err == nil {
			return patched, nil
		}
		if !IsConflict(err) {
			return nil, err
		}

		if d.metrics != nil {
			d.metrics.RecordPatchConflict()
		}
		d.logger.Warn().
			Str("resource_id", resourceToUpdateID).
			Str("step_id", templateStep.StepID).
			Int("attempt", attempt+1).
			Int("budget", numRetries+1).
			Msg("etag conflict patching step target, retrying")
		lastErr = err
	}
	return nil, lastErr
}

// ProcessStepResult records a step outcome reported by the resource
// processor and, when the step succeeded and further steps remain,
// dispatches the next pending step. Failed steps mark the operation as
// failed; already-dispatched sibling steps are not rolled back.
func (d *Dispatcher) ProcessStepResult(ctx context.Context, operationID, stepID string, status Status, message string) (*Operation, error) {
	operation, err := d.operationsStore().GetOperationByID(ctx, operationID)
	if err != nil {
		return nil, err
	}

	step := operation.FindStep(stepID)
	if step == nil {
		return nil, NewNotFoundError("operation "+operationID+" has no step "+stepID, nil)
	}

	step.Status = status
	step.Message = message
	step.UpdatedWhen = d.builder.now()
	operation.UpdatedWhen = step.UpdatedWhen

	switch {
	case status.IsFailure():
		if d.metrics != nil {
			d.metrics.RecordStepFailed(string(step.ResourceAction))
		}
		if len(operation.Steps) > 1 {
			operation.Status = StatusPipelineFailed
		} else {
			operation.Status = status
		}
		operation.Message = message

	case status.IsTerminal():
		next := operation.NextPendingStep()
		if next == nil {
			success, _ := CompletionStatuses(operation.Action)
			operation.Status = success
			operation.Message = message
			break
		}
		if err := d.dispatchNextStep(ctx, operation, *next); err != nil {
			return nil, err
		}
	}

	if err := d.operationsStore().UpdateOperation(ctx, operation); err != nil {
		return nil, err
	}
	return operation, nil
}

// dispatchNextStep resolves and sends a follow-up step of an in-flight
// operation.
func (d *Dispatcher) dispatchNextStep(ctx context.Context, operation *Operation, step OperationStep) error {
	primary, err := d.resources.GetResourceByID(ctx, operation.ResourceID)
	if err != nil {
		return err
	}

	resourceToSend, err := d.UpdateResourceForStep(ctx, step, primary, step.ResourceID, operation.Action, operation.User)
	if err != nil {
		return err
	}
	return d.dispatchStep(ctx, operation, step, resourceToSend)
}

func (d *Dispatcher) dispatchStep(ctx context.Context, operation *Operation, step OperationStep, resourceToSend *Resource) error {
	msg := resourceToSend.RequestMessagePayload(operation.ID, step.StepID, step.ResourceAction)
	if err := d.sender.SendDeploymentMessage(ctx, msg, operation.ID, step.ResourceID); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.RecordStepDispatched(string(step.ResourceAction))
	}
	d.logger.Info().
		Str("operation_id", operation.ID).
		Str("step_id", step.StepID).
		Str("resource_id", step.ResourceID).
		Str("action", string(step.ResourceAction)).
		Msg("deployment message sent")
	return nil
}

func (d *Dispatcher) operationsStore() OperationStore {
	return d.builder.operations
}
