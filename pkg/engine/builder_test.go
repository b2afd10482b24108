package engine

import (
	"context"
	"testing"
)

func testUser() User {
	return User{ID: "user-1", Name: "researcher"}
}

func basicTemplate() *ResourceTemplate {
	return &ResourceTemplate{
		ID:           "template-id",
		Name:         "template name",
		Version:      "7",
		ResourceType: ResourceTypeWorkspace,
		Current:      true,
	}
}

func pipelineTemplate() *ResourceTemplate {
	template := basicTemplate()
	template.Pipeline = &Pipeline{
		Upgrade: []PipelineStep{
			{
				StepID:               "pre-step-1",
				StepTitle:            "update firewall before upgrade",
				ResourceType:         ResourceTypeSharedService,
				ResourceTemplateName: "firewall",
				ResourceAction:       ActionUpgrade,
			},
			{StepID: MainStepID},
			{
				StepID:               "post-step-1",
				StepTitle:            "update firewall after upgrade",
				ResourceType:         ResourceTypeSharedService,
				ResourceTemplateName: "firewall",
				ResourceAction:       ActionUpgrade,
			},
		},
	}
	return template
}

func firewallResource() *Resource {
	return &Resource{
		ID:           "firewall-id",
		TemplateName: "firewall",
		ResourceType: ResourceTypeSharedService,
		ETag:         "fw-etag-1",
		Properties:   map[string]any{"rule_collections": []any{}},
	}
}

func TestCreateOperationWithoutPipeline(t *testing.T) {
	resources := newMockResourceStore()
	operations := newMockOperationStore()
	builder := NewBuilder(resources, operations, fixedClock)
	primary := testPrimaryResource()

	op, err := builder.CreateOperation(context.Background(), primary, ActionInstall, testUser(), basicTemplate())
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	if len(op.Steps) != 1 {
		t.Fatalf("operation has %d steps, want 1", len(op.Steps))
	}
	step := op.Steps[0]
	if step.StepID != MainStepID {
		t.Errorf("step id = %s, want %s", step.StepID, MainStepID)
	}
	if step.ResourceID != primary.ID {
		t.Errorf("step resource = %s, want %s", step.ResourceID, primary.ID)
	}
	if op.Status != StatusAwaitingDeployment {
		t.Errorf("operation status = %s, want %s", op.Status, StatusAwaitingDeployment)
	}
	if step.Status != StatusAwaitingDeployment {
		t.Errorf("step status = %s, want %s", step.Status, StatusAwaitingDeployment)
	}
	if _, ok := operations.operations[op.ID]; !ok {
		t.Error("operation was not persisted")
	}
}

func TestCreateOperationExpandsPipeline(t *testing.T) {
	resources := newMockResourceStore()
	resources.add(firewallResource())
	operations := newMockOperationStore()
	builder := NewBuilder(resources, operations, fixedClock)
	primary := testPrimaryResource()

	op, err := builder.CreateOperation(context.Background(), primary, ActionUpgrade, testUser(), pipelineTemplate())
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	if len(op.Steps) != 3 {
		t.Fatalf("operation has %d steps, want 3", len(op.Steps))
	}

	// Step order follows the declared pipeline order.
	if op.Steps[0].StepID != "pre-step-1" || op.Steps[1].StepID != MainStepID || op.Steps[2].StepID != "post-step-1" {
		t.Errorf("step order = %s, %s, %s", op.Steps[0].StepID, op.Steps[1].StepID, op.Steps[2].StepID)
	}

	// Non-main steps are resolved to the live shared service instance and
	// carry the status of their own action, not the primary action.
	pre := op.Steps[0]
	if pre.ResourceID != "firewall-id" {
		t.Errorf("pre step resource = %s, want firewall-id", pre.ResourceID)
	}
	if pre.Status != StatusAwaitingUpdate {
		t.Errorf("pre step status = %s, want %s", pre.Status, StatusAwaitingUpdate)
	}

	main := op.Steps[1]
	if main.ResourceID != primary.ID {
		t.Errorf("main step resource = %s, want %s", main.ResourceID, primary.ID)
	}
	if main.Status != StatusAwaitingUpdate {
		t.Errorf("main step status = %s, want %s", main.Status, StatusAwaitingUpdate)
	}
}

func TestCreateOperationUninstallStatuses(t *testing.T) {
	resources := newMockResourceStore()
	operations := newMockOperationStore()
	builder := NewBuilder(resources, operations, fixedClock)

	op, err := builder.CreateOperation(context.Background(), testPrimaryResource(), ActionUnInstall, testUser(), basicTemplate())
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op.Status != StatusAwaitingDeletion {
		t.Errorf("operation status = %s, want %s", op.Status, StatusAwaitingDeletion)
	}
}

func TestCreateOperationCustomActionStatuses(t *testing.T) {
	resources := newMockResourceStore()
	operations := newMockOperationStore()
	builder := NewBuilder(resources, operations, fixedClock)

	op, err := builder.CreateOperation(context.Background(), testPrimaryResource(), RequestAction("start"), testUser(), basicTemplate())
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op.Status != StatusAwaitingAction {
		t.Errorf("operation status = %s, want %s", op.Status, StatusAwaitingAction)
	}
}

func TestCreateOperationMissingSharedService(t *testing.T) {
	resources := newMockResourceStore() // no firewall registered
	operations := newMockOperationStore()
	builder := NewBuilder(resources, operations, fixedClock)

	_, err := builder.CreateOperation(context.Background(), testPrimaryResource(), ActionUpgrade, testUser(), pipelineTemplate())
	if !IsConfiguration(err) {
		t.Fatalf("CreateOperation() error = %v, want configuration", err)
	}
	if len(operations.operations) != 0 {
		t.Error("operation persisted despite unresolvable step target")
	}
}

func TestResolveStepTargetParentWorkspace(t *testing.T) {
	resources := newMockResourceStore()
	workspace := testPrimaryResource()
	resources.add(workspace)
	builder := NewBuilder(resources, newMockOperationStore(), fixedClock)

	service := &Resource{
		ID:           "service-id",
		ResourceType: ResourceTypeWorkspaceService,
		WorkspaceID:  workspace.ID,
	}
	step := PipelineStep{StepID: "step-1", ResourceType: ResourceTypeWorkspace}

	got, err := builder.resolveStepTarget(context.Background(), service, step)
	if err != nil {
		t.Fatalf("resolveStepTarget() error = %v", err)
	}
	if got.ID != workspace.ID {
		t.Errorf("target = %s, want %s", got.ID, workspace.ID)
	}

	// A workspace has no parent workspace to reference.
	if _, err := builder.resolveStepTarget(context.Background(), workspace, step); !IsConfiguration(err) {
		t.Fatalf("resolveStepTarget() for workspace primary error = %v, want configuration", err)
	}
}

func TestResolveStepTargetParentWorkspaceService(t *testing.T) {
	resources := newMockResourceStore()
	service := &Resource{ID: "service-id", ResourceType: ResourceTypeWorkspaceService}
	resources.add(service)
	builder := NewBuilder(resources, newMockOperationStore(), fixedClock)

	vm := &Resource{
		ID:                       "vm-id",
		ResourceType:             ResourceTypeUserResource,
		ParentWorkspaceServiceID: service.ID,
	}
	step := PipelineStep{StepID: "step-1", ResourceType: ResourceTypeWorkspaceService}

	got, err := builder.resolveStepTarget(context.Background(), vm, step)
	if err != nil {
		t.Fatalf("resolveStepTarget() error = %v", err)
	}
	if got.ID != service.ID {
		t.Errorf("target = %s, want %s", got.ID, service.ID)
	}

	// Only user resources can address their parent workspace service.
	workspace := testPrimaryResource()
	if _, err := builder.resolveStepTarget(context.Background(), workspace, step); !IsConfiguration(err) {
		t.Fatalf("resolveStepTarget() for workspace primary error = %v, want configuration", err)
	}
}
