package engine

import (
	"context"
	"time"
)

// Mock implementations for testing

type mockResourceStore struct {
	resources map[string]*Resource
	byTemplate map[string]*Resource

	getCalls   int
	patchCalls int

	// patchErr, when set, is returned by every PatchResource call.
	patchErr error
}

func newMockResourceStore() *mockResourceStore {
	return &mockResourceStore{
		resources:  make(map[string]*Resource),
		byTemplate: make(map[string]*Resource),
	}
}

func (m *mockResourceStore) add(r *Resource) {
	m.resources[r.ID] = r
	m.byTemplate[r.TemplateName] = r
}

func (m *mockResourceStore) GetResourceByID(ctx context.Context, resourceID string) (*Resource, error) {
	m.getCalls++
	if r, ok := m.resources[resourceID]; ok {
		return r, nil
	}
	return nil, NewNotFoundError("resource not found", nil)
}

func (m *mockResourceStore) GetResourceByTemplateName(ctx context.Context, templateName string) (*Resource, error) {
	if r, ok := m.byTemplate[templateName]; ok {
		return r, nil
	}
	return nil, NewNotFoundError("resource not found", nil)
}

func (m *mockResourceStore) SaveResource(ctx context.Context, resource *Resource) error {
	m.add(resource)
	return nil
}

func (m *mockResourceStore) PatchResource(ctx context.Context, resource *Resource, properties map[string]any, etag string, user User) (*Resource, error) {
	m.patchCalls++
	if m.patchErr != nil {
		return nil, m.patchErr
	}
	if resource.ETag != etag {
		return nil, NewConflictError("etag mismatch", nil)
	}
	updated := *resource
	updated.Properties = properties
	updated.ResourceVersion++
	updated.ETag = etag + "'"
	m.resources[updated.ID] = &updated
	return &updated, nil
}

type mockTemplateStore struct {
	templates []*ResourceTemplate
	updated   []*ResourceTemplate
}

func (m *mockTemplateStore) FindCurrentTemplates(ctx context.Context, name string, resourceType ResourceType, parentServiceName string) ([]*ResourceTemplate, error) {
	var out []*ResourceTemplate
	for _, t := range m.templates {
		if t.Name == name && t.ResourceType == resourceType && t.Current && t.ParentWorkspaceService == parentServiceName {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTemplateStore) FindTemplateVersions(ctx context.Context, name, version string, resourceType ResourceType, parentServiceName string) ([]*ResourceTemplate, error) {
	var out []*ResourceTemplate
	for _, t := range m.templates {
		if t.Name == name && t.Version == version && t.ResourceType == resourceType && t.ParentWorkspaceService == parentServiceName {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTemplateStore) SaveTemplate(ctx context.Context, template *ResourceTemplate) error {
	m.templates = append(m.templates, template)
	return nil
}

func (m *mockTemplateStore) UpdateTemplate(ctx context.Context, template *ResourceTemplate) error {
	m.updated = append(m.updated, template)
	return nil
}

type mockOperationStore struct {
	operations map[string]*Operation
}

func newMockOperationStore() *mockOperationStore {
	return &mockOperationStore{operations: make(map[string]*Operation)}
}

func (m *mockOperationStore) SaveOperation(ctx context.Context, operation *Operation) error {
	m.operations[operation.ID] = operation
	return nil
}

func (m *mockOperationStore) GetOperationByID(ctx context.Context, operationID string) (*Operation, error) {
	if op, ok := m.operations[operationID]; ok {
		return op, nil
	}
	return nil, NewNotFoundError("operation not found", nil)
}

func (m *mockOperationStore) ListOperationsByResourceID(ctx context.Context, resourceID string) ([]*Operation, error) {
	var out []*Operation
	for _, op := range m.operations {
		if op.ResourceID == resourceID {
			out = append(out, op)
		}
	}
	return out, nil
}

func (m *mockOperationStore) UpdateOperation(ctx context.Context, operation *Operation) error {
	m.operations[operation.ID] = operation
	return nil
}

type sentMessage struct {
	msg           DeploymentMessage
	correlationID string
	sessionID     string
}

type mockSender struct {
	sent []sentMessage
}

func (m *mockSender) SendDeploymentMessage(ctx context.Context, msg DeploymentMessage, correlationID, sessionID string) error {
	m.sent = append(m.sent, sentMessage{msg: msg, correlationID: correlationID, sessionID: sessionID})
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testPrimaryResource() *Resource {
	return &Resource{
		ID:              "primary-id",
		TemplateName:    "template name",
		TemplateVersion: "7",
		ResourceType:    ResourceTypeWorkspace,
		ETag:            "etag-1",
		ResourcePath:    "/workspaces/primary-id",
		IsEnabled:       true,
		Properties: map[string]any{
			"display_name":   "my workspace",
			"address_prefix": []any{"172.0.0.1", "192.168.0.1"},
			"fqdn":           []any{"*pypi.org", "files.pythonhosted.org", "security.ubuntu.com"},
		},
	}
}
