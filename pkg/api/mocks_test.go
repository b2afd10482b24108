package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/engine"
)

// memStore is an in-memory document store backing the handler tests. It
// implements Store plus engine.TemplateStore so one instance can serve the
// resolver, builder, dispatcher and state machine.
type memStore struct {
	mu         sync.Mutex
	resources  map[string]*engine.Resource
	templates  []*engine.ResourceTemplate
	operations map[string]*engine.Operation
	requests   map[string]*airlock.AirlockRequest
	healthErr  error
}

func newMemStore() *memStore {
	return &memStore{
		resources:  make(map[string]*engine.Resource),
		operations: make(map[string]*engine.Operation),
		requests:   make(map[string]*airlock.AirlockRequest),
	}
}

func (m *memStore) GetResourceByID(ctx context.Context, resourceID string) (*engine.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[resourceID]
	if !ok {
		return nil, engine.NewNotFoundError("resource "+resourceID+" not found", nil)
	}
	copied := *r
	return &copied, nil
}

func (m *memStore) GetResourceByTemplateName(ctx context.Context, templateName string) (*engine.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resources {
		if r.TemplateName == templateName && r.IsEnabled {
			copied := *r
			return &copied, nil
		}
	}
	return nil, engine.NewNotFoundError("no resource deployed from template "+templateName, nil)
}

func (m *memStore) SaveResource(ctx context.Context, resource *engine.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resource.ETag == "" {
		resource.ETag = "etag-0"
	}
	copied := *resource
	m.resources[resource.ID] = &copied
	return nil
}

func (m *memStore) PatchResource(ctx context.Context, resource *engine.Resource, properties map[string]any, etag string, user engine.User) (*engine.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.resources[resource.ID]
	if !ok {
		return nil, engine.NewNotFoundError("resource "+resource.ID+" not found", nil)
	}
	if stored.ETag != etag {
		return nil, engine.NewConflictError("etag mismatch on resource "+resource.ID, nil)
	}
	stored.Properties = properties
	stored.ResourceVersion++
	stored.ETag = stored.ETag + "'"
	stored.User = user
	copied := *stored
	return &copied, nil
}

func (m *memStore) UpdateResource(ctx context.Context, resource *engine.Resource, etag string) (*engine.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.resources[resource.ID]
	if !ok {
		return nil, engine.NewNotFoundError("resource "+resource.ID+" not found", nil)
	}
	if stored.ETag != etag {
		return nil, engine.NewConflictError("etag mismatch on resource "+resource.ID, nil)
	}
	updated := *resource
	updated.ETag = etag + "'"
	updated.UpdatedWhen = time.Now().UTC()
	m.resources[resource.ID] = &updated
	copied := updated
	return &copied, nil
}

func (m *memStore) FindCurrentTemplates(ctx context.Context, name string, resourceType engine.ResourceType, parentServiceName string) ([]*engine.ResourceTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*engine.ResourceTemplate
	for _, t := range m.templates {
		if t.Name == name && t.ResourceType == resourceType && t.ParentWorkspaceService == parentServiceName && t.Current {
			found = append(found, t)
		}
	}
	return found, nil
}

func (m *memStore) FindTemplateVersions(ctx context.Context, name, version string, resourceType engine.ResourceType, parentServiceName string) ([]*engine.ResourceTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*engine.ResourceTemplate
	for _, t := range m.templates {
		if t.Name == name && t.Version == version && t.ResourceType == resourceType && t.ParentWorkspaceService == parentServiceName {
			found = append(found, t)
		}
	}
	return found, nil
}

func (m *memStore) SaveTemplate(ctx context.Context, template *engine.ResourceTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, template)
	return nil
}

func (m *memStore) UpdateTemplate(ctx context.Context, template *engine.ResourceTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.templates {
		if t.ID == template.ID {
			m.templates[i] = template
			return nil
		}
	}
	return engine.NewNotFoundError("template "+template.ID+" not found", nil)
}

func (m *memStore) ListCurrentTemplates(ctx context.Context, resourceType engine.ResourceType) ([]*engine.ResourceTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*engine.ResourceTemplate
	for _, t := range m.templates {
		if t.ResourceType == resourceType && t.Current {
			found = append(found, t)
		}
	}
	return found, nil
}

func (m *memStore) SaveOperation(ctx context.Context, operation *engine.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *operation
	m.operations[operation.ID] = &copied
	return nil
}

func (m *memStore) GetOperationByID(ctx context.Context, operationID string) (*engine.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[operationID]
	if !ok {
		return nil, engine.NewNotFoundError("operation "+operationID+" not found", nil)
	}
	copied := *op
	return &copied, nil
}

func (m *memStore) ListOperationsByResourceID(ctx context.Context, resourceID string) ([]*engine.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*engine.Operation
	for _, op := range m.operations {
		if op.ResourceID == resourceID {
			copied := *op
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (m *memStore) UpdateOperation(ctx context.Context, operation *engine.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operations[operation.ID]; !ok {
		return engine.NewNotFoundError("operation "+operation.ID+" not found", nil)
	}
	copied := *operation
	m.operations[operation.ID] = &copied
	return nil
}

func (m *memStore) ResourceHasDeployedOperation(ctx context.Context, resourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.operations {
		if op.ResourceID == resourceID && op.Action == engine.ActionInstall && op.Status == engine.StatusDeployed {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetRequestByID(ctx context.Context, requestID string) (*airlock.AirlockRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, engine.NewNotFoundError("airlock request "+requestID+" not found", nil)
	}
	copied := *r
	return &copied, nil
}

func (m *memStore) SaveRequest(ctx context.Context, request *airlock.AirlockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request.ETag = "etag-0"
	copied := *request
	m.requests[request.ID] = &copied
	return nil
}

func (m *memStore) UpdateRequest(ctx context.Context, request *airlock.AirlockRequest, etag string) (*airlock.AirlockRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[request.ID]
	if !ok {
		return nil, engine.NewNotFoundError("airlock request "+request.ID+" not found", nil)
	}
	if stored.ETag != etag {
		return nil, engine.NewConflictError("etag mismatch on request "+request.ID, nil)
	}
	updated := *request
	updated.ETag = fmt.Sprintf("etag-%d", updated.ResourceVersion)
	m.requests[request.ID] = &updated
	copied := updated
	return &copied, nil
}

func (m *memStore) ListRequestsByWorkspaceID(ctx context.Context, workspaceID string) ([]*airlock.AirlockRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*airlock.AirlockRequest
	for _, r := range m.requests {
		if r.WorkspaceID == workspaceID {
			copied := *r
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (m *memStore) HealthCheck(ctx context.Context) error {
	return m.healthErr
}
