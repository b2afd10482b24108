package engine

import (
	"context"

	"github.com/google/uuid"
)

// TemplateResolver looks up resource template versions and enforces the
// single-winner invariant on the current flag.
type TemplateResolver struct {
	store TemplateStore
}

// NewTemplateResolver creates a resolver over the given template store.
func NewTemplateResolver(store TemplateStore) *TemplateResolver {
	return &TemplateResolver{store: store}
}

// requireParentService rejects user-resource template lookups that omit the
// parent workspace service name. Defaulting silently would select templates
// across service boundaries, so this is treated as a caller bug.
func requireParentService(resourceType ResourceType, parentServiceName string) error {
	if resourceType == ResourceTypeUserResource && parentServiceName == "" {
		return NewConfigurationError("user-resource template lookups require a parent workspace service name", nil)
	}
	return nil
}

// GetCurrentTemplate returns the template marked current for the key. Zero
// matches is a not_found error; more than one is a duplicate error flagging
// a data-integrity violation.
func (r *TemplateResolver) GetCurrentTemplate(ctx context.Context, name string, resourceType ResourceType, parentServiceName string) (*ResourceTemplate, error) {
	if err := requireParentService(resourceType, parentServiceName); err != nil {
		return nil, err
	}

	templates, err := r.store.FindCurrentTemplates(ctx, name, resourceType, parentServiceName)
	if err != nil {
		return nil, err
	}

	switch len(templates) {
	case 0:
		return nil, NewNotFoundError("no current template for "+name, nil)
	case 1:
		return templates[0], nil
	default:
		return nil, NewDuplicateError("multiple current templates for "+name, nil)
	}
}

// GetTemplateByNameAndVersion returns the single template matching name and
// version for the key, or a not_found error.
func (r *TemplateResolver) GetTemplateByNameAndVersion(ctx context.Context, name, version string, resourceType ResourceType, parentServiceName string) (*ResourceTemplate, error) {
	if err := requireParentService(resourceType, parentServiceName); err != nil {
		return nil, err
	}

	templates, err := r.store.FindTemplateVersions(ctx, name, version, resourceType, parentServiceName)
	if err != nil {
		return nil, err
	}

	if len(templates) != 1 {
		return nil, NewNotFoundError("no template "+name+" version "+version, nil)
	}
	return templates[0], nil
}

// TemplateInput is a template registration request.
type TemplateInput struct {
	Name          string         `json:"name" validate:"required"`
	Version       string         `json:"version" validate:"required"`
	Current       bool           `json:"current"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Required      []string       `json:"required"`
	Properties    map[string]any `json:"properties"`
	CustomActions []CustomAction `json:"customActions"`
	Pipeline      *Pipeline      `json:"pipeline"`
}

// RegisterTemplate validates and stores a new template version.
//
// Registering an existing name+version fails with version_exists. When the
// new version is marked current, the previously current version is demoted
// in the same call so the single-winner invariant holds. The first
// registration of a name is always marked current regardless of the input.
func (r *TemplateResolver) RegisterTemplate(ctx context.Context, input TemplateInput, resourceType ResourceType, parentServiceName string) (*ResourceTemplate, error) {
	if err := requireParentService(resourceType, parentServiceName); err != nil {
		return nil, err
	}

	if _, err := r.GetTemplateByNameAndVersion(ctx, input.Name, input.Version, resourceType, parentServiceName); err == nil {
		return nil, NewVersionExistsError("template "+input.Name+" version "+input.Version+" already exists", nil)
	} else if !IsNotFound(err) {
		return nil, err
	}

	current, err := r.GetCurrentTemplate(ctx, input.Name, resourceType, parentServiceName)
	switch {
	case err == nil:
		if input.Current {
			current.Current = false
			if err := r.store.UpdateTemplate(ctx, current); err != nil {
				return nil, err
			}
		}
	case IsNotFound(err):
		// First registration of this name is always current.
		input.Current = true
	default:
		return nil, err
	}

	template := &ResourceTemplate{
		ID:                     uuid.New().String(),
		Name:                   input.Name,
		Title:                  input.Title,
		Description:            input.Description,
		Version:                input.Version,
		ResourceType:           resourceType,
		Current:                input.Current,
		Required:               input.Required,
		Properties:             input.Properties,
		CustomActions:          input.CustomActions,
		Pipeline:               input.Pipeline,
		ParentWorkspaceService: parentServiceName,
	}

	if err := r.store.SaveTemplate(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}
