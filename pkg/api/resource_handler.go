package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

type resourceHandler struct {
	store      Store
	dispatcher *engine.Dispatcher
	resolver   *engine.TemplateResolver
	logger     zerolog.Logger
}

func newResourceHandler(deps Deps) *resourceHandler {
	return &resourceHandler{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		resolver:   deps.Resolver,
		logger:     deps.Logger.With().Str("component", "resource-api").Logger(),
	}
}

func (h *resourceHandler) actingUser(c *gin.Context) engine.User {
	return userFromHeaders(c.GetHeader("X-User-ID"), c.GetHeader("X-User-Name"))
}

// Create persists a resource from the current template version and starts
// its install operation.
func (h *resourceHandler) Create(c *gin.Context) {
	var dto CreateResourceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user := h.actingUser(c)
	resourceType := engine.ResourceType(dto.ResourceType)

	template, err := h.resolver.GetCurrentTemplate(ctx, dto.TemplateName, resourceType, dto.ParentServiceName)
	if err != nil {
		writeError(c, err)
		return
	}

	properties := dto.Properties
	if properties == nil {
		properties = map[string]any{}
	}

	resource := &engine.Resource{
		ID:                       uuid.New().String(),
		TemplateName:             template.Name,
		TemplateVersion:          template.Version,
		Properties:               properties,
		IsEnabled:                true,
		ResourceType:             resourceType,
		ResourceVersion:          0,
		User:                     user,
		UpdatedWhen:              time.Now().UTC(),
		WorkspaceID:              dto.WorkspaceID,
		ParentWorkspaceServiceID: dto.ParentWorkspaceServiceID,
		OwnerID:                  dto.OwnerID,
	}

	if err := h.store.SaveResource(ctx, resource); err != nil {
		writeError(c, err)
		return
	}

	operation, err := h.dispatcher.SendResourceRequestMessage(ctx, resource, engine.ActionInstall, user, template)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"resource": resource, "operation": operation})
}

// InvokeAction starts an operation on an existing resource. Uninstall is
// refused while the resource is still enabled; upgrades and custom actions
// require a completed install first.
func (h *resourceHandler) InvokeAction(c *gin.Context) {
	var dto InvokeActionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user := h.actingUser(c)
	action := engine.RequestAction(dto.Action)

	resource, err := h.store.GetResourceByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	switch action {
	case engine.ActionInstall:
		writeError(c, engine.NewValidationError("resource is already installed", nil))
		return
	case engine.ActionUnInstall:
		if resource.IsEnabled {
			writeError(c, engine.NewValidationError("resource must be disabled before deletion", nil))
			return
		}
	default:
		deployed, err := h.store.ResourceHasDeployedOperation(ctx, resource.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		if !deployed {
			writeError(c, engine.NewValidationError("resource has no completed deployment", nil))
			return
		}
	}

	template, err := h.resolver.GetTemplateByNameAndVersion(ctx, resource.TemplateName, resource.TemplateVersion, resource.ResourceType, dto.ParentServiceName)
	if err != nil {
		writeError(c, err)
		return
	}

	operation, err := h.dispatcher.SendResourceRequestMessage(ctx, resource, action, user, template)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, operation)
}

// ToggleEnabled flips the isEnabled flag under etag concurrency.
func (h *resourceHandler) ToggleEnabled(c *gin.Context) {
	var dto ToggleEnabledDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	resource, err := h.store.GetResourceByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	etag := resource.ETag
	resource.IsEnabled = *dto.IsEnabled
	resource.User = h.actingUser(c)

	updated, err := h.store.UpdateResource(ctx, resource, etag)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ListOperations returns all operations of a resource, newest first.
func (h *resourceHandler) ListOperations(c *gin.Context) {
	operations, err := h.store.ListOperationsByResourceID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

// GetOperation returns a single operation.
func (h *resourceHandler) GetOperation(c *gin.Context) {
	operation, err := h.store.GetOperationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

// StepResult ingests a deployment step result and advances the operation.
func (h *resourceHandler) StepResult(c *gin.Context) {
	var dto StepResultDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := engine.Status(dto.Status)
	if err := status.Validate(); err != nil {
		writeError(c, engine.NewValidationError(err.Error(), nil))
		return
	}

	operation, err := h.dispatcher.ProcessStepResult(c.Request.Context(), dto.OperationID, dto.StepID, status, dto.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}
