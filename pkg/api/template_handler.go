package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/engine"
)

type templateHandler struct {
	store    Store
	resolver *engine.TemplateResolver
	logger   zerolog.Logger
}

func newTemplateHandler(deps Deps) *templateHandler {
	return &templateHandler{
		store:    deps.Store,
		resolver: deps.Resolver,
		logger:   deps.Logger.With().Str("component", "template-api").Logger(),
	}
}

// Register registers a new template version. Registering an existing
// name+version returns 409.
func (h *templateHandler) Register(c *gin.Context) {
	var input engine.TemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.Name == "" || input.Version == "" {
		writeError(c, engine.NewValidationError("template name and version are required", nil))
		return
	}

	resourceType := engine.ResourceType(c.Param("resourceType"))
	if err := resourceType.Validate(); err != nil {
		writeError(c, engine.NewValidationError(err.Error(), nil))
		return
	}

	template, err := h.resolver.RegisterTemplate(c.Request.Context(), input, resourceType, c.Query("parentServiceName"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

// ListCurrent returns the current version of every template of a type.
func (h *templateHandler) ListCurrent(c *gin.Context) {
	resourceType := engine.ResourceType(c.Param("resourceType"))
	if err := resourceType.Validate(); err != nil {
		writeError(c, engine.NewValidationError(err.Error(), nil))
		return
	}

	templates, err := h.store.ListCurrentTemplates(c.Request.Context(), resourceType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}
