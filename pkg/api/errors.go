package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atriumhq/atrium/pkg/engine"
)

// statusFor maps an engine error class to an HTTP status code.
func statusFor(err error) int {
	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsDuplicate(err), engine.IsVersionExists(err), engine.IsConflict(err):
		return http.StatusConflict
	case engine.IsValidation(err):
		return http.StatusBadRequest
	case engine.IsConfiguration(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a classified error as a JSON response.
func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
