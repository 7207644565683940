// Package http wires gin handlers for the static API surface (auth, model
// administration, RBAC, support) described in spec.md §7. The dynamic
// per-model CRUD surface lives in internal/routefabric.
package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// RespondError writes the shared `{success:false, message, details?}` error
// envelope (spec.md §7), logging server errors.
func RespondError(c *gin.Context, err error) {
	status := apierrors.GetHTTPStatus(err)
	body := gin.H{"success": false, "message": err.Error()}

	if ve, ok := err.(*apierrors.ValidationError); ok && ve.Field != "" {
		body["details"] = gin.H{"field": ve.Field}
	}
	if ce, ok := err.(*apierrors.ConflictError); ok && ce.Details != nil {
		body["details"] = ce.Details
	}
	if pe, ok := err.(*apierrors.PartialFailureError); ok && pe.Details != nil {
		body["details"] = pe.Details
	}

	if status >= http.StatusInternalServerError {
		log.Printf("error [%d] %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(status, body)
}

// RespondOK writes the shared `{success:true, ...}` envelope (spec.md §7).
func RespondOK(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// BindJSON binds the request body, responding with a ValidationError on
// failure and reporting whether binding succeeded.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondError(c, apierrors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}
