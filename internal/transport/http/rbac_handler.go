package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/service"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// RBACHandler exposes the permission catalog, role/user feature grants, and
// per-model role permissions (spec.md §4.3, §6.1).
type RBACHandler struct {
	authz    *service.Authz
	identity *service.IdentityStore
	registry *service.ModelRegistry
}

func NewRBACHandler(authz *service.Authz, identity *service.IdentityStore, registry *service.ModelRegistry) *RBACHandler {
	return &RBACHandler{authz: authz, identity: identity, registry: registry}
}

func (h *RBACHandler) Register(router gin.IRouter) {
	router.GET("/rbac/permissions", h.listPermissions)
	router.POST("/rbac/grant/role", h.grantRole)
	router.POST("/rbac/grant/user", h.grantUser)
	router.POST("/rbac/models/permissions", h.grantModelPermissions)
	router.GET("/rbac/grant/user/merged", h.mergedUserView)
	router.GET("/rbac/models/merged", h.mergedModelsView)
}

func (h *RBACHandler) requireManageFeatures(c *gin.Context) bool {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeatureManageFeatures)
	if err != nil {
		RespondError(c, err)
		return false
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("manage", "permissions"))
		return false
	}
	return true
}

func (h *RBACHandler) listPermissions(c *gin.Context) {
	perms, err := h.authz.ListPermissions(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": perms, "total": len(perms)})
}

type grantRoleRequest struct {
	RoleName string `json:"roleName" binding:"required"`
	Feature  string `json:"feature" binding:"required"`
	Granted  *bool  `json:"granted"`
}

func (h *RBACHandler) grantRole(c *gin.Context) {
	if !h.requireManageFeatures(c) {
		return
	}
	var req grantRoleRequest
	if !BindJSON(c, &req) {
		return
	}
	granted := true
	if req.Granted != nil {
		granted = *req.Granted
	}

	role, err := h.identity.FindRoleByName(c.Request.Context(), req.RoleName)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.authz.GrantRoleFeature(c.Request.Context(), role.ID, req.Feature, granted); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{})
}

type grantUserRequest struct {
	UserID  string `json:"userId" binding:"required"`
	Feature string `json:"feature" binding:"required"`
	Granted *bool  `json:"granted"`
}

func (h *RBACHandler) grantUser(c *gin.Context) {
	if !h.requireManageFeatures(c) {
		return
	}
	var req grantUserRequest
	if !BindJSON(c, &req) {
		return
	}
	granted := true
	if req.Granted != nil {
		granted = *req.Granted
	}

	noop, err := h.authz.GrantUserFeature(c.Request.Context(), req.UserID, req.Feature, granted)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"noop": noop})
}

type grantModelPermissionsRequest struct {
	ModelName   string   `json:"modelName" binding:"required"`
	RoleName    string   `json:"roleName" binding:"required"`
	Permissions []string `json:"permissions" binding:"required"`
}

func (h *RBACHandler) grantModelPermissions(c *gin.Context) {
	if !h.requireManageFeatures(c) {
		return
	}
	var req grantModelPermissionsRequest
	if !BindJSON(c, &req) {
		return
	}

	model, err := h.registry.GetByName(c.Request.Context(), req.ModelName)
	if err != nil {
		RespondError(c, err)
		return
	}
	role, err := h.identity.FindRoleByName(c.Request.Context(), req.RoleName)
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.authz.GrantModelRolePermissions(c.Request.Context(), model.ID, role.ID, req.Permissions); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{})
}

func (h *RBACHandler) mergedUserView(c *gin.Context) {
	targetUserID := c.Query("userId")
	if targetUserID == "" {
		targetUserID = UserID(c)
	}
	items, err := h.authz.MergedModelPermissions(c.Request.Context(), UserID(c), targetUserID, false)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *RBACHandler) mergedModelsView(c *gin.Context) {
	targetUserID := c.Query("userId")
	if targetUserID == "" {
		targetUserID = UserID(c)
	}
	includeUnpublished := c.Query("includeUnpublished") == "true"
	items, err := h.authz.MergedModelPermissions(c.Request.Context(), UserID(c), targetUserID, includeUnpublished)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": items, "total": len(items)})
}
