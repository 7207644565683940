package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/service"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// SupportHandler exposes operator-facing diagnostics: redacted audit log
// tail and coarse platform stats (spec.md §4.9, §6.1).
type SupportHandler struct {
	audit    *service.AuditLog
	registry *service.ModelRegistry
	identity *service.IdentityStore
	authz    *service.Authz
}

func NewSupportHandler(audit *service.AuditLog, registry *service.ModelRegistry, identity *service.IdentityStore, authz *service.Authz) *SupportHandler {
	return &SupportHandler{audit: audit, registry: registry, identity: identity, authz: authz}
}

func (h *SupportHandler) Register(router gin.IRouter) {
	router.GET("/support/stats", h.stats)
	router.GET("/support/audit", h.recentAudit)
}

func (h *SupportHandler) requireViewSupport(c *gin.Context) bool {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeatureViewSupport)
	if err != nil {
		RespondError(c, err)
		return false
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("view", "support stats"))
		return false
	}
	return true
}

func (h *SupportHandler) stats(c *gin.Context) {
	if !h.requireViewSupport(c) {
		return
	}
	ctx := c.Request.Context()

	allModels, err := h.registry.List(ctx, false)
	if err != nil {
		RespondError(c, err)
		return
	}
	published := 0
	for _, m := range allModels {
		if m.Published {
			published++
		}
	}
	_, userCount, err := h.identity.ListUsers(ctx, 1, 0)
	if err != nil {
		RespondError(c, err)
		return
	}
	roles, err := h.identity.ListRoles(ctx)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondOK(c, http.StatusOK, gin.H{
		"models":          len(allModels),
		"publishedModels": published,
		"users":           userCount,
		"roles":           len(roles),
	})
}

func (h *SupportHandler) recentAudit(c *gin.Context) {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeatureViewAudit)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("view", "audit log"))
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": entries, "total": len(entries)})
}
