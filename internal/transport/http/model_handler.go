package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/service"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// ModelHandler exposes the Model Registry's administrative surface
// (spec.md §4.4, §6.1): draft CRUD, publish lifecycle, version history, and
// the relation suggestor.
type ModelHandler struct {
	registry  *service.ModelRegistry
	authz     *service.Authz
	suggestor *service.RelationSuggestor
}

func NewModelHandler(registry *service.ModelRegistry, authz *service.Authz, suggestor *service.RelationSuggestor) *ModelHandler {
	return &ModelHandler{registry: registry, authz: authz, suggestor: suggestor}
}

func (h *ModelHandler) Register(router gin.IRouter) {
	router.POST("/models/create", h.create)
	router.GET("/models/all", h.list)
	router.GET("/models/:id", h.get)
	router.PUT("/models/:id", h.update)
	router.DELETE("/models/:id", h.delete)
	router.POST("/models/:id/publish", h.publish)
	router.POST("/models/:id/unpublish", h.unpublish)
	router.GET("/models/:id/relation-suggestions", h.suggestRelations)
	router.GET("/models/:id/versions", h.listVersions)
	router.GET("/models/:id/versions/:n", h.getVersion)
	router.POST("/models/:id/versions/:n/revert", h.revert)
	router.POST("/models/:id/versions/:n/publish", h.publishHistorical)
}

func (h *ModelHandler) requireManageModels(c *gin.Context) bool {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeatureManageModels)
	if err != nil {
		RespondError(c, err)
		return false
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("manage", "models"))
		return false
	}
	return true
}

type createModelRequest struct {
	Name       string          `json:"name" binding:"required"`
	TableName  *string         `json:"tableName"`
	OwnerField *string         `json:"ownerField"`
	JSON       json.RawMessage `json:"json" binding:"required"`
	IsSystem   bool            `json:"isSystem"`
}

func (h *ModelHandler) create(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	var req createModelRequest
	if !BindJSON(c, &req) {
		return
	}

	m, err := h.registry.Create(c.Request.Context(), req.Name, req.TableName, req.OwnerField, req.JSON, req.IsSystem)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusCreated, gin.H{"record": m})
}

func (h *ModelHandler) list(c *gin.Context) {
	onlyPublished := c.Query("onlyPublished") == "true"
	models, err := h.registry.List(c.Request.Context(), onlyPublished)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": models, "total": len(models)})
}

func (h *ModelHandler) get(c *gin.Context) {
	m, err := h.registry.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

type updateModelRequest struct {
	JSON json.RawMessage `json:"json" binding:"required"`
}

func (h *ModelHandler) update(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	var req updateModelRequest
	if !BindJSON(c, &req) {
		return
	}
	m, err := h.registry.Update(c.Request.Context(), c.Param("id"), req.JSON)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

func (h *ModelHandler) delete(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	force := c.Query("force") == "true"
	if err := h.registry.Delete(c.Request.Context(), c.Param("id"), force); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{})
}

func (h *ModelHandler) publish(c *gin.Context) {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeaturePublishModel)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("publish", "models"))
		return
	}

	m, err := h.registry.Publish(c.Request.Context(), c.Param("id"), UserID(c))
	if err != nil {
		if pf, ok := err.(*apierrors.PartialFailureError); ok {
			RespondError(c, pf)
			return
		}
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

func (h *ModelHandler) unpublish(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	m, err := h.registry.Unpublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

func (h *ModelHandler) revert(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	targetVersion, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		RespondError(c, apierrors.NewValidationError("n", "must be an integer"))
		return
	}
	m, err := h.registry.Revert(c.Request.Context(), c.Param("id"), targetVersion, UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

func (h *ModelHandler) publishHistorical(c *gin.Context) {
	if !h.requireManageModels(c) {
		return
	}
	version, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		RespondError(c, apierrors.NewValidationError("n", "must be an integer"))
		return
	}
	m, err := h.registry.PublishHistorical(c.Request.Context(), c.Param("id"), version, UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": m})
}

func (h *ModelHandler) listVersions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	versions, err := h.registry.ListVersions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": versions, "total": len(versions)})
}

func (h *ModelHandler) getVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		RespondError(c, apierrors.NewValidationError("n", "must be an integer"))
		return
	}
	v, err := h.registry.GetVersion(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"record": v})
}

func (h *ModelHandler) suggestRelations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	sampleLimit, _ := strconv.Atoi(c.Query("sampleLimit"))

	candidates, err := h.suggestor.Suggest(c.Request.Context(), c.Param("id"), service.RelationSuggestOptions{
		Query:       c.Query("q"),
		Limit:       limit,
		SampleLimit: sampleLimit,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": candidates, "total": len(candidates)})
}
