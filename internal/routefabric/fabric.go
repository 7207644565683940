// Package routefabric builds and hot-swaps the dynamic /api/<table> CRUD
// surface from published model artifacts (spec.md §4.7, C7).
package routefabric

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/service"
	transporthttp "github.com/meridianhq/platform/internal/transport/http"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// Fabric owns the process-wide current-router indirection: a stable parent
// http.Handler that delegates every /api request to whatever router was
// current at dispatch time (spec.md §4.7, §5).
type Fabric struct {
	modelsDir string
	records   *service.RecordService
	authz     *service.Authz
	tokens    *service.TokenService

	current atomic.Pointer[gin.Engine]
}

func NewFabric(modelsDir string, records *service.RecordService, authz *service.Authz, tokens *service.TokenService) *Fabric {
	return &Fabric{modelsDir: modelsDir, records: records, authz: authz, tokens: tokens}
}

// ServeHTTP is the stable parent handler. Swapping the current router is a
// single atomic pointer store; no lock is held across a request.
func (f *Fabric) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router := f.current.Load()
	if router == nil {
		apiNotReady(w)
		return
	}
	router.ServeHTTP(w, r)
}

func apiNotReady(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"success":false,"message":"dynamic API not yet built"}`))
}

// Build enumerates <modelsDir>/*.json, mounts five verbs per artifact, and
// returns the fresh router without publishing it. A missing models
// directory yields a router with no model routes. An artifact that cannot
// be read or decoded fails the whole build with that error, and the caller
// keeps serving the previous router.
func (f *Fabric) Build() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	entries, err := os.ReadDir(f.modelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			router.NoRoute(apiNoRoute)
			return router, nil
		}
		return nil, err
	}

	requireAuth := transporthttp.RequireAuth(f.tokens)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(f.modelsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var artifact domain.PublishedArtifact
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return nil, err
		}
		f.mount(router, &artifact, requireAuth)
	}

	router.NoRoute(apiNoRoute)
	return router, nil
}

func apiNoRoute(c *gin.Context) {
	transporthttp.RespondError(c, apierrors.NewNotFoundError("route", c.Request.URL.Path))
}

func (f *Fabric) mount(router *gin.Engine, artifact *domain.PublishedArtifact, requireAuth gin.HandlerFunc) {
	tableName := artifact.Name
	if artifact.TableName != nil && *artifact.TableName != "" {
		tableName = *artifact.TableName
	}
	// routeName is what's handed to RecordService.ResolvePublishedModel,
	// which accepts either the canonical name or the table-name alias;
	// the canonical name is always valid so handlers use it directly.
	routeName := artifact.Name
	group := router.Group("/api/"+strings.ToLower(tableName), requireAuth)

	group.POST("/", f.authorize(routeName, "CREATE", f.create(routeName)))
	group.GET("/", f.authorize(routeName, "READ", f.list(routeName)))
	group.GET("/:id", f.authorizeRecord(routeName, "READ", f.get(routeName)))
	group.PUT("/:id", f.authorizeRecord(routeName, "UPDATE", f.update(routeName)))
	group.DELETE("/:id", f.authorizeRecord(routeName, "DELETE", f.delete(routeName)))
}

// authorize wraps a handler with an Authorization Engine check that has no
// target record (list, create).
func (f *Fabric) authorize(modelName, action string, next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := f.authz.Authorize(c.Request.Context(), transporthttp.UserID(c), modelName, action, nil)
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		if !allowed {
			transporthttp.RespondError(c, apierrors.NewPermissionError(strings.ToLower(action), modelName))
			return
		}
		next(c)
	}
}

// authorizeRecord wraps a handler with an Authorization Engine check scoped
// to the :id path param, enabling the ownership fallback.
func (f *Fabric) authorizeRecord(modelName, action string, next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		allowed, err := f.authz.Authorize(c.Request.Context(), transporthttp.UserID(c), modelName, action, &id)
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		if !allowed {
			transporthttp.RespondError(c, apierrors.NewPermissionError(strings.ToLower(action), modelName))
			return
		}
		next(c)
	}
}

func (f *Fabric) create(routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload domain.RecordData
		if !transporthttp.BindJSON(c, &payload) {
			return
		}
		rec, err := f.records.Create(c.Request.Context(), routeName, payload, transporthttp.UserID(c))
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		transporthttp.RespondOK(c, http.StatusCreated, gin.H{"record": rec})
	}
}

func (f *Fabric) get(routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := f.records.Get(c.Request.Context(), routeName, c.Param("id"))
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		transporthttp.RespondOK(c, http.StatusOK, gin.H{"record": rec})
	}
}

func (f *Fabric) list(routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		if limit > 200 {
			limit = 200
		}
		skip := 0
		if v := c.Query("skip"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				skip = n
			}
		}
		ownerOnly := c.Query("ownerOnly") == "true"

		items, total, err := f.records.List(c.Request.Context(), routeName, limit, skip, ownerOnly, transporthttp.UserID(c))
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		transporthttp.RespondOK(c, http.StatusOK, gin.H{"items": items, "total": total})
	}
}

func (f *Fabric) update(routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload domain.RecordData
		if !transporthttp.BindJSON(c, &payload) {
			return
		}
		rec, err := f.records.Update(c.Request.Context(), routeName, c.Param("id"), payload, transporthttp.UserID(c))
		if err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		transporthttp.RespondOK(c, http.StatusOK, gin.H{"record": rec})
	}
}

func (f *Fabric) delete(routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := f.records.Delete(c.Request.Context(), routeName, c.Param("id"), transporthttp.UserID(c)); err != nil {
			transporthttp.RespondError(c, err)
			return
		}
		transporthttp.RespondOK(c, http.StatusOK, gin.H{})
	}
}
