package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/service"
	"github.com/meridianhq/platform/pkg/auth"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

const refreshCookieName = "refreshToken"

// AuthHandler exposes login/refresh (combined under /auth/token),
// logout, and register (spec.md §4.2, §4.11, §6.1).
type AuthHandler struct {
	identity *service.IdentityStore
	tokens   *service.TokenService
	authz    *service.Authz
}

func NewAuthHandler(identity *service.IdentityStore, tokens *service.TokenService, authz *service.Authz) *AuthHandler {
	return &AuthHandler{identity: identity, tokens: tokens, authz: authz}
}

func (h *AuthHandler) Register(router gin.IRouter, requireAuth gin.HandlerFunc) {
	router.POST("/auth/token", h.token)
	router.POST("/auth/logout", h.logout)
	router.POST("/auth/register", requireAuth, h.register)
}

type tokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refreshToken"`
	UseCookie    bool   `json:"useCookie"`
}

// token implements `POST /auth/token` (spec.md §6.1): an email/password
// body logs in, a refreshToken body (or cookie) rotates the pair.
func (h *AuthHandler) token(c *gin.Context) {
	var req tokenRequest
	if !BindJSON(c, &req) {
		return
	}

	if req.Email != "" {
		h.login(c, req)
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(refreshCookieName)
	}
	if refreshToken == "" {
		RespondError(c, apierrors.NewValidationError("refreshToken", "email/password or refreshToken required"))
		return
	}
	h.refresh(c, refreshToken, req.UseCookie)
}

func (h *AuthHandler) login(c *gin.Context, req tokenRequest) {
	ctx := c.Request.Context()

	user, err := h.identity.FindUserByEmail(ctx, req.Email)
	if err != nil {
		RespondError(c, apierrors.NewUnauthorizedError("invalid email or password"))
		return
	}
	if !user.IsActive {
		RespondError(c, apierrors.NewUnauthorizedError("account disabled"))
		return
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		RespondError(c, apierrors.NewUnauthorizedError("invalid email or password"))
		return
	}

	access, err := h.tokens.IssueAccessToken(user)
	if err != nil {
		RespondError(c, err)
		return
	}
	refresh, err := h.tokens.IssueRefreshToken(ctx, user.ID, c.ClientIP())
	if err != nil {
		RespondError(c, err)
		return
	}

	refreshExpiresAt := time.Now().Add(h.tokens.RefreshTTL())
	body := gin.H{"accessToken": access, "refreshExpiresAt": refreshExpiresAt, "user": publicUser(user)}
	if req.UseCookie {
		c.SetCookie(refreshCookieName, refresh, int(h.tokens.RefreshTTL().Seconds()), "/", "", false, true)
	} else {
		body["refreshToken"] = refresh
	}
	RespondOK(c, http.StatusOK, body)
}

func (h *AuthHandler) refresh(c *gin.Context, oldToken string, useCookie bool) {
	ctx := c.Request.Context()

	newRefresh, userID, err := h.tokens.RotateRefreshToken(ctx, oldToken, c.ClientIP())
	if err != nil {
		RespondError(c, err)
		return
	}

	user, err := h.identity.FindUserByID(ctx, userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	access, err := h.tokens.IssueAccessToken(user)
	if err != nil {
		RespondError(c, err)
		return
	}

	refreshExpiresAt := time.Now().Add(h.tokens.RefreshTTL())
	body := gin.H{"accessToken": access, "refreshExpiresAt": refreshExpiresAt, "user": publicUser(user)}
	if useCookie {
		c.SetCookie(refreshCookieName, newRefresh, int(h.tokens.RefreshTTL().Seconds()), "/", "", false, true)
	} else {
		body["refreshToken"] = newRefresh
	}
	RespondOK(c, http.StatusOK, body)
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(refreshCookieName)
	}
	if refreshToken != "" {
		if err := h.tokens.RevokeRefreshToken(c.Request.Context(), refreshToken); err != nil {
			RespondError(c, err)
			return
		}
	}
	c.SetCookie(refreshCookieName, "", -1, "/", "", false, true)
	RespondOK(c, http.StatusOK, gin.H{})
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	RoleName string `json:"roleName"`
}

// register implements `POST /auth/register` (spec.md §6.1): authenticated,
// requires feature CREATE_USER (Admin bypass, enforced by IsFeatureAllowed).
func (h *AuthHandler) register(c *gin.Context) {
	allowed, err := h.authz.IsFeatureAllowed(c.Request.Context(), UserID(c), domain.FeatureCreateUser)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !allowed {
		RespondError(c, apierrors.NewPermissionError("create", "users"))
		return
	}

	var req registerRequest
	if !BindJSON(c, &req) {
		return
	}

	user, err := h.identity.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name, req.RoleName)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusCreated, gin.H{"user": publicUser(user)})
}

// publicUser strips PasswordHash from the response shape.
func publicUser(u *domain.User) gin.H {
	roleName := ""
	if u.Role != nil {
		roleName = u.Role.Name
	}
	return gin.H{
		"id": u.ID, "email": u.Email, "name": u.Name,
		"roleId": u.RoleID, "roleName": roleName, "isActive": u.IsActive,
	}
}
