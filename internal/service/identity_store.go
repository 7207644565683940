package service

import (
	"context"
	"strings"
	"time"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	"github.com/meridianhq/platform/pkg/auth"
	"github.com/meridianhq/platform/pkg/constants"
	apierrors "github.com/meridianhq/platform/pkg/errors"
	"github.com/meridianhq/platform/pkg/utils"
)

// IdentityStore persists users, roles, and refresh-token lineage
// (spec.md §4.2).
type IdentityStore struct {
	users  storage.UserRepository
	roles  storage.RoleRepository
	tokens storage.RefreshTokenRepository
	rounds int
}

func NewIdentityStore(users storage.UserRepository, roles storage.RoleRepository, tokens storage.RefreshTokenRepository, hashRounds int) *IdentityStore {
	return &IdentityStore{users: users, roles: roles, tokens: tokens, rounds: hashRounds}
}

// RegisterUser creates a user with a salted-hash password, defaulting role
// to "Viewer" if unspecified. Fails Conflict on duplicate email.
func (s *IdentityStore) RegisterUser(ctx context.Context, email, password, name, roleName string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !auth.IsValidEmail(email) {
		return nil, apierrors.NewValidationError("email", "invalid email address")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apierrors.NewConflictError("email already registered", email)
	} else if !apierrors.IsNotFound(err) {
		return nil, err
	}

	if roleName == "" {
		roleName = constants.DefaultRoleName
	}
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPasswordWithRounds(password, s.rounds)
	if err != nil {
		return nil, apierrors.NewInternalError("hashing password", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           utils.GenerateID(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		RoleID:       role.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func (s *IdentityStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
}

func (s *IdentityStore) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *IdentityStore) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now()
	return s.users.Update(ctx, u)
}

func (s *IdentityStore) DeleteUser(ctx context.Context, id string) error {
	return s.users.Delete(ctx, id)
}

func (s *IdentityStore) ListUsers(ctx context.Context, limit, skip int) ([]domain.User, int, error) {
	return s.users.List(ctx, limit, skip)
}

func (s *IdentityStore) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	if _, err := s.roles.GetByName(ctx, name); err == nil {
		return nil, apierrors.NewConflictError("role already exists", name)
	} else if !apierrors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	role := &domain.Role{ID: utils.GenerateID(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// CreateUserDirect persists a fully-formed user row without the
// RegisterUser registration flow (email dedupe, password requirement),
// for callers that already built the row themselves (spec.md §4.8.5's
// system-model dual-write).
func (s *IdentityStore) CreateUserDirect(ctx context.Context, u *domain.User) error {
	return s.users.Create(ctx, u)
}

// CreateRoleDirect persists a fully-formed role row (spec.md §4.8.5).
func (s *IdentityStore) CreateRoleDirect(ctx context.Context, r *domain.Role) error {
	return s.roles.Create(ctx, r)
}

func (s *IdentityStore) FindRoleByID(ctx context.Context, id string) (*domain.Role, error) {
	return s.roles.GetByID(ctx, id)
}

func (s *IdentityStore) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return s.roles.GetByName(ctx, name)
}

func (s *IdentityStore) UpdateRole(ctx context.Context, r *domain.Role) error {
	r.UpdatedAt = time.Now()
	return s.roles.Update(ctx, r)
}

func (s *IdentityStore) DeleteRole(ctx context.Context, id string) error {
	return s.roles.Delete(ctx, id)
}

func (s *IdentityStore) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

// Refresh-token operations, the storage half of the Token Service (C11);
// spec.md §4.2, §4.11.

func (s *IdentityStore) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	return s.tokens.Create(ctx, t)
}

func (s *IdentityStore) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return s.tokens.GetByID(ctx, id)
}

func (s *IdentityStore) RotateRefreshToken(ctx context.Context, oldID string, newToken *domain.RefreshToken) error {
	return s.tokens.Rotate(ctx, oldID, newToken)
}

func (s *IdentityStore) RevokeRefreshToken(ctx context.Context, id string) error {
	return s.tokens.Revoke(ctx, id)
}

func (s *IdentityStore) RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

func (s *IdentityStore) DeleteExpiredRefreshTokens(ctx context.Context, olderThanSeconds int) (int64, error) {
	return s.tokens.DeleteExpired(ctx, olderThanSeconds)
}
