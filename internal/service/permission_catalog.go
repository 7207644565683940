// Package service implements the platform's business logic: the permission
// catalog, identity store, authorization engine, model registry, artifact
// writer, record service, audit log, relation suggestor, and token service
// (spec.md §4).
package service

import (
	"context"
	"strings"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// PermissionCatalog is the canonical set of permission keys and categories
// (spec.md §4.1). It is seeded once at startup and treated as read-mostly
// thereafter.
type PermissionCatalog struct {
	repo storage.PermissionRepository
}

func NewPermissionCatalog(repo storage.PermissionRepository) *PermissionCatalog {
	return &PermissionCatalog{repo: repo}
}

// Ensure is an idempotent upsert; the key is normalized to upper-case.
func (c *PermissionCatalog) Ensure(ctx context.Context, key, name string, category domain.PermissionCategory) (*domain.Permission, error) {
	return c.repo.Ensure(ctx, strings.ToUpper(key), name, category)
}

// Resolve returns nil, nil if the key is unseeded.
func (c *PermissionCatalog) Resolve(ctx context.Context, key string) (*domain.Permission, error) {
	p, err := c.repo.Resolve(ctx, strings.ToUpper(key))
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	return p, err
}

// Seed ensures every required model-action and feature key exists. Called
// once at startup; its failure is fatal since the Model Registry's publish
// and the Authorization Engine's merge both require these keys to exist.
func (c *PermissionCatalog) Seed(ctx context.Context) error {
	for _, key := range domain.RequiredModelActionKeys {
		if _, err := c.Ensure(ctx, key, key, domain.PermissionCategoryModelAction); err != nil {
			return err
		}
	}
	for _, key := range domain.RequiredFeatureKeys {
		if _, err := c.Ensure(ctx, key, key, domain.PermissionCategoryFeature); err != nil {
			return err
		}
	}
	return c.VerifySeeded(ctx)
}

// VerifySeeded fails InternalNotInitialized if any required key is missing,
// per spec.md §4.1.
func (c *PermissionCatalog) VerifySeeded(ctx context.Context) error {
	for _, key := range domain.RequiredModelActionKeys {
		p, err := c.Resolve(ctx, key)
		if err != nil {
			return err
		}
		if p == nil {
			return apierrors.NewNotInitializedError("required permission key missing: " + key)
		}
	}
	return nil
}

func (c *PermissionCatalog) List(ctx context.Context) ([]domain.Permission, error) {
	return c.repo.List(ctx)
}
