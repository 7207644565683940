package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	"github.com/meridianhq/platform/pkg/auth"
	apierrors "github.com/meridianhq/platform/pkg/errors"
	"github.com/meridianhq/platform/pkg/utils"
)

// AccessClaims is the access-token payload (spec.md §4.11):
// {sub, email, role, iss, iat}.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs access tokens and rotates refresh tokens
// (spec.md §4.11). Access tokens are RS256-signed: the verification key is
// distributable to every request path while the signing key stays with the
// process that mints tokens (spec.md §9).
type TokenService struct {
	tx       storage.Transactor
	identity *IdentityStore
	audit    *AuditLog

	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string

	accessTTL  time.Duration
	refreshTTL time.Duration
	hashRounds int
}

func NewTokenService(tx storage.Transactor, identity *IdentityStore, audit *AuditLog, privateKeyPath, publicKeyPath, issuer string, accessTTL, refreshTTL time.Duration, hashRounds int) (*TokenService, error) {
	priv, err := loadRSAPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading JWT private key: %w", err)
	}
	pub, err := loadRSAPublicKey(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading JWT public key: %w", err)
	}

	return &TokenService{
		tx: tx, identity: identity, audit: audit,
		privateKey: priv, publicKey: pub, issuer: issuer,
		accessTTL: accessTTL, refreshTTL: refreshTTL, hashRounds: hashRounds,
	}, nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPrivateKeyFromPEM(raw)
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(raw)
}

// RefreshTTL exposes the configured refresh-token lifetime so callers can
// report an expiry alongside a freshly issued token.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken mints an RS256 access token for the given user.
func (s *TokenService) IssueAccessToken(user *domain.User) (string, error) {
	roleName := ""
	if user.Role != nil {
		roleName = user.Role.Name
	}

	now := time.Now()
	claims := AccessClaims{
		Email: user.Email,
		Role:  roleName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// VerifyAccessToken parses and validates an access token, returning its claims.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return nil, apierrors.NewUnauthorizedError("invalid or expired access token")
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, apierrors.NewUnauthorizedError("invalid access token")
	}
	return claims, nil
}

const refreshSecretBytes = 48 // 96 hex characters

func generateRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// IssueRefreshToken creates and persists a new refresh token row, returning
// the wire representation "<row_id>::<secret>".
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID, createdByIP string) (string, error) {
	secret, err := generateRefreshSecret()
	if err != nil {
		return "", apierrors.NewInternalError("generating refresh secret", err)
	}

	hash, err := auth.HashPasswordWithRounds(secret, s.hashRounds)
	if err != nil {
		return "", apierrors.NewInternalError("hashing refresh secret", err)
	}

	now := time.Now()
	row := &domain.RefreshToken{
		ID:          utils.GenerateID(),
		TokenHash:   hash,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedByIP: createdByIP,
	}

	if err := s.identity.CreateRefreshToken(ctx, row); err != nil {
		return "", err
	}

	return row.ID + "::" + secret, nil
}

func splitWireToken(wire string) (id, secret string, err error) {
	parts := strings.SplitN(wire, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apierrors.NewUnauthorizedError("malformed refresh token")
	}
	return parts[0], parts[1], nil
}

// validate loads and checks a refresh token's row without mutating it.
func (s *TokenService) validate(ctx context.Context, wire string) (*domain.RefreshToken, error) {
	id, secret, err := splitWireToken(wire)
	if err != nil {
		return nil, err
	}

	row, err := s.identity.GetRefreshToken(ctx, id)
	if err != nil {
		return nil, apierrors.NewUnauthorizedError("refresh token not found, please log in again")
	}

	if !row.IsValid(time.Now()) {
		return nil, apierrors.NewUnauthorizedError("refresh token revoked or expired, please log in again")
	}

	if !auth.VerifyPassword(secret, row.TokenHash) {
		return nil, apierrors.NewUnauthorizedError("refresh token invalid, please log in again")
	}

	return row, nil
}

// RotateRefreshToken validates wire, then atomically revokes it and issues a
// replacement (spec.md §4.11, §5: rotation is the linearization point for
// concurrent rotations of the same token lineage).
func (s *TokenService) RotateRefreshToken(ctx context.Context, wire, createdByIP string) (newWire string, userID string, err error) {
	secret, err := generateRefreshSecret()
	if err != nil {
		return "", "", apierrors.NewInternalError("generating refresh secret", err)
	}
	hash, err := auth.HashPasswordWithRounds(secret, s.hashRounds)
	if err != nil {
		return "", "", apierrors.NewInternalError("hashing refresh secret", err)
	}

	var old *domain.RefreshToken
	var newRow *domain.RefreshToken

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		old, err = s.validate(ctx, wire)
		if err != nil {
			return err
		}

		now := time.Now()
		newRow = &domain.RefreshToken{
			ID:          utils.GenerateID(),
			TokenHash:   hash,
			UserID:      old.UserID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.refreshTTL),
			CreatedByIP: createdByIP,
		}

		// Rotate's UPDATE is conditioned on the old row still being
		// unrevoked, so a racing rotation of the same token fails here
		// with Unauthorized instead of both minting a replacement.
		return s.identity.RotateRefreshToken(ctx, old.ID, newRow)
	})
	if err != nil {
		return "", "", err
	}

	if s.audit != nil {
		s.audit.Append(ctx, &old.UserID, domain.AuditRefreshTokenRotated, nil, nil, nil, map[string]interface{}{
			"oldTokenId": old.ID,
			"newTokenId": newRow.ID,
		})
	}

	return newRow.ID + "::" + secret, old.UserID, nil
}

// RevokeRefreshToken marks a wire token's row revoked (e.g. on logout).
func (s *TokenService) RevokeRefreshToken(ctx context.Context, wire string) error {
	id, _, err := splitWireToken(wire)
	if err != nil {
		return err
	}
	return s.identity.RevokeRefreshToken(ctx, id)
}
