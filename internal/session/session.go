// Package session resolves bearer tokens into the caller's identity.
// Token issuance lives in the account service; this side only resolves
// tokens it finds in the shared kv store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/kv"
)

// ErrInvalidToken is returned when a token is unknown or expired.
var ErrInvalidToken = errors.New("invalid session token")

const keyPrefix = "session:"

// Identity is the caller's projection used by every family-scoped
// operation.
type Identity struct {
	UserID   string      `json:"user_id"`
	FamilyID string      `json:"family_id"`
	Role     domain.Role `json:"role"`
}

// Resolver looks up session tokens in an injected kv.Store.
type Resolver struct {
	store kv.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store kv.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the identity bound to token, or ErrInvalidToken.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	raw, err := r.store.Get(ctx, keyPrefix+token)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &id, nil
}

// Grant binds token to id for ttl. Used by the account service when it
// issues a token, and by tests to seed sessions.
func (r *Resolver) Grant(ctx context.Context, token string, id Identity, ttl time.Duration) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return r.store.Set(ctx, keyPrefix+token, raw, ttl)
}

// Revoke removes a session token.
func (r *Resolver) Revoke(ctx context.Context, token string) error {
	return r.store.Delete(ctx, keyPrefix+token)
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}
