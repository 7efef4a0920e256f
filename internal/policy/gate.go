package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/diewo77/go-esign/auth"
	"github.com/diewo77/go-esign/httpx"
	"gorm.io/gorm"
)

var ErrUnauthorized = errors.New("unauthorized")

// ResourcePolicy checks access to one record once the profile permission is granted.
type ResourcePolicy interface {
	Can(ctx context.Context, userID uint, profile Profile, action Action, resource any) bool
}

// Gate combines profile permissions with resource policies.
type Gate struct {
	resolver ProfileResolver
	cache    *CachedResolver
	policies map[string]ResourcePolicy
}

// NewGate builds a gate reading profiles from the database through a cache.
func NewGate(db *gorm.DB, cacheTTL time.Duration) *Gate {
	return NewGateWithResolver(NewDBProfileResolver(db), cacheTTL)
}

func NewGateWithResolver(resolver ProfileResolver, cacheTTL time.Duration) *Gate {
	cache := NewCachedResolver(resolver, cacheTTL)
	return &Gate{resolver: cache, cache: cache, policies: make(map[string]ResourcePolicy)}
}

// Register sets the policy of a resource type.
func (g *Gate) Register(resourceType string, p ResourcePolicy) {
	g.policies[resourceType] = p
}

// Authorize checks that the user of ctx holds resource:action and, when a
// resource is given and a policy is registered for its type, that the policy allows it.
func (g *Gate) Authorize(ctx context.Context, resourceType string, action Action, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return ErrUnauthorized
	}
	profile, err := g.resolver.Resolve(ctx, userID)
	if err != nil || profile == nil {
		return ErrUnauthorized
	}
	if !profile.HasPermission(NewPermission(resourceType, action)) {
		return ErrUnauthorized
	}
	if resource != nil {
		if p, ok := g.policies[resourceType]; ok && !p.Can(ctx, userID, profile, action, resource) {
			return ErrUnauthorized
		}
	}
	return nil
}

func (g *Gate) Can(ctx context.Context, resourceType string, action Action) bool {
	return g.Authorize(ctx, resourceType, action, nil) == nil
}

func (g *Gate) InvalidateUser(userID uint) { g.cache.Invalidate(userID) }

func (g *Gate) InvalidateAll() { g.cache.InvalidateAll() }

// RequirePermission rejects requests whose user lacks resource:action.
func (g *Gate) RequirePermission(resourceType string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if !g.Can(r.Context(), resourceType, action) {
				httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only lets through users holding "*:*".
func (g *Gate) RequireAdmin() func(http.Handler) http.Handler {
	return g.RequirePermission(Wildcard, Wildcard)
}
