// Package security resolves the active tenant for an inbound request and
// enforces the tenant-isolation rule spec.md §4.2 describes ("every
// backend call is parameterized by the active tenant... tenant mixing is a
// Security{violation_type: "access_control"} error"). Grounded on the
// teacher's pkg/auth.JWTValidator (JWKS-backed JWT verification extracting
// a tenant_id claim for multi-tenancy), generalized from an HTTP
// auth-middleware helper into a resolver that binds
// core.ExecutionContext.Tenant.
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/lexlapax/llmspell/pkg/core"
)

// Claims is the subset of a verified JWT's claims the core cares about:
// the subject, the tenant, and anything else callers need by name.
type Claims struct {
	Subject  string
	TenantID string
	Custom   map[string]any
}

// TenantResolver verifies bearer tokens against a JWKS endpoint and
// extracts the tenant_id claim, auto-refreshing cached keys on rotation.
type TenantResolver struct {
	jwksURL  string
	issuer   string
	audience string
	cache    *jwk.Cache
}

// NewTenantResolver builds a resolver that fetches and caches JWKS from
// jwksURL, refreshing no more often than every 15 minutes (matching the
// teacher's rotation cadence).
func NewTenantResolver(ctx context.Context, jwksURL, issuer, audience string) (*TenantResolver, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("security: register JWKS url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("security: initial JWKS fetch from %s: %w", jwksURL, err)
	}
	return &TenantResolver{jwksURL: jwksURL, issuer: issuer, audience: audience, cache: cache}, nil
}

// Verify validates tokenString's signature, issuer, and audience against
// the cached JWKS, returning the extracted Claims or a core.Security error.
func (r *TenantResolver) Verify(ctx context.Context, tokenString string) (Claims, *core.Error) {
	keyset, err := r.cache.Get(ctx, r.jwksURL)
	if err != nil {
		return Claims{}, core.Security("jwks_unavailable", err.Error())
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(r.issuer),
		jwt.WithAudience(r.audience),
	)
	if err != nil {
		return Claims{}, core.Security("invalid_token", err.Error())
	}

	claims := Claims{Subject: token.Subject(), Custom: map[string]any{}}
	if tenantID, ok := token.Get("tenant_id"); ok {
		if s, ok := tenantID.(string); ok {
			claims.TenantID = s
		}
	}

	for it := token.Iterate(ctx); it.Next(ctx); {
		pair := it.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "tenant_id", "iss", "aud", "exp", "iat", "nbf":
			continue
		default:
			claims.Custom[key] = pair.Value
		}
	}

	return claims, nil
}

// BindTenant verifies tokenString and returns ec re-scoped to the token's
// tenant via ExecutionContext.WithTenant. If requireTenant is true, a token
// with no tenant_id claim is rejected as an access_control violation —
// spec.md's "tenant mixing is a Security error" extends naturally to
// "anonymous tenant" when the caller requires multi-tenant isolation.
func (r *TenantResolver) BindTenant(ctx context.Context, ec core.ExecutionContext, tokenString string, requireTenant bool) (core.ExecutionContext, *core.Error) {
	claims, err := r.Verify(ctx, tokenString)
	if err != nil {
		return ec, err
	}
	if requireTenant && claims.TenantID == "" {
		return ec, core.Security("access_control", "token carries no tenant_id claim")
	}
	return ec.WithTenant(claims.TenantID), nil
}
