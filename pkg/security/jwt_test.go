package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/llmspell/pkg/core"
)

func generateRSAKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, &priv.PublicKey
}

func createJWKS(t *testing.T, pub *rsa.PublicKey) jwk.Set {
	t.Helper()
	key, err := jwk.FromRaw(pub)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	return set
}

func createTestJWT(t *testing.T, priv *rsa.PrivateKey, issuer, audience, subject string, claims map[string]any) string {
	t.Helper()
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, issuer))
	require.NoError(t, token.Set(jwt.AudienceKey, audience))
	require.NoError(t, token.Set(jwt.SubjectKey, subject))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}

	key, err := jwk.FromRaw(priv)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key-id"))

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

func setupTestResolver(t *testing.T) (*TenantResolver, *rsa.PrivateKey, string, string) {
	t.Helper()
	priv, pub := generateRSAKeyPair(t)
	set := createJWKS(t, pub)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(set)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	issuer := "https://test-issuer.example"
	audience := "llmspell-core"

	resolver, err := NewTenantResolver(context.Background(), server.URL, issuer, audience)
	require.NoError(t, err)
	return resolver, priv, issuer, audience
}

func TestTenantResolver_VerifyExtractsTenant(t *testing.T) {
	resolver, priv, issuer, audience := setupTestResolver(t)
	token := createTestJWT(t, priv, issuer, audience, "user-1", map[string]any{"tenant_id": "tenant-a"})

	claims, err := resolver.Verify(context.Background(), token)
	require.Nil(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
}

func TestTenantResolver_VerifyRejectsBadSignature(t *testing.T) {
	resolver, _, issuer, audience := setupTestResolver(t)
	otherPriv, _ := generateRSAKeyPair(t)
	token := createTestJWT(t, otherPriv, issuer, audience, "user-1", nil)

	_, err := resolver.Verify(context.Background(), token)
	require.NotNil(t, err)
	assert.Equal(t, core.ErrorKindSecurity, err.Kind)
}

func TestTenantResolver_BindTenantRejectsMissingTenantWhenRequired(t *testing.T) {
	resolver, priv, issuer, audience := setupTestResolver(t)
	token := createTestJWT(t, priv, issuer, audience, "user-1", nil)

	ec := core.NewExecutionContext(context.Background(), core.Global(), nil, nil, "corr-1")
	_, err := resolver.BindTenant(context.Background(), ec, token, true)
	require.NotNil(t, err)
	assert.Equal(t, "access_control", err.ViolationType)
}

func TestTenantResolver_BindTenantScopesExecutionContext(t *testing.T) {
	resolver, priv, issuer, audience := setupTestResolver(t)
	token := createTestJWT(t, priv, issuer, audience, "user-1", map[string]any{"tenant_id": "tenant-b"})

	ec := core.NewExecutionContext(context.Background(), core.Global(), nil, nil, "corr-1")
	bound, err := resolver.BindTenant(context.Background(), ec, token, true)
	require.Nil(t, err)
	assert.Equal(t, "tenant-b", bound.TenantOrDefault())
}
