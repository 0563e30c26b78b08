package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

var testConfig = Config{Secret: "secret", Issuer: "freightdesk", TTL: time.Hour}

func protected(t *testing.T, captured *shared.Actor) http.Handler {
	t.Helper()
	return Middleware(testConfig, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		*captured = actor
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	var actor shared.Actor
	rec := httptest.NewRecorder()
	protected(t, &actor).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	now := time.Now()
	expired, err := Mint(Config{Secret: "secret", Issuer: "freightdesk", TTL: time.Minute}, now.Add(-time.Hour), 7, "Nadia")
	require.NoError(t, err)
	otherKey, err := Mint(Config{Secret: "other", Issuer: "freightdesk"}, now, 7, "Nadia")
	require.NoError(t, err)
	otherIssuer, err := Mint(Config{Secret: "secret", Issuer: "elsewhere"}, now, 7, "Nadia")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "invalid",
		"expired":      expired,
		"other key":    otherKey,
		"other issuer": otherIssuer,
	} {
		t.Run(name, func(t *testing.T) {
			var actor shared.Actor
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			protected(t, &actor).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := Mint(testConfig, time.Now(), 7, "Nadia")
	require.NoError(t, err)

	var actor shared.Actor
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, &actor).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, shared.StaffActor(7, "Nadia"), actor)
	assert.False(t, actor.Guest)
}

func TestClaimsActorRequiresNumericSubject(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "abc"
	_, err := claims.Actor()
	require.Error(t, err)

	claims.Subject = "12"
	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, "staff-12", actor.Name)
}

func TestMintRequiresSecret(t *testing.T) {
	_, err := Mint(Config{}, time.Now(), 1, "x")
	require.Error(t, err)
	_, err = Parse(Config{}, "x")
	require.Error(t, err)
}
