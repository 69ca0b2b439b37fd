package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytb/web3.storage/adapters/auth"
	"github.com/tinytb/web3.storage/adapters/metrics"
	domainauth "github.com/tinytb/web3.storage/domain/auth"
	"github.com/tinytb/web3.storage/domain/billing"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := auth.NewTokenService("test-secret", "", time.Hour)

	token, expiresAt, err := svc.GenerateToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
}

func TestTokenService_GenerateRequiresUser(t *testing.T) {
	_, _, err := auth.NewTokenService("s", "", 0).GenerateToken("")
	assert.Error(t, err)
}

func TestTokenService_WrongSecret(t *testing.T) {
	token, _, err := auth.NewTokenService("secret-a", "", time.Hour).GenerateToken("u")
	require.NoError(t, err)

	_, err = auth.NewTokenService("secret-b", "", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
}

func TestTokenService_WrongIssuer(t *testing.T) {
	token, _, err := auth.NewTokenService("s", "other", time.Hour).GenerateToken("u")
	require.NoError(t, err)

	_, err = auth.NewTokenService("s", "w3api", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	svc := auth.NewTokenService("s", "", time.Nanosecond)
	token, _, err := svc.GenerateToken("u")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, domainauth.ErrExpiredToken)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := auth.Claims{
		UserID: "u",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.NewTokenService("s", "", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
}

func TestTokenService_Authenticate(t *testing.T) {
	svc := auth.NewTokenService("s", "", time.Hour)
	token, _, err := svc.GenerateToken("user-9")
	require.NoError(t, err)

	user, err := svc.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, billing.User{ID: "user-9", Issuer: auth.DefaultIssuer}, user)

	_, err = svc.Authenticate("")
	assert.ErrorIs(t, err, domainauth.ErrMissingCredentials)

	_, err = svc.Authenticate("Bearer 12345")
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)

	_, err = svc.Authenticate("Token " + token)
	assert.ErrorIs(t, err, domainauth.ErrMalformedHeader)
}

func TestGenerateSecret(t *testing.T) {
	a, b := auth.GenerateSecret(), auth.GenerateSecret()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestRequireUser(t *testing.T) {
	svc := auth.NewTokenService("s", "", time.Hour)
	token, _, err := svc.GenerateToken("user-1")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	var failures []error
	onFailure := func(w http.ResponseWriter, r *http.Request, err error) {
		failures = append(failures, err)
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen billing.User
	handler := auth.RequireUser(svc, zerolog.Nop(), m, onFailure)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = auth.UserFromContext(r.Context())
		if !ok {
			t.Error("user missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/user/payment", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-1", seen.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/payment", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], domainauth.ErrMissingCredentials))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("missing_credentials")))
}

func TestUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := auth.UserFromContext(req.Context())
	assert.False(t, ok)

	_, ok = auth.UserFromContext(auth.WithUser(req.Context(), billing.User{}))
	assert.False(t, ok, "a user without id is not authenticated")
}
