package mw

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swapguard/internal/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0x00000000000000000000000000000000000000A1"

// generate test RSA keys
func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

// create test JWT token
func createTestToken(t *testing.T, privateKey *rsa.PrivateKey, sub, aud, iss string, expiry time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		Issuer:    iss,
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Second)),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	require.NoError(t, err)
	return tokenString
}

func subjectRecorder(called *bool, sub *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		*sub = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// ========== JWT Middleware Tests ==========

func TestNewJWTMiddleware(t *testing.T) {
	_, err := NewJWTMiddleware(nil)
	assert.Error(t, err)

	_, pubKey := generateTestKeys(t)
	verifier := &security.RS256Verifier{PubKey: pubKey, Aud: "test-aud", Iss: "test-iss"}
	m, err := NewJWTMiddleware(verifier)
	require.NoError(t, err)
	assert.Equal(t, verifier, m.verifier)
}

func TestJWTMiddleware_Handler(t *testing.T) {
	privKey, pubKey := generateTestKeys(t)
	otherKey, _ := generateTestKeys(t)

	m, err := NewJWTMiddleware(&security.RS256Verifier{
		PubKey: pubKey,
		Aud:    "hookd",
		Iss:    "test-issuer",
		Leeway: 5 * time.Second,
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantCode   int
		wantSub    string
	}{
		{
			name:       "valid token",
			authHeader: "Bearer " + createTestToken(t, privKey, testAccount, "hookd", "test-issuer", time.Hour),
			wantCode:   http.StatusOK,
			wantSub:    testAccount,
		},
		{name: "no header", authHeader: "", wantCode: http.StatusUnauthorized},
		{name: "missing bearer prefix", authHeader: "sometoken", wantCode: http.StatusUnauthorized},
		{name: "only bearer word", authHeader: "Bearer", wantCode: http.StatusUnauthorized},
		{name: "malformed token", authHeader: "Bearer not.a.valid.jwt", wantCode: http.StatusUnauthorized},
		{
			name:       "expired",
			authHeader: "Bearer " + createTestToken(t, privKey, testAccount, "hookd", "test-issuer", -time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong audience",
			authHeader: "Bearer " + createTestToken(t, privKey, testAccount, "other", "test-issuer", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong issuer",
			authHeader: "Bearer " + createTestToken(t, privKey, testAccount, "hookd", "evil", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "wrong signature",
			authHeader: "Bearer " + createTestToken(t, otherKey, testAccount, "hookd", "test-issuer", time.Hour),
			wantCode:   http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var sub string

			req := httptest.NewRequest(http.MethodGet, "/api/pools", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			m.Handler(subjectRecorder(&called, &sub)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, called)
			assert.Equal(t, tt.wantSub, sub)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
			}
		})
	}
}

func TestJWTMiddleware_NilVerifierPassesThrough(t *testing.T) {
	m := &JWTMiddleware{}
	var called bool
	var sub string

	rec := httptest.NewRecorder()
	m.Handler(subjectRecorder(&called, &sub)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ========== Identity Tests ==========

func TestHeaderIdentity(t *testing.T) {
	m := NewHeaderIdentity("")
	var called bool
	var sub string
	h := m.Handler(subjectRecorder(&called, &sub))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultAccountHeader, "  "+testAccount+" ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, testAccount, sub)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "", sub)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "", Subject(context.Background()))
	assert.Equal(t, "abc", Subject(WithSubject(context.Background(), "abc")))
	assert.Equal(t, "", Subject(context.WithValue(context.Background(), claimsCtxKey{}, 12345)), "wrong type in ctx")
}
