package mw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"swapguard/internal/security"
	"swapguard/pkg/httputil"
)

// Key for the caller subject in ctx
type claimsCtxKey struct{}

// DefaultAccountHeader carries the caller account when JWT is disabled (local runs only)
const DefaultAccountHeader = "X-Account"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, sub)
}

// Subject returns the authenticated caller subject, "" when anonymous
func Subject(ctx context.Context) string {
	if v := ctx.Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func subjectFromContext(r *http.Request) string {
	return Subject(r.Context())
}

type JWTMiddleware struct {
	verifier *security.RS256Verifier
}

func NewJWTMiddleware(v *security.RS256Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	if m.verifier == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			_ = httputil.Error(w, r, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), claims.Subject)))
	})
}

// HeaderIdentity trusts the account named in a request header. It stands in for JWT
// on local setups and must never be mounted on a public listener.
type HeaderIdentity struct {
	header string
}

func NewHeaderIdentity(header string) *HeaderIdentity {
	if header == "" {
		header = DefaultAccountHeader
	}
	return &HeaderIdentity{header: header}
}

func (m *HeaderIdentity) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := strings.TrimSpace(r.Header.Get(m.header)); sub != "" {
			r = r.WithContext(WithSubject(r.Context(), sub))
		}
		next.ServeHTTP(w, r)
	})
}
