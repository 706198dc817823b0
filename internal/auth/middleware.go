package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Scopes understood by the admin API.
const (
	ScopeRead      = "read"
	ScopeAdmin     = "admin"
	ScopeTelemetry = "telemetry"
)

func validScope(s string) bool {
	return s == ScopeRead || s == ScopeAdmin || s == ScopeTelemetry
}

type claimsKey struct{}

// ErrorWriter writes an error response in the API envelope.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier *Verifier
	disabled bool
	writeErr ErrorWriter
	log      logrus.FieldLogger
}

// NewMiddleware creates middleware that requires tokens verified by verifier.
func NewMiddleware(verifier *Verifier, writeErr ErrorWriter, log logrus.FieldLogger) *Middleware {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Middleware{verifier: verifier, writeErr: writeErr, log: log.WithField("component", "auth")}
}

// NewDisabledMiddleware creates middleware that lets every request through with all scopes.
// For nodes whose admin API is reachable only over a trusted local link.
func NewDisabledMiddleware(writeErr ErrorWriter) *Middleware {
	return &Middleware{disabled: true, writeErr: writeErr, log: logrus.StandardLogger()}
}

// localClaims are attached to requests when authentication is disabled.
var localClaims = &Claims{Subject: "local", Scopes: []string{ScopeRead, ScopeAdmin, ScopeTelemetry}}

// RequireAuth creates middleware that requires a valid bearer token.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next(w, r.WithContext(WithClaims(r.Context(), localClaims)))
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Debug("Token rejected")
			m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}

// RequireScope creates middleware that requires every listed scope.
func (m *Middleware) RequireScope(scopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			for _, s := range scopes {
				if !claims.HasScope(s) {
					m.writeErr(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
					return
				}
			}
			next(w, r)
		}
	}
}

// Protect is RequireAuth followed by RequireScope.
func (m *Middleware) Protect(next http.HandlerFunc, scopes ...string) http.HandlerFunc {
	return m.RequireAuth(m.RequireScope(scopes...)(next))
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims attached by RequireAuth, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}
