package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// publicPaths never require a bearer token: the webhook route carries its
// own Stripe-Signature verification, and health is a liveness probe.
var publicPaths = map[string]struct{}{
	"/api/webhook/stripe":          {},
	"/api/health":                  {},
	"/api/installer/latest.tar.gz": {},
	"/metrics":                     {},
}

type ctxKey string

const ctxTokenKey ctxKey = "httpapi.token"

// JWTValidator validates a bearer token issued outside this service
// (e.g. the customer dashboard's Supabase session), letting httpapi
// accept either a configured static token or a verifiable JWT.
type JWTValidator interface {
	Validate(token string) (*jwt.RegisteredClaims, error)
}

// wrapWithAuth rejects any request outside publicPaths that carries
// neither a recognized static token nor a JWT the validator accepts.
// Grounded on the teacher's wrapWithAuth, simplified to this service's
// single-tenant, token-or-JWT model (no role/tenant claims to enforce).
func wrapWithAuth(next http.Handler, tokens []string, validator JWTValidator, log *logger.Logger) http.Handler {
	tokenSet := normalizeTokens(tokens)
	if len(tokenSet) == 0 && validator == nil && log != nil {
		log.Warn("httpapi: no static tokens or JWT validator configured; all authenticated routes will reject")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			unauthorized(w)
			return
		}
		if _, ok := tokenSet[token]; ok {
			ctx := context.WithValue(r.Context(), ctxTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if validator != nil {
			if claims, err := validator.Validate(token); err == nil {
				ctx := context.WithValue(r.Context(), ctxTokenKey, claims.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		unauthorized(w)
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func normalizeTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
}

// StaticJWTValidator validates HS256 JWTs signed with a shared secret,
// the simplest case a deployment without an external identity provider
// needs (golang-jwt/jwt/v5, matching the teacher's SupabaseJWTValidator
// minus the role/tenant claim plumbing this single-tenant API has no use
// for).
type StaticJWTValidator struct {
	secret []byte
}

// NewStaticJWTValidator returns nil when secret is blank, so callers can
// pass it through unconditionally.
func NewStaticJWTValidator(secret string) *StaticJWTValidator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &StaticJWTValidator{secret: []byte(secret)}
}

func (v *StaticJWTValidator) Validate(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// wrapWithCORS allows cross-origin requests from the customer dashboard
// and short-circuits preflight requests, matching the teacher's
// wrapWithCORS.
func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Stripe-Signature")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
