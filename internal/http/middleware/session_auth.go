package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const sessionClaimsKey contextKey = "sessionClaims"

const tokenIssuer = "booking-funnel"

// ErrTokenSigningDisabled is returned when no signing secret is configured.
var ErrTokenSigningDisabled = errors.New("middleware: session token signing disabled")

// IssueSessionToken signs an HMAC JWT binding the bearer to sessionID.
func IssueSessionToken(secret, sessionID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrTokenSigningDisabled
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SessionToken requires a token whose subject matches the {param} route parameter.
// The token is read from the Authorization header, or from the token query
// parameter for WebSocket upgrades. An empty secret disables the check.
func SessionToken(secret, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeAuthError(w, "missing session token")
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				writeAuthError(w, "invalid session token")
				return
			}
			if id := chi.URLParam(r, param); id == "" || id != claims.Subject {
				writeAuthError(w, "token does not grant access to this session")
				return
			}
			ctx := context.WithValue(r.Context(), sessionClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionClaimsFromContext returns the verified session claims if present.
func SessionClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
