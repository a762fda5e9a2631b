package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type userIDKey struct{}

// Authenticator validates HMAC-signed bearer tokens and injects the caller's
// user id into the request context.
type Authenticator struct {
	key []byte
}

// NewAuthenticator constructs an Authenticator over the shared HMAC key.
func NewAuthenticator(hmacKey string) *Authenticator {
	return &Authenticator{key: []byte(hmacKey)}
}

// ParseToken verifies the token signature and returns the user_id claim.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("op=auth.parse: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("op=auth.parse: unexpected claims type")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", fmt.Errorf("op=auth.parse: missing user_id claim")
	}
	return userID, nil
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeJSON(w, http.StatusUnauthorized, CommonResponse{
				Code:    http.StatusUnauthorized,
				Message: "missing bearer token",
				Data:    map[string]any{},
			})
			return
		}
		userID, err := a.ParseToken(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, CommonResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid token",
				Data:    map[string]any{},
			})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFrom returns the authenticated caller's id, or the empty string on
// unauthenticated requests.
func UserIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}
