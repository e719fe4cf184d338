package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey struct{}

type Middleware struct {
	secretKey []byte
}

// NewMiddleware returns a bearer-token validator. An empty secret disables
// validation.
func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		secretKey: []byte(secret),
	}
}

// UserID returns the token subject stored by ValidateToken, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

func (m *Middleware) ValidateToken(next http.HandlerFunc) http.HandlerFunc {
	if len(m.secretKey) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// preflight requests never carry credentials
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Missing Authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "Invalid Authorization header format")
			return
		}

		tokenString := parts[1]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		})

		if err != nil || !token.Valid {
			slog.Warn("Invalid token attempt", "error", err)
			unauthorized(w, "Invalid or expired token")
			return
		}

		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			ctx := context.WithValue(r.Context(), contextKey{}, sub)
			next(w, r.WithContext(ctx))
			return
		}

		next(w, r)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
