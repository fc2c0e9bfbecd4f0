package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/peerfund/backend/internal/models"
	"github.com/spf13/viper"
)

type contextKey string

const (
	// UserIDKey carries the authenticated user's id through the request context.
	UserIDKey contextKey = "userID"
	// RoleKey carries the authenticated user's role (borrower|lender).
	RoleKey contextKey = "role"
)

var blacklist *redis.Client

// InitAuthMiddleware wires the optional Redis client used for the logout
// token blacklist.
func InitAuthMiddleware(redisClient *redis.Client) {
	blacklist = redisClient
}

// AuthMiddleware authenticates the bearer token and resolves the caller's
// identity and role once, at the boundary.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if blacklist != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			if exists, err := blacklist.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		userID, role, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route group on the role resolved by AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := r.Context().Value(RoleKey).(string)
			if !ok || got != role {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID extracts the authenticated user id from the request context.
func UserID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(UserIDKey).(int)
	return id, ok
}

func validateToken(tokenString string) (int, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", fmt.Errorf("invalid claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("missing user_id claim")
	}

	role, _ := claims["role"].(string)
	if role != models.RoleBorrower && role != models.RoleLender {
		return 0, "", fmt.Errorf("unknown role %q", role)
	}

	return int(userID), role, nil
}
