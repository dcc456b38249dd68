package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memelibre/server/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// UserIDKey is the context key for the authenticated user's ID.
const UserIDKey contextKey = "userID"

// IsAdminKey is the context key for the authenticated user's admin flag.
const IsAdminKey contextKey = "isAdmin"

// TokenCookie is the cookie the web client stores its session token in.
const TokenCookie = "token"

var (
	errNoToken      = errors.New("authorization token required")
	errInvalidToken = errors.New("invalid or expired token")
)

// Claims are the session token claims issued by the auth service.
type Claims struct {
	IsAdmin  bool   `json:"is_admin"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RequireAuth returns middleware that validates a session JWT (Bearer header
// or token cookie) and injects user claims into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseRequest(r, jwtSecret)
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth injects claims when a valid token is present and otherwise
// lets the request through anonymously. A present but invalid token is
// still rejected.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseRequest(r, jwtSecret)
			if errors.Is(err, errNoToken) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin rejects requests whose claims lack is_admin. It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAdmin, _ := r.Context().Value(IsAdminKey).(bool); !isAdmin {
			response.Forbidden(w, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID returns the authenticated user's ID, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func withClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, c.Subject)
	return context.WithValue(ctx, IsAdminKey, c.IsAdmin)
}

func parseRequest(r *http.Request, jwtSecret string) (*Claims, error) {
	raw := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, errors.New("invalid authorization header format")
		}
		raw = parts[1]
	} else if c, err := r.Cookie(TokenCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return nil, errNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	// created_by is a UUID column; reject subjects that could never be inserted.
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errors.New("invalid token subject")
	}
	return claims, nil
}
