package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// DefaultTokenTTL is used when no lifetime is configured.
const DefaultTokenTTL = 24 * time.Hour

const issuer = "researchagent"

// Principal identifies the caller of the planner API.
type Principal struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	jwt.RegisteredClaims
}

var (
	authConfig *AuthConfig
)

type AuthConfig struct {
	JwtSecret []byte
	TokenTTL  time.Duration
	Enabled   bool
}

// InitializeAuth sets up the auth configuration
func InitializeAuth(jwtSecret string, ttl time.Duration, enabled bool) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	authConfig = &AuthConfig{
		JwtSecret: []byte(jwtSecret),
		TokenTTL:  ttl,
		Enabled:   enabled,
	}
}

// IsAuthEnabled returns whether authentication is enabled
func IsAuthEnabled() bool {
	if authConfig == nil {
		return false
	}
	return authConfig.Enabled
}

// GenerateToken signs a token for subject, e.g. the name of a script or team
// that calls the planner API.
func GenerateToken(subject string) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	if len(authConfig.JwtSecret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(authConfig.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authConfig.JwtSecret)
}

// ValidateToken validates and parses a token
func ValidateToken(tokenString string) (*Principal, error) {
	if authConfig == nil {
		return nil, errors.New("auth not initialized")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		p := &Principal{Subject: claims.Subject}
		if claims.ExpiresAt != nil {
			p.ExpiresAt = claims.ExpiresAt.Time
		}
		return p, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// OptionalAuthMiddleware requires a valid bearer token when auth is enabled
// and lets every request through otherwise.
func OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		p, err := ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetPrincipalFromContext extracts the caller from request context
func GetPrincipalFromContext(r *http.Request) *Principal {
	if p, ok := r.Context().Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}
