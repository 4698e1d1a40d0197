// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AlexM1010/life-manager-sub002/internal/auth"
)

// UserAuthenticator extracts the calling user's identity from HTTP
// requests. Implementations should validate auth (e.g., JWT).
type UserAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
}

// JWTAuth handles JWT authentication for the engine's HTTP surface.
// This authenticates the app's own API calls; it is unrelated to the
// provider-side OAuth credentials the TokenManager owns.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
	}
}

// GenerateToken generates a signed token carrying the user id in the
// standard sub claim
func (j *JWTAuth) GenerateToken(userID string, expiration time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
		Issuer:    "lifesync",
		Subject:   userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a token and returns its claims
func (j *JWTAuth) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// GetUserID extracts the user ID from the request's bearer token
// (implements UserAuthenticator)
func (j *JWTAuth) GetUserID(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header required")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", fmt.Errorf("bearer token required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	return claims.Subject, nil
}

// Middleware returns an HTTP middleware that authenticates the request
// and stores the user id in the context
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := j.GetUserID(r)
		if err != nil {
			http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(auth.SetUserID(r.Context(), userID))
		next.ServeHTTP(w, r)
	})
}
