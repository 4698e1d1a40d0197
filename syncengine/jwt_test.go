// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlexM1010/life-manager-sub002/internal/auth"
)

func TestJWTAuth_RoundTrip(t *testing.T) {
	j := NewJWTAuth("test-secret")

	tokenString, err := j.GenerateToken("user-123", time.Hour)
	require.NoError(t, err)

	claims, err := j.ValidateToken(tokenString)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "lifesync", claims.Issuer)
}

func TestJWTAuth_RejectsExpiredToken(t *testing.T) {
	j := NewJWTAuth("test-secret")

	tokenString, err := j.GenerateToken("user-123", -time.Minute)
	require.NoError(t, err)

	_, err = j.ValidateToken(tokenString)
	require.Error(t, err)
}

func TestJWTAuth_RejectsWrongSecret(t *testing.T) {
	j := NewJWTAuth("test-secret")
	other := NewJWTAuth("other-secret")

	tokenString, err := j.GenerateToken("user-123", time.Hour)
	require.NoError(t, err)

	_, err = other.ValidateToken(tokenString)
	require.Error(t, err)
}

func TestJWTAuth_GetUserID(t *testing.T) {
	j := NewJWTAuth("test-secret")
	tokenString, err := j.GenerateToken("user-123", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)

	userID, err := j.GetUserID(r)
	require.NoError(t, err)
	require.Equal(t, "user-123", userID)
}

func TestJWTAuth_GetUserID_MissingHeader(t *testing.T) {
	j := NewJWTAuth("test-secret")

	r := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	_, err := j.GetUserID(r)
	require.Error(t, err)

	r.Header.Set("Authorization", "not-a-bearer-token")
	_, err = j.GetUserID(r)
	require.Error(t, err)
}

func TestJWTAuth_Middleware(t *testing.T) {
	j := NewJWTAuth("test-secret")
	tokenString, err := j.GenerateToken("user-123", time.Hour)
	require.NoError(t, err)

	var gotUserID string
	handler := j.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = auth.GetUserID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-123", gotUserID)

	// Unauthenticated request never reaches the handler
	gotUserID = ""
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, gotUserID)
}
