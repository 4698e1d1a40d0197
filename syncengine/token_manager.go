// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// Scopes requested during the consent flow: calendar and tasks read/write
var defaultScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/tasks",
}

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Access tokens within this window of expiry are refreshed before use
const refreshSkew = 60 * time.Second

// OAuthConfig holds the provider application credentials for TokenManager
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string        // Defaults to calendar + tasks
	Endpoint     oauth2.Endpoint // Defaults to Google's endpoint
	RevokeURL    string          // Defaults to Google's revocation endpoint
}

// TokenManager owns the OAuth2 credential lifecycle: authorization-code
// exchange, transparent refresh, and revocation. It is the only component
// that talks to the identity provider's token endpoint, so every other
// component can assume a credential it receives is immediately usable.
type TokenManager struct {
	config     *oauth2.Config
	store      Store
	logger     *slog.Logger
	httpClient *http.Client
	revokeURL  string

	// Concurrent refreshes for the same account share one in-flight call,
	// otherwise the provider may invalidate a refresh token used twice.
	refreshGroup singleflight.Group

	now func() time.Time
}

// NewTokenManager creates a token manager backed by the given store
func NewTokenManager(cfg OAuthConfig, store Store, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultRevokeURL
	}

	return &TokenManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		store:      store,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		revokeURL:  revokeURL,
		now:        time.Now,
	}
}

// InitiateAuth builds the provider consent URL requesting offline access.
// Pure URL construction, no I/O.
func (m *TokenManager) InitiateAuth(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges a one-time authorization code for a token pair
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthExchangeError{Err: err}
	}
	return token, nil
}

// StoreTokens upserts the credential record for (userID, provider),
// overwriting any prior record. Google omits the refresh token on repeat
// consent, so an existing refresh token is preserved when the new token
// lacks one.
func (m *TokenManager) StoreTokens(ctx context.Context, userID, provider string, token *oauth2.Token) error {
	now := m.now()
	rec := &OAuthTokenRecord{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        strings.Join(m.config.Scopes, " "),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if rec.RefreshToken == "" {
		prev, err := m.store.GetTokenRecord(ctx, userID, provider)
		if err == nil {
			rec.RefreshToken = prev.RefreshToken
			rec.CreatedAt = prev.CreatedAt
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load prior token record: %w", err)
		}
	}

	if err := m.store.UpsertTokenRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	m.logger.Info("Stored OAuth tokens", "user_id", userID, "provider", provider, "expires_at", rec.ExpiresAt)
	return nil
}

// GetLiveCredential returns a credential guaranteed valid for immediate
// use, transparently refreshing and persisting it when the stored access
// token is expired or near expiry. Returns ReauthRequiredError when no
// record exists or the provider rejects the refresh token.
func (m *TokenManager) GetLiveCredential(ctx context.Context, userID, provider string) (*oauth2.Token, error) {
	rec, err := m.store.GetTokenRecord(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &ReauthRequiredError{Reason: "no stored credential"}
		}
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}

	if rec.ExpiresAt.After(m.now().Add(refreshSkew)) {
		return &oauth2.Token{
			AccessToken:  rec.AccessToken,
			RefreshToken: rec.RefreshToken,
			Expiry:       rec.ExpiresAt,
			TokenType:    "Bearer",
		}, nil
	}

	key := userID + "/" + provider
	result, err, _ := m.refreshGroup.Do(key, func() (any, error) {
		return m.refresh(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*oauth2.Token), nil
}

// refresh renews the access token using the stored refresh token and
// persists the renewed credential.
func (m *TokenManager) refresh(ctx context.Context, rec *OAuthTokenRecord) (*oauth2.Token, error) {
	if rec.RefreshToken == "" {
		return nil, &ReauthRequiredError{Reason: "no refresh token on record"}
	}

	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			(retrieveErr.Response == nil || retrieveErr.Response.StatusCode < 500) {
			// The provider rejected the refresh token itself
			return nil, &ReauthRequiredError{Reason: "refresh token rejected", Err: err}
		}
		return nil, &ProviderError{Class: ClassTransient, Err: fmt.Errorf("token refresh failed: %w", err)}
	}

	rec.AccessToken = token.AccessToken
	rec.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		rec.RefreshToken = token.RefreshToken
	}
	rec.UpdatedAt = m.now()

	if err := m.store.UpsertTokenRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Debug("Refreshed access token",
		"user_id", rec.UserID, "provider", rec.Provider, "expires_at", rec.ExpiresAt)

	return token, nil
}

// RevokeTokens performs a best-effort remote revocation call, then deletes
// the local record unconditionally. Local state never retains a credential
// the user asked to disconnect, even when the remote call fails.
func (m *TokenManager) RevokeTokens(ctx context.Context, userID, provider string) error {
	rec, err := m.store.GetTokenRecord(ctx, userID, provider)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to load token record: %w", err)
	}

	if rec != nil {
		token := rec.RefreshToken
		if token == "" {
			token = rec.AccessToken
		}
		if revokeErr := m.revokeRemote(ctx, token); revokeErr != nil {
			m.logger.Warn("Remote token revocation failed, deleting local record anyway",
				"user_id", userID, "provider", provider, "error", revokeErr)
		}
	}

	if err := m.store.DeleteTokenRecord(ctx, userID, provider); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete token record: %w", err)
	}

	m.logger.Info("Disconnected provider", "user_id", userID, "provider", provider)
	return nil
}

func (m *TokenManager) revokeRemote(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
