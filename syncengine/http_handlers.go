// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// HTTPSyncHandlers exposes the engine's operations over HTTP. Handlers
// are plain http.HandlerFunc values so they mount on any router.
type HTTPSyncHandlers struct {
	engine        *SyncEngine
	authenticator UserAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers
func NewHTTPSyncHandlers(engine *SyncEngine, authenticator UserAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSyncHandlers{
		engine:        engine,
		authenticator: authenticator,
		logger:        logger,
	}
}

// HandleConnect returns the provider consent URL for the authenticated
// user. The user id rides in the OAuth state parameter so the callback
// can attribute the code without a session store.
func (h *HTTPSyncHandlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	url := h.engine.Tokens().InitiateAuth(userID)
	h.writeJSON(w, AuthURLResponse{AuthorizationURL: url})
}

// HandleOAuthCallback receives the provider redirect, exchanges the code
// and stores the resulting tokens. Unauthenticated: the browser arrives
// here straight from the provider.
func (h *HTTPSyncHandlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("state")
	if code == "" || userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "code and state are required")
		return
	}

	token, err := h.engine.Tokens().ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("Authorization code exchange failed", "user_id", userID, "error", err)
		h.writeError(w, http.StatusBadRequest, "auth_exchange_failed", err.Error())
		return
	}
	if err := h.engine.Tokens().StoreTokens(r.Context(), userID, ProviderGoogle, token); err != nil {
		h.logger.Error("Failed to store tokens", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "token_store_failed", "Failed to store tokens")
		return
	}

	h.writeJSON(w, map[string]string{"status": "connected"})
}

// HandleDisconnect revokes and deletes the user's provider credential
func (h *HTTPSyncHandlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	if err := h.engine.Tokens().RevokeTokens(r.Context(), userID, ProviderGoogle); err != nil {
		h.logger.Error("Failed to disconnect provider", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "disconnect_failed", "Failed to disconnect provider")
		return
	}

	h.writeJSON(w, map[string]string{"status": "disconnected"})
}

// HandleImport triggers an import of today's remote events and tasks.
// default_domain_id assigns newly materialized tasks to a life domain.
func (h *HTTPSyncHandlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	defaultDomainID := int64(0)
	if ds := r.URL.Query().Get("default_domain_id"); ds != "" {
		v, err := strconv.ParseInt(ds, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "default_domain_id must be an integer")
			return
		}
		defaultDomainID = v
	}

	result, err := h.engine.ImportFromGoogle(r.Context(), userID, defaultDomainID)
	if err != nil {
		h.writeCredentialError(w, userID, "import_failed", err)
		return
	}

	h.writeJSON(w, result)
}

// HandleExport pushes one task's lifecycle event to the provider. The
// task id rides in the URL path (POST /sync/export/{taskID}); the
// operation is selected with op=create|update|complete (default create).
func (h *HTTPSyncHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		// Mounted outside a chi router the id falls back to a query param
		taskID = r.URL.Query().Get("task_id")
	}
	if taskID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "task id is required")
		return
	}

	op := r.URL.Query().Get("op")
	switch op {
	case "", "create":
		err = h.engine.ExportNewTask(r.Context(), userID, taskID)
	case "update":
		err = h.engine.ExportTaskModification(r.Context(), userID, taskID)
	case "complete":
		err = h.engine.ExportTaskCompletion(r.Context(), userID, taskID)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "op must be create, update or complete")
		return
	}
	if err != nil {
		h.writeCredentialError(w, userID, "export_failed", err)
		return
	}

	// Remote failures are data, not errors: inspect /sync/status
	h.writeJSON(w, map[string]string{"status": "accepted"})
}

// HandleRetry replays all failed operations for the user
func (h *HTTPSyncHandlers) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	result, err := h.engine.RetryFailedOperations(r.Context(), userID)
	if err != nil {
		h.writeCredentialError(w, userID, "retry_failed", err)
		return
	}

	h.writeJSON(w, result)
}

// HandleStatus reports sync health. Always 200: the status call is a
// diagnostic surface and must stay available when sync is broken.
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	h.writeJSON(w, h.engine.GetSyncStatus(r.Context(), userID))
}

// HandleSyncLog returns the most recent audit trail entries
func (h *HTTPSyncHandlers) HandleSyncLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	limit := 100
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, e := strconv.Atoi(ls); e == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	entries, err := h.engine.store.ListSyncLog(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list sync log", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "sync_log_failed", "Failed to list sync log")
		return
	}
	if entries == nil {
		entries = []*SyncLogEntry{}
	}
	h.writeJSON(w, entries)
}

// writeCredentialError maps credential failures onto 401 and everything
// else onto 500
func (h *HTTPSyncHandlers) writeCredentialError(w http.ResponseWriter, userID, errorCode string, err error) {
	var reauthErr *ReauthRequiredError
	if errors.As(err, &reauthErr) {
		h.writeError(w, http.StatusUnauthorized, "reauth_required", err.Error())
		return
	}
	h.logger.Error("Sync operation failed", "user_id", userID, "error_code", errorCode, "error", err)
	h.writeError(w, http.StatusInternalServerError, errorCode, err.Error())
}

func (h *HTTPSyncHandlers) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
