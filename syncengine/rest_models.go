// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"time"
)

// Result and response models returned by the engine's operations and
// serialized by the HTTP surface

// ImportResult aggregates the outcome of one import invocation. Import is
// best-effort: per-item failures land in Conflicts/Errors instead of
// aborting the remaining items.
type ImportResult struct {
	CalendarEventsImported int      `json:"calendar_events_imported"` // Events materialized or mirrored
	TasksImported          int      `json:"tasks_imported"`           // Tasks materialized or mirrored
	Conflicts              []string `json:"conflicts"`                // Items skipped because the local copy diverged
	Errors                 []string `json:"errors"`                   // Per-item failures
}

// RetryResult aggregates the outcome of one retry sweep
type RetryResult struct {
	Attempted int `json:"attempted"` // Failed rows replayed
	Succeeded int `json:"succeeded"` // Rows now synced
	Failed    int `json:"failed"`    // Rows that failed again
}

// FailedOperation describes one failed sync metadata row in a status report
type FailedOperation struct {
	TaskID       string     `json:"task_id"`
	SyncError    string     `json:"sync_error,omitempty"`
	RetryCount   int        `json:"retry_count"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// SyncStatus is the diagnostic surface returned by GetSyncStatus. It is
// always produced, even when sync itself is broken.
type SyncStatus struct {
	IsConnected       bool              `json:"is_connected"`               // A live credential could be obtained
	HasTokens         bool              `json:"has_tokens"`                 // A credential record exists, valid or not
	ConnectionError   string            `json:"connection_error,omitempty"` // Why the connectivity probe failed
	LastSyncTime      *time.Time        `json:"last_sync_time,omitempty"`   // Most recent successful sync across tasks
	PendingOperations int               `json:"pending_operations"`         // Metadata rows not yet synced
	FailedOperations  []FailedOperation `json:"failed_operations"`          // Failed subset with stored error and retry count
}

// AuthURLResponse carries the provider consent URL
type AuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
