// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"time"
)

// Database entity models shared by the Postgres and SQLite stores

// OAuthTokenRecord represents a row in the oauth_tokens table.
// At most one record exists per (user_id, provider).
type OAuthTokenRecord struct {
	UserID       string    `db:"user_id"`       // Owning user
	Provider     string    `db:"provider"`      // Provider identifier (e.g. "google")
	AccessToken  string    `db:"access_token"`  // Short-lived access token
	RefreshToken string    `db:"refresh_token"` // Long-lived refresh token
	ExpiresAt    time.Time `db:"expires_at"`    // Absolute access token expiry
	Scope        string    `db:"scope"`         // Granted scopes, space-separated
	CreatedAt    time.Time `db:"created_at"`    // First authorization time
	UpdatedAt    time.Time `db:"updated_at"`    // Last refresh time
}

// TaskSyncMetadata represents a row in the task_sync_metadata table.
// Exactly zero or one row exists per task; a synced row carries at least
// one non-null remote identifier.
type TaskSyncMetadata struct {
	TaskID          string     `db:"task_id"`           // Owning task (unique)
	UserID          string     `db:"user_id"`           // Owning user
	RemoteTaskID    *string    `db:"remote_task_id"`    // Provider tasks-item id
	RemoteEventID   *string    `db:"remote_event_id"`   // Provider calendar-event id
	IsFixedSchedule bool       `db:"is_fixed_schedule"` // True if mirrored as a calendar event
	LastSyncTime    *time.Time `db:"last_sync_time"`    // Last successful sync
	SyncStatus      string     `db:"sync_status"`       // pending, synced, failed
	SyncError       *string    `db:"sync_error"`        // Last failure message
	RetryCount      int        `db:"retry_count"`       // Failed retry attempts since last success
}

// SyncLogEntry represents a row in the append-only sync_log table.
// Entries are immutable once written; current status is derived by
// scanning recent entries, never by mutating history.
type SyncLogEntry struct {
	ID         int64     `db:"id" json:"id"`                   // BIGSERIAL PRIMARY KEY
	UserID     string    `db:"user_id" json:"user_id"`         // Owning user
	Operation  string    `db:"operation" json:"operation"`     // import, export-create, export-update, export-complete
	EntityType string    `db:"entity_type" json:"entity_type"` // task or event
	EntityID   *string   `db:"entity_id" json:"entity_id"`     // Remote or local identifier
	Status     string    `db:"status" json:"status"`           // success or failure
	Details    string    `db:"details" json:"details"`         // Free-form diagnostic payload
	Timestamp  time.Time `db:"ts" json:"timestamp"`            // When the attempt happened
}

// Task is the collaborator-owned task record. The engine reads these and
// writes back only status/completion fields plus mirrored import fields.
type Task struct {
	ID               string     `db:"id"`                // UUID as string
	UserID           string     `db:"user_id"`           // Owning user
	Title            string     `db:"title"`             // Task title
	Description      string     `db:"description"`       // Free-form notes
	DomainID         int64      `db:"domain_id"`         // Owning life domain
	Priority         int        `db:"priority"`          // Planner priority
	EstimatedMinutes int        `db:"estimated_minutes"` // Planner estimate
	DueDate          *time.Time `db:"due_date"`          // Optional due/scheduled time
	Status           string     `db:"status"`            // pending, completed, ...
	RecurrenceRule   string     `db:"recurrence_rule"`   // Planner recurrence (opaque to sync)
	CreatedAt        time.Time  `db:"created_at"`        // Creation time
	UpdatedAt        time.Time  `db:"updated_at"`        // Last local modification
	CompletedAt      *time.Time `db:"completed_at"`      // Completion time
}

// Domain is the collaborator-owned life-domain record
type Domain struct {
	ID                 int64  `db:"id"`                   // BIGSERIAL PRIMARY KEY
	Name               string `db:"name"`                 // Display name
	BoringButImportant bool   `db:"boring_but_important"` // Planner BBI flag
}
