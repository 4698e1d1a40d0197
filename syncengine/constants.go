// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

// Provider identifiers
const (
	ProviderGoogle = "google"
)

// Sync status values for task sync metadata
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// Operation constants for sync log entries
const (
	OpImport         = "import"
	OpExportCreate   = "export-create"
	OpExportUpdate   = "export-update"
	OpExportComplete = "export-complete"
)

// Entity type constants for sync log entries
const (
	EntityTask  = "task"
	EntityEvent = "event"
)

// Outcome constants for sync log entries
const (
	LogStatusSuccess = "success"
	LogStatusFailure = "failure"
)

// Task lifecycle states the engine cares about (owned by the CRUD layer)
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)
