// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"time"
)

// Store is the transactional storage collaborator the engine runs against.
// Implementations must be safe for concurrent use and atomic per row.
// Lookups return ErrNotFound when no record exists.
//
// Two implementations ship with the engine: PgStore (Postgres via pgx)
// and SQLiteStore (single-user local mode). Tests substitute an
// in-memory fake implementing the same interface.
type Store interface {
	// Credential records, one per (userID, provider)
	GetTokenRecord(ctx context.Context, userID, provider string) (*OAuthTokenRecord, error)
	UpsertTokenRecord(ctx context.Context, rec *OAuthTokenRecord) error
	DeleteTokenRecord(ctx context.Context, userID, provider string) error

	// Collaborator task surface. UpdateTaskMirror touches only the fields
	// an import is defined to change (title, due date).
	GetTask(ctx context.Context, taskID string) (*Task, error)
	CreateTask(ctx context.Context, task *Task) error
	UpdateTaskMirror(ctx context.Context, taskID, title string, dueDate *time.Time) error

	// Collaborator domain surface
	CreateDomain(ctx context.Context, domain *Domain) (int64, error)
	GetDomain(ctx context.Context, domainID int64) (*Domain, error)

	// Sync metadata, zero or one row per task
	GetTaskMetadata(ctx context.Context, taskID string) (*TaskSyncMetadata, error)
	FindMetadataByRemoteID(ctx context.Context, userID, remoteID string, isEvent bool) (*TaskSyncMetadata, error)
	UpsertTaskMetadata(ctx context.Context, md *TaskSyncMetadata) error
	ListFailedMetadata(ctx context.Context, userID string) ([]*TaskSyncMetadata, error)
	CountPendingMetadata(ctx context.Context, userID string) (int, error)
	LatestSyncTime(ctx context.Context, userID string) (*time.Time, error)

	// Append-only sync log
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
	ListSyncLog(ctx context.Context, userID string, limit int) ([]*SyncLogEntry, error)
}
