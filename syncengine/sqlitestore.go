// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the single-user local-mode Store implementation. It
// provides the same contract as PgStore against an embedded database so
// the engine runs without a Postgres instance.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database file and runs schema
// migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite writes are serialized anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent callers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initializeSchema(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			user_id       TEXT     NOT NULL,
			provider      TEXT     NOT NULL,
			access_token  TEXT     NOT NULL,
			refresh_token TEXT     NOT NULL DEFAULT '',
			expires_at    DATETIME NOT NULL,
			scope         TEXT     NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL,
			PRIMARY KEY (user_id, provider)
		)`,

		`CREATE TABLE IF NOT EXISTS domains (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			name                 TEXT    NOT NULL,
			boring_but_important INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id                TEXT     PRIMARY KEY,
			user_id           TEXT     NOT NULL,
			title             TEXT     NOT NULL,
			description       TEXT     NOT NULL DEFAULT '',
			domain_id         INTEGER  REFERENCES domains(id),
			priority          INTEGER  NOT NULL DEFAULT 0,
			estimated_minutes INTEGER  NOT NULL DEFAULT 0,
			due_date          DATETIME,
			status            TEXT     NOT NULL DEFAULT 'pending',
			recurrence_rule   TEXT     NOT NULL DEFAULT '',
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL,
			completed_at      DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_user_idx ON tasks(user_id)`,

		`CREATE TABLE IF NOT EXISTS task_sync_metadata (
			task_id           TEXT    PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
			user_id           TEXT    NOT NULL,
			remote_task_id    TEXT,
			remote_event_id   TEXT,
			is_fixed_schedule INTEGER NOT NULL DEFAULT 0,
			last_sync_time    DATETIME,
			sync_status       TEXT    NOT NULL DEFAULT 'pending'
				CHECK (sync_status IN ('pending','synced','failed')),
			sync_error        TEXT,
			retry_count       INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS tsm_user_status_idx ON task_sync_metadata(user_id, sync_status)`,

		`CREATE TABLE IF NOT EXISTS sync_log (
			id          INTEGER  PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT     NOT NULL,
			operation   TEXT     NOT NULL
				CHECK (operation IN ('import','export-create','export-update','export-complete')),
			entity_type TEXT     NOT NULL CHECK (entity_type IN ('task','event')),
			entity_id   TEXT,
			status      TEXT     NOT NULL CHECK (status IN ('success','failure')),
			details     TEXT     NOT NULL DEFAULT '',
			ts          DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sync_log_user_idx ON sync_log(user_id, id)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("sqlite migration %d failed: %w", i+1, err)
		}
	}
	s.logger.Info("SQLite schema initialized", "migrations", len(migrations))
	return nil
}

// --- credential records ---

func (s *SQLiteStore) GetTokenRecord(ctx context.Context, userID, provider string) (*OAuthTokenRecord, error) {
	rec := &OAuthTokenRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at
		FROM oauth_tokens
		WHERE user_id = ? AND provider = ?`,
		userID, provider).Scan(
		&rec.UserID, &rec.Provider, &rec.AccessToken, &rec.RefreshToken,
		&rec.ExpiresAt, &rec.Scope, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) UpsertTokenRecord(ctx context.Context, rec *OAuthTokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens
			(user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at    = excluded.expires_at,
			scope         = excluded.scope,
			updated_at    = excluded.updated_at`,
		rec.UserID, rec.Provider, rec.AccessToken, rec.RefreshToken,
		rec.ExpiresAt, rec.Scope, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert token record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTokenRecord(ctx context.Context, userID, provider string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?`,
		userID, provider); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// --- tasks ---

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	task := &Task{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, COALESCE(domain_id, 0), priority,
			estimated_minutes, due_date, status, recurrence_rule, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = ?`,
		taskID).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.DomainID, &task.Priority,
		&task.EstimatedMinutes, &task.DueDate, &task.Status, &task.RecurrenceRule,
		&task.CreatedAt, &task.UpdatedAt, &task.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	var domainID any
	if task.DomainID != 0 {
		domainID = task.DomainID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, user_id, title, description, domain_id, priority, estimated_minutes,
			 due_date, status, recurrence_rule, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Title, task.Description, domainID, task.Priority,
		task.EstimatedMinutes, task.DueDate, task.Status, task.RecurrenceRule,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTaskMirror(ctx context.Context, taskID, title string, dueDate *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, due_date = ?, updated_at = ? WHERE id = ?`,
		title, dueDate, time.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mirror task fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- domains ---

func (s *SQLiteStore) CreateDomain(ctx context.Context, domain *Domain) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (name, boring_but_important) VALUES (?, ?)`,
		domain.Name, domain.BoringButImportant)
	if err != nil {
		return 0, fmt.Errorf("failed to insert domain: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read domain id: %w", err)
	}
	domain.ID = id
	return id, nil
}

func (s *SQLiteStore) GetDomain(ctx context.Context, domainID int64) (*Domain, error) {
	domain := &Domain{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, boring_but_important FROM domains WHERE id = ?`,
		domainID).Scan(&domain.ID, &domain.Name, &domain.BoringButImportant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query domain: %w", err)
	}
	return domain, nil
}

// --- sync metadata ---

const sqliteMetadataColumns = `task_id, user_id, remote_task_id, remote_event_id,
	is_fixed_schedule, last_sync_time, sync_status, sync_error, retry_count`

func (s *SQLiteStore) scanMetadataRow(row *sql.Row) (*TaskSyncMetadata, error) {
	md := &TaskSyncMetadata{}
	err := row.Scan(
		&md.TaskID, &md.UserID, &md.RemoteTaskID, &md.RemoteEventID,
		&md.IsFixedSchedule, &md.LastSyncTime, &md.SyncStatus, &md.SyncError, &md.RetryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
	}
	return md, nil
}

func (s *SQLiteStore) GetTaskMetadata(ctx context.Context, taskID string) (*TaskSyncMetadata, error) {
	return s.scanMetadataRow(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteMetadataColumns+` FROM task_sync_metadata WHERE task_id = ?`,
		taskID))
}

func (s *SQLiteStore) FindMetadataByRemoteID(ctx context.Context, userID, remoteID string, isEvent bool) (*TaskSyncMetadata, error) {
	column := "remote_task_id"
	if isEvent {
		column = "remote_event_id"
	}
	return s.scanMetadataRow(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteMetadataColumns+` FROM task_sync_metadata
		 WHERE user_id = ? AND `+column+` = ?`,
		userID, remoteID))
}

func (s *SQLiteStore) UpsertTaskMetadata(ctx context.Context, md *TaskSyncMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_sync_metadata
			(task_id, user_id, remote_task_id, remote_event_id, is_fixed_schedule,
			 last_sync_time, sync_status, sync_error, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			remote_task_id    = excluded.remote_task_id,
			remote_event_id   = excluded.remote_event_id,
			is_fixed_schedule = excluded.is_fixed_schedule,
			last_sync_time    = excluded.last_sync_time,
			sync_status       = excluded.sync_status,
			sync_error        = excluded.sync_error,
			retry_count       = excluded.retry_count`,
		md.TaskID, md.UserID, md.RemoteTaskID, md.RemoteEventID, md.IsFixedSchedule,
		md.LastSyncTime, md.SyncStatus, md.SyncError, md.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFailedMetadata(ctx context.Context, userID string) ([]*TaskSyncMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteMetadataColumns+` FROM task_sync_metadata
		 WHERE user_id = ? AND sync_status = 'failed'
		 ORDER BY task_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed metadata: %w", err)
	}
	defer rows.Close()

	var result []*TaskSyncMetadata
	for rows.Next() {
		md := &TaskSyncMetadata{}
		if err := rows.Scan(
			&md.TaskID, &md.UserID, &md.RemoteTaskID, &md.RemoteEventID,
			&md.IsFixedSchedule, &md.LastSyncTime, &md.SyncStatus, &md.SyncError, &md.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
		}
		result = append(result, md)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) CountPendingMetadata(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_sync_metadata
		WHERE user_id = ? AND sync_status <> 'synced'`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending metadata: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) LatestSyncTime(ctx context.Context, userID string) (*time.Time, error) {
	// A plain column read keeps the DATETIME declared type, unlike MAX()
	var last time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sync_time FROM task_sync_metadata
		WHERE user_id = ? AND last_sync_time IS NOT NULL
		ORDER BY last_sync_time DESC
		LIMIT 1`,
		userID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sync time: %w", err)
	}
	return &last, nil
}

// --- sync log ---

func (s *SQLiteStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (user_id, operation, entity_type, entity_id, status, details, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Operation, entry.EntityType, entry.EntityID,
		entry.Status, entry.Details, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append sync log entry: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListSyncLog(ctx context.Context, userID string, limit int) ([]*SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, operation, entity_type, entity_id, status, details, ts
		FROM sync_log
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var result []*SyncLogEntry
	for rows.Next() {
		entry := &SyncLogEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Operation, &entry.EntityType,
			&entry.EntityID, &entry.Status, &entry.Details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
