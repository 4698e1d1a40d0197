// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store implementation. All tables live in
// a dedicated lifesync schema; mutations are atomic per row through
// single-statement upserts.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgStore creates the store and runs schema migrations
func NewPgStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PgStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &PgStore{pool: pool, logger: logger}
	if err := store.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize lifesync schema: %w", err)
	}
	return store, nil
}

// initializeSchema creates the required tables if they don't exist
func (p *PgStore) initializeSchema(ctx context.Context) error {
	migrations := []string{
		// Dedicated schema for all engine-owned tables
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS lifesync`,

		// 1) OAuth credentials, one row per (user, provider)
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS lifesync.oauth_tokens (
			user_id       TEXT        NOT NULL,
			provider      TEXT        NOT NULL,
			access_token  TEXT        NOT NULL,
			refresh_token TEXT        NOT NULL DEFAULT '',
			expires_at    TIMESTAMPTZ NOT NULL,
			scope         TEXT        NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, provider)
		)`,

		// 2) Collaborator-owned life domains
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS lifesync.domains (
			id                   BIGSERIAL PRIMARY KEY,
			name                 TEXT    NOT NULL,
			boring_but_important BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		// 3) Collaborator-owned tasks
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS lifesync.tasks (
			id                UUID        PRIMARY KEY,
			user_id           TEXT        NOT NULL,
			title             TEXT        NOT NULL,
			description       TEXT        NOT NULL DEFAULT '',
			domain_id         BIGINT      REFERENCES lifesync.domains(id),
			priority          INT         NOT NULL DEFAULT 0,
			estimated_minutes INT         NOT NULL DEFAULT 0,
			due_date          TIMESTAMPTZ,
			status            TEXT        NOT NULL DEFAULT 'pending',
			recurrence_rule   TEXT        NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at      TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_user_idx ON lifesync.tasks(user_id)`,

		// 4) Per-task sync linkage and health; cascades with the owning task
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS lifesync.task_sync_metadata (
			task_id           UUID    PRIMARY KEY REFERENCES lifesync.tasks(id) ON DELETE CASCADE,
			user_id           TEXT    NOT NULL,
			remote_task_id    TEXT,
			remote_event_id   TEXT,
			is_fixed_schedule BOOLEAN NOT NULL DEFAULT FALSE,
			last_sync_time    TIMESTAMPTZ,
			sync_status       TEXT    NOT NULL DEFAULT 'pending'
				CHECK (sync_status IN ('pending','synced','failed')),
			sync_error        TEXT,
			retry_count       INT     NOT NULL DEFAULT 0 CHECK (retry_count >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS tsm_user_status_idx ON lifesync.task_sync_metadata(user_id, sync_status)`,
		`CREATE INDEX IF NOT EXISTS tsm_remote_task_idx ON lifesync.task_sync_metadata(user_id, remote_task_id)`,
		`CREATE INDEX IF NOT EXISTS tsm_remote_event_idx ON lifesync.task_sync_metadata(user_id, remote_event_id)`,

		// 5) Append-only audit trail; never updated, only inserted
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS lifesync.sync_log (
			id          BIGSERIAL   PRIMARY KEY,
			user_id     TEXT        NOT NULL,
			operation   TEXT        NOT NULL
				CHECK (operation IN ('import','export-create','export-update','export-complete')),
			entity_type TEXT        NOT NULL CHECK (entity_type IN ('task','event')),
			entity_id   TEXT,
			status      TEXT        NOT NULL CHECK (status IN ('success','failure')),
			details     TEXT        NOT NULL DEFAULT '',
			ts          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sync_log_user_idx ON lifesync.sync_log(user_id, id)`,
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for i, migration := range migrations {
			p.logger.Debug("Running lifesync migration", "step", i+1, "total", len(migrations))
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("lifesync migration %d failed: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("Lifesync schema initialized", "migrations", len(migrations))
	return nil
}

// --- credential records ---

func (p *PgStore) GetTokenRecord(ctx context.Context, userID, provider string) (*OAuthTokenRecord, error) {
	rec := &OAuthTokenRecord{}
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at
		FROM lifesync.oauth_tokens
		WHERE user_id = $1 AND provider = $2`,
		userID, provider).Scan(
		&rec.UserID, &rec.Provider, &rec.AccessToken, &rec.RefreshToken,
		&rec.ExpiresAt, &rec.Scope, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token record: %w", err)
	}
	return rec, nil
}

func (p *PgStore) UpsertTokenRecord(ctx context.Context, rec *OAuthTokenRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO lifesync.oauth_tokens
			(user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			scope         = EXCLUDED.scope,
			updated_at    = EXCLUDED.updated_at`,
		rec.UserID, rec.Provider, rec.AccessToken, rec.RefreshToken,
		rec.ExpiresAt, rec.Scope, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert token record: %w", err)
	}
	return nil
}

func (p *PgStore) DeleteTokenRecord(ctx context.Context, userID, provider string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM lifesync.oauth_tokens WHERE user_id = $1 AND provider = $2`,
		userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// --- tasks ---

func (p *PgStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	task := &Task{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, user_id, title, description, COALESCE(domain_id, 0), priority,
			estimated_minutes, due_date, status, recurrence_rule, created_at, updated_at, completed_at
		FROM lifesync.tasks
		WHERE id = $1`,
		taskID).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.DomainID, &task.Priority,
		&task.EstimatedMinutes, &task.DueDate, &task.Status, &task.RecurrenceRule,
		&task.CreatedAt, &task.UpdatedAt, &task.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

func (p *PgStore) CreateTask(ctx context.Context, task *Task) error {
	var domainID any
	if task.DomainID != 0 {
		domainID = task.DomainID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO lifesync.tasks
			(id, user_id, title, description, domain_id, priority, estimated_minutes,
			 due_date, status, recurrence_rule, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		task.ID, task.UserID, task.Title, task.Description, domainID, task.Priority,
		task.EstimatedMinutes, task.DueDate, task.Status, task.RecurrenceRule,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (p *PgStore) UpdateTaskMirror(ctx context.Context, taskID, title string, dueDate *time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE lifesync.tasks
		SET title = $2, due_date = $3, updated_at = now()
		WHERE id = $1`,
		taskID, title, dueDate)
	if err != nil {
		return fmt.Errorf("failed to mirror task fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- domains ---

func (p *PgStore) CreateDomain(ctx context.Context, domain *Domain) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO lifesync.domains (name, boring_but_important)
		VALUES ($1, $2)
		RETURNING id`,
		domain.Name, domain.BoringButImportant).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert domain: %w", err)
	}
	domain.ID = id
	return id, nil
}

func (p *PgStore) GetDomain(ctx context.Context, domainID int64) (*Domain, error) {
	domain := &Domain{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, boring_but_important FROM lifesync.domains WHERE id = $1`,
		domainID).Scan(&domain.ID, &domain.Name, &domain.BoringButImportant)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query domain: %w", err)
	}
	return domain, nil
}

// --- sync metadata ---

const metadataColumns = `task_id, user_id, remote_task_id, remote_event_id,
	is_fixed_schedule, last_sync_time, sync_status, sync_error, retry_count`

func scanMetadata(row pgx.Row) (*TaskSyncMetadata, error) {
	md := &TaskSyncMetadata{}
	err := row.Scan(
		&md.TaskID, &md.UserID, &md.RemoteTaskID, &md.RemoteEventID,
		&md.IsFixedSchedule, &md.LastSyncTime, &md.SyncStatus, &md.SyncError, &md.RetryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
	}
	return md, nil
}

func (p *PgStore) GetTaskMetadata(ctx context.Context, taskID string) (*TaskSyncMetadata, error) {
	return scanMetadata(p.pool.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM lifesync.task_sync_metadata WHERE task_id = $1`,
		taskID))
}

func (p *PgStore) FindMetadataByRemoteID(ctx context.Context, userID, remoteID string, isEvent bool) (*TaskSyncMetadata, error) {
	column := "remote_task_id"
	if isEvent {
		column = "remote_event_id"
	}
	return scanMetadata(p.pool.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM lifesync.task_sync_metadata
		 WHERE user_id = $1 AND `+column+` = $2`,
		userID, remoteID))
}

func (p *PgStore) UpsertTaskMetadata(ctx context.Context, md *TaskSyncMetadata) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO lifesync.task_sync_metadata
			(task_id, user_id, remote_task_id, remote_event_id, is_fixed_schedule,
			 last_sync_time, sync_status, sync_error, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO UPDATE SET
			remote_task_id    = EXCLUDED.remote_task_id,
			remote_event_id   = EXCLUDED.remote_event_id,
			is_fixed_schedule = EXCLUDED.is_fixed_schedule,
			last_sync_time    = EXCLUDED.last_sync_time,
			sync_status       = EXCLUDED.sync_status,
			sync_error        = EXCLUDED.sync_error,
			retry_count       = EXCLUDED.retry_count`,
		md.TaskID, md.UserID, md.RemoteTaskID, md.RemoteEventID, md.IsFixedSchedule,
		md.LastSyncTime, md.SyncStatus, md.SyncError, md.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata: %w", err)
	}
	return nil
}

func (p *PgStore) ListFailedMetadata(ctx context.Context, userID string) ([]*TaskSyncMetadata, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+metadataColumns+` FROM lifesync.task_sync_metadata
		 WHERE user_id = $1 AND sync_status = 'failed'
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

func (p *PgStore) CountPendingMetadata(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lifesync.task_sync_metadata
		WHERE user_id = $1 AND sync_status <> 'synced'`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending metadata: %w", err)
	}
	return count, nil
}

func (p *PgStore) LatestSyncTime(ctx context.Context, userID string) (*time.Time, error) {
	var last *time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT MAX(last_sync_time) FROM lifesync.task_sync_metadata WHERE user_id = $1`,
		userID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sync time: %w", err)
	}
	return last, nil
}

// --- sync log ---

func (p *PgStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO lifesync.sync_log (user_id, operation, entity_type, entity_id, status, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.UserID, entry.Operation, entry.EntityType, entry.EntityID,
		entry.Status, entry.Details, entry.Timestamp).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append sync log entry: %w", err)
	}
	return nil
}

func (p *PgStore) ListSyncLog(ctx context.Context, userID string, limit int) ([]*SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, operation, entity_type, entity_id, status, details, ts
		FROM lifesync.sync_log
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`,
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
