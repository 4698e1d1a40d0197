// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// newPgTestStore connects to the database named by DATABASE_URL, runs the
// migrations and truncates all engine tables. Tests are skipped when no
// database is configured so the suite stays runnable without Postgres.
func newPgTestStore(t *testing.T) *PgStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres store tests")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := NewPgStore(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		TRUNCATE lifesync.oauth_tokens, lifesync.sync_log,
			lifesync.task_sync_metadata, lifesync.tasks, lifesync.domains
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store
}

func TestPgStore_TokenRecordLifecycle(t *testing.T) {
	store := newPgTestStore(t)
	ctx := context.Background()

	_, err := store.GetTokenRecord(ctx, testUser, ProviderGoogle)
	require.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	rec := &OAuthTokenRecord{
		UserID:       testUser,
		Provider:     ProviderGoogle,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(time.Hour),
		Scope:        "calendar tasks",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.UpsertTokenRecord(ctx, rec))

	got, err := store.GetTokenRecord(ctx, testUser, ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, "refresh-1", got.RefreshToken)
	require.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

	rec.AccessToken = "access-2"
	require.NoError(t, store.UpsertTokenRecord(ctx, rec))
	got, err = store.GetTokenRecord(ctx, testUser, ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "access-2", got.AccessToken)

	require.NoError(t, store.DeleteTokenRecord(ctx, testUser, ProviderGoogle))
	_, err = store.GetTokenRecord(ctx, testUser, ProviderGoogle)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPgStore_TaskAndDomain(t *testing.T) {
	store := newPgTestStore(t)
	ctx := context.Background()

	domainID, err := store.CreateDomain(ctx, &Domain{Name: "Health", BoringButImportant: true})
	require.NoError(t, err)
	require.NotZero(t, domainID)

	domain, err := store.GetDomain(ctx, domainID)
	require.NoError(t, err)
	require.Equal(t, "Health", domain.Name)
	require.True(t, domain.BoringButImportant)

	now := time.Now().UTC().Truncate(time.Second)
	due := now.Add(24 * time.Hour)
	task := &Task{
		ID:        uuid.NewString(),
		UserID:    testUser,
		Title:     "Annual checkup",
		DomainID:  domainID,
		DueDate:   &due,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "Annual checkup", got.Title)
	require.Equal(t, domainID, got.DomainID)
	require.NotNil(t, got.DueDate)
	require.True(t, got.DueDate.Equal(due))

	newDue := due.Add(time.Hour)
	require.NoError(t, store.UpdateTaskMirror(ctx, task.ID, "Annual checkup (moved)", &newDue))
	got, err = store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "Annual checkup (moved)", got.Title)
	require.True(t, got.DueDate.Equal(newDue))

	require.ErrorIs(t, store.UpdateTaskMirror(ctx, uuid.NewString(), "x", nil), ErrNotFound)
}

func TestPgStore_MetadataQueries(t *testing.T) {
	store := newPgTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	seed := func() string {
		id := uuid.NewString()
		require.NoError(t, store.CreateTask(ctx, &Task{
			ID: id, UserID: testUser, Title: id,
			Status: TaskStatusPending, CreatedAt: now, UpdatedAt: now,
		}))
		return id
	}
	taskA := seed()
	taskB := seed()
	taskC := seed()

	syncedAt := now.Add(-time.Minute)
	require.NoError(t, store.UpsertTaskMetadata(ctx, &TaskSyncMetadata{
		TaskID: taskA, UserID: testUser,
		RemoteTaskID: strPtr("rt-a"), SyncStatus: SyncStatusSynced, LastSyncTime: &syncedAt,
	}))
	require.NoError(t, store.UpsertTaskMetadata(ctx, &TaskSyncMetadata{
		TaskID: taskB, UserID: testUser,
		RemoteEventID: strPtr("re-b"), IsFixedSchedule: true,
		SyncStatus: SyncStatusFailed, SyncError: strPtr("boom"), RetryCount: 2,
	}))
	require.NoError(t, store.UpsertTaskMetadata(ctx, &TaskSyncMetadata{
		TaskID: taskC, UserID: testUser, SyncStatus: SyncStatusPending,
	}))

	md, err := store.FindMetadataByRemoteID(ctx, testUser, "rt-a", false)
	require.NoError(t, err)
	require.Equal(t, taskA, md.TaskID)

	md, err = store.FindMetadataByRemoteID(ctx, testUser, "re-b", true)
	require.NoError(t, err)
	require.Equal(t, taskB, md.TaskID)
	require.True(t, md.IsFixedSchedule)

	_, err = store.FindMetadataByRemoteID(ctx, testUser, "rt-a", true)
	require.ErrorIs(t, err, ErrNotFound)

	failed, err := store.ListFailedMetadata(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, taskB, failed[0].TaskID)
	require.Equal(t, 2, failed[0].RetryCount)

	pending, err := store.CountPendingMetadata(ctx, testUser)
	require.NoError(t, err)
	require.Equal(t, 2, pending) // failed + pending rows

	last, err := store.LatestSyncTime(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, last.Equal(syncedAt))
}

func TestPgStore_LatestSyncTimeEmpty(t *testing.T) {
	store := newPgTestStore(t)

	last, err := store.LatestSyncTime(context.Background(), testUser)
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestPgStore_SyncLogAppendAndList(t *testing.T) {
	store := newPgTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, op := range []string{OpImport, OpExportCreate, OpExportUpdate} {
		entry := &SyncLogEntry{
			UserID:     testUser,
			Operation:  op,
			EntityType: EntityTask,
			EntityID:   strPtr("rt-1"),
			Status:     LogStatusSuccess,
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendSyncLog(ctx, entry))
		require.NotZero(t, entry.ID)
	}

	entries, err := store.ListSyncLog(ctx, testUser, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first
	require.Equal(t, OpExportUpdate, entries[0].Operation)
	require.Equal(t, OpExportCreate, entries[1].Operation)

	entries, err = store.ListSyncLog(ctx, "other-user", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
