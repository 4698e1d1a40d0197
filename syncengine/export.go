// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
)

// Export orchestration. Each operation is idempotent with respect to its
// task's sync metadata row, serialized per task id, and appends exactly
// one sync log entry before returning. Remote failures are recorded in
// metadata and swallowed at this boundary - the caller inspects sync
// status separately. Only credential-acquisition and store errors
// propagate, since no useful partial work is possible without them.

// ExportNewTask pushes a newly created task to the provider: a tasks-list
// item always, plus a calendar event when the task has a due date. If the
// task already carries a metadata row with remote linkage, the call is
// treated as a modification instead.
func (s *SyncEngine) ExportNewTask(ctx context.Context, userID, taskID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	unlock := s.taskLocks.Lock(taskID)
	defer unlock()

	md, err := s.store.GetTaskMetadata(ctx, taskID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.exportCreateLocked(ctx, userID, taskID, nil)
	case err != nil:
		return fmt.Errorf("failed to load sync metadata: %w", err)
	case md.RemoteTaskID == nil && md.RemoteEventID == nil:
		// A prior create failed before any remote id was issued
		return s.exportCreateLocked(ctx, userID, taskID, md)
	default:
		return s.exportModificationLocked(ctx, userID, taskID)
	}
}

// ExportTaskModification pushes updated fields to whichever remote
// resources are linked. A task never exported has nothing to update
// remotely, so a missing metadata row is a silent no-op.
func (s *SyncEngine) ExportTaskModification(ctx context.Context, userID, taskID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	unlock := s.taskLocks.Lock(taskID)
	defer unlock()

	return s.exportModificationLocked(ctx, userID, taskID)
}

// ExportTaskCompletion marks the linked remote tasks-item completed. It
// never deletes the remote item and does not alter linkage. Missing
// metadata is a silent no-op, as with modifications.
func (s *SyncEngine) ExportTaskCompletion(ctx context.Context, userID, taskID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	unlock := s.taskLocks.Lock(taskID)
	defer unlock()

	return s.exportCompletionLocked(ctx, userID, taskID)
}

// exportCreateLocked performs the remote creates for a task. md is the
// pre-existing metadata row when a failed create is being replayed, nil
// on the first attempt. Caller holds the task lock.
func (s *SyncEngine) exportCreateLocked(ctx context.Context, userID, taskID string, md *TaskSyncMetadata) error {
	token, err := s.tokens.GetLiveCredential(ctx, userID, s.config.Provider)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	rowExisted := md != nil
	if md == nil {
		md = &TaskSyncMetadata{
			TaskID:     taskID,
			UserID:     userID,
			SyncStatus: SyncStatusPending,
		}
	}

	item := remoteItemFromTask(task)

	remoteTaskID, err := s.tasks.Create(ctx, token, item)
	if err != nil {
		s.recordExportFailure(ctx, md, rowExisted, OpExportCreate, EntityTask, err)
		return nil
	}
	md.RemoteTaskID = &remoteTaskID

	if task.DueDate != nil && s.config.ExportCalendarEvents {
		eventID, err := s.calendar.Create(ctx, token, item)
		if err != nil {
			// Keep the tasks-item linkage; the calendar half is retried later
			s.recordExportFailure(ctx, md, rowExisted, OpExportCreate, EntityEvent, err)
			return nil
		}
		md.RemoteEventID = &eventID
		md.IsFixedSchedule = true
	}

	s.recordExportSuccess(ctx, md, OpExportCreate)
	return nil
}

// exportModificationLocked pushes current task fields to the linked
// remote resources. It also backfills a missing calendar event when a due
// date has appeared since the original export. Caller holds the task lock.
func (s *SyncEngine) exportModificationLocked(ctx context.Context, userID, taskID string) error {
	md, err := s.store.GetTaskMetadata(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load sync metadata: %w", err)
	}
	if md.RemoteTaskID == nil && md.RemoteEventID == nil {
		// The original create never landed; there is nothing remote to
		// update, so replay the create instead
		return s.exportCreateLocked(ctx, userID, taskID, md)
	}

	token, err := s.tokens.GetLiveCredential(ctx, userID, s.config.Provider)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	item := remoteItemFromTask(task)
	entityType := EntityTask
	var exportErr error

	if md.RemoteTaskID != nil {
		exportErr = s.tasks.Update(ctx, token, *md.RemoteTaskID, item)
	}
	if exportErr == nil && md.RemoteEventID != nil {
		if err := s.calendar.Update(ctx, token, *md.RemoteEventID, item); err != nil {
			exportErr = err
			entityType = EntityEvent
		}
	}
	if exportErr == nil && md.RemoteEventID == nil && task.DueDate != nil && s.config.ExportCalendarEvents {
		eventID, err := s.calendar.Create(ctx, token, item)
		if err != nil {
			exportErr = err
			entityType = EntityEvent
		} else {
			md.RemoteEventID = &eventID
			md.IsFixedSchedule = true
		}
	}

	if exportErr != nil {
		s.recordExportFailure(ctx, md, true, OpExportUpdate, entityType, exportErr)
		return nil
	}

	s.recordExportSuccess(ctx, md, OpExportUpdate)
	return nil
}

// exportCompletionLocked marks the linked remote tasks-item completed.
// Caller holds the task lock.
func (s *SyncEngine) exportCompletionLocked(ctx context.Context, userID, taskID string) error {
	md, err := s.store.GetTaskMetadata(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load sync metadata: %w", err)
	}
	if md.RemoteTaskID == nil && md.RemoteEventID == nil {
		// Nothing ever landed remotely; the row stays as it is until the
		// retry sweep replays the create
		return nil
	}

	token, err := s.tokens.GetLiveCredential(ctx, userID, s.config.Provider)
	if err != nil {
		return err
	}

	if md.RemoteTaskID != nil {
		if err := s.tasks.Complete(ctx, token, *md.RemoteTaskID); err != nil {
			s.recordExportFailure(ctx, md, true, OpExportComplete, EntityTask, err)
			return nil
		}
	}

	s.recordExportSuccess(ctx, md, OpExportComplete)
	return nil
}

// recordExportFailure marks the metadata row failed and appends the log
// entry. retry_count increments only when the row existed before the
// failing attempt; a first-ever export failure leaves it at zero.
func (s *SyncEngine) recordExportFailure(ctx context.Context, md *TaskSyncMetadata, rowExisted bool, operation, entityType string, cause error) {
	msg := cause.Error()
	md.SyncStatus = SyncStatusFailed
	md.SyncError = &msg
	if rowExisted {
		md.RetryCount++
	}

	if err := s.store.UpsertTaskMetadata(ctx, md); err != nil {
		s.logger.Error("Failed to record export failure",
			"task_id", md.TaskID, "operation", operation, "error", err)
	}
	s.appendLog(ctx, md.UserID, operation, entityType, &md.TaskID, LogStatusFailure, msg)

	s.logger.Warn("Export failed",
		"task_id", md.TaskID, "operation", operation, "retry_count", md.RetryCount, "error", cause)
}

// recordExportSuccess marks the metadata row synced, advances the sync
// time, resets retry_count and appends the log entry.
func (s *SyncEngine) recordExportSuccess(ctx context.Context, md *TaskSyncMetadata, operation string) {
	now := s.now()
	md.SyncStatus = SyncStatusSynced
	md.SyncError = nil
	md.RetryCount = 0
	md.LastSyncTime = &now

	if err := s.store.UpsertTaskMetadata(ctx, md); err != nil {
		s.logger.Error("Failed to record export success",
			"task_id", md.TaskID, "operation", operation, "error", err)
	}
	s.appendLog(ctx, md.UserID, operation, EntityTask, &md.TaskID, LogStatusSuccess, "")
}

// remoteItemFromTask maps the collaborator task onto the provider DTO
func remoteItemFromTask(task *Task) *RemoteItem {
	return &RemoteItem{
		Title:     task.Title,
		Notes:     task.Description,
		DueDate:   task.DueDate,
		Completed: task.Status == TaskStatusCompleted,
	}
}
