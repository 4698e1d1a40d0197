// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ImportFromGoogle pulls the current day's calendar events and incomplete
// tasks from the remote provider and materializes or updates the
// corresponding local tasks. Credential failures abort before any writes;
// everything after that is best-effort and partial-failure tolerant, with
// per-item failures aggregated into the result.
func (s *SyncEngine) ImportFromGoogle(ctx context.Context, userID string, defaultDomainID int64) (*ImportResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	token, err := s.tokens.GetLiveCredential(ctx, userID, s.config.Provider)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Conflicts: []string{},
		Errors:    []string{},
	}
	day := s.now()

	events, err := s.calendar.ListForDay(ctx, token, day)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list calendar events: %v", err))
	} else {
		for i := range events {
			s.importItem(ctx, userID, defaultDomainID, &events[i], true, result)
		}
	}

	items, err := s.tasks.ListForDay(ctx, token, day)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list tasks: %v", err))
	} else {
		for i := range items {
			s.importItem(ctx, userID, defaultDomainID, &items[i], false, result)
		}
	}

	s.logger.Info("Import finished",
		"user_id", userID,
		"events_imported", result.CalendarEventsImported,
		"tasks_imported", result.TasksImported,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors))

	return result, nil
}

// importItem reconciles one remote item against the local store. Any
// failure is recorded on the result and does not abort the caller's loop.
func (s *SyncEngine) importItem(ctx context.Context, userID string, defaultDomainID int64, item *RemoteItem, fromCalendar bool, result *ImportResult) {
	entityType := EntityTask
	if fromCalendar {
		entityType = EntityEvent
	}

	md, err := s.store.FindMetadataByRemoteID(ctx, userID, item.ID, fromCalendar)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.materializeRemoteItem(ctx, userID, defaultDomainID, item, fromCalendar); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", entityType, item.ID, err))
			s.appendLog(ctx, userID, OpImport, entityType, &item.ID, LogStatusFailure, err.Error())
			return
		}

	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", entityType, item.ID, err))
		s.appendLog(ctx, userID, OpImport, entityType, &item.ID, LogStatusFailure, err.Error())
		return

	default:
		conflict, err := s.mirrorRemoteItem(ctx, md, item, fromCalendar)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", entityType, item.ID, err))
			s.appendLog(ctx, userID, OpImport, entityType, &item.ID, LogStatusFailure, err.Error())
			return
		}
		if conflict {
			// Local copy diverged since last sync: never overwrite, report
			reason := fmt.Sprintf("conflict: task %s modified locally since last sync", md.TaskID)
			result.Conflicts = append(result.Conflicts, reason)
			s.appendLog(ctx, userID, OpImport, entityType, &item.ID, LogStatusFailure, reason)
			return
		}
	}

	if fromCalendar {
		result.CalendarEventsImported++
	} else {
		result.TasksImported++
	}
	s.appendLog(ctx, userID, OpImport, entityType, &item.ID, LogStatusSuccess, "")
}

// materializeRemoteItem creates a local task for a remote item that has no
// local counterpart, along with a synced metadata row.
func (s *SyncEngine) materializeRemoteItem(ctx context.Context, userID string, defaultDomainID int64, item *RemoteItem, fromCalendar bool) error {
	now := s.now()
	task := &Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       item.Title,
		Description: item.Notes,
		DomainID:    defaultDomainID,
		DueDate:     item.DueDate,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create local task: %w", err)
	}

	md := &TaskSyncMetadata{
		TaskID:          task.ID,
		UserID:          userID,
		IsFixedSchedule: fromCalendar,
		LastSyncTime:    &now,
		SyncStatus:      SyncStatusSynced,
	}
	if fromCalendar {
		md.RemoteEventID = &item.ID
	} else {
		md.RemoteTaskID = &item.ID
	}
	if err := s.store.UpsertTaskMetadata(ctx, md); err != nil {
		return fmt.Errorf("failed to create sync metadata: %w", err)
	}

	s.logger.Debug("Materialized remote item as local task",
		"user_id", userID, "task_id", task.ID, "remote_id", item.ID, "fixed_schedule", fromCalendar)
	return nil
}

// mirrorRemoteItem updates a linked local task's mirrored fields unless
// the local copy was modified since the last sync, in which case it
// reports a conflict and leaves the task untouched.
func (s *SyncEngine) mirrorRemoteItem(ctx context.Context, md *TaskSyncMetadata, item *RemoteItem, fromCalendar bool) (conflict bool, err error) {
	task, err := s.store.GetTask(ctx, md.TaskID)
	if err != nil {
		return false, fmt.Errorf("failed to load linked task: %w", err)
	}

	if md.LastSyncTime != nil && task.UpdatedAt.After(*md.LastSyncTime) {
		return true, nil
	}

	if err := s.store.UpdateTaskMirror(ctx, task.ID, item.Title, item.DueDate); err != nil {
		return false, fmt.Errorf("failed to mirror remote fields: %w", err)
	}

	now := s.now()
	if fromCalendar {
		// Never cleared here: a dual-linked task keeps its calendar shape
		// when the tasks-side mirror pass runs after the calendar pass
		md.IsFixedSchedule = true
	}
	md.LastSyncTime = &now
	md.SyncStatus = SyncStatusSynced
	md.SyncError = nil
	if err := s.store.UpsertTaskMetadata(ctx, md); err != nil {
		return false, fmt.Errorf("failed to advance sync metadata: %w", err)
	}
	return false, nil
}
