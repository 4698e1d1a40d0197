// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
)

// RetryFailedOperations scans sync metadata for failed rows and replays
// each through the export path implied by its last known intent: no
// remote ids means the original create never landed, a completed task
// re-runs completion, anything else is a modification.
//
// This is a manually triggered recovery action. There is no internal
// retry ceiling or backoff loop; the cadence belongs to the caller.
func (s *SyncEngine) RetryFailedOperations(ctx context.Context, userID string) (*RetryResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	rows, err := s.store.ListFailedMetadata(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed operations: %w", err)
	}

	result := &RetryResult{}
	for _, row := range rows {
		result.Attempted++

		if err := s.retryOne(ctx, userID, row.TaskID); err != nil {
			// Credential and store failures apply to every remaining row,
			// so the sweep stops here
			return result, err
		}

		fresh, err := s.store.GetTaskMetadata(ctx, row.TaskID)
		if err == nil && fresh.SyncStatus == SyncStatusSynced {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	s.logger.Info("Retry sweep finished",
		"user_id", userID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed)

	return result, nil
}

// retryOne replays a single failed row under the task lock. The row is
// re-read under the lock since it may have changed since the scan.
func (s *SyncEngine) retryOne(ctx context.Context, userID, taskID string) error {
	unlock := s.taskLocks.Lock(taskID)
	defer unlock()

	md, err := s.store.GetTaskMetadata(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load sync metadata: %w", err)
	}
	if md.SyncStatus != SyncStatusFailed {
		return nil
	}

	if md.RemoteTaskID == nil && md.RemoteEventID == nil {
		return s.exportCreateLocked(ctx, userID, taskID, md)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if task.Status == TaskStatusCompleted {
		return s.exportCompletionLocked(ctx, userID, taskID)
	}
	return s.exportModificationLocked(ctx, userID, taskID)
}
