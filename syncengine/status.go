// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
)

// GetSyncStatus reports connectivity and per-task sync health. Status
// reporting is itself a diagnostic surface, so this never returns an
// error: any internal failure degrades to a disconnected status.
func (s *SyncEngine) GetSyncStatus(ctx context.Context, userID string) *SyncStatus {
	status := &SyncStatus{
		FailedOperations: []FailedOperation{},
	}

	if err := s.checkClosed(); err != nil {
		status.ConnectionError = err.Error()
		return status
	}

	// hasTokens reflects record existence independent of validity
	_, err := s.store.GetTokenRecord(ctx, userID, s.config.Provider)
	switch {
	case err == nil:
		status.HasTokens = true
	case !errors.Is(err, ErrNotFound):
		s.logger.Warn("Failed to probe token record", "user_id", userID, "error", err)
		status.ConnectionError = err.Error()
		return status
	}

	if status.HasTokens {
		if _, err := s.tokens.GetLiveCredential(ctx, userID, s.config.Provider); err != nil {
			status.ConnectionError = err.Error()
		} else {
			status.IsConnected = true
		}
	}

	if pending, err := s.store.CountPendingMetadata(ctx, userID); err != nil {
		s.logger.Warn("Failed to count pending operations", "user_id", userID, "error", err)
	} else {
		status.PendingOperations = pending
	}

	if last, err := s.store.LatestSyncTime(ctx, userID); err != nil {
		s.logger.Warn("Failed to read latest sync time", "user_id", userID, "error", err)
	} else {
		status.LastSyncTime = last
	}

	failed, err := s.store.ListFailedMetadata(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to list failed operations", "user_id", userID, "error", err)
		return status
	}
	for _, md := range failed {
		op := FailedOperation{
			TaskID:       md.TaskID,
			RetryCount:   md.RetryCount,
			LastSyncTime: md.LastSyncTime,
		}
		if md.SyncError != nil {
			op.SyncError = *md.SyncError
		}
		status.FailedOperations = append(status.FailedOperations, op)
	}

	return status
}
