// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SyncEngine provides the core synchronization functionality: import from
// the remote provider, export of local task lifecycle events, retry of
// failed operations, and status reporting. All operations are invoked
// synchronously by a caller and run to completion or failure; there are
// no background loops.
type SyncEngine struct {
	store    Store
	tokens   *TokenManager
	calendar ProviderClient
	tasks    ProviderClient
	logger   *slog.Logger
	config   *EngineConfig

	// Serializes sync operations per task id
	taskLocks *keyedMutex

	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// EngineConfig holds configuration for the sync engine
type EngineConfig struct {
	Provider             string // Provider identifier, defaults to "google"
	ExportCalendarEvents bool   // Mirror due-dated tasks as calendar events
}

// NewSyncEngine creates a sync engine from a store, token manager and the
// two provider clients. Pass nil config for defaults.
func NewSyncEngine(store Store, tokens *TokenManager, calendarClient, tasksClient ProviderClient, config *EngineConfig, logger *slog.Logger) *SyncEngine {
	if config == nil {
		config = &EngineConfig{
			Provider:             ProviderGoogle,
			ExportCalendarEvents: true,
		}
	}
	if config.Provider == "" {
		config.Provider = ProviderGoogle
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncEngine{
		store:     store,
		tokens:    tokens,
		calendar:  calendarClient,
		tasks:     tasksClient,
		logger:    logger,
		config:    config,
		taskLocks: newKeyedMutex(),
		now:       time.Now,
	}
}

// Tokens returns the engine's token manager so callers can drive the
// consent flow directly
func (s *SyncEngine) Tokens() *TokenManager {
	return s.tokens
}

// Close marks the engine as shut down. Safe to call multiple times.
// The store lifecycle belongs to the caller.
func (s *SyncEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("Sync engine shut down")
	return nil
}

func (s *SyncEngine) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New("sync engine has been closed")
	}
	return nil
}

// appendLog writes a sync log entry. Log append failures are reported but
// never abort the operation that produced them.
func (s *SyncEngine) appendLog(ctx context.Context, userID, operation, entityType string, entityID *string, status, details string) {
	entry := &SyncLogEntry{
		UserID:     userID,
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     status,
		Details:    details,
		Timestamp:  s.now(),
	}
	if err := s.store.AppendSyncLog(ctx, entry); err != nil {
		s.logger.Warn("Failed to append sync log entry",
			"user_id", userID, "operation", operation, "error", err)
	}
}
