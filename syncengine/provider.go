// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// RemoteItem is the minimal DTO exchanged with provider clients. It covers
// both calendar events and tasks-list items.
type RemoteItem struct {
	ID        string     // Provider-issued opaque identifier
	Title     string     // Summary/title
	Notes     string     // Description/notes
	DueDate   *time.Time // Due or scheduled time
	Completed bool       // Tasks only
}

// ProviderClient is a stateless adapter over one remote resource
// collection (calendar events or tasks items), authenticated per call via
// a live credential from the TokenManager. These adapters are the only
// place network calls to the provider occur; every other component is
// mockable in tests by substituting this interface.
//
// All failures are reported as *ProviderError tagged with an
// HTTP-status-derived class.
type ProviderClient interface {
	// Create creates a remote resource and returns its provider-issued id
	Create(ctx context.Context, token *oauth2.Token, item *RemoteItem) (string, error)

	// Update pushes changed fields to an existing remote resource
	Update(ctx context.Context, token *oauth2.Token, remoteID string, item *RemoteItem) error

	// Complete marks a remote resource completed (tasks only; the calendar
	// variant rejects it as invalid_request)
	Complete(ctx context.Context, token *oauth2.Token, remoteID string) error

	// Delete removes the remote resource
	Delete(ctx context.Context, token *oauth2.Token, remoteID string) error

	// ListForDay fetches the items the import orchestrator reconciles:
	// the given day's events for calendars, incomplete items for tasks
	ListForDay(ctx context.Context, token *oauth2.Token, day time.Time) ([]RemoteItem, error)
}
