// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// memStore is an in-memory Store used by the engine tests. Per-method
// error fields inject failures for degradation paths.
type memStore struct {
	mu       sync.Mutex
	tokens   map[string]*OAuthTokenRecord // userID/provider
	tasks    map[string]*Task
	domains  map[int64]*Domain
	metadata map[string]*TaskSyncMetadata // taskID
	log      []*SyncLogEntry
	nextID   int64

	getTokenErr     error
	getMetadataErr  error
	upsertMetaErr   error
	countPendingErr error
	listFailedErr   error
	appendLogErr    error
}

func newMemStore() *memStore {
	return &memStore{
		tokens:   make(map[string]*OAuthTokenRecord),
		tasks:    make(map[string]*Task),
		domains:  make(map[int64]*Domain),
		metadata: make(map[string]*TaskSyncMetadata),
	}
}

func (m *memStore) GetTokenRecord(_ context.Context, userID, provider string) (*OAuthTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getTokenErr != nil {
		return nil, m.getTokenErr
	}
	rec, ok := m.tokens[userID+"/"+provider]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) UpsertTokenRecord(_ context.Context, rec *OAuthTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.tokens[rec.UserID+"/"+rec.Provider] = &cp
	return nil
}

func (m *memStore) DeleteTokenRecord(_ context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + provider
	if _, ok := m.tokens[key]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, key)
	return nil
}

func (m *memStore) GetTask(_ context.Context, taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *memStore) CreateTask(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memStore) UpdateTaskMirror(_ context.Context, taskID, title string, dueDate *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	task.Title = title
	task.DueDate = dueDate
	return nil
}

func (m *memStore) CreateDomain(_ context.Context, domain *Domain) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	domain.ID = m.nextID
	cp := *domain
	m.domains[domain.ID] = &cp
	return domain.ID, nil
}

func (m *memStore) GetDomain(_ context.Context, domainID int64) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[domainID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) GetTaskMetadata(_ context.Context, taskID string) (*TaskSyncMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getMetadataErr != nil {
		return nil, m.getMetadataErr
	}
	md, ok := m.metadata[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *md
	return &cp, nil
}

func (m *memStore) FindMetadataByRemoteID(_ context.Context, userID, remoteID string, isEvent bool) (*TaskSyncMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, md := range m.metadata {
		if md.UserID != userID {
			continue
		}
		if isEvent && md.RemoteEventID != nil && *md.RemoteEventID == remoteID {
			cp := *md
			return &cp, nil
		}
		if !isEvent && md.RemoteTaskID != nil && *md.RemoteTaskID == remoteID {
			cp := *md
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpsertTaskMetadata(_ context.Context, md *TaskSyncMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertMetaErr != nil {
		return m.upsertMetaErr
	}
	cp := *md
	m.metadata[md.TaskID] = &cp
	return nil
}

func (m *memStore) ListFailedMetadata(_ context.Context, userID string) ([]*TaskSyncMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listFailedErr != nil {
		return nil, m.listFailedErr
	}
	var out []*TaskSyncMetadata
	for _, md := range m.metadata {
		if md.UserID == userID && md.SyncStatus == SyncStatusFailed {
			cp := *md
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (m *memStore) CountPendingMetadata(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countPendingErr != nil {
		return 0, m.countPendingErr
	}
	n := 0
	for _, md := range m.metadata {
		if md.UserID == userID && md.SyncStatus != SyncStatusSynced {
			n++
		}
	}
	return n, nil
}

func (m *memStore) LatestSyncTime(_ context.Context, userID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, md := range m.metadata {
		if md.UserID != userID || md.LastSyncTime == nil {
			continue
		}
		if latest == nil || md.LastSyncTime.After(*latest) {
			t := *md.LastSyncTime
			latest = &t
		}
	}
	return latest, nil
}

func (m *memStore) AppendSyncLog(_ context.Context, entry *SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendLogErr != nil {
		return m.appendLogErr
	}
	m.nextID++
	cp := *entry
	cp.ID = m.nextID
	m.log = append(m.log, &cp)
	return nil
}

func (m *memStore) ListSyncLog(_ context.Context, userID string, limit int) ([]*SyncLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SyncLogEntry
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		if m.log[i].UserID == userID {
			cp := *m.log[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// logEntries returns the entries appended for a user, oldest first
func (m *memStore) logEntries(userID string) []*SyncLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SyncLogEntry
	for _, e := range m.log {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// fakeProvider is a scripted ProviderClient recording calls
type fakeProvider struct {
	mu sync.Mutex

	createID  string
	createErr error
	updateErr error

	completeErr error
	listItems   []RemoteItem
	listErr     error

	created   []RemoteItem
	updated   []string
	completed []string
}

func (f *fakeProvider) Create(_ context.Context, _ *oauth2.Token, item *RemoteItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, *item)
	return f.createID, nil
}

func (f *fakeProvider) Update(_ context.Context, _ *oauth2.Token, remoteID string, _ *RemoteItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, remoteID)
	return nil
}

func (f *fakeProvider) Complete(_ context.Context, _ *oauth2.Token, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, remoteID)
	return nil
}

func (f *fakeProvider) Delete(_ context.Context, _ *oauth2.Token, _ string) error {
	return nil
}

func (f *fakeProvider) ListForDay(_ context.Context, _ *oauth2.Token, _ time.Time) ([]RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listItems, nil
}

// --- shared test fixture ---

const (
	testUser = "user-1"
)

type testEnv struct {
	engine   *SyncEngine
	store    *memStore
	calendar *fakeProvider
	tasks    *fakeProvider
}

// newTestEnv builds an engine over the in-memory store with a valid
// stored credential so GetLiveCredential never hits the network.
func newTestEnv() *testEnv {
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store.tokens[testUser+"/"+ProviderGoogle] = &OAuthTokenRecord{
		UserID:       testUser,
		Provider:     ProviderGoogle,
		AccessToken:  "live-access",
		RefreshToken: "live-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	tokens := NewTokenManager(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
	}, store, logger)

	calendar := &fakeProvider{createID: "event-1"}
	tasks := &fakeProvider{createID: "task-remote-1"}

	engine := NewSyncEngine(store, tokens, calendar, tasks, nil, logger)
	return &testEnv{engine: engine, store: store, calendar: calendar, tasks: tasks}
}

func (e *testEnv) seedTask(taskID string, dueDate *time.Time) *Task {
	task := &Task{
		ID:        taskID,
		UserID:    testUser,
		Title:     "Write weekly report",
		DomainID:  1,
		DueDate:   dueDate,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	e.store.tasks[taskID] = task
	return task
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
