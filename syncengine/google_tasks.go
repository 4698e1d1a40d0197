// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

// GoogleTasksClient adapts the Google Tasks v1 API to the ProviderClient
// interface. Items are managed on the user's default task list.
type GoogleTasksClient struct {
	taskListID string
}

// NewGoogleTasksClient creates a tasks provider client
func NewGoogleTasksClient() *GoogleTasksClient {
	return &GoogleTasksClient{taskListID: "@default"}
}

func (c *GoogleTasksClient) service(ctx context.Context, token *oauth2.Token) (*tasks.Service, error) {
	svc, err := tasks.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("failed to create tasks service: %w", err))
	}
	return svc, nil
}

// Create inserts a tasks-list item and returns its id
func (c *GoogleTasksClient) Create(ctx context.Context, token *oauth2.Token, item *RemoteItem) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}

	created, err := svc.Tasks.Insert(c.taskListID, c.toTask(item)).Context(ctx).Do()
	if err != nil {
		return "", classifyProviderError(err)
	}
	return created.Id, nil
}

// Update patches an existing tasks-list item
func (c *GoogleTasksClient) Update(ctx context.Context, token *oauth2.Token, remoteID string, item *RemoteItem) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	task := c.toTask(item)
	task.Id = remoteID
	if _, err := svc.Tasks.Patch(c.taskListID, remoteID, task).Context(ctx).Do(); err != nil {
		return classifyProviderError(err)
	}
	return nil
}

// Complete marks the remote item completed without deleting it
func (c *GoogleTasksClient) Complete(ctx context.Context, token *oauth2.Token, remoteID string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	patch := &tasks.Task{Id: remoteID, Status: "completed"}
	if _, err := svc.Tasks.Patch(c.taskListID, remoteID, patch).Context(ctx).Do(); err != nil {
		return classifyProviderError(err)
	}
	return nil
}

// Delete removes a tasks-list item
func (c *GoogleTasksClient) Delete(ctx context.Context, token *oauth2.Token, remoteID string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	if err := svc.Tasks.Delete(c.taskListID, remoteID).Context(ctx).Do(); err != nil {
		return classifyProviderError(err)
	}
	return nil
}

// ListForDay fetches incomplete items from the default task list. The
// Tasks API has no useful day filter, so the import orchestrator gets all
// incomplete items regardless of day.
func (c *GoogleTasksClient) ListForDay(ctx context.Context, token *oauth2.Token, _ time.Time) ([]RemoteItem, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	list, err := svc.Tasks.List(c.taskListID).ShowCompleted(false).Context(ctx).Do()
	if err != nil {
		return nil, classifyProviderError(err)
	}

	items := make([]RemoteItem, 0, len(list.Items))
	for _, task := range list.Items {
		item := RemoteItem{
			ID:        task.Id,
			Title:     task.Title,
			Notes:     task.Notes,
			Completed: task.Status == "completed",
		}
		if task.Due != "" {
			if due, err := time.Parse(time.RFC3339, task.Due); err == nil {
				item.DueDate = &due
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *GoogleTasksClient) toTask(item *RemoteItem) *tasks.Task {
	task := &tasks.Task{
		Title: item.Title,
		Notes: item.Notes,
	}
	if item.DueDate != nil {
		task.Due = item.DueDate.UTC().Format(time.RFC3339)
	}
	return task
}
