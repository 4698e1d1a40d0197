// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Duration of the calendar event created for a due-dated task
const eventDuration = time.Hour

// GoogleCalendarClient adapts the Google Calendar v3 API to the
// ProviderClient interface. Events are managed on the user's primary
// calendar.
type GoogleCalendarClient struct {
	calendarID string
}

// NewGoogleCalendarClient creates a calendar provider client
func NewGoogleCalendarClient() *GoogleCalendarClient {
	return &GoogleCalendarClient{calendarID: "primary"}
}

func (c *GoogleCalendarClient) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, classifyProviderError(fmt.Errorf("failed to create calendar service: %w", err))
	}
	return svc, nil
}

// Create creates a calendar event for the item and returns the event id
func (c *GoogleCalendarClient) Create(ctx context.Context, token *oauth2.Token, item *RemoteItem) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}

	event, err := svc.Events.Insert(c.calendarID, c.toEvent(item)).Context(ctx).Do()
	if err != nil {
		return "", classifyProviderError(err)
	}
	return event.Id, nil
}

// Update patches an existing calendar event
func (c *GoogleCalendarClient) Update(ctx context.Context, token *oauth2.Token, remoteID string, item *RemoteItem) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	if _, err := svc.Events.Patch(c.calendarID, remoteID, c.toEvent(item)).Context(ctx).Do(); err != nil {
		return classifyProviderError(err)
	}
	return nil
}

// Complete is not a calendar concept
func (c *GoogleCalendarClient) Complete(ctx context.Context, token *oauth2.Token, remoteID string) error {
	return &ProviderError{
		Class: ClassInvalidRequest,
		Err:   fmt.Errorf("calendar events cannot be completed"),
	}
}

// Delete removes a calendar event
func (c *GoogleCalendarClient) Delete(ctx context.Context, token *oauth2.Token, remoteID string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(c.calendarID, remoteID).Context(ctx).Do(); err != nil {
		return classifyProviderError(err)
	}
	return nil
}

// ListForDay fetches the given day's events from the primary calendar
func (c *GoogleCalendarClient) ListForDay(ctx context.Context, token *oauth2.Token, day time.Time) ([]RemoteItem, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	events, err := svc.Events.List(c.calendarID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, classifyProviderError(err)
	}

	items := make([]RemoteItem, 0, len(events.Items))
	for _, event := range events.Items {
		item := RemoteItem{
			ID:    event.Id,
			Title: event.Summary,
			Notes: event.Description,
		}
		if start := eventStart(event); start != nil {
			item.DueDate = start
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *GoogleCalendarClient) toEvent(item *RemoteItem) *calendar.Event {
	event := &calendar.Event{
		Summary:     item.Title,
		Description: item.Notes,
	}
	if item.DueDate != nil {
		event.Start = &calendar.EventDateTime{DateTime: item.DueDate.Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: item.DueDate.Add(eventDuration).Format(time.RFC3339)}
	}
	return event
}

func eventStart(event *calendar.Event) *time.Time {
	if event.Start == nil {
		return nil
	}
	if event.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, event.Start.DateTime); err == nil {
			return &t
		}
		return nil
	}
	if event.Start.Date != "" {
		if t, err := time.Parse("2006-01-02", event.Start.Date); err == nil {
			return &t
		}
	}
	return nil
}
