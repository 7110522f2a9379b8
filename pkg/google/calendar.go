package google

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/larkalarm/pkg/model"
)

// CalendarClient mirrors Lark tasks into one Google calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *EventIndex
	logger     *log.Logger
	now        func() time.Time
}

func NewCalendarClient(srv *calendar.Service, calendarID string, idx *EventIndex, logger *log.Logger) *CalendarClient {
	if logger == nil {
		logger = log.Default()
	}
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, logger: logger, now: time.Now}
}

// Mirror upserts an event for every task with a deadline and saves the
// index. Individual failures are logged and do not stop the pass. Index
// entries for tasks no longer in the list are dropped; their events stay.
func (c *CalendarClient) Mirror(ctx context.Context, tasks []model.Task) error {
	now := c.now()
	synced := 0
	open := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		open[task.GUID] = true
		if !task.HasDue() {
			continue
		}
		if _, err := c.SyncEvent(ctx, task, now); err != nil {
			c.logger.Warn("could not mirror task", "guid", task.GUID, "err", err)
			continue
		}
		synced++
	}
	if c.index == nil {
		c.logger.Debug("calendar mirror done", "events", synced)
		return nil
	}
	for _, guid := range c.index.GUIDs() {
		if !open[guid] {
			c.index.Remove(guid)
		}
	}
	c.logger.Debug("calendar mirror done", "events", synced, "indexed", c.index.Len())
	return c.index.Save()
}

// SyncEvent creates the event for task or patches the existing one.
func (c *CalendarClient) SyncEvent(ctx context.Context, task model.Task, now time.Time) (*calendar.Event, error) {
	event, err := ConvertTask(task, now)
	if err != nil {
		return nil, err
	}

	var existing *calendar.Event
	if c.index != nil {
		if eventID := c.index.Get(task.GUID); eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err != nil || existing.Status == "cancelled" {
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = c.GetEventByGUID(ctx, task.GUID)
		if err != nil {
			return nil, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch, err := EventNeedsUpdate(existing, event)
		if err != nil {
			return nil, fmt.Errorf("could not compare task with its calendar event: %w", err)
		}
		if patch == nil {
			c.setIndex(task.GUID, existing.Id)
			return existing, nil
		}
		updated, err := c.PatchEvent(ctx, existing.Id, patch)
		if err != nil {
			return nil, err
		}
		c.setIndex(task.GUID, updated.Id)
		return updated, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	c.setIndex(task.GUID, created.Id)
	return created, nil
}

func (c *CalendarClient) setIndex(guid, eventID string) {
	if c.index != nil {
		c.index.Set(guid, eventID)
	}
}

func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}

// GetEventByGUID searches for an event carrying the task GUID.
func (c *CalendarClient) GetEventByGUID(ctx context.Context, guid string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", PropertyGUID, guid)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
