package google

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/larkalarm/pkg/model"
	"github.com/harrisonrobin/larkalarm/pkg/surface"
)

// PropertyGUID is the private extended property linking an event to its task.
const PropertyGUID = "lark_guid"

const eventDuration = 30 * time.Minute

// Calendar color ids per alarm level.
var levelColors = map[surface.Level]string{
	surface.LevelNormal:  "1",  // lavender
	surface.LevelWarning: "5",  // banana
	surface.LevelOverdue: "11", // tomato
}

// ConvertTask builds the calendar event mirroring task at now. Tasks without
// a deadline cannot be placed on a calendar.
func ConvertTask(task model.Task, now time.Time) (*calendar.Event, error) {
	if !task.HasDue() {
		return nil, fmt.Errorf("task has no due date: %s", task.GUID)
	}

	level := surface.Classify(task.Due, now)
	summary := task.Summary
	if summary == "" {
		summary = "No summary"
	}
	if level == surface.LevelOverdue {
		summary = "! " + summary
	}

	link := task.URL
	if link == "" {
		link = surface.DetailURL(task.GUID)
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Due: %s\n", surface.DueText(task.Due))
	fmt.Fprintf(&desc, "Lark: %s\n", link)
	fmt.Fprintf(&desc, "GUID: %s\n", task.GUID)

	event := &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		ColorId:     levelColors[level],
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{PropertyGUID: task.GUID},
		},
	}
	if task.IsAllDay {
		day := task.Due.Format(time.DateOnly)
		next := task.Due.AddDate(0, 0, 1).Format(time.DateOnly)
		event.Start = &calendar.EventDateTime{Date: day}
		event.End = &calendar.EventDateTime{Date: next}
	} else {
		start := *task.Due
		event.Start = &calendar.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: start.Add(eventDuration).UTC().Format(time.RFC3339)}
	}
	return event, nil
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when the two already agree.
func EventNeedsUpdate(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	same, err := sameTime(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	sameEnd, err := sameTime(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !same || !sameEnd {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameTime(a, b *calendar.EventDateTime) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.DateTime == "" || b.DateTime == "" {
		return a.DateTime == b.DateTime && a.Date == b.Date, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, err
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, err
	}
	return at.Equal(bt), nil
}
