package google

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewClient resolves calendarName among the user's calendars and returns a
// client mirroring into it. Extra options are passed to the calendar service.
func NewClient(ctx context.Context, httpClient *http.Client, calendarName string, idx *EventIndex, logger *log.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	var calendarID string
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			calendarID = item.Id
			break
		}
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar '%s' not found", calendarName)
	}

	return NewCalendarClient(srv, calendarID, idx, logger), nil
}
