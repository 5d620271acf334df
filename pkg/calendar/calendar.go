// Package calendar surfaces the user's upcoming calendar events to the
// model. The data source is behind the Provider interface so the tool
// logic is independent of the Google Calendar backend.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openvalet/go-valet/pkg/timefmt"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

const maxEvents = 10

// Event is one calendar entry.
type Event struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	CalendarID string
}

// Provider supplies events starting at or after from, up to max entries.
// Implementations may return events slightly before from; the tool filters
// client-side.
type Provider interface {
	Events(ctx context.Context, from time.Time, max int) ([]Event, error)
}

// Reader wraps a Provider and exposes the list_calendar tool.
type Reader struct {
	provider Provider
	now      func() time.Time
}

// NewReader returns a Reader over the given provider.
func NewReader(provider Provider) *Reader {
	return &Reader{provider: provider, now: time.Now}
}

// Tools returns the list_calendar capability.
func (r *Reader) Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: tools.Definition{
			Name:        "list_calendar",
			Description: "Returns the user's next upcoming calendar events",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{}),
		},
		Handler: r.listCalendar,
	}}
}

func (r *Reader) listCalendar(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
	now := r.now()

	// Query a day back so all-day and in-progress events on the provider
	// side are not excluded by coarse date filtering.
	events, err := r.provider.Events(ctx, now.Add(-24*time.Hour), 4*maxEvents)
	if err != nil {
		respond(tools.Errorf("failed to read calendar: %v", err))
		return
	}

	upcoming := events[:0]
	for _, ev := range events {
		if !ev.Start.Before(now) {
			upcoming = append(upcoming, ev)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Start.Before(upcoming[j].Start) })
	if len(upcoming) > maxEvents {
		upcoming = upcoming[:maxEvents]
	}

	status.Set(fmt.Sprintf("Retrieved %d upcoming event(s)", len(upcoming)))

	list := make(value.Array, 0, len(upcoming))
	for _, ev := range upcoming {
		list = append(list, value.Object{
			{Key: "id", Value: value.Str(ev.ID)},
			{Key: "title", Value: value.Str(ev.Title)},
			{Key: "timeStart", Value: value.Str(fmt.Sprintf("%s (%d)", timefmt.Descriptive(ev.Start), ev.Start.UnixMilli()))},
			{Key: "timeEnd", Value: value.Str(timefmt.Descriptive(ev.End))},
			{Key: "calendarId", Value: value.Str(ev.CalendarID)},
		})
	}
	respond(value.Object{{Key: "events", Value: list}})
}
