package session

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openvalet/go-valet/pkg/timefmt"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

// BuiltinTools returns the session-bound capabilities: current_date_time
// and end_chat. They close over the Manager, so the Manager must outlive
// the registry they are installed in.
func (m *Manager) BuiltinTools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: tools.Definition{
				Name:        "current_date_time",
				Description: "Returns the current date and time as a human-readable string, in the user's current time zone.",
				InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{}),
			},
			Handler: func(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
				now := timefmt.Descriptive(m.now())
				status.Set(now)
				respond(value.Object{{Key: "current_date_time", Value: value.Str(now)}})
			},
		},
		{
			Definition: tools.Definition{
				Name:        "end_chat",
				Description: "Invoke this when the user thanks you, or otherwise indicates that the chat is over. Don't say anything before or after invoking this.",
				InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{}),
			},
			Handler: func(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
				// Tears the session down; no result is sent back since the
				// transport is going away.
				m.Stop()
			},
		},
	}
}
