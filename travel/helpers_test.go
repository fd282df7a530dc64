package travel

import (
	"context"
	"testing"

	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/logging"
)

func newTestToolContext(t *testing.T) *core.ToolContext {
	t.Helper()

	emit := make(chan core.Event, 8)
	resume := make(chan struct{}, 1)
	rc := core.NewRunContext(
		context.Background(),
		"sess-travel",
		"turn-1",
		"TripMate",
		core.Content{},
		10,
		emit,
		resume,
		core.NewSession("sess-travel"),
		nil,
		logging.NoOpLogger{},
	)
	return core.NewToolContext(rc, "fc-travel")
}
