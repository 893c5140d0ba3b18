package widget

import (
	"log/slog"

	"github.com/cropwise/chatkit/pkg/action"
	"github.com/cropwise/chatkit/pkg/store"
)

// Callbacks are optional host hooks. All of them may be nil, and every
// invocation runs behind a recover guard: a panicking host hook is logged
// and never crashes the core.
type Callbacks struct {
	// OnAction fires for every action before the built-in queue handler.
	OnAction func(action.Action)

	// OnMessage fires when a turn is committed: once for the user message
	// and once for the completed assistant message.
	OnMessage func(store.Message)

	// OnError fires for chat and voice failures surfaced to state.
	OnError func(error)

	// OnReady fires once construction and state restoration complete.
	OnReady func()

	// OnVoiceStart and OnVoiceEnd bracket a recording session; OnVoiceEnd
	// receives the final transcript (possibly empty).
	OnVoiceStart func()
	OnVoiceEnd   func(transcript string)
}

// safeCall invokes a host hook with panic containment.
func safeCall(name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("widget: host callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}
