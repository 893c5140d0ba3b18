package widget

import (
	"github.com/cropwise/chatkit/pkg/store"
	"github.com/cropwise/chatkit/pkg/voice"
)

// State is the widget snapshot broadcast to subscribers. The widget owns
// the authoritative copy; there is no package-level shared instance, so
// multiple widgets never leak state into each other. Treat received values
// as read-only.
type State struct {
	// Open is the host panel visibility flag.
	Open bool

	// Messages is the conversation, oldest first, capped at
	// Config.MaxMessages.
	Messages []store.Message

	// IsStreaming is true while an assistant turn is in flight.
	IsStreaming bool

	// Voice mirrors the voice manager's state.
	Voice voice.State

	// Alerts is the full alert list; use Visible for the filtered view.
	Alerts []store.Alert

	// Err is the most recent surfaced failure, cleared on the next
	// successful turn.
	Err error
}

// Subscribe registers a state observer, immediately invokes it with the
// current snapshot, and returns its unsubscribe function.
func (w *Widget) Subscribe(fn func(State)) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	fn(snapshot)
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// State returns the current snapshot.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// snapshotLocked copies the state so subscribers cannot alias the widget's
// slices.
func (w *Widget) snapshotLocked() State {
	s := w.state
	s.Messages = append([]store.Message(nil), w.state.Messages...)
	s.Alerts = append([]store.Alert(nil), w.state.Alerts...)
	return s
}

// mutate applies a state change under the lock and notifies subscribers
// with the new snapshot. Closed widgets drop mutations.
func (w *Widget) mutate(fn func(*State)) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	fn(&w.state)
	snapshot := w.snapshotLocked()
	subs := make([]func(State), 0, len(w.subs))
	for _, sub := range w.subs {
		subs = append(subs, sub)
	}
	w.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

// SetOpen toggles the host panel visibility flag.
func (w *Widget) SetOpen(open bool) {
	w.mutate(func(s *State) { s.Open = open })
}
