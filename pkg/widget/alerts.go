package widget

import (
	"github.com/google/uuid"

	"github.com/cropwise/chatkit/pkg/store"
)

// PushAlert adds a host alert to the widget. A missing ID or timestamp is
// filled in.
func (w *Widget) PushAlert(a store.Alert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = store.Milli(w.now())
	}
	w.mutate(func(s *State) {
		s.Alerts = append(s.Alerts, a)
	})
	w.persist()
}

// Acknowledge marks an alert acknowledged. Acknowledged alerts remain
// visible for a short grace window, then drop out of Visible.
func (w *Widget) Acknowledge(id string) {
	at := store.Milli(w.now())
	w.updateAlert(id, func(a *store.Alert) {
		a.Acknowledged = true
		a.AcknowledgedAt = &at
	})
}

// Dismiss hides an alert permanently. Dismissed alerts are pruned from
// persistence on the next save.
func (w *Widget) Dismiss(id string) {
	w.updateAlert(id, func(a *store.Alert) { a.Dismissed = true })
}

// Snooze hides an alert until the given time.
func (w *Widget) Snooze(id string, until store.Milli) {
	w.updateAlert(id, func(a *store.Alert) { a.SnoozedUntil = &until })
}

func (w *Widget) updateAlert(id string, fn func(*store.Alert)) {
	changed := false
	w.mutate(func(s *State) {
		for i := range s.Alerts {
			if s.Alerts[i].ID == id {
				fn(&s.Alerts[i])
				changed = true
				return
			}
		}
	})
	if changed {
		w.persist()
	}
}

// Visible returns the alerts a host should currently show: not dismissed,
// not snoozed into the future, and, when acknowledged, still inside the
// acknowledgement grace window.
func (w *Widget) Visible() []store.Alert {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]store.Alert, 0, len(w.state.Alerts))
	for _, a := range w.state.Alerts {
		if a.Dismissed {
			continue
		}
		if a.SnoozedUntil != nil && a.SnoozedUntil.After(now) {
			continue
		}
		if a.Acknowledged && (a.AcknowledgedAt == nil || a.AcknowledgedAt.Before(now.Add(-ackGrace))) {
			continue
		}
		out = append(out, a)
	}
	return out
}
