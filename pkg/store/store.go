// Package store persists widget state as a single JSON record with pruning
// policies and a degrade-to-memory fallback.
//
// Construction probes the backing store with a throwaway key; if the probe
// fails (disk unavailable, permissions, sandboxed context) the store falls
// back transparently to an in-memory backend satisfying the same contract.
// Callers never branch on which backend is active.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// recordKey is the single namespaced key all state lives under.
	recordKey = "chatkit:state"

	// probeKey is written and removed at construction to verify the backend.
	probeKey = "chatkit:probe"

	// maxPersistedMessages caps the persisted message list, independent of
	// the in-memory/UI cap.
	maxPersistedMessages = 100

	// maxAlertAge is the age past which alerts are pruned on save.
	maxAlertAge = 30 * 24 * time.Hour

	// nearFullThreshold is the serialized size above which Size reports the
	// store as near full. Informational only.
	nearFullThreshold = 4 << 20
)

// Backend is the minimal key-value surface a Store runs on.
type Backend interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}

// ErrNotFound is returned by backends when a key does not exist.
var ErrNotFound = errors.New("store: not found")

// Store persists the widget Record.
type Store struct {
	backend Backend

	// now is replaceable in tests.
	now func() time.Time
}

// New returns a Store over the given backend. The backend is probed with a
// throwaway write/read/delete; on failure the store degrades to an in-memory
// backend and the original is closed.
func New(backend Backend) *Store {
	if backend == nil || !probe(backend) {
		if backend != nil {
			slog.Warn("store: backend probe failed, falling back to memory")
			backend.Close()
		}
		backend = NewMemory()
	}
	return &Store{backend: backend, now: time.Now}
}

func probe(b Backend) bool {
	if err := b.Put(probeKey, []byte("ok")); err != nil {
		return false
	}
	v, err := b.Get(probeKey)
	if err != nil || string(v) != "ok" {
		return false
	}
	return b.Delete(probeKey) == nil
}

// Partial is a partial record update. Nil fields are left untouched.
type Partial struct {
	Messages      []Message
	Settings      map[string]any
	VoiceSettings map[string]any
	Alerts        []Alert
}

// Save merges the partial into the persisted record, stamps last-activity
// time, applies the pruning rules, and writes the record back.
func (s *Store) Save(p Partial) error {
	rec, err := s.Load()
	if err != nil {
		rec = &Record{}
	}
	if p.Messages != nil {
		rec.Messages = p.Messages
	}
	if p.Settings != nil {
		rec.Settings = p.Settings
	}
	if p.VoiceSettings != nil {
		rec.VoiceSettings = p.VoiceSettings
	}
	if p.Alerts != nil {
		rec.Alerts = p.Alerts
	}
	rec.LastActivity = Milli(s.now())

	rec.Messages = pruneMessages(rec.Messages)
	rec.Alerts = pruneAlerts(rec.Alerts, s.now())

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	return s.backend.Put(recordKey, b)
}

// Load returns the full persisted record. Date-typed fields (message and
// alert timestamps, snooze deadlines) revive from their serialized form.
// A missing record loads as an empty one.
func (s *Store) Load() (*Record, error) {
	b, err := s.backend.Get(recordKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Record{}, nil
		}
		return nil, fmt.Errorf("store: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &rec, nil
}

// Clear removes all persisted state.
func (s *Store) Clear() error {
	return s.backend.Delete(recordKey)
}

// Size reports the serialized byte length of the persisted record and
// whether it is near the informational 4 MiB threshold.
func (s *Store) Size() (int, bool) {
	b, err := s.backend.Get(recordKey)
	if err != nil {
		return 0, false
	}
	return len(b), len(b) >= nearFullThreshold
}

// Close releases the backing store.
func (s *Store) Close() error {
	return s.backend.Close()
}

// pruneMessages keeps the most recent maxPersistedMessages entries.
func pruneMessages(msgs []Message) []Message {
	if len(msgs) <= maxPersistedMessages {
		return msgs
	}
	return msgs[len(msgs)-maxPersistedMessages:]
}

// pruneAlerts drops alerts that are dismissed, currently snoozed, or older
// than maxAlertAge. The input slice is left untouched; callers keep their
// unpruned view.
func pruneAlerts(alerts []Alert, now time.Time) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		switch {
		case a.Dismissed:
		case a.SnoozedUntil != nil && a.SnoozedUntil.After(now):
		case a.Timestamp.Before(now.Add(-maxAlertAge)):
		default:
			out = append(out, a)
		}
	}
	return out
}
