package store

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()

	ts := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	msg := Message{
		ID:        "m1",
		Role:      RoleUser,
		Content:   "hello",
		Timestamp: Milli(ts),
	}
	if err := s.Save(Partial{Messages: []Message{msg}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rec.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(rec.Messages))
	}
	got := rec.Messages[0]
	if got.ID != "m1" || got.Content != "hello" || got.Role != RoleUser {
		t.Fatalf("message fields lost in round trip: %+v", got)
	}
	// Timestamps must revive to date-typed values equal to the original.
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("Timestamp = %v, want %v", got.Timestamp.Time(), ts)
	}
	if rec.LastActivity.IsZero() {
		t.Fatal("Save should stamp LastActivity")
	}
}

func TestSaveMergesPartials(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()

	if err := s.Save(Partial{Settings: map[string]any{"theme": "dark"}}); err != nil {
		t.Fatalf("Save settings: %v", err)
	}
	if err := s.Save(Partial{Messages: []Message{{ID: "m1", Role: RoleUser}}}); err != nil {
		t.Fatalf("Save messages: %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Settings["theme"] != "dark" {
		t.Fatalf("settings lost on partial save: %v", rec.Settings)
	}
	if len(rec.Messages) != 1 {
		t.Fatalf("messages lost on partial save: %v", rec.Messages)
	}
}

func TestMessagePruning(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()

	msgs := make([]Message, 150)
	for i := range msgs {
		msgs[i] = Message{ID: fmt.Sprintf("m%d", i), Role: RoleUser}
	}
	if err := s.Save(Partial{Messages: msgs}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rec.Messages) != maxPersistedMessages {
		t.Fatalf("got %d persisted messages, want %d", len(rec.Messages), maxPersistedMessages)
	}
	// Oldest evicted first: the survivors are the most recent 100.
	if rec.Messages[0].ID != "m50" {
		t.Fatalf("first surviving message = %s, want m50", rec.Messages[0].ID)
	}
}

func TestAlertPruning(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()

	now := time.Now()
	future := Milli(now.Add(time.Hour))
	past := Milli(now.Add(-time.Hour))
	alerts := []Alert{
		{ID: "keep", Timestamp: Milli(now)},
		{ID: "dismissed", Timestamp: Milli(now), Dismissed: true},
		{ID: "snoozed", Timestamp: Milli(now), SnoozedUntil: &future},
		{ID: "snooze-expired", Timestamp: Milli(now), SnoozedUntil: &past},
		{ID: "ancient", Timestamp: Milli(now.Add(-31 * 24 * time.Hour))},
	}
	if err := s.Save(Partial{Alerts: alerts}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := map[string]bool{}
	for _, a := range rec.Alerts {
		got[a.ID] = true
	}
	for _, want := range []string{"keep", "snooze-expired"} {
		if !got[want] {
			t.Fatalf("alert %q should survive pruning, got %v", want, got)
		}
	}
	for _, drop := range []string{"dismissed", "snoozed", "ancient"} {
		if got[drop] {
			t.Fatalf("alert %q should be pruned, got %v", drop, got)
		}
	}
}

func TestSaveLeavesCallerAlertsIntact(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()

	now := time.Now()
	alerts := []Alert{
		{ID: "dismissed", Timestamp: Milli(now), Dismissed: true},
		{ID: "keep", Timestamp: Milli(now)},
	}
	if err := s.Save(Partial{Alerts: alerts}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Pruning must work on its own copy, not compact the caller's slice.
	if alerts[0].ID != "dismissed" || alerts[1].ID != "keep" {
		t.Fatalf("Save mutated the caller's alerts: %+v", alerts)
	}
}

// failingBackend always errors, forcing the construction probe to fail.
type failingBackend struct{}

func (failingBackend) Put(string, []byte) error   { return errors.New("quota exceeded") }
func (failingBackend) Get(string) ([]byte, error) { return nil, errors.New("quota exceeded") }
func (failingBackend) Delete(string) error        { return errors.New("quota exceeded") }
func (failingBackend) Close() error               { return nil }

func TestProbeFailureFallsBackToMemory(t *testing.T) {
	s := New(failingBackend{})
	defer s.Close()

	// Full contract must work against the fallback.
	if err := s.Save(Partial{Messages: []Message{{ID: "m1", Role: RoleUser, Timestamp: Now()}}}); err != nil {
		t.Fatalf("Save after fallback: %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load after fallback: %v", err)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].ID != "m1" {
		t.Fatalf("fallback lost data: %+v", rec.Messages)
	}
	if n, _ := s.Size(); n == 0 {
		t.Fatal("Size should report serialized length after save")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear after fallback: %v", err)
	}
	rec, err = s.Load()
	if err != nil {
		t.Fatalf("Load after clear: %v", err)
	}
	if len(rec.Messages) != 0 {
		t.Fatal("Clear should remove persisted state")
	}
}

func TestBadgerBackend(t *testing.T) {
	b, err := NewBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	s := New(b)
	defer s.Close()

	if err := s.Save(Partial{Settings: map[string]any{"lang": "en"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Settings["lang"] != "en" {
		t.Fatalf("Settings = %v, want lang=en", rec.Settings)
	}
}

func TestSizeEmpty(t *testing.T) {
	s := New(NewMemory())
	defer s.Close()
	n, nearFull := s.Size()
	if n != 0 || nearFull {
		t.Fatalf("Size on empty store = (%d, %v), want (0, false)", n, nearFull)
	}
}
