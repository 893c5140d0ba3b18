package store

import (
	"encoding/json"
	"time"

	"github.com/cropwise/chatkit/pkg/action"
)

// Milli is a time.Time that serializes to/from Unix milliseconds in JSON,
// so persisted timestamps revive to date-typed values exactly.
type Milli time.Time

// Now returns the current time as Milli.
func Now() Milli {
	return Milli(time.Now())
}

// Time returns the underlying time.Time value.
func (m Milli) Time() time.Time { return time.Time(m) }

// IsZero reports whether m represents the zero time instant.
func (m Milli) IsZero() bool { return time.Time(m).IsZero() }

// Before reports whether m is before t.
func (m Milli) Before(t time.Time) bool { return time.Time(m).Before(t) }

// After reports whether m is after t.
func (m Milli) After(t time.Time) bool { return time.Time(m).After(t) }

// Equal reports whether m and t represent the same millisecond instant.
func (m Milli) Equal(t Milli) bool {
	return time.Time(m).UnixMilli() == time.Time(t).UnixMilli()
}

// MarshalJSON implements json.Marshaler.
func (m Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(m).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Milli) UnmarshalJSON(b []byte) error {
	var t int64
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*m = Milli(time.UnixMilli(t))
	return nil
}

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Content is appended and IsStreaming
// flipped false as stream chunks arrive; the orchestrator owns the list.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Timestamp   Milli           `json:"timestamp"`
	IsStreaming bool            `json:"isStreaming,omitempty"`
	Actions     []action.Action `json:"actions,omitempty"`
}

// Alert is a host-side notification persisted alongside the conversation.
type Alert struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Priority     string `json:"priority"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	Timestamp    Milli  `json:"timestamp"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
	// AcknowledgedAt records when the alert was acknowledged, for the
	// orchestrator's visibility grace window.
	AcknowledgedAt *Milli          `json:"acknowledgedAt,omitempty"`
	Dismissed      bool            `json:"dismissed,omitempty"`
	SnoozedUntil   *Milli          `json:"snoozedUntil,omitempty"`
	Actions        []action.Action `json:"actions,omitempty"`
}

// Record is the full persisted state, written under a single namespaced key.
type Record struct {
	Messages      []Message      `json:"messages"`
	Settings      map[string]any `json:"settings"`
	VoiceSettings map[string]any `json:"voiceSettings"`
	Alerts        []Alert        `json:"alerts"`
	LastActivity  Milli          `json:"lastActivity"`
}
