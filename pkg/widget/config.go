package widget

import (
	"time"

	"github.com/cropwise/chatkit/pkg/action"
	"github.com/cropwise/chatkit/pkg/chat"
	"github.com/cropwise/chatkit/pkg/store"
	"github.com/cropwise/chatkit/pkg/voice"
)

// Defaults applied by New.
const (
	defaultMaxMessages = 50
	defaultTheme       = "light"
	defaultPosition    = "bottom-right"

	// ackGrace keeps an acknowledged alert visible briefly so the host UI
	// can show the acknowledgement before the alert drops out.
	ackGrace = 10 * time.Second
)

// Config configures a Widget. Chat credentials are validated by chat.New:
// either a proxy endpoint or a provider API key must be set.
type Config struct {
	Chat  chat.Config
	Voice voice.Config

	// Backend stores conversation state. Nil keeps state in memory only.
	Backend store.Backend

	// MaxMessages caps the in-memory conversation; oldest turns are evicted
	// first. Default 50. Persisted history has its own larger cap.
	MaxMessages int

	// SpeakReplies plays assistant replies through the voice manager's
	// speech synthesis when voice is enabled.
	SpeakReplies bool

	// Theme is "light" or "dark"; Position anchors the host rendering
	// ("bottom-right", "bottom-left", ...). Both are carried into persisted
	// settings for the host, not interpreted by the core.
	Theme    string
	Position string

	// Notifier delivers desktop notifications for notification actions.
	Notifier action.Notifier

	Callbacks Callbacks
}

func (c *Config) applyDefaults() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = defaultMaxMessages
	}
	if c.Theme == "" {
		c.Theme = defaultTheme
	}
	if c.Position == "" {
		c.Position = defaultPosition
	}
}

// Option customizes a Widget beyond the plain configuration.
type Option func(*Widget)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Widget) { w.now = now }
}

// WithStore replaces the persistence layer built from Config.Backend.
func WithStore(s *store.Store) Option {
	return func(w *Widget) { w.store = s }
}
