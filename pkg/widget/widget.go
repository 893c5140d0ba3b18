// Package widget is the session orchestrator: it owns conversation state,
// drives chat turns against the model client, routes extracted actions,
// mirrors the voice session, and persists everything through the store.
// Host applications embed one Widget per conversation surface.
package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cropwise/chatkit/pkg/action"
	"github.com/cropwise/chatkit/pkg/chat"
	"github.com/cropwise/chatkit/pkg/store"
	"github.com/cropwise/chatkit/pkg/voice"
)

// Turn states. A second SendMessage while a turn is streaming is rejected
// rather than queued; the host resubmits after the turn completes.
const (
	turnIdle = iota
	turnStreaming
)

var (
	// ErrTurnInFlight is returned by SendMessage while a previous turn is
	// still streaming.
	ErrTurnInFlight = errors.New("widget: a turn is already in flight")

	// ErrClosed is returned by operations on a closed widget.
	ErrClosed = errors.New("widget: closed")
)

// Widget orchestrates one conversation session.
type Widget struct {
	cfg    Config
	client *chat.Client
	queue  *action.Queue
	store  *store.Store
	voice  *voice.Manager

	mu      sync.Mutex
	state   State
	turn    int
	subs    map[int]func(State)
	nextSub int
	closed  bool

	now func() time.Time
}

// New builds a widget: validates chat and voice configuration, restores
// persisted conversation state, and wires the action queue and voice
// observers. OnReady fires before New returns.
func New(cfg Config, opts ...Option) (*Widget, error) {
	cfg.applyDefaults()

	client, err := chat.New(cfg.Chat)
	if err != nil {
		return nil, err
	}
	vm, err := voice.NewManager(cfg.Voice)
	if err != nil {
		return nil, err
	}

	w := &Widget{
		cfg:    cfg,
		client: client,
		voice:  vm,
		subs:   make(map[int]func(State)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil {
		backend := cfg.Backend
		if backend == nil {
			backend = store.NewMemory()
		}
		w.store = store.New(backend)
	}

	w.queue = action.NewQueue()
	w.queue.Notifier = cfg.Notifier
	if hook := cfg.Callbacks.OnAction; hook != nil {
		w.queue.OnAction = func(a action.Action) error {
			safeCall("OnAction", func() { hook(a) })
			return nil
		}
	}

	w.restore()

	vm.OnState(func(vs voice.State) {
		w.mutate(func(s *State) { s.Voice = vs })
	})
	vm.OnError(func(e *voice.Error) {
		w.mutate(func(s *State) { s.Err = e })
		if hook := cfg.Callbacks.OnError; hook != nil {
			safeCall("OnError", func() { hook(e) })
		}
	})

	safeCall("OnReady", cfg.Callbacks.OnReady)
	return w, nil
}

// restore loads the persisted record into state. A turn interrupted by a
// previous shutdown is committed as-is with its streaming flag cleared.
func (w *Widget) restore() {
	rec, err := w.store.Load()
	if err != nil {
		return
	}
	msgs := rec.Messages
	for i := range msgs {
		msgs[i].IsStreaming = false
	}
	if len(msgs) > w.cfg.MaxMessages {
		msgs = msgs[len(msgs)-w.cfg.MaxMessages:]
	}
	w.state.Messages = msgs
	w.state.Alerts = rec.Alerts
}

// SendMessage runs one full chat turn: it commits the user message, streams
// the assistant reply into an optimistic placeholder, routes extracted
// actions, persists the conversation, and blocks until the turn completes.
// While a turn is streaming, further calls return ErrTurnInFlight.
func (w *Widget) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.turn != turnIdle {
		w.mu.Unlock()
		return ErrTurnInFlight
	}
	w.turn = turnStreaming
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.turn = turnIdle
		w.mu.Unlock()
	}()

	userMsg := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: store.Milli(w.now()),
	}
	placeholder := store.Message{
		ID:          uuid.NewString(),
		Role:        store.RoleAssistant,
		Timestamp:   store.Milli(w.now()),
		IsStreaming: true,
	}

	var history []chat.Message
	w.mutate(func(s *State) {
		s.Err = nil
		s.IsStreaming = true
		s.Messages = append(s.Messages, userMsg, placeholder)
		s.Messages = w.evict(s.Messages)
		history = requestHistory(s.Messages)
	})
	w.persist()
	if hook := w.cfg.Callbacks.OnMessage; hook != nil {
		safeCall("OnMessage", func() { hook(userMsg) })
	}

	stream, err := w.client.StreamChatCompletion(ctx, history)
	if err != nil {
		w.failTurn(placeholder.ID, err)
		return err
	}
	defer stream.Close()

	var final store.Message
	for {
		chunk, err := stream.Next()
		if errors.Is(err, chat.ErrDone) {
			break
		}
		if err != nil {
			w.failTurn(placeholder.ID, err)
			return err
		}
		w.mutate(func(s *State) {
			m := findMessage(s.Messages, placeholder.ID)
			if m == nil {
				return
			}
			m.Content += chunk.Content
			if chunk.Done {
				m.IsStreaming = false
				m.Actions = chunk.Actions
				s.IsStreaming = false
				final = *m
			}
		})
		if chunk.Done {
			for _, a := range chunk.Actions {
				w.queue.Add(a)
			}
		}
	}

	// A stream that ended without a terminal chunk still commits what
	// arrived.
	w.mutate(func(s *State) {
		s.IsStreaming = false
		if m := findMessage(s.Messages, placeholder.ID); m != nil {
			m.IsStreaming = false
			if final.ID == "" {
				final = *m
			}
		}
	})

	w.persist()
	if hook := w.cfg.Callbacks.OnMessage; hook != nil && final.ID != "" {
		safeCall("OnMessage", func() { hook(final) })
	}
	if w.cfg.SpeakReplies && w.cfg.Voice.Enabled && final.Content != "" {
		go w.voice.Speak(final.Content)
	}
	return nil
}

// failTurn rolls the optimistic placeholder back, surfaces the error, and
// persists the conversation as of the committed user message.
func (w *Widget) failTurn(placeholderID string, err error) {
	w.mutate(func(s *State) {
		s.IsStreaming = false
		s.Err = err
		s.Messages = removeMessage(s.Messages, placeholderID)
	})
	if hook := w.cfg.Callbacks.OnError; hook != nil {
		safeCall("OnError", func() { hook(err) })
	}
	w.persist()
}

// evict drops the oldest turns beyond the configured cap.
func (w *Widget) evict(msgs []store.Message) []store.Message {
	if len(msgs) <= w.cfg.MaxMessages {
		return msgs
	}
	return msgs[len(msgs)-w.cfg.MaxMessages:]
}

func findMessage(msgs []store.Message, id string) *store.Message {
	for i := range msgs {
		if msgs[i].ID == id {
			return &msgs[i]
		}
	}
	return nil
}

func removeMessage(msgs []store.Message, id string) []store.Message {
	for i := range msgs {
		if msgs[i].ID == id {
			return append(msgs[:i], msgs[i+1:]...)
		}
	}
	return msgs
}

// requestHistory maps committed turns to the client's message shape,
// skipping the in-flight placeholder.
func requestHistory(msgs []store.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsStreaming {
			continue
		}
		out = append(out, chat.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// persist writes the conversation and alerts through the store. Streaming
// placeholders are excluded; they are committed when their turn completes.
func (w *Widget) persist() {
	w.mu.Lock()
	msgs := make([]store.Message, 0, len(w.state.Messages))
	for _, m := range w.state.Messages {
		if !m.IsStreaming {
			msgs = append(msgs, m)
		}
	}
	alerts := append([]store.Alert(nil), w.state.Alerts...)
	w.mu.Unlock()

	w.store.Save(store.Partial{
		Messages: msgs,
		Alerts:   alerts,
		Settings: map[string]any{
			"theme":       w.cfg.Theme,
			"position":    w.cfg.Position,
			"maxMessages": w.cfg.MaxMessages,
		},
		VoiceSettings: map[string]any{
			"enabled":      w.cfg.Voice.Enabled,
			"speakReplies": w.cfg.SpeakReplies,
		},
	})
}

// ConnectVoice establishes the voice transport. A no-op when voice is
// disabled.
func (w *Widget) ConnectVoice(ctx context.Context) error {
	return w.voice.Connect(ctx)
}

// StartVoice begins a recording session. OnVoiceStart fires before the
// microphone opens.
func (w *Widget) StartVoice() {
	if !w.cfg.Voice.Enabled {
		return
	}
	safeCall("OnVoiceStart", w.cfg.Callbacks.OnVoiceStart)
	w.voice.StartRecording()
}

// StopVoice ends the recording session and submits the final transcript as
// a user turn when non-empty. OnVoiceEnd receives the transcript either way.
func (w *Widget) StopVoice(ctx context.Context) error {
	transcript := w.voice.State().Transcript
	w.voice.StopRecording()
	if hook := w.cfg.Callbacks.OnVoiceEnd; hook != nil {
		safeCall("OnVoiceEnd", func() { hook(transcript) })
	}
	if strings.TrimSpace(transcript) == "" {
		return nil
	}
	return w.SendMessage(ctx, transcript)
}

// Queue exposes the action queue so hosts can inject actions of their own.
func (w *Widget) Queue() *action.Queue { return w.queue }

// Close persists the conversation, tears down the voice session, and
// releases the store. Idempotent.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.persist()
	w.voice.Disconnect()

	w.mu.Lock()
	w.closed = true
	w.subs = make(map[int]func(State))
	w.mu.Unlock()

	return w.store.Close()
}
