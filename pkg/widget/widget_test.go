package widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cropwise/chatkit/pkg/action"
	"github.com/cropwise/chatkit/pkg/chat"
	"github.com/cropwise/chatkit/pkg/store"
)

// streamServer serves the proxy streaming endpoint with the given data
// lines.
func streamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n", l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestWidget(t *testing.T, srv *httptest.Server, cfg Config, opts ...Option) *Widget {
	t.Helper()
	cfg.Chat.APIURL = srv.URL
	w, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestSendMessageCommitsTurn(t *testing.T) {
	srv := streamServer(t,
		`{"content":"Apply DAP "}`,
		`{"content":"before planting.\n`+"```"+`action\n{\"type\": \"inventory\"}\n`+"```"+`"}`,
		`{"done":true,"usage":{"promptTokens":10,"completionTokens":4}}`,
	)

	var routed []action.Action
	var rmu sync.Mutex
	backend := store.NewMemory()
	w := newTestWidget(t, srv, Config{
		Backend: backend,
		Callbacks: Callbacks{
			OnAction: func(a action.Action) {
				rmu.Lock()
				routed = append(routed, a)
				rmu.Unlock()
			},
		},
	})

	if err := w.SendMessage(context.Background(), "what fertilizer?"); err != nil {
		t.Fatal(err)
	}

	st := w.State()
	if st.IsStreaming {
		t.Fatal("still streaming after turn completed")
	}
	if len(st.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(st.Messages))
	}
	user, assistant := st.Messages[0], st.Messages[1]
	if user.Role != store.RoleUser || user.Content != "what fertilizer?" {
		t.Fatalf("user message = %+v", user)
	}
	if assistant.Role != store.RoleAssistant || assistant.IsStreaming {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if len(assistant.Actions) != 1 || assistant.Actions[0].Type != action.TypeInventory {
		t.Fatalf("assistant actions = %+v", assistant.Actions)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rmu.Lock()
		n := len(routed)
		rmu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("routed actions = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The completed turn is persisted.
	rec, err := store.New(backend).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Messages) != 2 {
		t.Fatalf("persisted messages = %d", len(rec.Messages))
	}
}

func TestSendMessageTurnGuard(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"thinking\"}\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
		fmt.Fprint(w, "data: {\"done\":true}\n")
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	w := newTestWidget(t, srv, Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- w.SendMessage(context.Background(), "first") }()

	deadline := time.Now().Add(2 * time.Second)
	for !w.State().IsStreaming {
		if time.Now().After(deadline) {
			t.Fatal("first turn never started streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.SendMessage(context.Background(), "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("second SendMessage = %v, want ErrTurnInFlight", err)
	}

	release <- struct{}{}
	if err := <-errCh; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if got := len(w.State().Messages); got != 2 {
		t.Fatalf("messages = %d, want rejected turn not committed", got)
	}
}

func TestSendMessageErrorRollsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"upstream down"}`)
	}))
	t.Cleanup(srv.Close)

	var surfaced error
	w := newTestWidget(t, srv, Config{
		Callbacks: Callbacks{OnError: func(err error) { surfaced = err }},
	})

	err := w.SendMessage(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *chat.Error
	if !errors.As(err, &ce) || ce.Code != chat.CodeServiceUnavailable {
		t.Fatalf("error = %v, want SERVICE_UNAVAILABLE", err)
	}

	st := w.State()
	if st.IsStreaming {
		t.Fatal("still streaming after failure")
	}
	if len(st.Messages) != 1 || st.Messages[0].Role != store.RoleUser {
		t.Fatalf("messages = %+v, want placeholder rolled back", st.Messages)
	}
	if st.Err == nil {
		t.Fatal("state error not set")
	}
	if surfaced == nil {
		t.Fatal("OnError not invoked")
	}
}

func TestSendMessageEmptyIsNoop(t *testing.T) {
	srv := streamServer(t, `{"done":true}`)
	w := newTestWidget(t, srv, Config{})

	if err := w.SendMessage(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if got := len(w.State().Messages); got != 0 {
		t.Fatalf("messages = %d, want none", got)
	}
}

func TestCallbackPanicContained(t *testing.T) {
	srv := streamServer(t, `{"content":"ok"}`, `{"done":true}`)
	w := newTestWidget(t, srv, Config{
		Callbacks: Callbacks{
			OnMessage: func(store.Message) { panic("host bug") },
		},
	})

	if err := w.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("panicking host hook broke the turn: %v", err)
	}
	if got := len(w.State().Messages); got != 2 {
		t.Fatalf("messages = %d", got)
	}
}

func TestMessageCapEvictsOldest(t *testing.T) {
	srv := streamServer(t, `{"content":"reply"}`, `{"done":true}`)
	w := newTestWidget(t, srv, Config{MaxMessages: 4})

	for i := 0; i < 4; i++ {
		if err := w.SendMessage(context.Background(), fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	msgs := w.State().Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want capped at 4", len(msgs))
	}
	if msgs[0].Content != "turn 2" {
		t.Fatalf("oldest surviving message = %q", msgs[0].Content)
	}
}

func TestSubscribe(t *testing.T) {
	srv := streamServer(t, `{"done":true}`)
	w := newTestWidget(t, srv, Config{})

	var mu sync.Mutex
	calls := 0
	unsub := w.Subscribe(func(State) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	mu.Lock()
	if calls != 1 {
		t.Fatalf("calls after subscribe = %d, want immediate snapshot", calls)
	}
	mu.Unlock()

	w.SetOpen(true)
	mu.Lock()
	after := calls
	mu.Unlock()
	if after < 2 {
		t.Fatalf("calls after mutation = %d", after)
	}

	unsub()
	w.SetOpen(false)
	mu.Lock()
	final := calls
	mu.Unlock()
	if final != after {
		t.Fatalf("subscriber fired after unsubscribe: %d -> %d", after, final)
	}
}

func TestAlertVisibility(t *testing.T) {
	srv := streamServer(t, `{"done":true}`)
	now := time.Now()
	clock := func() time.Time { return now }
	w := newTestWidget(t, srv, Config{}, WithClock(clock))

	w.PushAlert(store.Alert{ID: "plain", Title: "Frost risk"})
	w.PushAlert(store.Alert{ID: "gone", Title: "Old news"})
	w.PushAlert(store.Alert{ID: "later", Title: "Irrigation"})
	w.PushAlert(store.Alert{ID: "acked", Title: "Pests"})

	w.Dismiss("gone")
	w.Snooze("later", store.Milli(now.Add(time.Hour)))
	w.Acknowledge("acked")

	ids := func() map[string]bool {
		out := map[string]bool{}
		for _, a := range w.Visible() {
			out[a.ID] = true
		}
		return out
	}

	got := ids()
	if !got["plain"] || got["gone"] || got["later"] || !got["acked"] {
		t.Fatalf("visible = %v", got)
	}

	// Past the grace window the acknowledged alert drops out; the snoozed
	// alert returns once its snooze expires.
	now = now.Add(2 * time.Hour)
	got = ids()
	if !got["plain"] || got["acked"] || !got["later"] {
		t.Fatalf("visible after grace = %v", got)
	}
}

func TestRestoreFromStore(t *testing.T) {
	backend := store.NewMemory()
	s := store.New(backend)
	if err := s.Save(store.Partial{Messages: []store.Message{
		{ID: "m1", Role: store.RoleUser, Content: "earlier question", Timestamp: store.Now()},
		{ID: "m2", Role: store.RoleAssistant, Content: "earlier answer", Timestamp: store.Now(), IsStreaming: true},
	}}); err != nil {
		t.Fatal(err)
	}

	srv := streamServer(t, `{"done":true}`)
	w := newTestWidget(t, srv, Config{Backend: backend})

	msgs := w.State().Messages
	if len(msgs) != 2 {
		t.Fatalf("restored messages = %d", len(msgs))
	}
	if msgs[1].IsStreaming {
		t.Fatal("interrupted streaming flag not cleared on restore")
	}
}

func TestNewValidatesChatConfig(t *testing.T) {
	_, err := New(Config{})
	var ce *chat.Error
	if !errors.As(err, &ce) || ce.Code != chat.CodeMissingAPIConfig {
		t.Fatalf("New = %v, want MISSING_API_CONFIG", err)
	}
}
