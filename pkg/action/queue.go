package action

import (
	"log/slog"
	"sync"
)

// Handler executes a single action. Implementations may be side-effecting;
// a returned error (or panic) is logged and never aborts queue draining.
type Handler func(Action) error

// Queue is a FIFO action queue with at-most-one-in-flight execution.
//
// Add appends and triggers a drain. If a drain is already running the new
// action is only enqueued; the running drain loop picks it up. This keeps
// execution in strict arrival order with no priority-based reordering;
// Action.Priority is display-only.
type Queue struct {
	mu       sync.Mutex
	pending  []Action
	draining bool

	// OnAction, when set, is invoked for every action regardless of type,
	// before the built-in handler. Host applications use it to supplement or
	// override the built-in behavior.
	OnAction Handler

	// Notifier delivers desktop notifications for TypeNotification actions.
	// Nil means notifications are silently dropped.
	Notifier Notifier

	handlers map[string]Handler
}

// NewQueue returns a queue with the built-in handlers registered.
func NewQueue() *Queue {
	q := &Queue{}
	q.handlers = builtinHandlers(q)
	return q
}

// Add enqueues an action and starts draining unless a drain is already in
// progress.
func (q *Queue) Add(a Action) {
	q.mu.Lock()
	q.pending = append(q.pending, a)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()
	go q.drain()
}

// Len returns the number of actions waiting to execute.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		a := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.execute(a)
	}
}

// execute runs the generic host callback, then the built-in handler for the
// action type. Unrecognized types fall through silently so hosts can define
// custom types handled entirely by OnAction.
func (q *Queue) execute(a Action) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("action: handler panic", "type", a.Type, "panic", r)
		}
	}()

	if q.OnAction != nil {
		if err := q.OnAction(a); err != nil {
			slog.Warn("action: host callback failed", "type", a.Type, "err", err)
		}
	}

	h, ok := q.handlers[a.Type]
	if !ok {
		return
	}
	if err := h(a); err != nil {
		slog.Warn("action: handler failed", "type", a.Type, "err", err)
	}
}
