package chat

import (
	"errors"
	"testing"
	"time"
)

func nextResult(s *stream) chan error {
	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	return done
}

func TestStreamNextAfterClose(t *testing.T) {
	s := newStream()
	s.Close()

	select {
	case err := <-nextResult(s):
		var e *Error
		if !errors.As(err, &e) || e.Code != CodeStreamClosed {
			t.Fatalf("Next after Close = %v, want STREAM_CLOSED", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next hung after Close")
	}
}

func TestStreamCloseUnblocksNext(t *testing.T) {
	s := newStream()
	done := nextResult(s)

	// Let Next block on an idle producer, then close from another goroutine.
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		var e *Error
		if !errors.As(err, &e) || e.Code != CodeStreamClosed {
			t.Fatalf("Next unblocked with %v, want STREAM_CLOSED", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next still blocked after Close")
	}
}

func TestStreamCloseWithError(t *testing.T) {
	s := newStream()
	cause := errors.New("turn abandoned")
	s.CloseWithError(cause)

	_, err := s.Next()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Next = %v, want *Error", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("Next = %v, want the close cause preserved", err)
	}
}
