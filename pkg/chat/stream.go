package chat

import "sync"

// Stream is an incremental response. Next blocks for the next chunk and
// returns ErrDone when the provider signals completion. A stream is consumed
// once; request a fresh one per turn.
type Stream interface {
	Next() (*Chunk, error)
	Close() error
	CloseWithError(error) error
}

type chunkOrErr struct {
	chunk *Chunk
	err   error
}

// stream is a channel-backed Stream fed by a transport goroutine.
type stream struct {
	ch        chan chunkOrErr
	closeCh   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error
	done     bool
}

func newStream() *stream {
	return &stream{
		ch:      make(chan chunkOrErr, 32),
		closeCh: make(chan struct{}),
	}
}

// send delivers a chunk unless the stream was closed by the consumer.
// Reports whether delivery happened.
func (s *stream) send(c *Chunk) bool {
	select {
	case <-s.closeCh:
		return false
	case s.ch <- chunkOrErr{chunk: c}:
		return true
	}
}

// fail terminates the stream with a normalized error.
func (s *stream) fail(err error) {
	select {
	case <-s.closeCh:
	case s.ch <- chunkOrErr{err: wrapErr(err)}:
	}
}

// finish ends the stream normally; Next returns ErrDone afterwards.
func (s *stream) finish() {
	select {
	case <-s.closeCh:
	case s.ch <- chunkOrErr{err: ErrDone}:
	}
}

func (s *stream) Next() (*Chunk, error) {
	s.mu.Lock()
	if err := s.closeErr; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.done {
		s.mu.Unlock()
		return nil, ErrDone
	}
	s.mu.Unlock()

	var item chunkOrErr
	select {
	case item = <-s.ch:
	case <-s.closeCh:
		// The consumer closed the stream; the producer may never send again.
		return nil, &Error{Kind: KindTransport, Code: CodeStreamClosed, Message: "stream closed"}
	}
	if item.err != nil {
		s.mu.Lock()
		if item.err == ErrDone {
			s.done = true
		} else {
			s.closeErr = item.err
		}
		s.mu.Unlock()
		return nil, item.err
	}
	return item.chunk, nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	return nil
}

func (s *stream) CloseWithError(err error) error {
	s.mu.Lock()
	if s.closeErr == nil && !s.done {
		s.closeErr = wrapErr(err)
	}
	s.mu.Unlock()
	return s.Close()
}
