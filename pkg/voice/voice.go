// Package voice owns the real-time voice session: media transport lifecycle,
// microphone capture with volume metering, speech-to-text, speech playback,
// and session-token refresh. Every state mutation is broadcast to registered
// observers; the package never mutates conversation state.
//
// The primary correctness property is teardown: Disconnect is idempotent and
// releases every timer, goroutine, and device, so calling it from a
// component-unmount path leaks nothing.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// State is the voice session snapshot broadcast to observers. It is mutated
// exclusively by the Manager; treat received values as read-only.
type State struct {
	IsRecording bool
	IsPlaying   bool
	IsListening bool
	Transcript  string
	Volume      int
	IsConnected bool
	Err         *Error
}

// Config configures a Manager.
type Config struct {
	// SignalURL is the media server signaling endpoint (ws:// or wss://).
	SignalURL string

	// Token is a pre-issued session token (legacy direct mode). When empty
	// the manager fetches one from TokenEndpoint and refreshes it
	// periodically.
	Token string

	// TokenEndpoint is the host backend base URL exposing the token route.
	TokenEndpoint string

	RoomName            string
	ParticipantName     string
	ParticipantIdentity string

	// Enabled gates all voice features. When false every operation is a
	// no-op.
	Enabled bool

	Capture    Capture
	Recognizer Recognizer
	Speaker    Speaker

	// HTTPClient overrides the transport for token calls.
	HTTPClient *http.Client
}

// Manager runs the voice session state machine: disconnected → connecting →
// connected, with orthogonal recording and playback substates.
type Manager struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	state     State
	destroyed bool
	connected *transport
	track     Track
	token     string
	refresh   chan struct{}

	// playMu serializes playback so at most one Speak is in flight.
	playMu sync.Mutex

	obsMu         sync.Mutex
	nextObs       int
	stateObs      map[int]func(State)
	transcriptObs map[int]func(string)
	errorObs      map[int]func(*Error)
}

// NewManager validates the configuration and returns a disconnected manager.
// An enabled manager needs either a pre-issued token or a token endpoint.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Enabled && cfg.Token == "" && cfg.TokenEndpoint == "" {
		return nil, &Error{
			Code:    CodeMissingToken,
			Message: "either a session token or a token endpoint is required",
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Manager{
		cfg:           cfg,
		http:          hc,
		stateObs:      make(map[int]func(State)),
		transcriptObs: make(map[int]func(string)),
		errorObs:      make(map[int]func(*Error)),
	}, nil
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnState registers a state-change observer and returns its unsubscribe
// function. Observers not unsubscribed are cleared at Disconnect.
func (m *Manager) OnState(fn func(State)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.stateObs[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.stateObs, id)
		m.obsMu.Unlock()
	}
}

// OnTranscript registers a transcript observer.
func (m *Manager) OnTranscript(fn func(string)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.transcriptObs[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.transcriptObs, id)
		m.obsMu.Unlock()
	}
}

// OnError registers an error observer. Runtime voice failures are delivered
// here, never as panics or returned errors from StartRecording.
func (m *Manager) OnError(fn func(*Error)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.errorObs[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.errorObs, id)
		m.obsMu.Unlock()
	}
}

// Connect establishes the media transport, fetching a session token first
// when none was pre-issued. Safe to call only once per manager; after
// Disconnect a new manager is required.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return &Error{Code: CodeVoiceError, Message: "manager is destroyed"}
	}
	if m.connected != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token := m.cfg.Token
	if token == "" {
		t, err := m.fetchToken(ctx)
		if err != nil {
			ve := wrapVoiceErr(err)
			m.emitError(ve)
			return ve
		}
		token = t
	}

	tr, err := dialTransport(ctx, m.cfg.SignalURL, token)
	if err != nil {
		ve := wrapVoiceErr(err)
		m.emitError(ve)
		return ve
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		tr.close()
		return &Error{Code: CodeVoiceError, Message: "manager is destroyed"}
	}
	m.connected = tr
	m.token = token
	if m.cfg.Token == "" {
		m.refresh = make(chan struct{})
		go m.refreshLoop(m.refresh)
	}
	m.mu.Unlock()

	m.setState(func(s *State) { s.IsConnected = true })
	return nil
}

// refreshLoop refreshes the session token on a fixed interval. A refresh
// failure is logged and the old token stays in use; the connection is never
// proactively re-established, so very long sessions may need a manual
// reconnect.
func (m *Manager) refreshLoop(stop chan struct{}) {
	ticker := time.NewTicker(tokenRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			token, err := m.fetchToken(ctx)
			cancel()
			if err != nil {
				slog.Warn("voice: token refresh failed", "err", err)
				continue
			}
			m.mu.Lock()
			m.token = token
			m.mu.Unlock()
		}
	}
}

// StartRecording acquires the microphone, publishes the captured track,
// starts metering and speech-to-text, and clears the prior transcript.
// A no-op when voice is disabled or recording is already active. Failures
// (permission denied, device unavailable) surface through the error channel,
// never as a panic or return value.
func (m *Manager) StartRecording() {
	if !m.cfg.Enabled || m.cfg.Capture == nil {
		return
	}
	m.mu.Lock()
	if m.destroyed || m.state.IsRecording {
		m.mu.Unlock()
		return
	}
	tr := m.connected
	m.mu.Unlock()

	track, err := m.cfg.Capture.Open(Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		m.emitError(wrapVoiceErr(err))
		return
	}

	var results <-chan Result
	if m.cfg.Recognizer != nil {
		results, err = m.cfg.Recognizer.Start()
		if err != nil {
			track.Close()
			m.emitError(wrapVoiceErr(err))
			return
		}
	}

	if tr != nil {
		if _, err := tr.publish(); err != nil {
			slog.Warn("voice: publish track", "err", err)
		}
	}

	m.mu.Lock()
	m.track = track
	m.mu.Unlock()

	levels := make(chan int, 1)
	go m.runMeter(levels)
	go m.pump(track, tr, levels)
	if results != nil {
		go m.consumeResults(results)
	}

	m.setState(func(s *State) {
		s.IsRecording = true
		s.IsListening = true
		s.Transcript = ""
		s.Err = nil
	})
}

// pump moves captured frames to the transport and feeds the volume meter.
// Level sends are non-blocking: a busy meter drops frames rather than
// building a backlog. The pump exits, closing the meter, when the track is
// closed or lost.
func (m *Manager) pump(track Track, tr *transport, levels chan<- int) {
	defer close(levels)
	for {
		f, err := track.ReadFrame()
		if err != nil {
			if !errors.Is(err, ErrTrackClosed) {
				slog.Debug("voice: capture ended", "err", err)
			}
			return
		}
		if tr != nil && len(f.Data) > 0 {
			if err := tr.writeSample(f); err != nil {
				slog.Debug("voice: write sample", "err", err)
			}
		}
		select {
		case levels <- level(f.Samples):
		default:
		}
	}
}

// consumeResults folds recognizer events into the running transcript. Each
// event carries the alternatives from the current result index forward;
// their concatenation replaces the transcript.
func (m *Manager) consumeResults(results <-chan Result) {
	for r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, ErrPermissionDenied) {
				m.emitError(wrapVoiceErr(r.Err))
			} else {
				slog.Warn("voice: recognizer error", "err", r.Err)
			}
			continue
		}
		transcript := strings.Join(r.Transcripts, "")
		m.setState(func(s *State) { s.Transcript = transcript })
		m.obsMu.Lock()
		fns := make([]func(string), 0, len(m.transcriptObs))
		for _, fn := range m.transcriptObs {
			fns = append(fns, fn)
		}
		m.obsMu.Unlock()
		for _, fn := range fns {
			fn(transcript)
		}
	}
}

// StopRecording releases the capture device, stops metering and
// speech-to-text, unpublishes the track, and resets the volume. A no-op
// when not recording.
func (m *Manager) StopRecording() {
	m.mu.Lock()
	if !m.state.IsRecording {
		m.mu.Unlock()
		return
	}
	track := m.track
	tr := m.connected
	m.track = nil
	m.mu.Unlock()

	if m.cfg.Recognizer != nil {
		if err := m.cfg.Recognizer.Stop(); err != nil {
			slog.Debug("voice: stop recognizer", "err", err)
		}
	}
	if track != nil {
		track.Close()
	}
	if tr != nil {
		tr.unpublish()
	}

	m.setState(func(s *State) {
		s.IsRecording = false
		s.IsListening = false
		s.Volume = 0
	})
}

// Speak plays the text through the speech-synthesis capability, cancelling
// any in-flight playback first so at most one playback is ever active. It
// returns when playback naturally ends, or a voice error on failure. A
// no-op when voice is disabled or the capability is absent.
func (m *Manager) Speak(text string) error {
	if !m.cfg.Enabled || m.cfg.Speaker == nil {
		return nil
	}
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.cfg.Speaker.Cancel()
	m.playMu.Lock()
	defer m.playMu.Unlock()

	m.setState(func(s *State) { s.IsPlaying = true })
	err := m.cfg.Speaker.Speak(text)
	m.setState(func(s *State) { s.IsPlaying = false })
	if err != nil {
		ve := wrapVoiceErr(err)
		m.emitError(ve)
		return ve
	}
	return nil
}

// Disconnect tears the session down: refresh timer, recording, playback,
// transport, observers. Idempotent and safe to call from an unmount path;
// afterwards the state equals a freshly constructed manager's.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	refresh := m.refresh
	m.refresh = nil
	tr := m.connected
	m.connected = nil
	recording := m.state.IsRecording
	track := m.track
	m.track = nil
	m.mu.Unlock()

	if refresh != nil {
		close(refresh)
	}
	if recording {
		if m.cfg.Recognizer != nil {
			if err := m.cfg.Recognizer.Stop(); err != nil {
				slog.Debug("voice: stop recognizer", "err", err)
			}
		}
		if track != nil {
			track.Close()
		}
	}
	if m.cfg.Speaker != nil {
		m.cfg.Speaker.Cancel()
	}
	if tr != nil {
		tr.close()
	}

	m.mu.Lock()
	m.state = State{}
	m.mu.Unlock()

	m.obsMu.Lock()
	m.stateObs = make(map[int]func(State))
	m.transcriptObs = make(map[int]func(string))
	m.errorObs = make(map[int]func(*Error))
	m.obsMu.Unlock()
}

// setState applies a mutation under the lock and broadcasts the new
// snapshot. Destroyed managers drop mutations so late goroutine exits
// cannot resurrect state.
func (m *Manager) setState(mutate func(*State)) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	mutate(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	m.obsMu.Lock()
	fns := make([]func(State), 0, len(m.stateObs))
	for _, fn := range m.stateObs {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

// setVolume publishes a meter reading. Readings arriving after recording
// stopped are stale and dropped.
func (m *Manager) setVolume(v int) {
	m.mu.Lock()
	if m.destroyed || !m.state.IsRecording {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.setState(func(s *State) {
		if s.IsRecording {
			s.Volume = v
		}
	})
}

// emitError records the error in state and notifies error observers.
func (m *Manager) emitError(e *Error) {
	m.setState(func(s *State) { s.Err = e })
	m.obsMu.Lock()
	fns := make([]func(*Error), 0, len(m.errorObs))
	for _, fn := range m.errorObs {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
