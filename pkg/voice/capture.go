package voice

import (
	"errors"
	"time"
)

// ErrTrackClosed is returned by Track.ReadFrame after Close; the frame pump
// treats it as a clean end of capture.
var ErrTrackClosed = errors.New("voice: track closed")

// Constraints configure microphone acquisition. The manager always requests
// an audio-only capture with all three processing stages enabled.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Frame is one captured audio frame: the encoded payload published to the
// transport plus the raw samples the volume meter reads.
type Frame struct {
	// Data is the encoded (opus) payload for the transport track.
	Data []byte

	// Samples are the raw 16-bit samples of this frame.
	Samples []int16

	// Duration is the frame duration (typically 20ms).
	Duration time.Duration
}

// Track is an open microphone capture. ReadFrame blocks for the next frame
// and returns an error once the track is closed or the device is lost.
type Track interface {
	ReadFrame() (Frame, error)
	Close() error
}

// Capture is the capability interface over the environment's media device
// API. Open returns ErrPermissionDenied (possibly wrapped) when the user
// denies access, or any other error when no device is available.
type Capture interface {
	Open(Constraints) (Track, error)
}

// Result is one speech-to-text result event: the alternatives from the
// current result index forward, already joined per alternative slot.
type Result struct {
	// Transcripts holds the recognized alternatives from the current result
	// index forward; the manager concatenates them into the running
	// transcript.
	Transcripts []string

	// Err reports a recognizer failure. ErrPermissionDenied escalates to a
	// voice error; other errors are logged.
	Err error
}

// Recognizer is the capability interface over the environment's continuous,
// interim-enabled speech recognition. Start is called once per recording
// session; the returned channel closes when recognition stops.
type Recognizer interface {
	Start() (<-chan Result, error)
	Stop() error
}

// Speaker is the capability interface over the environment's speech
// synthesis. Speak blocks until playback naturally ends; Cancel aborts any
// in-flight playback.
type Speaker interface {
	Speak(text string) error
	Cancel()
}
