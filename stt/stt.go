package stt

import "context"

// SpeechEventType distinguishes provisional from settled recognition
// results.
type SpeechEventType string

const (
	// SpeechInterim marks a provisional hypothesis that may be revised.
	SpeechInterim SpeechEventType = "interim"
	// SpeechFinal marks a settled result for a completed utterance.
	SpeechFinal SpeechEventType = "final"
)

// SpeechEvent is one recognition result from a streaming session.
type SpeechEvent struct {
	Type SpeechEventType
	// Text is the recognized utterance.
	Text string
	// Language is the language the backend detected or was configured
	// with for this utterance, as reported by the backend.
	Language string
	// Start and End are utterance boundaries in seconds from session
	// start.
	Start float64
	End   float64
	// Confidence is the backend's score for the utterance, in [0, 1].
	Confidence float64
}

// SessionConfig carries the per-participant parameters for opening a
// streaming session.
type SessionConfig struct {
	// Languages restricts recognition to these codes. Empty means the
	// backend's automatic detection.
	Languages []string
	// SampleRate is the rate of the PCM audio pushed into the session,
	// in hertz.
	SampleRate int
	// Channels is the channel count of the pushed audio.
	Channels int
	// InterimResults enables provisional hypotheses in addition to
	// finals.
	InterimResults bool
}

// Session is one live streaming recognition stream.
//
// Push and UpdateLanguages may be called concurrently with reads from
// Events. After CloseSend the backend flushes buffered audio, emits any
// trailing finals, and closes the Events channel.
type Session interface {
	// Push sends one frame of raw PCM audio to the backend.
	Push(ctx context.Context, pcm []byte) error
	// Events returns the stream of recognition results. The channel is
	// closed when the session ends, normally or not.
	Events() <-chan SpeechEvent
	// UpdateLanguages reconfigures recognition languages mid-stream.
	UpdateLanguages(ctx context.Context, languages []string) error
	// CloseSend signals end of audio and asks the backend to flush.
	CloseSend() error
	// Close tears the session down immediately. Safe after CloseSend.
	Close() error
}

// Opener dials new sessions against one backend.
type Opener interface {
	// Open establishes a streaming session. The context bounds the
	// handshake, not the session lifetime.
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
}
