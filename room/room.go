package room

import "context"

// TrackSource classifies where a published track's media comes from.
type TrackSource int

const (
	SourceUnknown TrackSource = iota
	SourceMicrophone
	SourceScreenShareAudio
)

// Roster resolves live participants by identity.
type Roster interface {
	// Participant returns the live participant, or false if they have
	// left or never joined.
	Participant(identity string) (Participant, bool)
}

// Participant is a remote member of the session.
type Participant interface {
	// Identity is the stable identifier the client joined with.
	Identity() string
	// Tracks lists the participant's currently published audio tracks.
	Tracks() []Track
}

// Track is a published audio track of a participant.
type Track interface {
	// Source reports the capture source of the track.
	Source() TrackSource
	// OpenSource starts consuming the track's media as PCM audio.
	OpenSource(ctx context.Context) (AudioSource, error)
}

// AudioSource delivers decoded PCM frames from one track.
type AudioSource interface {
	// ReadFrame returns the next PCM frame. It returns io.EOF when the
	// track has ended and no more frames will arrive.
	ReadFrame(ctx context.Context) ([]byte, error)
	// SampleRate is the rate of the returned PCM, in hertz.
	SampleRate() int
	// Channels is the channel count of the returned PCM.
	Channels() int
	// Close releases the decoder and stops consumption.
	Close() error
}
