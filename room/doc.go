// Package room abstracts the media transport a session agent observes.
//
// The agent consumes participants and their audio tracks through these
// interfaces; the livekit subpackage provides the concrete transport.
package room
