// Package livekit binds the room abstraction to a LiveKit server.
//
// It connects as an agent participant, mirrors room callbacks into the
// lifecycle manager, decodes subscribed Opus tracks into 16 kHz mono
// PCM for the STT backends, and accepts client settings signals over
// the room data channel.
package livekit
