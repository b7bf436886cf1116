// Package stt defines the speech-to-text backend contract and the
// provider registry used to select an implementation by name.
//
// A backend exposes an Opener that dials one streaming recognition
// session per participant. The session accepts raw PCM audio via Push
// and surfaces recognition results on the Events channel until the
// stream ends. Concrete providers live in subpackages (gladia) and
// register themselves with Register.
package stt
