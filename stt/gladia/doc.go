// Package gladia implements the stt contract against the Gladia
// real-time transcription API.
//
// A session is established in two steps: an HTTP POST registers the
// live session and returns a dedicated websocket URL, then audio is
// streamed as binary websocket frames while transcript messages come
// back as JSON. Language changes and end-of-audio are signalled with
// JSON control frames on the same connection.
package gladia
