// Package agent contains the participant transcription lifecycle
// manager, the heart of meetscribe.
//
// The Manager owns two registries: per-participant settings (locale and
// STT provider, as chosen by the client) and active pipelines. Room
// signals (track subscribed, participant disconnected) and client
// signals (locale change) funnel into the Manager, which starts, stops,
// and reconfigures pipelines. Each pipeline bridges one participant's
// audio track into one streaming STT session and republishes the
// session's output through the event emitter.
//
// At most one pipeline runs per participant. Presence of the active
// map entry is the sole source of truth for "pipeline running"; the
// pipeline goroutine deregisters itself exactly once on every exit
// path.
package agent
