// Package relay forwards transcript events from the in-process
// emitter to the downstream meeting bus.
//
// The relay applies the bus-facing policies that do not belong in the
// transcription core: final transcripts shorter than the configured
// minimum utterance duration are dropped, and bare locale subtags are
// expanded to the full tags the bus expects before publishing.
package relay
