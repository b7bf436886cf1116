// Package events provides the in-process publish/subscribe bus that
// decouples transcription pipelines from transcript consumers (bus
// relay, logging).
//
// Handlers are invoked asynchronously: Emit never blocks the caller on
// handler completion. Within one event kind, handlers run in
// registration order and emissions are delivered FIFO; no ordering is
// guaranteed between different kinds. A panicking handler never
// prevents its siblings from running.
package events
