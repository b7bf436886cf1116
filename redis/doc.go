// Package redis provides the Redis client wrapper and the transcript
// publisher that pushes recognized speech onto the meeting bus.
//
// The publisher speaks the bus envelope the meeting backend expects:
// an UpdateTranscriptPubMsg on the to-akka-apps channel, routed by
// meeting and user id. Publishing degrades gracefully: without a
// connected client, messages are skipped with a warning instead of
// failing the pipeline.
package redis
