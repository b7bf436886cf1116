// Package locale reduces BCP-47 language tags to the primary subtag
// expected by streaming transcription backends, and expands bare
// subtags back to full tags for downstream consumers.
package locale
