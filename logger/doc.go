// Package logger provides structured logging for meetscribe using
// zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with standard field keys
// for the transcription domain (participant, room, provider, locale).
//
// # Configuration
//
//	logger:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "meetscribe").WithComponent("agent")
//	log.Info("pipeline started", logger.Fields(logger.FieldParticipant, id))
package logger
