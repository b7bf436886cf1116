package livekit

import (
	"context"
	"encoding/json"

	"github.com/skillsenselab/meetscribe/logger"
)

// Client signal types carried over the room data channel.
const (
	signalSetLocale = "setLocale"
	signalSettings  = "settings"
)

// clientSignal is the JSON payload clients send to choose or change
// their transcription settings.
type clientSignal struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Locale   string `json:"locale"`
	Provider string `json:"provider"`
}

// parseSignal decodes a data-channel payload. The sender identity
// fills in a missing userId, and the default provider fills in a
// missing provider on settings signals.
func parseSignal(payload []byte, sender, defaultProvider string) (clientSignal, bool) {
	var sig clientSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return clientSignal{}, false
	}
	switch sig.Type {
	case signalSetLocale, signalSettings:
	default:
		return clientSignal{}, false
	}
	if sig.UserID == "" {
		sig.UserID = sender
	}
	if sig.Type == signalSettings && sig.Provider == "" {
		sig.Provider = defaultProvider
	}
	return sig, true
}

func handleSignal(ctx context.Context, payload []byte, sender, defaultProvider string, agent Agent, log *logger.Logger) {
	sig, ok := parseSignal(payload, sender, defaultProvider)
	if !ok {
		log.Debug("ignoring unrecognized data packet", map[string]interface{}{
			"sender": sender,
		})
		return
	}

	log.WithParticipant(sig.UserID).Debug("client signal received", map[string]interface{}{
		"signal":             sig.Type,
		logger.FieldLocale:   sig.Locale,
		logger.FieldProvider: sig.Provider,
	})

	switch sig.Type {
	case signalSettings:
		agent.RecordSettings(sig.UserID, sig.Locale, sig.Provider)
	case signalSetLocale:
		agent.UpdateLocale(ctx, sig.UserID, sig.Locale)
	}
}
