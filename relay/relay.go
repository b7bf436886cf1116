package relay

import (
	"context"
	"strconv"
	"time"

	"github.com/skillsenselab/meetscribe/events"
	"github.com/skillsenselab/meetscribe/locale"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/redis"
)

// Sink receives formatted transcript updates. redis.Publisher is the
// default implementation; additional sinks (Kafka mirror) may be
// attached alongside it.
type Sink interface {
	Publish(ctx context.Context, u redis.TranscriptUpdate) error
}

// Config carries the relay's publishing policies.
type Config struct {
	// MeetingID routes published transcripts to one meeting.
	MeetingID string
	// MinUtteranceSeconds drops final transcripts shorter than this
	// duration. Zero disables the filter. Interims are never dropped
	// by duration since their boundaries are still moving.
	MinUtteranceSeconds float64
	// Translations expands bare locale subtags before publishing.
	Translations locale.Translations
	// PublishTimeout bounds each sink call.
	PublishTimeout time.Duration
}

// Relay subscribes to transcript events and forwards them to sinks.
type Relay struct {
	cfg   Config
	sinks []Sink
	log   *logger.Logger
}

// New creates a relay over the given sinks.
func New(cfg Config, log *logger.Logger, sinks ...Sink) *Relay {
	if cfg.Translations == nil {
		cfg.Translations = locale.DefaultTranslations()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Relay{cfg: cfg, sinks: sinks, log: log.WithComponent("relay")}
}

// Bind subscribes the relay to an emitter's transcript events.
func (r *Relay) Bind(e *events.Emitter) {
	e.Subscribe(events.KindFinalTranscript, func(tr events.Transcript) {
		r.forward(tr, true)
	})
	e.Subscribe(events.KindInterimTranscript, func(tr events.Transcript) {
		r.forward(tr, false)
	})
}

func (r *Relay) forward(tr events.Transcript, final bool) {
	log := r.log.WithParticipant(tr.Participant)

	if final && r.cfg.MinUtteranceSeconds > 0 {
		duration := tr.Speech.End - tr.Speech.Start
		if duration < r.cfg.MinUtteranceSeconds {
			log.Debug("dropping short utterance", map[string]interface{}{
				"duration_s": duration,
				"minimum_s":  r.cfg.MinUtteranceSeconds,
			})
			return
		}
	}

	update := redis.TranscriptUpdate{
		MeetingID:  r.cfg.MeetingID,
		UserID:     tr.Participant,
		Transcript: tr.Speech.Text,
		Locale:     r.publishLocale(tr),
		Result:     final,
		Start:      formatSeconds(tr.Speech.Start),
		End:        formatSeconds(tr.Speech.End),
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PublishTimeout)
	defer cancel()
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, update); err != nil {
			log.WithError(err).Error("transcript publish failed")
		}
	}
}

// publishLocale picks the tag the bus sees: the participant's stored
// locale when present, otherwise the language the backend reported,
// either way expanded to a full tag when the client sent a bare
// subtag.
func (r *Relay) publishLocale(tr events.Transcript) string {
	tag := tr.Locale
	if tag == "" {
		tag = tr.Speech.Language
	}
	return r.cfg.Translations.Expand(tag)
}

func formatSeconds(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
