package agent

import (
	"context"
	"errors"
	"io"

	"github.com/skillsenselab/meetscribe/events"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/room"
	"github.com/skillsenselab/meetscribe/stt"
)

// run is the pipeline goroutine. It forwards audio frames into the STT
// session and drains the session's events into the emitter until both
// sides end or the context is cancelled. Every exit path deregisters
// the handle exactly once and never propagates a failure to the
// caller.
func (m *Manager) run(ctx context.Context, participantID, loc string, h *handle, source room.AudioSource, interim bool) {
	log := m.log.WithParticipant(participantID)

	defer close(h.done)
	defer m.remove(participantID, h)
	defer h.session.Close()
	defer source.Close()

	go m.forwardAudio(ctx, participantID, h.session, source)

	for {
		select {
		case <-ctx.Done():
			log.Debug("pipeline cancelled")
			return
		case ev, ok := <-h.session.Events():
			if !ok {
				log.Debug("stt session ended")
				return
			}
			switch ev.Type {
			case stt.SpeechFinal:
				m.emitter.Emit(events.KindFinalTranscript, events.Transcript{
					Participant: participantID,
					Locale:      loc,
					Speech:      ev,
				})
			case stt.SpeechInterim:
				if interim {
					m.emitter.Emit(events.KindInterimTranscript, events.Transcript{
						Participant: participantID,
						Locale:      loc,
						Speech:      ev,
					})
				}
			}
		}
	}
}

// forwardAudio pushes frames from the source into the session until
// end of stream, failure, or cancellation. End of stream asks the
// session to flush; the event drain keeps running until the session's
// output also ends.
func (m *Manager) forwardAudio(ctx context.Context, participantID string, session stt.Session, source room.AudioSource) {
	log := m.log.WithParticipant(participantID)
	for {
		frame, err := source.ReadFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				if cerr := session.CloseSend(); cerr != nil {
					log.WithError(cerr).Warn("stt flush failed")
				}
			case ctx.Err() != nil:
				// Cancellation is clean shutdown, not an error.
			default:
				log.WithError(err).Error("audio read failed", map[string]interface{}{
					logger.FieldOperation: "read_frame",
				})
				if cerr := session.CloseSend(); cerr != nil {
					log.WithError(cerr).Warn("stt flush failed")
				}
			}
			return
		}
		if err := session.Push(ctx, frame); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("audio push failed", map[string]interface{}{
					logger.FieldOperation: "push_frame",
				})
				if cerr := session.CloseSend(); cerr != nil {
					log.WithError(cerr).Warn("stt flush failed")
				}
			}
			return
		}
	}
}
