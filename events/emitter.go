package events

import (
	"sync"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/stt"
)

// Kind identifies a domain event. The set is a closed enumeration.
type Kind string

const (
	// KindFinalTranscript carries a recognition result the backend will
	// not revise further.
	KindFinalTranscript Kind = "final_transcript"
	// KindInterimTranscript carries a provisional, revisable result.
	KindInterimTranscript Kind = "interim_transcript"
)

// Transcript is the payload of transcript events.
type Transcript struct {
	// Participant is the identity of the speaker.
	Participant string
	// Locale is the participant's stored locale at pipeline start,
	// as received from the client (un-normalized).
	Locale string
	// Speech is the STT event that produced this transcript.
	Speech stt.SpeechEvent
}

// Handler consumes a transcript event.
type Handler func(Transcript)

type emission struct {
	handlers []Handler
	payload  Transcript
}

// Emitter dispatches transcript events to subscribers. Each kind has
// its own dispatch goroutine so one slow consumer cannot reorder or
// stall events of another kind.
type Emitter struct {
	mu       sync.Mutex
	handlers map[Kind][]Handler
	queues   map[Kind]chan emission
	done     chan struct{}
	wg       sync.WaitGroup
	closed   bool
	log      *logger.Logger
}

// queueSize bounds the per-kind dispatch queue. Emissions beyond it are
// dropped with a warning rather than blocking the control path.
const queueSize = 256

// NewEmitter creates an emitter.
func NewEmitter(log *logger.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[Kind][]Handler),
		queues:   make(map[Kind]chan emission),
		done:     make(chan struct{}),
		log:      log.WithComponent("events"),
	}
}

// Subscribe registers a handler for an event kind. Handlers for one
// kind are retained and invoked in registration order.
func (e *Emitter) Subscribe(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], h)
}

// Emit schedules every handler registered for kind to run with the
// payload. Emitting a kind with no subscribers is a no-op. Emit does
// not block on handler completion.
func (e *Emitter) Emit(kind Kind, payload Transcript) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	handlers := e.handlers[kind]
	if len(handlers) == 0 {
		e.mu.Unlock()
		return
	}
	// Copy so a concurrent Subscribe cannot affect an in-flight emission.
	snapshot := make([]Handler, len(handlers))
	copy(snapshot, handlers)
	q := e.queue(kind)
	e.mu.Unlock()

	select {
	case q <- emission{handlers: snapshot, payload: payload}:
	default:
		e.log.Warn("event queue full, dropping emission", map[string]interface{}{
			"kind":                  string(kind),
			logger.FieldParticipant: payload.Participant,
		})
	}
}

// queue returns the dispatch queue for kind, starting its worker on
// first use. Caller must hold e.mu.
func (e *Emitter) queue(kind Kind) chan emission {
	q, ok := e.queues[kind]
	if !ok {
		q = make(chan emission, queueSize)
		e.queues[kind] = q
		e.wg.Add(1)
		go e.dispatch(kind, q)
	}
	return q
}

func (e *Emitter) dispatch(kind Kind, q chan emission) {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case em := <-q:
			for _, h := range em.handlers {
				e.invoke(kind, h, em.payload)
			}
		}
	}
}

// invoke runs one handler behind a recover boundary so a panic never
// prevents sibling handlers from running.
func (e *Emitter) invoke(kind Kind, h Handler, payload Transcript) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event handler panicked", map[string]interface{}{
				"kind":  string(kind),
				"panic": r,
			})
		}
	}()
	h(payload)
}

// Close stops dispatching. Queued emissions that have not started are
// discarded. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()
	e.wg.Wait()
}
