package agent

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/meetscribe/events"
	"github.com/skillsenselab/meetscribe/locale"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/room"
	"github.com/skillsenselab/meetscribe/stt"
)

// Settings is the per-participant transcription preference record.
// Fields arrive from client signals and may be set independently; a
// pipeline starts only once both are present.
type Settings struct {
	// Locale is stored exactly as received from the client. It is
	// normalized only at the session boundary.
	Locale string
	// Provider names the registered STT backend to use.
	Provider string
}

// handle is one running pipeline. The identity of the pointer is used
// to guard registry removal, so a finished pipeline can never evict a
// successor registered under the same participant.
type handle struct {
	session stt.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config carries the manager's pipeline parameters.
type Config struct {
	// InterimResults enables emission of provisional transcripts. The
	// value is captured per pipeline at start time.
	InterimResults bool
}

// Manager orchestrates per-participant transcription pipelines.
type Manager struct {
	mu       sync.Mutex
	settings map[string]Settings
	active   map[string]*handle
	// departures counts how often each participant has left. Start
	// captures the count before dialing and re-checks it before
	// registering, so a leave during the dial discards the pipeline
	// instead of resurrecting the participant's registries.
	departures map[string]uint64

	roster  room.Roster
	emitter *events.Emitter
	cfg     Config
	log     *logger.Logger
}

// NewManager creates a lifecycle manager over the given roster.
func NewManager(roster room.Roster, emitter *events.Emitter, cfg Config, log *logger.Logger) *Manager {
	return &Manager{
		settings:   make(map[string]Settings),
		active:     make(map[string]*handle),
		departures: make(map[string]uint64),
		roster:     roster,
		emitter:    emitter,
		cfg:        cfg,
		log:        log.WithComponent("agent"),
	}
}

// RecordSettings upserts the participant's preference record. Empty
// arguments leave the corresponding stored field untouched, so a
// locale-only signal does not erase a previously chosen provider.
// A running pipeline is not affected.
func (m *Manager) RecordSettings(participantID, loc, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings[participantID]
	if loc != "" {
		s.Locale = loc
	}
	if provider != "" {
		s.Provider = provider
	}
	m.settings[participantID] = s
}

// UpdateLocale changes the participant's stored locale and, when a
// pipeline is running, reconfigures the live session's recognition
// language. Unknown participants are a no-op.
func (m *Manager) UpdateLocale(ctx context.Context, participantID, newLocale string) {
	m.mu.Lock()
	s, ok := m.settings[participantID]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.Locale = newLocale
	m.settings[participantID] = s
	h := m.active[participantID]
	m.mu.Unlock()

	if h == nil {
		return
	}
	if err := h.session.UpdateLanguages(ctx, []string{locale.Normalize(newLocale)}); err != nil {
		m.log.WithParticipant(participantID).WithError(err).Warn("language update failed", map[string]interface{}{
			logger.FieldLocale: newLocale,
		})
	}
}

// Stop cancels the participant's pipeline, if any. Stopping a
// participant with no active pipeline is a valid no-op.
func (m *Manager) Stop(participantID string) {
	m.mu.Lock()
	h, ok := m.active[participantID]
	if ok {
		delete(m.active, participantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	m.log.WithParticipant(participantID).Debug("pipeline stop requested")
}

// OnParticipantLeft stops the participant's pipeline and forgets their
// settings. Unknown participants are a no-op.
func (m *Manager) OnParticipantLeft(participantID string) {
	m.Stop(participantID)
	m.mu.Lock()
	delete(m.settings, participantID)
	m.departures[participantID]++
	m.mu.Unlock()
}

// OnTrackAvailable reacts to a newly subscribed track. Non-microphone
// sources are ignored. A pipeline is started only when the participant
// has both a locale and a provider on record; anything less is the
// expected steady state while the client has not yet chosen settings.
func (m *Manager) OnTrackAvailable(ctx context.Context, track room.Track, participantID string) {
	if track.Source() != room.SourceMicrophone {
		return
	}
	m.mu.Lock()
	s, ok := m.settings[participantID]
	m.mu.Unlock()
	if !ok || s.Locale == "" || s.Provider == "" {
		m.log.WithParticipant(participantID).Debug("track available but settings incomplete, not starting")
		return
	}
	m.Start(ctx, participantID, s.Locale, s.Provider)
}

// Start launches a transcription pipeline for the participant. A
// duplicate start while a pipeline is running is a no-op and never
// replaces the original. The settings actually used are persisted.
func (m *Manager) Start(ctx context.Context, participantID, loc, provider string) {
	log := m.log.WithParticipant(participantID)

	m.mu.Lock()
	if _, running := m.active[participantID]; running {
		m.mu.Unlock()
		log.Debug("pipeline already running, ignoring start")
		return
	}
	departed := m.departures[participantID]
	m.mu.Unlock()

	p, found := m.roster.Participant(participantID)
	if !found {
		// The participant may have disconnected between signal and
		// processing.
		log.Error("participant not found in roster")
		return
	}
	track := microphoneTrack(p)
	if track == nil {
		log.Warn("participant has no audio track")
		return
	}

	opener, err := stt.Lookup(provider)
	if err != nil {
		log.WithError(err).Error("cannot resolve stt provider", map[string]interface{}{
			logger.FieldProvider: provider,
		})
		return
	}

	source, err := track.OpenSource(ctx)
	if err != nil {
		log.WithError(err).Error("cannot open audio source")
		return
	}

	session, err := opener.Open(ctx, stt.SessionConfig{
		Languages:      []string{locale.Normalize(loc)},
		SampleRate:     source.SampleRate(),
		Channels:       source.Channels(),
		InterimResults: m.cfg.InterimResults,
	})
	if err != nil {
		source.Close()
		log.WithError(err).Error("cannot open stt session", map[string]interface{}{
			logger.FieldProvider: provider,
		})
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{session: session, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	_, running := m.active[participantID]
	if running || m.departures[participantID] != departed {
		// Lost the race against a concurrent start or a leave while
		// dialing. Registering anyway would resurrect a departed
		// participant's registries.
		m.mu.Unlock()
		cancel()
		session.Close()
		source.Close()
		if running {
			log.Debug("pipeline already running, ignoring start")
		} else {
			log.Debug("participant left while session opened, discarding pipeline")
		}
		return
	}
	m.active[participantID] = h
	m.settings[participantID] = Settings{Locale: loc, Provider: provider}
	interim := m.cfg.InterimResults
	m.mu.Unlock()

	log.Info("pipeline started", map[string]interface{}{
		logger.FieldProvider: provider,
		logger.FieldLocale:   loc,
		logger.FieldLanguage: locale.Normalize(loc),
	})
	go m.run(runCtx, participantID, loc, h, source, interim)
}

// ShutdownAll cancels every currently active pipeline and waits for
// them to finish, bounded by the context. Pipelines started after the
// snapshot are left for a subsequent pass.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*handle, 0, len(m.active))
	for id, h := range m.active {
		snapshot = append(snapshot, h)
		delete(m.active, id)
	}
	m.mu.Unlock()

	for _, h := range snapshot {
		h.cancel()
	}
	for _, h := range snapshot {
		select {
		case <-h.done:
		case <-ctx.Done():
			m.log.Warn("shutdown wait expired with pipelines still draining")
			return
		}
	}
}

// Active reports whether the participant currently has a running
// pipeline.
func (m *Manager) Active(participantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[participantID]
	return ok
}

// SettingsFor returns the stored preference record for a participant.
func (m *Manager) SettingsFor(participantID string) (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[participantID]
	return s, ok
}

// remove deregisters h if it is still the participant's current
// pipeline. Handle identity makes removal exactly-once and keeps a
// finished pipeline from evicting a successor.
func (m *Manager) remove(participantID string, h *handle) {
	m.mu.Lock()
	if cur, ok := m.active[participantID]; ok && cur == h {
		delete(m.active, participantID)
	}
	m.mu.Unlock()
}

func microphoneTrack(p room.Participant) room.Track {
	for _, t := range p.Tracks() {
		if t.Source() == room.SourceMicrophone {
			return t
		}
	}
	return nil
}

// ShutdownGrace is the default bound for ShutdownAll contexts at
// process teardown.
const ShutdownGrace = 5 * time.Second
