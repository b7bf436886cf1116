package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/skillsenselab/meetscribe/events"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/room"
	"github.com/skillsenselab/meetscribe/stt"
)

// --- fakes -----------------------------------------------------------------

type fakeRoster struct {
	mu           sync.Mutex
	participants map[string]*fakeParticipant
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{participants: make(map[string]*fakeParticipant)}
}

func (r *fakeRoster) add(p *fakeParticipant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.identity] = p
}

func (r *fakeRoster) Participant(identity string) (room.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	return p, ok
}

type fakeParticipant struct {
	identity string
	tracks   []room.Track
}

func (p *fakeParticipant) Identity() string     { return p.identity }
func (p *fakeParticipant) Tracks() []room.Track { return p.tracks }

type fakeTrack struct {
	source  room.TrackSource
	audio   *fakeSource
	openErr error
}

func (t *fakeTrack) Source() room.TrackSource { return t.source }

func (t *fakeTrack) OpenSource(context.Context) (room.AudioSource, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.audio, nil
}

type fakeSource struct {
	frames  chan []byte
	failErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan []byte, 16)}
}

func (s *fakeSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			if s.failErr != nil {
				return nil, s.failErr
			}
			return nil, io.EOF
		}
		return f, nil
	}
}

func (s *fakeSource) SampleRate() int { return 16000 }
func (s *fakeSource) Channels() int   { return 1 }
func (s *fakeSource) Close() error    { return nil }

type fakeSession struct {
	mu        sync.Mutex
	pushed    [][]byte
	pushErr   error
	langCalls [][]string
	events    chan stt.SpeechEvent
	flushed   bool
	closed    bool
	endOnce   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan stt.SpeechEvent, 16)}
}

func (s *fakeSession) Push(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed = append(s.pushed, pcm)
	return nil
}

func (s *fakeSession) Events() <-chan stt.SpeechEvent { return s.events }

func (s *fakeSession) UpdateLanguages(_ context.Context, languages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.langCalls = append(s.langCalls, languages)
	return nil
}

func (s *fakeSession) CloseSend() error {
	s.mu.Lock()
	s.flushed = true
	s.mu.Unlock()
	s.endOnce.Do(func() { close(s.events) })
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	opens    int
	configs  []stt.SessionConfig
	sessions []*fakeSession
	err      error
}

func (o *fakeOpener) Open(_ context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.opens++
	o.configs = append(o.configs, cfg)
	s := newFakeSession()
	o.sessions = append(o.sessions, s)
	return s, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *fakeOpener) session(i int) *fakeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[i]
}

// blockingOpener parks inside Open so tests can interleave manager
// operations with an in-flight session dial.
type blockingOpener struct {
	fakeOpener
	entered chan struct{}
	release chan struct{}
}

func newBlockingOpener() *blockingOpener {
	return &blockingOpener{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (o *blockingOpener) Open(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	o.entered <- struct{}{}
	<-o.release
	return o.fakeOpener.Open(ctx, cfg)
}

type transcriptSink struct {
	mu       sync.Mutex
	finals   []events.Transcript
	interims []events.Transcript
}

func (c *transcriptSink) bind(e *events.Emitter) {
	e.Subscribe(events.KindFinalTranscript, func(tr events.Transcript) {
		c.mu.Lock()
		c.finals = append(c.finals, tr)
		c.mu.Unlock()
	})
	e.Subscribe(events.KindInterimTranscript, func(tr events.Transcript) {
		c.mu.Lock()
		c.interims = append(c.interims, tr)
		c.mu.Unlock()
	})
}

func (c *transcriptSink) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finals), len(c.interims)
}

// --- rig -------------------------------------------------------------------

type rig struct {
	manager *Manager
	roster  *fakeRoster
	opener  *fakeOpener
	sink    *transcriptSink
	emitter *events.Emitter
}

func newRig(t *testing.T, interim bool) *rig {
	t.Helper()
	log := logger.NewDefault("test")
	emitter := events.NewEmitter(log)
	t.Cleanup(emitter.Close)

	roster := newFakeRoster()
	opener := &fakeOpener{}
	stt.Register(t.Name(), opener)

	sink := &transcriptSink{}
	sink.bind(emitter)

	return &rig{
		manager: NewManager(roster, emitter, Config{InterimResults: interim}, log),
		roster:  roster,
		opener:  opener,
		sink:    sink,
		emitter: emitter,
	}
}

func (r *rig) addSpeaker(id string) *fakeSource {
	src := newFakeSource()
	r.roster.add(&fakeParticipant{
		identity: id,
		tracks:   []room.Track{&fakeTrack{source: room.SourceMicrophone, audio: src}},
	})
	return src
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// --- tests -----------------------------------------------------------------

func TestStartRunsPipeline(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())

	if !r.manager.Active("user-1") {
		t.Fatal("expected active pipeline")
	}
	if got := r.opener.openCount(); got != 1 {
		t.Fatalf("expected 1 session opened, got %d", got)
	}
	cfg := r.opener.configs[0]
	if len(cfg.Languages) != 1 || cfg.Languages[0] != "en" {
		t.Errorf("expected normalized language [en], got %v", cfg.Languages)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("session config should mirror the audio source: %+v", cfg)
	}

	src.frames <- []byte{1, 2}
	sess := r.opener.session(0)
	waitUntil(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return len(sess.pushed) == 1
	})
}

func TestStartPersistsSettings(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "pt-BR", t.Name())

	s, ok := r.manager.SettingsFor("user-1")
	if !ok {
		t.Fatal("expected settings persisted by start")
	}
	if s.Locale != "pt-BR" || s.Provider != t.Name() {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestDuplicateStartIsNoOp(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.Start(context.Background(), "user-1", "fr-FR", t.Name())

	if got := r.opener.openCount(); got != 1 {
		t.Fatalf("duplicate start must not open a second session, got %d", got)
	}
	// The original pipeline's settings stay untouched.
	s, _ := r.manager.SettingsFor("user-1")
	if s.Locale != "en-US" {
		t.Errorf("duplicate start must not replace settings, got %+v", s)
	}
}

func TestStartParticipantNotFound(t *testing.T) {
	r := newRig(t, false)

	r.manager.Start(context.Background(), "ghost", "en-US", t.Name())

	if r.manager.Active("ghost") {
		t.Error("no pipeline expected for unknown participant")
	}
	if _, ok := r.manager.SettingsFor("ghost"); ok {
		t.Error("no settings mutation expected for unknown participant")
	}
	if r.opener.openCount() != 0 {
		t.Error("no session expected for unknown participant")
	}
}

func TestStartNoAudioTrack(t *testing.T) {
	r := newRig(t, false)
	r.roster.add(&fakeParticipant{identity: "user-1"})

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())

	if r.manager.Active("user-1") {
		t.Error("no pipeline expected without an audio track")
	}
}

func TestStartUnknownProvider(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", "no-such-provider")

	if r.manager.Active("user-1") {
		t.Error("no pipeline expected for unknown provider")
	}
}

func TestStopUnknownIsNoOp(t *testing.T) {
	r := newRig(t, false)
	r.manager.Stop("never-started")
}

func TestStopRemovesActiveEntry(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.Stop("user-1")

	if r.manager.Active("user-1") {
		t.Fatal("expected active entry removed by stop")
	}
	sess := r.opener.session(0)
	waitUntil(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.closed
	})
}

func TestOnParticipantLeftClearsState(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.OnParticipantLeft("user-1")

	if r.manager.Active("user-1") {
		t.Error("expected no active entry after leave")
	}
	if _, ok := r.manager.SettingsFor("user-1"); ok {
		t.Error("expected settings removed after leave")
	}
	// Unknown participant is a no-op on both registries.
	r.manager.OnParticipantLeft("ghost")
}

func TestUpdateLocaleWithActivePipeline(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.UpdateLocale(context.Background(), "user-1", "fr-FR")

	s, _ := r.manager.SettingsFor("user-1")
	if s.Locale != "fr-FR" {
		t.Errorf("expected stored locale fr-FR, got %q", s.Locale)
	}
	sess := r.opener.session(0)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.langCalls) != 1 {
		t.Fatalf("expected one language update, got %d", len(sess.langCalls))
	}
	if len(sess.langCalls[0]) != 1 || sess.langCalls[0][0] != "fr" {
		t.Errorf("expected normalized single-element update [fr], got %v", sess.langCalls[0])
	}
}

func TestUpdateLocaleWithoutActivePipeline(t *testing.T) {
	r := newRig(t, false)

	r.manager.RecordSettings("user-1", "en-US", t.Name())
	r.manager.UpdateLocale(context.Background(), "user-1", "de-DE")

	s, _ := r.manager.SettingsFor("user-1")
	if s.Locale != "de-DE" {
		t.Errorf("expected stored locale de-DE, got %q", s.Locale)
	}
	if r.opener.openCount() != 0 {
		t.Error("no session expected")
	}
}

func TestUpdateLocaleUnknownParticipantIsNoOp(t *testing.T) {
	r := newRig(t, false)

	r.manager.UpdateLocale(context.Background(), "ghost", "fr-FR")

	if _, ok := r.manager.SettingsFor("ghost"); ok {
		t.Error("update on unknown participant must not create settings")
	}
}

func TestRecordSettingsMergesFields(t *testing.T) {
	r := newRig(t, false)

	r.manager.RecordSettings("user-1", "", "gladia")
	r.manager.RecordSettings("user-1", "en-US", "")

	s, _ := r.manager.SettingsFor("user-1")
	if s.Locale != "en-US" || s.Provider != "gladia" {
		t.Errorf("expected merged settings, got %+v", s)
	}
}

func TestInterimGatingDisabled(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	sess := r.opener.session(0)
	sess.events <- stt.SpeechEvent{Type: stt.SpeechFinal, Text: "done"}
	sess.events <- stt.SpeechEvent{Type: stt.SpeechInterim, Text: "don"}
	close(src.frames)

	waitUntil(t, func() bool { return !r.manager.Active("user-1") })
	waitUntil(t, func() bool {
		finals, _ := r.sink.counts()
		return finals == 1
	})
	_, interims := r.sink.counts()
	if interims != 0 {
		t.Errorf("interims disabled, expected 0 interim events, got %d", interims)
	}
}

func TestInterimGatingEnabled(t *testing.T) {
	r := newRig(t, true)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	sess := r.opener.session(0)
	sess.events <- stt.SpeechEvent{Type: stt.SpeechFinal, Text: "done"}
	sess.events <- stt.SpeechEvent{Type: stt.SpeechInterim, Text: "don"}
	close(src.frames)

	waitUntil(t, func() bool {
		finals, interims := r.sink.counts()
		return finals == 1 && interims == 1
	})
}

func TestInputEOFFlushesSession(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	close(src.frames)

	sess := r.opener.session(0)
	waitUntil(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.flushed
	})
	waitUntil(t, func() bool { return !r.manager.Active("user-1") })
}

func TestAudioFailureRemovesActiveEntry(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")
	src.failErr = errors.New("decoder broke")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	close(src.frames)

	waitUntil(t, func() bool { return !r.manager.Active("user-1") })
}

func TestTranscriptCarriesParticipantAndLocale(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "pt-BR", t.Name())
	sess := r.opener.session(0)
	sess.events <- stt.SpeechEvent{Type: stt.SpeechFinal, Text: "ola"}
	close(src.frames)

	waitUntil(t, func() bool {
		finals, _ := r.sink.counts()
		return finals == 1
	})
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	tr := r.sink.finals[0]
	if tr.Participant != "user-1" {
		t.Errorf("expected participant user-1, got %q", tr.Participant)
	}
	if tr.Locale != "pt-BR" {
		t.Errorf("locale must be stored un-normalized, got %q", tr.Locale)
	}
}

func TestOnTrackAvailableStartsWithCompleteSettings(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.RecordSettings("user-1", "en-US", t.Name())
	track := &fakeTrack{source: room.SourceMicrophone, audio: newFakeSource()}
	r.manager.OnTrackAvailable(context.Background(), track, "user-1")

	if !r.manager.Active("user-1") {
		t.Fatal("expected pipeline started from track signal")
	}
}

func TestOnTrackAvailableIgnoresNonMicrophone(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")
	r.manager.RecordSettings("user-1", "en-US", t.Name())

	track := &fakeTrack{source: room.SourceScreenShareAudio}
	r.manager.OnTrackAvailable(context.Background(), track, "user-1")

	if r.manager.Active("user-1") {
		t.Error("non-microphone source must never start a pipeline")
	}
}

func TestOnTrackAvailableRequiresCompleteSettings(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")
	track := &fakeTrack{source: room.SourceMicrophone, audio: newFakeSource()}

	// No settings at all.
	r.manager.OnTrackAvailable(context.Background(), track, "user-1")
	if r.manager.Active("user-1") {
		t.Fatal("no pipeline expected without settings")
	}

	// Locale only.
	r.manager.RecordSettings("user-1", "en-US", "")
	r.manager.OnTrackAvailable(context.Background(), track, "user-1")
	if r.manager.Active("user-1") {
		t.Fatal("no pipeline expected without provider")
	}

	// Provider only.
	r.manager.OnParticipantLeft("user-1")
	r.manager.RecordSettings("user-1", "", t.Name())
	r.manager.OnTrackAvailable(context.Background(), track, "user-1")
	if r.manager.Active("user-1") {
		t.Fatal("no pipeline expected without locale")
	}
}

func TestLeaveDuringSessionOpenDiscardsPipeline(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	opener := newBlockingOpener()
	provider := t.Name() + "/blocking"
	stt.Register(provider, opener)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.manager.Start(context.Background(), "user-1", "en-US", provider)
	}()

	<-opener.entered
	r.manager.OnParticipantLeft("user-1")
	close(opener.release)
	<-done

	if r.manager.Active("user-1") {
		t.Fatal("departed participant must not end up with an active pipeline")
	}
	if s, ok := r.manager.SettingsFor("user-1"); ok {
		t.Fatalf("departed participant must not end up with settings, got %+v", s)
	}
	sess := opener.session(0)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.closed {
		t.Error("discarded session must be closed")
	}
}

func TestPushFailureFlushesSession(t *testing.T) {
	r := newRig(t, false)
	src := r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	sess := r.opener.session(0)
	sess.mu.Lock()
	sess.pushErr = errors.New("socket gone")
	sess.mu.Unlock()

	src.frames <- []byte{1}

	// The flush ends the event stream, which tears the pipeline down.
	waitUntil(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.flushed
	})
	waitUntil(t, func() bool { return !r.manager.Active("user-1") })
}

func TestShutdownAllStopsEverything(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")
	r.addSpeaker("user-2")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.Start(context.Background(), "user-2", "fr-FR", t.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.manager.ShutdownAll(ctx)

	if r.manager.Active("user-1") || r.manager.Active("user-2") {
		t.Error("expected all pipelines removed")
	}
	for i := 0; i < 2; i++ {
		sess := r.opener.session(i)
		sess.mu.Lock()
		closed := sess.closed
		sess.mu.Unlock()
		if !closed {
			t.Errorf("session %d not closed after shutdown", i)
		}
	}
}

func TestRestartAfterStop(t *testing.T) {
	r := newRig(t, false)
	r.addSpeaker("user-1")

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	r.manager.Stop("user-1")
	waitUntil(t, func() bool {
		sess := r.opener.session(0)
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.closed
	})

	r.manager.Start(context.Background(), "user-1", "en-US", t.Name())
	if !r.manager.Active("user-1") {
		t.Fatal("expected fresh pipeline after stop")
	}
	if r.opener.openCount() != 2 {
		t.Errorf("expected second session opened, got %d", r.opener.openCount())
	}
}
