package gladia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/stt"
)

const testKey = "test-key"

// fakeBackend emulates the registration endpoint and the live
// websocket.
type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	initReq  initRequest
	binary   [][]byte
	controls []controlEnvelope

	conns chan *websocket.Conn
}

type controlEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, conns: make(chan *websocket.Conn, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/live", b.handleInit)
	mux.HandleFunc("/ws", b.handleWS)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Gladia-Key") != testKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	if err := json.NewDecoder(r.Body).Decode(&b.initReq); err != nil {
		b.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(initResponse{
		ID:  "sess-1",
		URL: "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws",
	})
}

func (b *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.conns <- conn
	for {
		mt, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			b.mu.Lock()
			b.binary = append(b.binary, payload)
			b.mu.Unlock()
		case websocket.TextMessage:
			var env controlEnvelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			b.mu.Lock()
			b.controls = append(b.controls, env)
			b.mu.Unlock()
			if env.Type == msgTypeStopRecording {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}
	}
}

func (b *fakeBackend) serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func (b *fakeBackend) sendTranscript(t *testing.T, conn *websocket.Conn, final bool, text, lang string, start, end, confidence float64) {
	t.Helper()
	data, _ := json.Marshal(transcriptData{
		IsFinal: final,
		Utterance: utterance{
			Text:       text,
			Language:   lang,
			Start:      start,
			End:        end,
			Confidence: confidence,
		},
	})
	err := conn.WriteJSON(serverMessage{Type: msgTypeTranscript, Data: data})
	if err != nil {
		t.Fatalf("send transcript: %v", err)
	}
}

func openTestSession(t *testing.T, b *fakeBackend, sc stt.SessionConfig) stt.Session {
	t.Helper()
	opener, err := New(Config{APIKey: testKey, BaseURL: b.srv.URL}, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, err := opener.Open(context.Background(), sc)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestOpenRegistersSession(t *testing.T) {
	b := startBackend(t)
	openTestSession(t, b, stt.SessionConfig{
		Languages:      []string{"en"},
		SampleRate:     16000,
		Channels:       1,
		InterimResults: true,
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	req := b.initReq
	if req.Encoding != "wav/pcm" || req.BitDepth != 16 {
		t.Errorf("unexpected audio declaration: %+v", req)
	}
	if req.SampleRate != 16000 || req.Channels != 1 {
		t.Errorf("unexpected format: %+v", req)
	}
	if len(req.LanguageConfig.Languages) != 1 || req.LanguageConfig.Languages[0] != "en" {
		t.Errorf("unexpected languages: %v", req.LanguageConfig.Languages)
	}
	if !req.MessagesConfig.ReceivePartialTranscripts {
		t.Error("expected partial transcripts requested")
	}
	if req.PreProcessing.SpeechThreshold != 0.7 {
		t.Errorf("unexpected pre-processing: %+v", req.PreProcessing)
	}
}

func TestOpenRejectedByBackend(t *testing.T) {
	b := startBackend(t)
	opener, err := New(Config{APIKey: "wrong-key", BaseURL: b.srv.URL}, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := opener.Open(context.Background(), stt.SessionConfig{}); err == nil {
		t.Fatal("expected error for rejected registration")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, logger.NewDefault("test")); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestPushStreamsBinaryFrames(t *testing.T) {
	b := startBackend(t)
	sess := openTestSession(t, b, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	b.serverConn(t)

	if err := sess.Push(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.binary)
		b.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("binary frame never arrived")
}

func TestTranscriptEventsAndConfidenceFilter(t *testing.T) {
	b := startBackend(t)
	sess := openTestSession(t, b, stt.SessionConfig{SampleRate: 16000, Channels: 1, InterimResults: true})
	conn := b.serverConn(t)

	b.sendTranscript(t, conn, false, "hel", "en", 0.5, 1.0, 0.6)
	b.sendTranscript(t, conn, true, "noise", "en", 0.5, 1.0, 0.05) // below minimum
	b.sendTranscript(t, conn, true, "hello", "en", 0.5, 2.5, 0.92)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	var got []stt.SpeechEvent
	for ev := range sess.Events() {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events after filtering, got %d: %+v", len(got), got)
	}
	if got[0].Type != stt.SpeechInterim || got[0].Text != "hel" {
		t.Errorf("unexpected interim: %+v", got[0])
	}
	if got[1].Type != stt.SpeechFinal || got[1].Text != "hello" {
		t.Errorf("unexpected final: %+v", got[1])
	}
	if got[1].Start != 0.5 || got[1].End != 2.5 || got[1].Confidence != 0.92 {
		t.Errorf("unexpected boundaries: %+v", got[1])
	}
}

func TestCloseSendFlushesAndEndsStream(t *testing.T) {
	b := startBackend(t)
	sess := openTestSession(t, b, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	b.serverConn(t)

	if err := sess.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}

	select {
	case _, ok := <-sess.Events():
		if ok {
			t.Fatal("expected closed events channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.controls) != 1 || b.controls[0].Type != msgTypeStopRecording {
		t.Errorf("expected stop_recording control, got %+v", b.controls)
	}
}

func TestCloseUnblocksBackedUpReader(t *testing.T) {
	b := startBackend(t)
	sess := openTestSession(t, b, stt.SessionConfig{SampleRate: 16000, Channels: 1, InterimResults: true})
	conn := b.serverConn(t)

	// More transcripts than the event buffer holds, with no consumer
	// draining them.
	for i := 0; i < 64; i++ {
		b.sendTranscript(t, conn, true, "backlog", "en", 0, 1, 0.9)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The read loop must let go of pending events and close the stream
	// instead of parking on the channel send forever.
	drained := make(chan struct{})
	go func() {
		for range sess.Events() {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed after Close")
	}
}

func TestUpdateLanguagesSendsUpdateConfig(t *testing.T) {
	b := startBackend(t)
	sess := openTestSession(t, b, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	b.serverConn(t)

	if err := sess.UpdateLanguages(context.Background(), []string{"fr"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		if len(b.controls) == 1 {
			env := b.controls[0]
			b.mu.Unlock()
			if env.Type != msgTypeUpdateConfig {
				t.Fatalf("expected update_config, got %q", env.Type)
			}
			var data struct {
				LanguageConfig languageConfig `json:"language_config"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("bad control data: %v", err)
			}
			if len(data.LanguageConfig.Languages) != 1 || data.LanguageConfig.Languages[0] != "fr" {
				t.Fatalf("unexpected languages: %v", data.LanguageConfig.Languages)
			}
			return
		}
		b.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("update_config never arrived")
}
