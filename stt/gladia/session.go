package gladia

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/stt"
)

// Websocket control message types.
const (
	msgTypeTranscript    = "transcript"
	msgTypeStopRecording = "stop_recording"
	msgTypeUpdateConfig  = "update_config"
)

type controlMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type serverMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptData struct {
	IsFinal   bool      `json:"is_final"`
	Utterance utterance `json:"utterance"`
}

type utterance struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// session is one live websocket stream. Writes are serialized with a
// mutex since gorilla/websocket allows a single concurrent writer.
type session struct {
	conn      *websocket.Conn
	cfg       Config
	events    chan stt.SpeechEvent
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	log       *logger.Logger
}

func newSession(conn *websocket.Conn, cfg Config, log *logger.Logger) *session {
	return &session{
		conn:   conn,
		cfg:    cfg,
		events: make(chan stt.SpeechEvent, 32),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Push streams one PCM frame as a binary websocket message.
func (s *session) Push(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Events returns the transcript stream. Closed when the websocket
// ends.
func (s *session) Events() <-chan stt.SpeechEvent {
	return s.events
}

// UpdateLanguages reconfigures recognition languages mid-stream.
func (s *session) UpdateLanguages(ctx context.Context, languages []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeJSON(controlMessage{
		Type: msgTypeUpdateConfig,
		Data: map[string]interface{}{
			"language_config": languageConfig{
				Languages:     languages,
				CodeSwitching: s.cfg.CodeSwitching,
			},
		},
	})
}

// CloseSend tells the backend no more audio will arrive. The backend
// flushes pending transcripts and then closes the connection, which
// ends the Events stream.
func (s *session) CloseSend() error {
	return s.writeJSON(controlMessage{Type: msgTypeStopRecording})
}

// Close tears the connection down. Safe to call multiple times and
// after CloseSend.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *session) writeJSON(msg controlMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// readLoop drains the websocket until it ends, forwarding transcript
// messages that clear the configured confidence minimums.
func (s *session) readLoop() {
	defer close(s.events)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Warn("websocket read ended")
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.WithError(err).Warn("unparseable server message")
			continue
		}
		if msg.Type != msgTypeTranscript {
			continue
		}

		var data transcriptData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.log.WithError(err).Warn("unparseable transcript data")
			continue
		}
		if ev, ok := s.toEvent(data); ok {
			// The consumer may already be gone. Blocking here would
			// keep the read loop alive past Close.
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// toEvent converts a transcript message, applying confidence
// filtering. Empty utterances are dropped.
func (s *session) toEvent(data transcriptData) (stt.SpeechEvent, bool) {
	if data.Utterance.Text == "" {
		return stt.SpeechEvent{}, false
	}

	minimum := s.cfg.MinInterimConfidence
	kind := stt.SpeechInterim
	if data.IsFinal {
		minimum = s.cfg.MinConfidence
		kind = stt.SpeechFinal
	}
	if data.Utterance.Confidence < minimum {
		s.log.Debug("dropping low-confidence transcript", map[string]interface{}{
			"confidence": data.Utterance.Confidence,
			"minimum":    minimum,
			"final":      data.IsFinal,
		})
		return stt.SpeechEvent{}, false
	}

	return stt.SpeechEvent{
		Type:       kind,
		Text:       data.Utterance.Text,
		Language:   data.Utterance.Language,
		Start:      data.Utterance.Start,
		End:        data.Utterance.End,
		Confidence: data.Utterance.Confidence,
	}, true
}
