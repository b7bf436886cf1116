package gladia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/stt"
)

// ProviderName is the name the opener registers under.
const ProviderName = "gladia"

// initRequest is the body of the live-session registration call.
type initRequest struct {
	Encoding       string         `json:"encoding"`
	BitDepth       int            `json:"bit_depth"`
	SampleRate     int            `json:"sample_rate"`
	Channels       int            `json:"channels"`
	LanguageConfig languageConfig `json:"language_config"`
	PreProcessing  preProcessing  `json:"pre_processing"`
	MessagesConfig messagesConfig `json:"messages_config"`
}

type languageConfig struct {
	Languages     []string `json:"languages,omitempty"`
	CodeSwitching bool     `json:"code_switching"`
}

type preProcessing struct {
	AudioEnhancer   bool    `json:"audio_enhancer"`
	SpeechThreshold float64 `json:"speech_threshold"`
}

type messagesConfig struct {
	ReceivePartialTranscripts bool `json:"receive_partial_transcripts"`
}

type initResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Opener dials Gladia live sessions.
type Opener struct {
	cfg    Config
	httpc  *http.Client
	dialer *websocket.Dialer
	log    *logger.Logger
}

// New creates an opener. The configuration is defaulted and validated
// once here rather than per session.
func New(cfg Config, log *logger.Logger) (*Opener, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gladia config: %w", err)
	}
	return &Opener{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 15 * time.Second},
		dialer: websocket.DefaultDialer,
		log:    log.WithComponent("stt.gladia"),
	}, nil
}

// Open registers a live session and connects its websocket.
func (o *Opener) Open(ctx context.Context, sc stt.SessionConfig) (stt.Session, error) {
	res, err := o.register(ctx, sc)
	if err != nil {
		return nil, err
	}

	conn, _, err := o.dialer.DialContext(ctx, res.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("gladia websocket dial: %w", err)
	}

	o.log.Info("stt session opened", map[string]interface{}{
		"session_id":         res.ID,
		logger.FieldLanguage: sc.Languages,
	})

	s := newSession(conn, o.cfg, o.log.WithFields(map[string]interface{}{
		"session_id": res.ID,
	}))
	go s.readLoop()
	return s, nil
}

func (o *Opener) register(ctx context.Context, sc stt.SessionConfig) (*initResponse, error) {
	body, err := json.Marshal(initRequest{
		Encoding:   o.cfg.Encoding,
		BitDepth:   o.cfg.BitDepth,
		SampleRate: sc.SampleRate,
		Channels:   sc.Channels,
		LanguageConfig: languageConfig{
			Languages:     sc.Languages,
			CodeSwitching: o.cfg.CodeSwitching,
		},
		PreProcessing: preProcessing{
			AudioEnhancer:   o.cfg.AudioEnhancer,
			SpeechThreshold: o.cfg.SpeechThreshold,
		},
		MessagesConfig: messagesConfig{
			ReceivePartialTranscripts: sc.InterimResults,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gladia init request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/v2/live", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gladia init request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gladia-Key", o.cfg.APIKey)

	resp, err := o.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gladia init call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gladia init rejected: status %d: %s", resp.StatusCode, snippet)
	}

	var res initResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("gladia init response: %w", err)
	}
	if res.URL == "" {
		return nil, fmt.Errorf("gladia init response missing websocket url")
	}
	return &res, nil
}
