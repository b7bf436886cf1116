package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skillsenselab/meetscribe/logger"
)

// Bus message constants understood by the meeting backend.
const (
	// ToAkkaAppsChannel is the channel the meeting backend listens on.
	ToAkkaAppsChannel = "to-akka-apps-redis-channel"
	// UpdateTranscriptMsgName is the envelope and header name for
	// transcript updates.
	UpdateTranscriptMsgName = "UpdateTranscriptPubMsg"
)

// TranscriptUpdate is one transcript destined for the meeting bus.
type TranscriptUpdate struct {
	MeetingID  string
	UserID     string
	Transcript string
	// Locale is the full tag the bus expects (e.g. "en-US").
	Locale string
	// Result marks the transcript as final rather than provisional.
	Result bool
	// Start and End are utterance boundaries in seconds, already
	// stringified. Empty values are published as "0".
	Start string
	End   string
}

type envelope struct {
	Name      string  `json:"name"`
	Routing   routing `json:"routing"`
	Timestamp int64   `json:"timestamp"`
}

type routing struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type header struct {
	Name      string `json:"name"`
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type transcriptBody struct {
	Transcript   string `json:"transcript"`
	Locale       string `json:"locale"`
	Result       bool   `json:"result"`
	Start        string `json:"start"`
	End          string `json:"end"`
	TranscriptID string `json:"transcriptId"`
}

type busMessage struct {
	Envelope envelope `json:"envelope"`
	Core     core     `json:"core"`
}

type core struct {
	Header header         `json:"header"`
	Body   transcriptBody `json:"body"`
}

// Publisher formats transcript updates as bus messages and publishes
// them through a Client. A nil client turns Publish into a logged
// no-op, so transcription keeps running when Redis is down or
// disabled.
type Publisher struct {
	client  *Client
	channel string
	log     *logger.Logger
	now     func() time.Time
}

// NewPublisher creates a publisher over the given client. The client
// may be nil.
func NewPublisher(client *Client, channel string, log *logger.Logger) *Publisher {
	if channel == "" {
		channel = ToAkkaAppsChannel
	}
	return &Publisher{
		client:  client,
		channel: channel,
		log:     log.WithComponent("redis.publisher"),
		now:     time.Now,
	}
}

// Publish sends one transcript update to the bus.
func (p *Publisher) Publish(ctx context.Context, u TranscriptUpdate) error {
	if p.client == nil {
		p.log.Warn("redis not connected, skipping transcript publish", map[string]interface{}{
			logger.FieldParticipant: u.UserID,
		})
		return nil
	}

	payload, err := json.Marshal(buildMessage(u, p.now()))
	if err != nil {
		return fmt.Errorf("marshal transcript message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	p.log.Debug("transcript published", map[string]interface{}{
		logger.FieldChannel:     p.channel,
		logger.FieldParticipant: u.UserID,
		"result":                u.Result,
	})
	return nil
}

func buildMessage(u TranscriptUpdate, now time.Time) busMessage {
	start := u.Start
	if start == "" {
		start = "0"
	}
	end := u.End
	if end == "" {
		end = "0"
	}
	return busMessage{
		Envelope: envelope{
			Name: UpdateTranscriptMsgName,
			Routing: routing{
				MeetingID: u.MeetingID,
				UserID:    u.UserID,
			},
			Timestamp: now.UnixMilli(),
		},
		Core: core{
			Header: header{
				Name:      UpdateTranscriptMsgName,
				MeetingID: u.MeetingID,
				UserID:    u.UserID,
			},
			Body: transcriptBody{
				Transcript:   u.Transcript,
				Locale:       u.Locale,
				Result:       u.Result,
				Start:        start,
				End:          end,
				TranscriptID: fmt.Sprintf("%s-%s-%s", u.UserID, u.Locale, start),
			},
		},
	}
}
