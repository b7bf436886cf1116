package livekit

import (
	"context"
	"fmt"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/room"
)

// ConnectInfo carries everything needed to join a room as the
// transcription agent.
type ConnectInfo struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
	// DefaultProvider fills in the STT provider for settings signals
	// that did not choose one.
	DefaultProvider string
}

// Agent is the surface the room feeds signals into. Implemented by
// the lifecycle manager.
type Agent interface {
	RecordSettings(participantID, locale, provider string)
	UpdateLocale(ctx context.Context, participantID, newLocale string)
	OnTrackAvailable(ctx context.Context, t room.Track, participantID string)
	OnParticipantLeft(participantID string)
}

// Room is a live agent connection.
type Room struct {
	lkroom *lksdk.Room
	log    *logger.Logger
}

// Connect joins the room and wires its callbacks into the agent. The
// context bounds signal handling spawned from callbacks, not the
// connection lifetime.
func Connect(ctx context.Context, info ConnectInfo, agent Agent, log *logger.Logger) (*Room, error) {
	log = log.WithComponent("room.livekit")

	callbacks := &lksdk.RoomCallback{
		OnDisconnected: func() {
			log.Info("disconnected from room")
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			log.WithParticipant(rp.Identity()).Info("participant disconnected")
			agent.OnParticipantLeft(rp.Identity())
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(media *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if media.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				log.WithParticipant(rp.Identity()).Info("audio track subscribed", map[string]interface{}{
					"track_sid": pub.SID(),
				})
				agent.OnTrackAvailable(ctx, wrapSubscribed(pub, media, log), rp.Identity())
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				user, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				handleSignal(ctx, user.Payload, params.SenderIdentity, info.DefaultProvider, agent, log)
			},
		},
	}

	lkroom, err := lksdk.ConnectToRoom(info.URL, lksdk.ConnectInfo{
		APIKey:              info.APIKey,
		APISecret:           info.APISecret,
		RoomName:            info.RoomName,
		ParticipantIdentity: info.Identity,
	}, callbacks)
	if err != nil {
		return nil, fmt.Errorf("connect to room: %w", err)
	}

	log.Info("connected to room", map[string]interface{}{
		logger.FieldRoom: lkroom.Name(),
		"identity":       info.Identity,
	})

	r := &Room{lkroom: lkroom, log: log}
	r.subscribeExisting(ctx, agent)
	return r, nil
}

// subscribeExisting picks up participants who joined before the agent
// and requests their audio tracks.
func (r *Room) subscribeExisting(ctx context.Context, agent Agent) {
	for _, rp := range r.lkroom.GetRemoteParticipants() {
		p := &participant{rp: rp, log: r.log}
		for _, t := range p.Tracks() {
			pub := t.(*track).pub
			if !pub.IsSubscribed() {
				if err := pub.SetSubscribed(true); err != nil {
					r.log.WithParticipant(rp.Identity()).WithError(err).Warn("cannot subscribe existing track")
					continue
				}
			}
			agent.OnTrackAvailable(ctx, t, rp.Identity())
		}
	}
}

// Roster returns the live participant lookup for the lifecycle
// manager.
func (r *Room) Roster() room.Roster {
	return &roster{lkroom: r.lkroom, log: r.log}
}

// Name returns the connected room's name.
func (r *Room) Name() string { return r.lkroom.Name() }

// Disconnect leaves the room.
func (r *Room) Disconnect() {
	r.lkroom.Disconnect()
}
