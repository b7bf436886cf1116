package livekit

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/room"
)

// roster adapts a connected LiveKit room to the room.Roster contract.
type roster struct {
	lkroom *lksdk.Room
	log    *logger.Logger
}

func (r *roster) Participant(identity string) (room.Participant, bool) {
	for _, rp := range r.lkroom.GetRemoteParticipants() {
		if rp.Identity() == identity {
			return &participant{rp: rp, log: r.log}, true
		}
	}
	return nil, false
}

type participant struct {
	rp  *lksdk.RemoteParticipant
	log *logger.Logger
}

func (p *participant) Identity() string { return p.rp.Identity() }

func (p *participant) Tracks() []room.Track {
	var tracks []room.Track
	for _, pub := range p.rp.TrackPublications() {
		if pub.Kind() != lksdk.TrackKindAudio {
			continue
		}
		remote, ok := pub.(*lksdk.RemoteTrackPublication)
		if !ok {
			continue
		}
		tracks = append(tracks, &track{pub: remote, log: p.log})
	}
	return tracks
}

// track wraps a remote audio publication. The underlying media may not
// be subscribed yet; OpenSource subscribes on demand.
type track struct {
	pub *lksdk.RemoteTrackPublication
	log *logger.Logger
}

func (t *track) Source() room.TrackSource {
	return mapSource(t.pub.Source())
}

func (t *track) OpenSource(_ context.Context) (room.AudioSource, error) {
	if !t.pub.IsSubscribed() {
		if err := t.pub.SetSubscribed(true); err != nil {
			return nil, fmt.Errorf("subscribe track: %w", err)
		}
	}
	media := t.pub.Track()
	if media == nil {
		return nil, fmt.Errorf("track %s has no media yet", t.pub.SID())
	}
	remote, ok := media.(*webrtc.TrackRemote)
	if !ok {
		return nil, fmt.Errorf("track %s is not a remote media track", t.pub.SID())
	}
	return newAudioSource(remote, t.log)
}

func mapSource(src livekit.TrackSource) room.TrackSource {
	switch src {
	case livekit.TrackSource_MICROPHONE:
		return room.SourceMicrophone
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return room.SourceScreenShareAudio
	default:
		return room.SourceUnknown
	}
}

// wrapSubscribed builds a track wrapper for a publication whose media
// is already flowing, as delivered by the track-subscribed callback.
func wrapSubscribed(pub *lksdk.RemoteTrackPublication, _ *webrtc.TrackRemote, log *logger.Logger) room.Track {
	return &track{pub: pub, log: log}
}
