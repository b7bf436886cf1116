package livekit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	soxr "github.com/zaf/resample"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/skillsenselab/meetscribe/logger"
)

const (
	// trackSampleRate is the rate LiveKit delivers Opus audio at.
	trackSampleRate = 48000
	// targetSampleRate is the rate the STT backends consume.
	targetSampleRate = 16000
	targetChannels   = 1
)

// audioSource decodes one remote Opus track into 16 kHz mono PCM16LE
// frames. A reader goroutine drains RTP packets; consumers pull frames
// through ReadFrame.
type audioSource struct {
	track     *webrtc.TrackRemote
	decoder   *opus.Decoder
	resampler *soxr.Resampler
	resBuf    *bytes.Buffer
	resMu     sync.Mutex

	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

func newAudioSource(track *webrtc.TrackRemote, log *logger.Logger) (*audioSource, error) {
	decoder, err := opus.NewDecoder(trackSampleRate, targetChannels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	// The resampler writes into the buffer we read back from.
	resBuf := &bytes.Buffer{}
	resampler, err := soxr.New(resBuf, trackSampleRate, targetSampleRate, targetChannels, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &audioSource{
		track:     track,
		decoder:   decoder,
		resampler: resampler,
		resBuf:    resBuf,
		frames:    make(chan []byte, 32),
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}
	go s.readLoop()
	return s, nil
}

func (s *audioSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

func (s *audioSource) SampleRate() int { return targetSampleRate }
func (s *audioSource) Channels() int   { return targetChannels }

func (s *audioSource) Close() error {
	s.cancel()
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.resampler.Close()
}

// readLoop drains RTP packets from the track until it ends. Empty
// payloads are DTX silence and are skipped.
func (s *audioSource) readLoop() {
	defer close(s.frames)

	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	pcm := make([]int16, 960) // 20ms at 48kHz mono

	for {
		if s.ctx.Err() != nil {
			return
		}
		n, _, err := s.track.Read(buf)
		if err != nil {
			if s.ctx.Err() == nil && err != io.EOF {
				s.log.WithError(err).Debug("rtp read ended")
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.log.WithError(err).Warn("bad rtp packet")
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		count, err := s.decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			s.log.WithError(err).Warn("opus decode failed")
			continue
		}
		if count == 0 {
			continue
		}

		frame, err := s.resample(pcm[:count])
		if err != nil {
			s.log.WithError(err).Warn("resample failed")
			continue
		}
		if len(frame) == 0 {
			// Resampler is still buffering.
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.ctx.Done():
			return
		}
	}
}

// resample converts one decoded block to the target rate, returning
// PCM16LE bytes.
func (s *audioSource) resample(samples []int16) ([]byte, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	in := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(sample))
	}

	s.resBuf.Reset()
	if _, err := s.resampler.Write(in); err != nil {
		return nil, fmt.Errorf("resampler write: %w", err)
	}

	out := s.resBuf.Bytes()
	if len(out) == 0 {
		return nil, nil
	}
	frame := make([]byte, len(out))
	copy(frame, out)
	return frame, nil
}
