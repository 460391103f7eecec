//go:build !nocgo
// +build !nocgo

package playback

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/bobarin/wellvoice/internal/logger"
)

const (
	speakerChannels = 2 // go-mp3 always decodes to stereo
	pollInterval    = 20 * time.Millisecond
	readyTimeout    = 5 * time.Second
)

// Speaker plays MP3 audio on the default output device. The device is
// opened on first use at the first stream's sample rate.
type Speaker struct {
	once    sync.Once
	ctx     *oto.Context
	rate    int
	initErr error
}

var _ Sink = (*Speaker)(nil)

func NewSpeaker() *Speaker {
	return &Speaker{}
}

func (s *Speaker) open(sampleRate int) (*oto.Context, error) {
	s.once.Do(func() {
		otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: speakerChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			s.initErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}
		select {
		case <-ready:
		case <-time.After(readyTimeout):
			s.initErr = fmt.Errorf("audio context initialization timeout")
			return
		}
		s.ctx = otoCtx
		s.rate = sampleRate
		logger.Debugf("[Playback] Audio device ready (%d Hz)", sampleRate)
	})
	if s.initErr != nil {
		return nil, s.initErr
	}
	if sampleRate != s.rate {
		return nil, fmt.Errorf("unsupported sample rate %d (device opened at %d)", sampleRate, s.rate)
	}
	return s.ctx, nil
}

// Play decodes and plays audio, returning when it finishes or ctx is done.
func (s *Speaker) Play(ctx context.Context, audio []byte) error {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("failed to decode mp3: %w", err)
	}

	otoCtx, err := s.open(decoder.SampleRate())
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(decoder)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
			if !player.IsPlaying() {
				return player.Err()
			}
		}
	}
}
