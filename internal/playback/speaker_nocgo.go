//go:build nocgo
// +build nocgo

package playback

import "context"

// Speaker stub for builds without cgo audio support.
type Speaker struct{}

var _ Sink = (*Speaker)(nil)

func NewSpeaker() *Speaker {
	return &Speaker{}
}

func (s *Speaker) Play(ctx context.Context, audio []byte) error {
	return ErrNoAudioDevice
}
