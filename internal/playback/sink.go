package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoAudioDevice is returned by the speaker in builds without audio output.
var ErrNoAudioDevice = errors.New("no audio device available")

// DiscardSink drops audio after holding the stream for Hold, for headless
// clients and tests.
type DiscardSink struct {
	Hold time.Duration
}

func (d DiscardSink) Play(ctx context.Context, audio []byte) error {
	if d.Hold <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FileSink writes each session's audio to Path, replacing the previous file.
type FileSink struct {
	Path string
}

func (f FileSink) Play(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, audio, 0644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}
