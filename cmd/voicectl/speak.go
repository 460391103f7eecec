package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobarin/wellvoice/internal/cache"
	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
	"github.com/bobarin/wellvoice/internal/playback"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
)

func newSpeakCmd() *cobra.Command {
	var (
		outPath    string
		mute       bool
		voiceID    string
		stability  float64
		similarity float64
	)

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Speak text, or read lines from stdin and speak each one",
		Long: "Speak text through the voice cache. Without arguments every line read from stdin\n" +
			"replaces whatever is playing. Type /stop to silence playback and /quit to exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := openLocal(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			m, err := localSettings(cmd, cfg, backend)
			if err != nil {
				return err
			}

			req := models.SpeechRequest{VoiceID: voiceID}
			if cmd.Flags().Changed("stability") {
				req.Stability = &stability
			}
			if cmd.Flags().Changed("similarity") {
				req.SimilarityBoost = &similarity
			}
			settings := voice.ResolveSettings(m.Settings(), req)
			if err := voice.Validate(settings); err != nil {
				return err
			}

			synth, _ := services.NewSynthesizer(cfg.Providers())
			store := cache.NewStore(backend, cfg.CacheTTL)
			pipeline := voice.NewPipeline(store, synth, cfg.SynthesisTimeout)

			var sink playback.Sink
			switch {
			case outPath != "":
				sink = playback.FileSink{Path: outPath}
			case mute:
				sink = playback.DiscardSink{}
			default:
				sink = playback.NewSpeaker()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := newSession(pipeline, playback.New(sink), settings, cmd.OutOrStdout())
			if len(args) > 0 {
				return s.speakOnce(ctx, strings.Join(args, " "))
			}
			return s.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write audio to this file instead of the speaker")
	cmd.Flags().BoolVar(&mute, "mute", false, "Synthesize and cache without playing")
	cmd.Flags().StringVar(&voiceID, "voice", "", "Voice ID (default: saved settings)")
	cmd.Flags().Float64Var(&stability, "stability", models.DefaultStability, "Stability override, 0..1")
	cmd.Flags().Float64Var(&similarity, "similarity", models.DefaultSimilarityBoost, "Similarity boost override, 0..1")

	return cmd
}

// session is one interactive run. Each spoken line supersedes the one
// before it; the coordinator keeps a single stream open.
type session struct {
	pipeline *voice.Pipeline
	coord    *playback.Coordinator
	settings models.VoiceSettings

	mu  sync.Mutex
	out io.Writer
}

func newSession(pipeline *voice.Pipeline, coord *playback.Coordinator, settings models.VoiceSettings, out io.Writer) *session {
	return &session{pipeline: pipeline, coord: coord, settings: settings, out: out}
}

func (s *session) say(ctx context.Context, text string) <-chan error {
	req := voice.Request{Text: text, Settings: s.settings}
	return s.coord.Play(ctx, s.pipeline.Key(req), func(ctx context.Context) ([]byte, error) {
		res, err := s.pipeline.Speak(ctx, localOwner, req)
		if err != nil {
			return nil, err
		}
		if res.Cached {
			logger.Debugf("[voicectl] Cache hit %s", res.Key)
		}
		return res.Audio, nil
	})
}

// speakOnce plays text and waits for it to finish.
func (s *session) speakOnce(ctx context.Context, text string) error {
	err := <-s.say(ctx, text)
	if err == nil || errors.Is(err, playback.ErrInterrupted) {
		return nil
	}
	if s.degrade(text, err) {
		return nil
	}
	return err
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			s.coord.Stop()
			return nil
		case line, ok := <-lines:
			if !ok {
				// EOF: let the last reply play out.
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case "/stop":
				s.coord.Stop()
				continue
			case "/quit", "/exit":
				s.coord.Stop()
				return nil
			}

			done := s.say(ctx, text)
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.report(text, <-done)
			}()
		}
	}
}

func (s *session) report(text string, err error) {
	switch {
	case err == nil, errors.Is(err, playback.ErrInterrupted), errors.Is(err, context.Canceled):
	case s.degrade(text, err):
	case errors.Is(err, playback.ErrNoAudioDevice):
		s.printf("no audio device in this build; use --out or --mute\n")
	default:
		s.printf("error: %v\n", err)
	}
}

// degrade prints the reply as text when voice is unavailable or turned off.
func (s *session) degrade(text string, err error) bool {
	var se *services.SynthesisError
	notConfigured := errors.As(err, &se) && se.Kind == services.KindNotConfigured
	if !notConfigured && !errors.Is(err, voice.ErrVoiceDisabled) {
		return false
	}
	s.printf("[text-only] %s\n", text)
	return true
}

func (s *session) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
