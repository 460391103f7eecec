package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobarin/wellvoice/internal/cache"
	"github.com/bobarin/wellvoice/internal/models"
	"github.com/bobarin/wellvoice/internal/queue"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
)

const owner = "6f1c2a9e-0d0b-4c1e-9a53-1b0e2c7f4d11"

type countingSynth struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
	fail     map[string]error
}

func (c *countingSynth) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if err, ok := c.fail[text]; ok {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

// sliceSource hands out jobs once, then reports an empty queue.
type sliceSource struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (s *sliceSource) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
		return nil, nil
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, nil
}

func newPipeline(synth services.Synthesizer) *voice.Pipeline {
	return voice.NewPipeline(cache.NewStore(cache.NewMemoryBackend(), 0), synth, 0)
}

func TestHandlePrewarmFillsCache(t *testing.T) {
	synth := &countingSynth{}
	p := newPipeline(synth)
	w := New(nil, p, 2)

	phrases := []string{"Good morning.", "Time to stretch.", "Drink water.", "Breathe out.", "Good morning."}
	job := queue.NewPrewarmJob(owner, phrases, models.DefaultVoiceSettings("V1"))

	report, err := w.HandlePrewarm(context.Background(), job)
	if err != nil {
		t.Fatalf("HandlePrewarm failed: %v", err)
	}
	if report.Failed != 0 || report.Cached+report.Synthesized != len(phrases) {
		t.Errorf("unexpected report %+v", report)
	}
	if synth.calls.Load() != 4 {
		t.Errorf("expected 4 syntheses for 4 distinct phrases, got %d", synth.calls.Load())
	}
	if synth.peak.Load() > 2 {
		t.Errorf("concurrency limit exceeded: %d", synth.peak.Load())
	}

	res, err := p.Speak(context.Background(), owner, voice.Request{Text: "Drink water.", Settings: models.DefaultVoiceSettings("V1")})
	if err != nil || !res.Cached {
		t.Errorf("expected warmed entry, got %+v, %v", res, err)
	}
}

func TestHandlePrewarmContinuesPastRetryableFailure(t *testing.T) {
	synth := &countingSynth{fail: map[string]error{
		"bad": &services.SynthesisError{Provider: "fake", Kind: services.KindNetwork, Err: errors.New("reset")},
	}}
	w := New(nil, newPipeline(synth), 1)

	job := queue.NewPrewarmJob(owner, []string{"ok one", "bad", "ok two"}, models.DefaultVoiceSettings("V1"))
	report, err := w.HandlePrewarm(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no job error, got %v", err)
	}
	if report.Synthesized != 2 || report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestHandlePrewarmAbortsWhenNotConfigured(t *testing.T) {
	w := New(nil, newPipeline(services.NotConfigured{}), 1)

	job := queue.NewPrewarmJob(owner, []string{"a", "b", "c"}, models.DefaultVoiceSettings("V1"))
	_, err := w.HandlePrewarm(context.Background(), job)
	if !errors.Is(err, services.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHandlePrewarmAbortsWhenVoiceDisabled(t *testing.T) {
	synth := &countingSynth{}
	w := New(nil, newPipeline(synth), 1)

	settings := models.DefaultVoiceSettings("V1")
	settings.Enabled = false
	_, err := w.HandlePrewarm(context.Background(), queue.NewPrewarmJob(owner, []string{"a", "b"}, settings))
	if !errors.Is(err, voice.ErrVoiceDisabled) {
		t.Fatalf("expected ErrVoiceDisabled, got %v", err)
	}
	if synth.calls.Load() != 0 {
		t.Errorf("expected no syntheses, got %d", synth.calls.Load())
	}
}

func TestHandlePrewarmRejectsBadJobs(t *testing.T) {
	w := New(nil, newPipeline(&countingSynth{}), 1)

	if _, err := w.HandlePrewarm(context.Background(), &queue.Job{Type: "render_final", OwnerID: owner}); err == nil {
		t.Error("expected error for unknown job type")
	}
	if _, err := w.HandlePrewarm(context.Background(), queue.NewPrewarmJob("", []string{"x"}, models.DefaultVoiceSettings("V1"))); err == nil {
		t.Error("expected error for anonymous job")
	}
}

func TestStartDrainsQueue(t *testing.T) {
	synth := &countingSynth{}
	src := &sliceSource{jobs: []*queue.Job{
		queue.NewPrewarmJob(owner, []string{"one"}, models.DefaultVoiceSettings("V1")),
		queue.NewPrewarmJob(owner, []string{"two"}, models.DefaultVoiceSettings("V1")),
	}}
	w := New(src, newPipeline(synth), 1)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for synth.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped

	if synth.calls.Load() != 2 {
		t.Errorf("expected both jobs processed, got %d syntheses", synth.calls.Load())
	}
}
