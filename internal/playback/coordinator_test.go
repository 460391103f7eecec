package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
)

// recordingSink blocks until its context ends or release is closed, and
// tracks how many streams are open at once.
type recordingSink struct {
	mu      sync.Mutex
	played  [][]byte
	active  atomic.Int32
	maxSeen atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *recordingSink) Play(ctx context.Context, audio []byte) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.mu.Lock()
	r.played = append(r.played, audio)
	r.mu.Unlock()
	r.started <- struct{}{}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		return nil
	}
}

func (r *recordingSink) playedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.played)
}

func immediate(audio string) LoadFunc {
	return func(ctx context.Context) ([]byte, error) { return []byte(audio), nil }
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback result")
		return nil
	}
}

func TestNaturalCompletion(t *testing.T) {
	sink := newRecordingSink()
	c := New(sink)

	var mu sync.Mutex
	var states []models.PlaybackStatus
	c.OnChange(func(s models.PlaybackSession) {
		mu.Lock()
		states = append(states, s.Status)
		mu.Unlock()
	})

	done := c.Play(context.Background(), "k1", immediate("audio"))
	<-sink.started
	if got := c.State(); got.Status != models.PlaybackStatusPlaying || got.SourceKey != "k1" || got.Handle == "" {
		t.Errorf("unexpected state while playing: %+v", got)
	}

	close(sink.release)
	if err := waitErr(t, done); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if c.State().Status != models.PlaybackStatusIdle {
		t.Errorf("expected idle after completion, got %s", c.State().Status)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []models.PlaybackStatus{models.PlaybackStatusLoading, models.PlaybackStatusPlaying, models.PlaybackStatusIdle}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transitions = %v, want %v", states, want)
		}
	}
}

func TestLoadErrorReturnsToIdle(t *testing.T) {
	c := New(newRecordingSink())
	boom := errors.New("synthesis timed out")

	done := c.Play(context.Background(), "k1", func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	if err := waitErr(t, done); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if c.State().Status != models.PlaybackStatusIdle {
		t.Errorf("expected idle, got %s", c.State().Status)
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	sink := newRecordingSink()
	c := New(sink)

	slowRelease := make(chan struct{})
	first := c.Play(context.Background(), "old", func(ctx context.Context) ([]byte, error) {
		// Ignores cancellation to model a result racing in after supersession.
		<-slowRelease
		return []byte("stale"), nil
	})

	secondDone := make(chan (<-chan error), 1)
	go func() {
		secondDone <- c.Play(context.Background(), "new", immediate("fresh"))
	}()

	// The second Play waits for the first session to exit.
	time.Sleep(20 * time.Millisecond)
	close(slowRelease)

	if err := waitErr(t, first); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted for stale session, got %v", err)
	}

	second := <-secondDone
	<-sink.started
	if c.State().SourceKey != "new" {
		t.Errorf("expected new session, got %+v", c.State())
	}
	close(sink.release)
	if err := waitErr(t, second); err != nil {
		t.Fatalf("second session failed: %v", err)
	}

	if sink.playedCount() != 1 || string(sink.played[0]) != "fresh" {
		t.Errorf("stale audio reached the sink: %q", sink.played)
	}
}

func TestNewPlayStopsCurrentStream(t *testing.T) {
	sink := newRecordingSink()
	c := New(sink)

	first := c.Play(context.Background(), "a", immediate("one"))
	<-sink.started

	second := c.Play(context.Background(), "b", immediate("two"))
	if err := waitErr(t, first); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected first session interrupted, got %v", err)
	}
	<-sink.started

	if sink.maxSeen.Load() != 1 {
		t.Errorf("two streams were open at once")
	}
	gen := c.State().Generation

	c.Stop()
	if err := waitErr(t, second); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected second session interrupted, got %v", err)
	}
	if s := c.State(); s.Status != models.PlaybackStatusIdle || s.Generation <= gen {
		t.Errorf("unexpected state after stop: %+v", s)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(newRecordingSink())
	c.Stop()
	c.Stop()
	if c.State().Status != models.PlaybackStatusIdle {
		t.Errorf("expected idle, got %s", c.State().Status)
	}

	loading := make(chan struct{})
	done := c.Play(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		close(loading)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-loading
	c.Stop()
	c.Stop()

	if err := waitErr(t, done); !errors.Is(err, ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
	if c.State().Status != models.PlaybackStatusIdle {
		t.Errorf("expected idle, got %s", c.State().Status)
	}
}

func TestGenerationIncreases(t *testing.T) {
	c := New(DiscardSink{})
	var last uint64
	for i := 0; i < 3; i++ {
		done := c.Play(context.Background(), "k", immediate("x"))
		if g := c.State().Generation; g <= last {
			t.Fatalf("generation %d did not increase past %d", g, last)
		} else {
			last = g
		}
		if err := waitErr(t, done); err != nil {
			t.Fatal(err)
		}
	}
}

func TestParentCancelStopsLoading(t *testing.T) {
	c := New(newRecordingSink())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := c.Play(ctx, "k", func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := waitErr(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.State().Status != models.PlaybackStatusIdle {
		t.Errorf("expected idle, got %s", c.State().Status)
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reply.mp3")
	if err := (FileSink{Path: path}).Play(context.Background(), []byte("mp3")); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "mp3" {
		t.Errorf("unexpected file contents %q, %v", got, err)
	}
}

func TestDiscardSinkHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (DiscardSink{Hold: time.Hour}).Play(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
