package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
)

// ErrInterrupted is delivered to a Play caller whose session was stopped or
// superseded before it finished.
var ErrInterrupted = errors.New("playback interrupted")

// LoadFunc fetches the audio for a session. ctx is cancelled when the session
// is stopped or superseded.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Sink renders audio. Play blocks until playback ends or ctx is cancelled,
// and must release its resources before returning.
type Sink interface {
	Play(ctx context.Context, audio []byte) error
}

// Coordinator owns the client's single audio stream:
// Idle → Loading → Playing → Idle, with Loading → Idle on error.
// Starting a new session tears the previous one down first.
type Coordinator struct {
	sink Sink

	// opMu serialises Play and Stop so teardown finishes before the next
	// session starts. mu guards the fields below and is never held while
	// waiting on a session goroutine.
	opMu sync.Mutex
	mu   sync.Mutex

	gen      uint64
	session  models.PlaybackSession
	cancel   context.CancelFunc
	done     chan struct{}
	onChange func(models.PlaybackSession)
}

// New returns an idle coordinator that plays through sink.
func New(sink Sink) *Coordinator {
	return &Coordinator{
		sink:    sink,
		session: models.PlaybackSession{Status: models.PlaybackStatusIdle},
	}
}

// OnChange registers fn to observe every state transition. fn runs with the
// coordinator's lock held and must not call back into it.
func (c *Coordinator) OnChange(fn func(models.PlaybackSession)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns a snapshot of the current session.
func (c *Coordinator) State() models.PlaybackSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Play stops any current session, then loads and plays a new one. The
// returned channel receives exactly one value: nil after natural completion,
// the load or sink error, or ErrInterrupted.
func (c *Coordinator) Play(ctx context.Context, key string, load LoadFunc) <-chan error {
	result := make(chan error, 1)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.teardown()

	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.done = done
	c.setLocked(models.PlaybackSession{
		Handle:     uuid.NewString(),
		Status:     models.PlaybackStatusLoading,
		SourceKey:  key,
		Generation: gen,
	})
	c.mu.Unlock()

	go c.run(sctx, cancel, gen, load, done, result)
	return result
}

// Stop ends the current session and waits for its resources to be released.
// It is safe to call at any time, any number of times.
func (c *Coordinator) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.teardown()
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	if cancel != nil {
		// Invalidate the running session before it can publish a result.
		c.gen++
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.mu.Lock()
	c.setLocked(models.PlaybackSession{Status: models.PlaybackStatusIdle, Generation: c.gen})
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, load LoadFunc, done chan struct{}, result chan<- error) {
	defer close(done)
	defer cancel()

	audio, err := load(ctx)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		logger.Debugf("[Playback] Discarding stale result (generation %d)", gen)
		result <- ErrInterrupted
		return
	}
	if err != nil {
		c.finishLocked()
		c.mu.Unlock()
		logger.Warnf("[Playback] Load failed: %v", err)
		result <- err
		return
	}
	s := c.session
	s.Status = models.PlaybackStatusPlaying
	c.setLocked(s)
	c.mu.Unlock()

	err = c.sink.Play(ctx, audio)

	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		c.finishLocked()
	}
	c.mu.Unlock()

	switch {
	case stale:
		result <- ErrInterrupted
	case err != nil:
		logger.Warnf("[Playback] Sink failed: %v", err)
		result <- err
	default:
		result <- nil
	}
}

// finishLocked returns the current session to Idle on its own completion.
func (c *Coordinator) finishLocked() {
	c.cancel, c.done = nil, nil
	c.setLocked(models.PlaybackSession{Status: models.PlaybackStatusIdle, Generation: c.gen})
}

func (c *Coordinator) setLocked(s models.PlaybackSession) {
	if s == c.session {
		return
	}
	c.session = s
	if c.onChange != nil {
		c.onChange(s)
	}
}
