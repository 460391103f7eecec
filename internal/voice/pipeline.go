package voice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobarin/wellvoice/internal/cache"
	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
	"github.com/bobarin/wellvoice/internal/services"
)

var (
	// ErrEmptyText is returned for requests with nothing to say.
	ErrEmptyText = errors.New("text is empty")
	// ErrVoiceDisabled is returned when the settings have voice turned off.
	// Callers show the reply as text instead.
	ErrVoiceDisabled = errors.New("voice is disabled")
)

const defaultStoreTimeout = 5 * time.Second

// Request is a single synthesis request. Text is used verbatim.
type Request struct {
	Text     string
	Settings models.VoiceSettings
}

// Result is playable audio plus where it came from.
type Result struct {
	Audio  []byte
	Key    string
	Cached bool
}

// Stats counts pipeline outcomes since start.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Syntheses     int64 `json:"syntheses"`
	DecodeHeals   int64 `json:"decode_heals"`
	SynthFailures int64 `json:"synth_failures"`
}

// Pipeline runs fingerprint → cache lookup → single-flight synthesis →
// best-effort store. It is safe for concurrent use.
type Pipeline struct {
	cache        *cache.Store
	synth        services.Synthesizer
	timeout      time.Duration
	storeTimeout time.Duration

	group singleflight.Group

	hits, misses, syntheses, heals, failures atomic.Int64
}

// NewPipeline wires the cache and synthesizer. timeout bounds each provider
// call and is clamped to the supported range.
func NewPipeline(store *cache.Store, synth services.Synthesizer, timeout time.Duration) *Pipeline {
	return &Pipeline{
		cache:        store,
		synth:        synth,
		timeout:      services.ClampTimeout(timeout),
		storeTimeout: defaultStoreTimeout,
	}
}

// Key returns the cache key req would be stored under.
func (p *Pipeline) Key(req Request) string {
	return cache.FingerprintSettings(req.Text, req.Settings)
}

// Speak returns audio for req, from the owner's cache when possible.
// Concurrent identical requests for one owner share a single provider call.
// A caller whose ctx ends stops waiting without cancelling the shared call.
func (p *Pipeline) Speak(ctx context.Context, ownerID string, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if err := Validate(req.Settings); err != nil {
		return nil, err
	}
	if !req.Settings.Enabled {
		return nil, ErrVoiceDisabled
	}

	key := p.Key(req)

	if audio, ok := p.lookup(ctx, ownerID, key); ok {
		p.hits.Add(1)
		return &Result{Audio: audio, Key: key, Cached: true}, nil
	}
	p.misses.Add(1)

	ch := p.group.DoChan(ownerID+"|"+key, func() (interface{}, error) {
		return p.fill(ctx, ownerID, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*Result)
		return &Result{Audio: slices.Clone(res.Audio), Key: key, Cached: res.Cached}, nil
	}
}

// fill runs once per in-flight key. It is detached from the first caller's
// cancellation and bounded by the synthesis timeout instead.
func (p *Pipeline) fill(ctx context.Context, ownerID, key string, req Request) (*Result, error) {
	base := context.WithoutCancel(ctx)

	// A flight that finished just before this one started may have stored it.
	if audio, ok := p.lookup(base, ownerID, key); ok {
		return &Result{Audio: audio, Key: key, Cached: true}, nil
	}

	sctx, cancel := context.WithTimeout(base, p.timeout)
	defer cancel()

	p.syntheses.Add(1)
	start := time.Now()
	audio, err := p.synth.Synthesize(sctx, req.Text, req.Settings.VoiceID, req.Settings)
	if err != nil {
		p.failures.Add(1)
		var se *services.SynthesisError
		if !errors.As(err, &se) && errors.Is(sctx.Err(), context.DeadlineExceeded) {
			err = &services.SynthesisError{Provider: "pipeline", Kind: services.KindTimeout, Err: err}
		}
		logger.Warnf("[Pipeline] Synthesis failed (key=%s): %v", key, err)
		return nil, err
	}
	if len(audio) == 0 {
		p.failures.Add(1)
		return nil, &services.SynthesisError{Provider: "pipeline", Kind: services.KindProvider, Err: fmt.Errorf("empty audio")}
	}
	logger.Infof("[Pipeline] Synthesized %s in %s (%d bytes)", key, time.Since(start).Round(time.Millisecond), len(audio))

	if ownerID != "" && p.cache != nil {
		wctx, wcancel := context.WithTimeout(base, p.storeTimeout)
		p.cache.Store(wctx, ownerID, key, cache.Encode(audio), 0)
		wcancel()
	}

	return &Result{Audio: audio, Key: key}, nil
}

// lookup returns decoded cached audio. A payload that fails to decode is a
// miss; the next fill overwrites it.
func (p *Pipeline) lookup(ctx context.Context, ownerID, key string) ([]byte, bool) {
	if p.cache == nil {
		return nil, false
	}
	entry, ok := p.cache.Lookup(ctx, ownerID, key)
	if !ok {
		return nil, false
	}
	audio, err := cache.Decode(entry.Payload)
	if err != nil {
		p.heals.Add(1)
		logger.Warnf("[Pipeline] Discarding corrupt cache entry %s for %s: %v", key, ownerID, err)
		return nil, false
	}
	return audio, true
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Hits:          p.hits.Load(),
		Misses:        p.misses.Load(),
		Syntheses:     p.syntheses.Load(),
		DecodeHeals:   p.heals.Load(),
		SynthFailures: p.failures.Load(),
	}
}

// ResolveSettings merges a speech request's optional fields over base.
func ResolveSettings(base models.VoiceSettings, req models.SpeechRequest) models.VoiceSettings {
	s := base
	if req.VoiceID != "" {
		s.VoiceID = req.VoiceID
	}
	if req.Stability != nil {
		s.Stability = *req.Stability
	}
	if req.SimilarityBoost != nil {
		s.SimilarityBoost = *req.SimilarityBoost
	}
	return s
}
