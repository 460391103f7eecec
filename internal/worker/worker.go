package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/queue"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
)

const dequeueTimeout = 5 * time.Second

// JobSource is the subset of queue.Queue the worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// Speaker is the pipeline entry point used to fill the cache.
type Speaker interface {
	Speak(ctx context.Context, ownerID string, req voice.Request) (*voice.Result, error)
}

// Worker consumes pre-warm jobs and synthesizes their phrases into the
// owner's cache ahead of time.
type Worker struct {
	queue       JobSource
	pipeline    Speaker
	concurrency int
}

func New(q JobSource, pipeline Speaker, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Worker{
		queue:       q,
		pipeline:    pipeline,
		concurrency: concurrency,
	}
}

// Start processes jobs until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	logger.Infof("[Worker] Started (phrase concurrency: %d)", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[Worker] Shutting down...")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queue.QueueVoicePrewarm, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Errorf("[Worker] Error dequeuing from %s: %v", queue.QueueVoicePrewarm, err)
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue // No job available, retry
		}

		logger.Infof("[Worker] Processing job %s (type: %s, owner: %s, phrases: %d)",
			job.ID, job.Type, job.OwnerID, len(job.Phrases))

		report, err := w.HandlePrewarm(ctx, job)
		if err != nil {
			logger.Errorf("[Worker] Job %s failed: %v", job.ID, err)
			continue
		}
		logger.Infof("[Worker] Job %s completed (%d cached, %d synthesized, %d failed)",
			job.ID, report.Cached, report.Synthesized, report.Failed)
	}
}

// Report summarises one pre-warm job.
type Report struct {
	Cached      int
	Synthesized int
	Failed      int
}

// HandlePrewarm speaks every phrase of job with bounded parallelism. One
// failing phrase does not stop the others; a not-configured provider, an
// invalid voice or disabled voice aborts the job since every phrase would
// fail the same way.
func (w *Worker) HandlePrewarm(ctx context.Context, job *queue.Job) (*Report, error) {
	if job.Type != queue.JobTypePrewarm {
		return nil, fmt.Errorf("unsupported job type %q", job.Type)
	}
	if job.OwnerID == "" {
		return nil, fmt.Errorf("prewarm job %s has no owner", job.ID)
	}

	results := make([]phraseResult, len(job.Phrases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i, phrase := range job.Phrases {
		g.Go(func() error {
			res, err := w.pipeline.Speak(gctx, job.OwnerID, voice.Request{Text: phrase, Settings: job.Settings})
			if err != nil {
				if fatal(err) {
					return err
				}
				logger.Warnf("[Worker] Phrase %d of job %s failed: %v", i, job.ID, err)
				return nil
			}
			results[i] = phraseResult{cached: res.Cached, ok: true}
			return nil
		})
	}

	err := g.Wait()

	report := &Report{}
	for _, r := range results {
		switch {
		case r.ok && r.cached:
			report.Cached++
		case r.ok:
			report.Synthesized++
		default:
			report.Failed++
		}
	}

	if err != nil {
		return report, fmt.Errorf("prewarm aborted: %w", err)
	}
	return report, nil
}

type phraseResult struct {
	ok     bool
	cached bool
}

func fatal(err error) bool {
	if errors.Is(err, voice.ErrVoiceDisabled) || errors.Is(err, voice.ErrInvalidVoice) {
		return true
	}
	var se *services.SynthesisError
	return errors.As(err, &se) && !se.Retryable()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
