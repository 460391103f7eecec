package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/wellvoice/internal/models"
)

const (
	QueueVoicePrewarm = "queue:voice_prewarm"

	JobTypePrewarm = "voice_prewarm"
)

type Queue struct {
	client *redis.Client
}

// Job asks the worker to synthesize and cache phrases for one owner.
type Job struct {
	ID        uuid.UUID            `json:"id"`
	Type      string               `json:"type"`
	OwnerID   string               `json:"owner_id"`
	Phrases   []string             `json:"phrases"`
	Settings  models.VoiceSettings `json:"settings"`
	CreatedAt time.Time            `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return NewWithClient(redis.NewClient(opts))
}

// NewWithClient wraps an existing client, e.g. the one shared with the
// Redis cache backend.
func NewWithClient(client *redis.Client) (*Queue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeJob([]byte(result[1]))
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueuePrewarm enqueues a cache pre-warm job and returns its ID.
func (q *Queue) EnqueuePrewarm(ctx context.Context, ownerID string, phrases []string, settings models.VoiceSettings) (uuid.UUID, error) {
	job := NewPrewarmJob(ownerID, phrases, settings)
	if err := q.Enqueue(ctx, QueueVoicePrewarm, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue prewarm job: %w", err)
	}
	return job.ID, nil
}

// NewPrewarmJob builds a pre-warm job with a fresh ID.
func NewPrewarmJob(ownerID string, phrases []string, settings models.VoiceSettings) *Job {
	return &Job{
		ID:       uuid.New(),
		Type:     JobTypePrewarm,
		OwnerID:  ownerID,
		Phrases:  phrases,
		Settings: settings,
	}
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Type == "" {
		return nil, fmt.Errorf("job %s has no type", job.ID)
	}
	return &job, nil
}
