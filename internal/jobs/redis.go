package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultProgressTTL is how long a job's last progress snapshot stays in Redis.
const DefaultProgressTTL = time.Hour

// RedisPublisher mirrors job progress into Redis so that other processes can
// read it. Each event overwrites the job's snapshot key and is also sent on
// the job's pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublisher returns a publisher writing through client.
func NewRedisPublisher(client *redis.Client, ttl time.Duration) *RedisPublisher {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &RedisPublisher{client: client, ttl: ttl}
}

func progressKey(jobID uuid.UUID) string {
	return fmt.Sprintf("factflow:job:%s:progress", jobID)
}

// ProgressChannel is the pub/sub channel carrying jobID's events.
func ProgressChannel(jobID uuid.UUID) string {
	return fmt.Sprintf("factflow:job:%s:events", jobID)
}

// Publish stores e as the job's latest snapshot and announces it.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, progressKey(e.JobID), data, p.ttl)
	pipe.Publish(ctx, ProgressChannel(e.JobID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress for job %s: %w", e.JobID, err)
	}
	return nil
}

// Latest returns the last snapshot stored for jobID. ok is false when there
// is none or it has expired.
func (p *RedisPublisher) Latest(ctx context.Context, jobID uuid.UUID) (e Event, ok bool, err error) {
	data, err := p.client.Get(ctx, progressKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("read progress for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, false, fmt.Errorf("decode progress for job %s: %w", jobID, err)
	}
	return e, true, nil
}
