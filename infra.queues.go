package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by the in-memory queue when its capacity is reached.
var ErrQueueFull = errors.New("queue is full")

const popBlockTimeout = time.Second

var (
	_ Queuer = (*redisQueue)(nil)
	_ Queuer = (*memoryQueue)(nil)
)

// Queuer describes a FIFO queue of jobs.
type Queuer interface {
	Push(ctx context.Context, job Job) error
	Pop(ctx context.Context) (Job, error)
}

// redisQueue is a queue backed by a single redis list.
type redisQueue struct {
	client *redis.Client
	name   string
}

func NewRedisQueue(client *redis.Client, name string) Queuer {
	return &redisQueue{client: client, name: name}
}

// Push appends a job at the tail of the list.
func (q *redisQueue) Push(ctx context.Context, job Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.name, jobBytes).Err()
}

// Pop blocks until a job is available at the head of the list or
// the context is done. The list is polled in rounds of popBlockTimeout
// so a cancelled context is noticed even without a deadline.
func (q *redisQueue) Pop(ctx context.Context) (Job, error) {
	var job Job
	for {
		if err := ctx.Err(); err != nil {
			return job, err
		}
		infos, err := q.client.BLPop(ctx, popBlockTimeout, q.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return job, err
		}
		if len(infos) != 2 {
			return job, fmt.Errorf("unexpected blpop reply of %d elements", len(infos))
		}
		err = json.Unmarshal([]byte(infos[1]), &job)
		return job, err
	}
}

// memoryQueue is a bounded in-process queue. Jobs are lost on restart.
type memoryQueue struct {
	jobs chan Job
}

func NewMemoryQueue(capacity int) Queuer {
	return &memoryQueue{jobs: make(chan Job, capacity)}
}

// Push enqueues the job without blocking.
func (q *memoryQueue) Push(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop blocks until a job is available or the context is done.
func (q *memoryQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// NewQueue builds the queue selected by the configured driver.
func NewQueue(config *Config, redisClient *redis.Client) (Queuer, error) {
	switch config.Queue.Driver {
	case QueueMemory:
		return NewMemoryQueue(config.Queue.Capacity), nil
	case QueueRedis:
		if redisClient == nil {
			return nil, errors.New("redis queue requires a redis client")
		}
		return NewRedisQueue(redisClient, config.Queue.Name), nil
	}
	return nil, fmt.Errorf("unknown queue driver %q", config.Queue.Driver)
}
