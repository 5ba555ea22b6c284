package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const consumerRetryDelay = time.Second

// JobProcessor runs the workflow of each kind of job.
type JobProcessor interface {
	Fetch(ctx context.Context, job Job) FetchOutcome
	Delete(ctx context.Context, job Job)
}

type Consumer interface {
	Consume(ctx context.Context) error
}

// jobConsumer is the single worker draining the queue. Jobs are handled
// one at a time in submission order.
type jobConsumer struct {
	logger    *zap.Logger
	queue     Queuer
	processor JobProcessor
}

func NewJobConsumer(logger *zap.Logger, q Queuer, processor JobProcessor) Consumer {
	return &jobConsumer{logger, q, processor}
}

func (jc *jobConsumer) Consume(ctx context.Context) error {
	for {
		job, err := jc.queue.Pop(ctx)
		if err != nil && ctx.Err() != nil {
			jc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			jc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumerRetryDelay):
			}
			continue
		}

		switch job.Kind {
		case JobFetch:
			jc.processor.Fetch(ctx, job)
		case JobDelete:
			jc.processor.Delete(ctx, job)
		default:
			jc.logger.Warn("consumer: received job of unknown kind", zap.String("job.id", job.ID), zap.String("job.kind", string(job.Kind)))
		}
	}
}
