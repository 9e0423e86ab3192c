// Package worker runs the consume loop: poll the queue, decode, route,
// execute, and acknowledge. Several consumers can poll the same queue
// concurrently; the queue's visibility timeout keeps in-flight messages
// invisible to the others.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/dispatch"
	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
)

// queue is the slice of the SQS client the consumer needs.
type queue interface {
	Receive(ctx context.Context) ([]types.Message, error)
	Delete(ctx context.Context, receiptHandle *string) error
}

// Consumer polls the queue and drives each message through dispatch and
// execution.
type Consumer struct {
	queue            queue
	registry         *dispatch.Registry
	exec             *executor.Executor
	defaultKind      model.Kind
	pollErrorBackoff time.Duration
	strategy         retry.Strategy
}

// New creates a Consumer.
// - q: the queue to poll
// - reg: the kind-to-handler registry
// - exec: the retry-aware executor
// - defaultKind: assumed for messages that carry no task name
// - pollErrorBackoff: pause after a failed poll
// - s: retry strategy for acknowledge calls
func New(
	q queue,
	reg *dispatch.Registry,
	exec *executor.Executor,
	defaultKind model.Kind,
	pollErrorBackoff time.Duration,
	s retry.Strategy,
) *Consumer {
	return &Consumer{
		queue:            q,
		registry:         reg,
		exec:             exec,
		defaultKind:      defaultKind,
		pollErrorBackoff: pollErrorBackoff,
		strategy:         s,
	}
}

// Consume long-polls the queue until the context is canceled. The message
// currently being processed is always run to completion; shutdown only
// stops new polls.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		messages, err := c.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to receive messages")
			select {
			case <-ctx.Done():
			case <-time.After(c.pollErrorBackoff):
			}
			continue
		}

		for _, msg := range messages {
			c.handle(ctx, msg)
		}
	}
}

// handle processes one delivery end to end and decides its fate on the
// queue: delete on any terminal outcome, leave for redelivery otherwise.
func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	var body []byte
	if msg.Body != nil {
		body = []byte(*msg.Body)
	}

	inv, err := dispatch.Decode(body, c.defaultKind)
	if err != nil {
		var malformed *dispatch.MalformedError
		if errors.As(err, &malformed) {
			// Garbage can never decode; redelivering it changes nothing.
			zlog.Logger.Warn().
				Str("reason", malformed.Reason).
				Str("body", string(body)).
				Msg("deleting malformed message")
			c.ack(ctx, msg)
			return
		}
		zlog.Logger.Err(err).Str("body", string(body)).Msg("failed to decode message")
		c.ack(ctx, msg)
		return
	}

	handler, err := c.registry.Resolve(inv.Kind)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("task_id", inv.ID).
			Str("body", string(body)).
			Msg("no handler for task, deleting message")
		c.ack(ctx, msg)
		return
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("kind", string(inv.Kind)).
		Int("attempt", inv.Attempt).
		Msg("task received")

	switch c.exec.Execute(ctx, handler, inv) {
	case executor.Succeeded, executor.Exhausted, executor.RetryScheduled:
		c.ack(ctx, msg)
	case executor.RetryDeferred:
		// Leave the message unacknowledged; the visibility timeout will
		// hand it back at the same attempt.
	}
}

// ack deletes the message with retries. A lost delete only means one
// redundant redelivery; handlers tolerate re-execution.
func (c *Consumer) ack(ctx context.Context, msg types.Message) {
	err := retry.Do(func() error {
		return c.queue.Delete(ctx, msg.ReceiptHandle)
	}, c.strategy)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to delete message after retries")
	}
}
