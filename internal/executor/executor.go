// Package executor runs a decoded task invocation to completion and decides
// what happens to the underlying queue message. A handler reports one of
// three dispositions (success, retryable failure, fatal failure); the
// executor turns that into a terminal outcome or schedules a retry with
// exponential backoff.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// Disposition classifies a handler's result. The retry decision reads this
// variant; handlers never signal retry by panicking or by error type
// sniffing.
type Disposition int

const (
	// DispositionSuccess means the handler produced a result.
	DispositionSuccess Disposition = iota
	// DispositionRetryable means the failure may clear on a later attempt
	// (transient infrastructure, undecodable content per current policy).
	DispositionRetryable
	// DispositionFatal means re-delivery provably cannot change the
	// outcome (the invocation itself is invalid).
	DispositionFatal
)

// Report is what a handler returns.
type Report struct {
	Disposition Disposition
	Result      *model.Result
	Err         error
}

// Succeed builds a success report.
func Succeed(res *model.Result) Report {
	return Report{Disposition: DispositionSuccess, Result: res}
}

// Retry builds a retryable-failure report.
func Retry(err error) Report {
	return Report{Disposition: DispositionRetryable, Err: err}
}

// Fail builds a fatal-failure report.
func Fail(err error) Report {
	return Report{Disposition: DispositionFatal, Err: err}
}

// Handler executes one task kind. Implementations must be safely
// re-executable: the queue delivers at least once.
type Handler interface {
	Run(ctx context.Context, inv model.Invocation) Report
}

// Outcome is the executor's verdict on the queue message.
type Outcome int

const (
	// Succeeded: terminal, delete the message.
	Succeeded Outcome = iota
	// RetryScheduled: a replacement message with attempt+1 was enqueued;
	// delete the original so the retry is not doubled.
	RetryScheduled
	// RetryDeferred: re-submission failed; leave the message unacknowledged
	// so the broker's visibility timeout redelivers it.
	RetryDeferred
	// Exhausted: terminal failure, delete the message. Dead-lettering, if
	// desired, belongs to the queue's own configuration.
	Exhausted
)

// resubmitter re-enqueues an invocation for a later attempt.
type resubmitter interface {
	Send(ctx context.Context, body string, delay time.Duration) error
}

// notifier delivers failure payloads to the webhook consumer.
type notifier interface {
	Notify(ctx context.Context, endpoint webhook.Endpoint, jobID string, result any, status model.Status) error
}

// Executor drives the per-invocation state machine
// Pending -> Running -> {Succeeded, RetryScheduled, Exhausted}.
type Executor struct {
	queue      resubmitter
	hooks      notifier
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates an Executor.
func New(queue resubmitter, hooks notifier, maxRetries int, baseDelay, maxDelay time.Duration) *Executor {
	return &Executor{
		queue:      queue,
		hooks:      hooks,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// Backoff returns the retry delay for a 0-indexed attempt:
// min(base * 2^attempt, limit).
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Execute runs the handler and classifies the outcome. Temp resources are
// owned and released by the handlers themselves on every exit path.
func (e *Executor) Execute(ctx context.Context, h Handler, inv model.Invocation) Outcome {
	rep := h.Run(ctx, inv)

	switch rep.Disposition {
	case DispositionSuccess:
		zlog.Logger.Info().
			Str("task_id", inv.ID).
			Str("kind", string(inv.Kind)).
			Int("attempt", inv.Attempt).
			Msg("task succeeded")
		return Succeeded

	case DispositionRetryable:
		if inv.Attempt < e.maxRetries {
			return e.scheduleRetry(ctx, inv, rep.Err)
		}
		zlog.Logger.Error().
			Err(rep.Err).
			Str("task_id", inv.ID).
			Str("kind", string(inv.Kind)).
			Int("attempt", inv.Attempt).
			Msg("max retries exceeded")
		e.notifyExhausted(ctx, inv, rep.Err, "max_retries_exceeded")
		return Exhausted

	default: // DispositionFatal
		zlog.Logger.Error().
			Err(rep.Err).
			Str("task_id", inv.ID).
			Str("kind", string(inv.Kind)).
			Msg("fatal task failure")
		e.notifyExhausted(ctx, inv, rep.Err, "fatal")
		return Exhausted
	}
}

func (e *Executor) scheduleRetry(ctx context.Context, inv model.Invocation, cause error) Outcome {
	delay := Backoff(e.baseDelay, e.maxDelay, inv.Attempt)

	body, err := json.Marshal(map[string]any{
		"task":    inv.Kind,
		"id":      inv.ID,
		"kwargs":  inv.Args,
		"attempt": inv.Attempt + 1,
	})
	if err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", inv.ID).Msg("failed to encode retry message")
		return RetryDeferred
	}

	if err := e.queue.Send(ctx, string(body), delay); err != nil {
		// The original message stays unacknowledged; the broker's
		// visibility timeout will redeliver it at the same attempt.
		zlog.Logger.Error().
			Err(err).
			Str("task_id", inv.ID).
			Msg("failed to re-submit invocation, deferring to visibility timeout")
		return RetryDeferred
	}

	zlog.Logger.Warn().
		Err(cause).
		Str("task_id", inv.ID).
		Str("kind", string(inv.Kind)).
		Int("next_attempt", inv.Attempt+1).
		Int("max_retries", e.maxRetries).
		Dur("delay", delay).
		Msg("task retry scheduled")
	return RetryScheduled
}

// notifyExhausted sends a FAILURE payload to the task kind's endpoint.
// Kinds without an externally visible result (health check, temp cleanup)
// notify nobody.
func (e *Executor) notifyExhausted(ctx context.Context, inv model.Invocation, cause error, code string) {
	endpoint, ok := webhook.EndpointFor(inv.Kind)
	if !ok {
		return
	}

	jobID := inv.ID
	if stem, ok := inv.Args["stemId"].(string); ok && stem != "" {
		jobID = stem
	} else if stage, ok := inv.Args["stageId"].(string); ok && stage != "" {
		jobID = stage
	}

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	payload := map[string]any{
		"task_id": inv.ID,
		"error":   msg,
		"code":    code,
		"status":  fmt.Sprintf("%s_failed", inv.Kind),
	}

	if err := e.hooks.Notify(ctx, endpoint, jobID, payload, model.StatusFailure); err != nil {
		zlog.Logger.Warn().Err(err).Str("task_id", inv.ID).Msg("failed to deliver failure webhook")
	}
}
