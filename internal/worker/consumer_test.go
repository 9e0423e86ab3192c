package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/waveflow/audio-worker/internal/dispatch"
	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// fakeQueue hands out a fixed batch of messages once, then cancels the
// consumer's context so Consume returns.
type fakeQueue struct {
	mu       sync.Mutex
	messages []types.Message
	served   bool
	deleted  []string
	cancel   context.CancelFunc
}

func (q *fakeQueue) Receive(ctx context.Context) ([]types.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.served {
		q.cancel()
		return nil, ctx.Err()
	}
	q.served = true
	return q.messages, nil
}

func (q *fakeQueue) Delete(_ context.Context, receiptHandle *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, *receiptHandle)
	return nil
}

type noopResubmitter struct{}

func (noopResubmitter) Send(context.Context, string, time.Duration) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, webhook.Endpoint, string, any, model.Status) error {
	return nil
}

type recordingHandler struct {
	mu   sync.Mutex
	runs []model.Invocation
	rep  executor.Report
}

func (h *recordingHandler) Run(_ context.Context, inv model.Invocation) executor.Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, inv)
	return h.rep
}

func message(handle, body string) types.Message {
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func runConsumer(t *testing.T, q *fakeQueue, reg *dispatch.Registry) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.cancel = cancel

	exec := executor.New(noopResubmitter{}, noopNotifier{}, 3, time.Minute, 5*time.Minute)
	c := New(q, reg, exec, model.KindHashAndNotify, time.Millisecond,
		retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)
	wg.Wait()
}

func TestConsumeSuccessDeletesMessage(t *testing.T) {
	h := &recordingHandler{rep: executor.Succeed(&model.Result{TaskID: "h1", Status: model.StatusSuccess})}
	reg := dispatch.NewRegistry()
	reg.Register(model.KindHealthCheck, h)

	q := &fakeQueue{messages: []types.Message{
		message("r1", `{"task":"health_check","id":"h1"}`),
	}}
	runConsumer(t, q, reg)

	require.Len(t, h.runs, 1)
	assert.Equal(t, "h1", h.runs[0].ID)
	assert.Equal(t, []string{"r1"}, q.deleted)
}

func TestConsumeMalformedMessageDeleted(t *testing.T) {
	reg := dispatch.NewRegistry()

	q := &fakeQueue{messages: []types.Message{
		message("r1", ""),
		message("r2", "{not json"),
		message("r3", "{}"),
	}}
	runConsumer(t, q, reg)

	// Garbage is acknowledged without execution; redelivery cannot help.
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, q.deleted)
}

func TestConsumeUnknownKindDeleted(t *testing.T) {
	reg := dispatch.NewRegistry()

	q := &fakeQueue{messages: []types.Message{
		message("r1", `{"task":"transcode_video","id":"x"}`),
	}}
	runConsumer(t, q, reg)

	assert.Equal(t, []string{"r1"}, q.deleted)
}

func TestConsumeRetryableDeletesAfterResubmit(t *testing.T) {
	h := &recordingHandler{rep: executor.Retry(errors.New("transient"))}
	reg := dispatch.NewRegistry()
	reg.Register(model.KindHealthCheck, h)

	q := &fakeQueue{messages: []types.Message{
		message("r1", `{"task":"health_check","id":"h1","attempt":0}`),
	}}
	runConsumer(t, q, reg)

	// The retry was re-enqueued, so the original must go away.
	assert.Equal(t, []string{"r1"}, q.deleted)
}

func TestConsumeDeferredRetryLeavesMessage(t *testing.T) {
	h := &recordingHandler{rep: executor.Retry(errors.New("transient"))}
	reg := dispatch.NewRegistry()
	reg.Register(model.KindHealthCheck, h)

	q := &fakeQueue{messages: []types.Message{
		message("r1", `{"task":"health_check","id":"h1","attempt":0}`),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.cancel = cancel

	exec := executor.New(failingResubmitter{}, noopNotifier{}, 3, time.Minute, 5*time.Minute)
	c := New(q, reg, exec, model.KindHashAndNotify, time.Millisecond,
		retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1})

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)
	wg.Wait()

	// Re-submission failed: the message stays for the visibility timeout.
	assert.Empty(t, q.deleted)
}

type failingResubmitter struct{}

func (failingResubmitter) Send(context.Context, string, time.Duration) error {
	return errors.New("queue unavailable")
}

func TestConsumeNilBodyDeleted(t *testing.T) {
	reg := dispatch.NewRegistry()

	q := &fakeQueue{messages: []types.Message{
		{ReceiptHandle: aws.String("r1"), Body: nil},
	}}
	runConsumer(t, q, reg)

	assert.Equal(t, []string{"r1"}, q.deleted)
}
