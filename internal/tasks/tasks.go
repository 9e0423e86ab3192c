// Package tasks contains the handlers behind each task kind. A handler
// decodes its typed arguments, performs the work against storage and the
// audio engine, delivers webhooks, and reports a disposition; it never
// touches the queue directly.
package tasks

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// objectStore is the slice of the storage gateway the handlers need.
type objectStore interface {
	Download(ctx context.Context, key, path string) error
	Upload(ctx context.Context, path, key, contentType string) error
	UploadJSON(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// notifier delivers result payloads to the webhook consumer.
type notifier interface {
	Notify(ctx context.Context, endpoint webhook.Endpoint, jobID string, result any, status model.Status) error
}

// storageProber and queueProber are the connectivity checks behind the
// health check task.
type storageProber interface {
	Probe(ctx context.Context) error
}

type queueProber interface {
	Probe(ctx context.Context) error
}

// keyTimestamp formats the current time for embedding in object keys.
func keyTimestamp() string {
	return time.Now().UTC().Format("20060102150405")
}

// logMemory traces host memory pressure around the heavy decode and mix
// stages. Decoded PCM can be an order of magnitude larger than the file.
func logMemory(stage string) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	zlog.Logger.Debug().
		Str("stage", stage).
		Float64("memory_used_percent", vm.UsedPercent).
		Msg("memory usage")
}
