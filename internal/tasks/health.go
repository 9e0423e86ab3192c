package tasks

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
)

// HealthHandler probes the worker's dependencies and host resources. It
// always succeeds: a broken dependency is the finding, not a task failure,
// so a health check is never retried.
type HealthHandler struct {
	storage storageProber
	queue   queueProber
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(storage storageProber, queue queueProber) *HealthHandler {
	return &HealthHandler{storage: storage, queue: queue}
}

// Run implements executor.Handler.
func (h *HealthHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	payload := model.HealthResult{
		State:             "healthy",
		StorageConnection: "ok",
		QueueConnection:   "ok",
	}

	if err := h.storage.Probe(ctx); err != nil {
		payload.State = "degraded"
		payload.StorageConnection = err.Error()
	}
	if err := h.queue.Probe(ctx); err != nil {
		payload.State = "degraded"
		payload.QueueConnection = err.Error()
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		payload.ResourceError = err.Error()
	} else {
		payload.MemoryUsedPercent = vm.UsedPercent
	}
	// Sampled over a real interval; an instantaneous reading only reflects
	// the time since the previous call.
	if percents, err := cpu.Percent(time.Second, false); err != nil {
		payload.ResourceError = err.Error()
	} else if len(percents) > 0 {
		payload.CPUUsedPercent = percents[0]
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("state", payload.State).
		Float64("memory_used_percent", payload.MemoryUsedPercent).
		Float64("cpu_used_percent", payload.CPUUsedPercent).
		Msg("health check completed")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}
