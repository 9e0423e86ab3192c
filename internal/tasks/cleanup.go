package tasks

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/tempdir"
)

// sampleLimit caps how many reclaimed paths a cleanup result reports.
const sampleLimit = 20

// CleanupHandler sweeps the scratch directory for files abandoned by
// crashed or killed workers.
type CleanupHandler struct {
	temp       *tempdir.Dir
	maxAge     time.Duration
	hardMaxAge time.Duration
}

// NewCleanupHandler creates a CleanupHandler.
func NewCleanupHandler(temp *tempdir.Dir, maxAge, hardMaxAge time.Duration) *CleanupHandler {
	return &CleanupHandler{temp: temp, maxAge: maxAge, hardMaxAge: hardMaxAge}
}

// Run implements executor.Handler.
func (h *CleanupHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	stats, err := h.temp.Sweep(h.maxAge, h.hardMaxAge)
	if err != nil {
		return executor.Retry(err)
	}

	sample := stats.Paths
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}
	payload := model.CleanupResult{
		CleanedFiles:   stats.Removed,
		BytesReclaimed: stats.BytesReclaimed,
		FailedDeletes:  stats.Failed,
		Sample:         sample,
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Int("cleaned_files", stats.Removed).
		Int64("bytes_reclaimed", stats.BytesReclaimed).
		Int("failed_deletes", stats.Failed).
		Msg("temp cleanup completed")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}
