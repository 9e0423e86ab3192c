package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/processor"
	"github.com/waveflow/audio-worker/internal/tempdir"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// HashHandler computes a content hash for an uploaded audio file and
// reports it to the hash-check webhook so the consumer can detect
// duplicates before any expensive processing runs.
type HashHandler struct {
	store objectStore
	hooks notifier
	proc  *processor.Processor
	temp  *tempdir.Dir
}

// NewHashHandler creates a HashHandler.
func NewHashHandler(store objectStore, hooks notifier, proc *processor.Processor, temp *tempdir.Dir) *HashHandler {
	return &HashHandler{store: store, hooks: hooks, proc: proc, temp: temp}
}

// Run implements executor.Handler.
func (h *HashHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	var args model.HashArgs
	if err := inv.DecodeArgs(&args); err != nil {
		return executor.Fail(err)
	}
	if args.Filepath == "" {
		return executor.Fail(fmt.Errorf("hash_and_notify: missing required argument filepath"))
	}
	if args.StemID == "" {
		return executor.Fail(fmt.Errorf("hash_and_notify: missing required argument stemId"))
	}

	local, err := h.temp.Acquire(tempdir.PrefixAudio, filepath.Ext(args.Filepath))
	if err != nil {
		return executor.Retry(err)
	}
	defer local.Release()

	if err := h.store.Download(ctx, args.Filepath, local.Path); err != nil {
		return executor.Retry(err)
	}

	// Hash the raw bytes as-is. Validation belongs to analysis; the
	// duplicate detector needs a digest for every upload, decodable or not.
	hash, err := h.proc.HashFile(local.Path)
	if err != nil {
		return executor.Retry(err)
	}

	payload := model.HashResult{
		TaskID:           inv.ID,
		StemID:           args.StemID,
		UserID:           args.UserID,
		TrackID:          args.TrackID,
		StageID:          args.StageID,
		Filepath:         args.Filepath,
		AudioHash:        hash,
		Timestamp:        args.Timestamp,
		OriginalFilename: args.OriginalFilename,
		State:            "hash_generated",
	}

	// The hash-check callback is the whole point of this task: if the
	// consumer never learns the hash, the work did not happen.
	if err := h.hooks.Notify(ctx, webhook.EndpointHashCheck, args.StemID, payload, model.StatusSuccess); err != nil {
		return executor.Retry(fmt.Errorf("deliver hash-check webhook: %w", err))
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("stem_id", args.StemID).
		Str("audio_hash", hash).
		Msg("audio hash generated")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}
