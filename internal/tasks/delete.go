package tasks

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// DeleteHandler removes a duplicate upload from object storage after the
// consumer matched its hash against an existing file.
type DeleteHandler struct {
	store objectStore
	hooks notifier
}

// NewDeleteHandler creates a DeleteHandler.
func NewDeleteHandler(store objectStore, hooks notifier) *DeleteHandler {
	return &DeleteHandler{store: store, hooks: hooks}
}

// Run implements executor.Handler.
func (h *DeleteHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	var args model.DeleteArgs
	if err := inv.DecodeArgs(&args); err != nil {
		return executor.Fail(err)
	}
	if args.Filepath == "" {
		return executor.Fail(fmt.Errorf("delete_duplicate: missing required argument filepath"))
	}
	if args.StemID == "" {
		return executor.Fail(fmt.Errorf("delete_duplicate: missing required argument stemId"))
	}

	if err := h.store.Delete(ctx, args.Filepath); err != nil {
		return executor.Retry(err)
	}

	payload := model.DeleteResult{
		TaskID:    inv.ID,
		StemID:    args.StemID,
		UserID:    args.UserID,
		TrackID:   args.TrackID,
		AudioHash: args.AudioHash,
		Filepath:  args.Filepath,
		State:     "duplicate_deleted",
	}

	// The delete already happened; a lost callback must not resurrect the
	// task, so webhook failures are logged and swallowed.
	if err := h.hooks.Notify(ctx, webhook.EndpointDuplicateDone, args.StemID, payload, model.StatusSuccess); err != nil {
		zlog.Logger.Warn().Err(err).
			Str("task_id", inv.ID).
			Str("stem_id", args.StemID).
			Msg("failed to deliver duplicate-delete webhook")
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("stem_id", args.StemID).
		Str("filepath", args.Filepath).
		Msg("duplicate file deleted")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}
