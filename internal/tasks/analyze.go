package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
	"github.com/waveflow/audio-worker/internal/processor"
	"github.com/waveflow/audio-worker/internal/tempdir"
	"github.com/waveflow/audio-worker/internal/webhook"
)

// AnalyzeHandler runs the full analysis pipeline over one stem: validate,
// hash, decode, extract waveform peaks, upload the waveform artifact, and
// report completion.
type AnalyzeHandler struct {
	store        objectStore
	hooks        notifier
	proc         *processor.Processor
	temp         *tempdir.Dir
	defaultPeaks int
}

// NewAnalyzeHandler creates an AnalyzeHandler. defaultPeaks is used when
// an invocation does not specify num_peaks.
func NewAnalyzeHandler(store objectStore, hooks notifier, proc *processor.Processor, temp *tempdir.Dir, defaultPeaks int) *AnalyzeHandler {
	return &AnalyzeHandler{store: store, hooks: hooks, proc: proc, temp: temp, defaultPeaks: defaultPeaks}
}

// Run implements executor.Handler.
func (h *AnalyzeHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	var args model.AnalyzeArgs
	if err := inv.DecodeArgs(&args); err != nil {
		return executor.Fail(err)
	}
	if args.Filepath == "" {
		return executor.Fail(fmt.Errorf("analyze_audio: missing required argument filepath"))
	}
	if args.StemID == "" {
		return executor.Fail(fmt.Errorf("analyze_audio: missing required argument stemId"))
	}

	numPeaks := args.NumPeaks
	if numPeaks <= 0 {
		numPeaks = h.defaultPeaks
	}

	local, err := h.temp.Acquire(tempdir.PrefixAudio, filepath.Ext(args.Filepath))
	if err != nil {
		return executor.Retry(err)
	}
	defer local.Release()

	if err := h.store.Download(ctx, args.Filepath, local.Path); err != nil {
		return executor.Retry(err)
	}

	logMemory("analyze_audio decode")
	analysis, err := h.proc.Analyze(local.Path, numPeaks)
	if err != nil {
		return executor.Retry(err)
	}

	waveform := model.WaveformSummary{
		Peaks:      analysis.Peaks,
		Duration:   analysis.Duration,
		SampleRate: analysis.SampleRate,
		NumPeaks:   len(analysis.Peaks),
		CreatedAt:  model.Timestamp(),
	}
	waveformJSON, err := json.Marshal(waveform)
	if err != nil {
		return executor.Retry(fmt.Errorf("encode waveform: %w", err))
	}

	waveformKey := fmt.Sprintf("waveforms/%s_waveform_%s.json", args.StemID, keyTimestamp())
	if err := h.store.UploadJSON(ctx, waveformKey, waveformJSON); err != nil {
		return executor.Retry(err)
	}

	payload := model.AnalyzeResult{
		TaskID:           inv.ID,
		StemID:           args.StemID,
		UserID:           args.UserID,
		TrackID:          args.TrackID,
		UpstreamID:       args.UpstreamID,
		AudioHash:        analysis.AudioHash,
		MIMEType:         analysis.MIMEType,
		FileSize:         analysis.FileSize,
		Duration:         analysis.Duration,
		SampleRate:       analysis.SampleRate,
		NumPeaks:         len(analysis.Peaks),
		WaveformDataPath: waveformKey,
		OriginalFilename: args.OriginalFilename,
	}

	// Completion is what unblocks the consumer's pipeline for this stem;
	// delivery failures are retried with the whole task.
	if err := h.hooks.Notify(ctx, webhook.EndpointCompletion, args.StemID, payload, model.StatusSuccess); err != nil {
		return executor.Retry(fmt.Errorf("deliver completion webhook: %w", err))
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("stem_id", args.StemID).
		Str("waveform_key", waveformKey).
		Float64("duration", analysis.Duration).
		Msg("audio analyzed")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}
