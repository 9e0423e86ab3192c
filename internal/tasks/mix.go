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

// MixHandler downmixes a stage's stems into one mono WAV, uploads it with
// a companion waveform artifact, and reports completion.
type MixHandler struct {
	store        objectStore
	hooks        notifier
	proc         *processor.Processor
	temp         *tempdir.Dir
	defaultPeaks int
}

// NewMixHandler creates a MixHandler.
func NewMixHandler(store objectStore, hooks notifier, proc *processor.Processor, temp *tempdir.Dir, defaultPeaks int) *MixHandler {
	return &MixHandler{store: store, hooks: hooks, proc: proc, temp: temp, defaultPeaks: defaultPeaks}
}

// Run implements executor.Handler.
func (h *MixHandler) Run(ctx context.Context, inv model.Invocation) executor.Report {
	var args model.MixArgs
	if err := inv.DecodeArgs(&args); err != nil {
		return executor.Fail(err)
	}
	if args.StageID == "" {
		return executor.Fail(fmt.Errorf("mix_stems: missing required argument stageId"))
	}
	if len(args.StemPaths) == 0 {
		return executor.Fail(fmt.Errorf("mix_stems: stem_paths is empty"))
	}

	numPeaks := args.NumPeaks
	if numPeaks <= 0 {
		numPeaks = h.defaultPeaks
	}

	tracks := make([]processor.Track, 0, len(args.StemPaths))
	for _, key := range args.StemPaths {
		local, err := h.temp.Acquire(tempdir.PrefixStem, filepath.Ext(key))
		if err != nil {
			return executor.Retry(err)
		}
		defer local.Release()

		if err := h.store.Download(ctx, key, local.Path); err != nil {
			return executor.Retry(fmt.Errorf("download stem %s: %w", key, err))
		}

		samples, rate, err := h.proc.Load(local.Path)
		if err != nil {
			return executor.Retry(fmt.Errorf("decode stem %s: %w", key, err))
		}
		tracks = append(tracks, processor.Track{Key: key, Samples: samples, SampleRate: rate})
	}

	logMemory("mix_stems mix")
	mixed, rate, skipped, err := h.proc.Mix(tracks)
	if err != nil {
		return executor.Retry(err)
	}

	out, err := h.temp.Acquire(tempdir.PrefixMixed, ".wav")
	if err != nil {
		return executor.Retry(err)
	}
	defer out.Release()

	if err := processor.EncodeWAV(out.Path, mixed, rate); err != nil {
		return executor.Retry(err)
	}

	ts := keyTimestamp()
	mixedKey := fmt.Sprintf("mixed/%s_mixed_%s.wav", args.StageID, ts)
	if err := h.store.Upload(ctx, out.Path, mixedKey, "audio/wav"); err != nil {
		return executor.Retry(err)
	}

	// The companion waveform is a convenience for the consumer's UI; the
	// mix itself is already uploaded, so failures here only degrade.
	waveformKey := h.uploadWaveform(ctx, args.StageID, ts, mixed, rate, numPeaks)

	payload := model.MixResult{
		TaskID:           inv.ID,
		StageID:          args.StageID,
		UpstreamID:       args.UpstreamID,
		MixedFilePath:    mixedKey,
		WaveformDataPath: waveformKey,
		StemCount:        len(tracks) - len(skipped),
		SkippedStems:     len(skipped),
		StemPaths:        args.StemPaths,
	}

	if err := h.hooks.Notify(ctx, webhook.EndpointMixingComplete, args.StageID, payload, model.StatusSuccess); err != nil {
		zlog.Logger.Warn().Err(err).
			Str("task_id", inv.ID).
			Str("stage_id", args.StageID).
			Msg("failed to deliver mixing-complete webhook")
	}

	zlog.Logger.Info().
		Str("task_id", inv.ID).
		Str("stage_id", args.StageID).
		Str("mixed_key", mixedKey).
		Int("stems", len(tracks)).
		Int("skipped", len(skipped)).
		Msg("stems mixed")

	return executor.Succeed(&model.Result{
		TaskID:      inv.ID,
		Kind:        inv.Kind,
		Status:      model.StatusSuccess,
		Payload:     payload,
		ProcessedAt: model.Timestamp(),
	})
}

// uploadWaveform builds and uploads the mixed file's waveform artifact and
// pings the waveform-update endpoint. Best effort: returns "" on failure.
func (h *MixHandler) uploadWaveform(ctx context.Context, stageID, ts string, mixed []float64, rate, numPeaks int) string {
	waveform := h.proc.Waveform(mixed, rate, numPeaks)
	data, err := json.Marshal(waveform)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("stage_id", stageID).Msg("failed to encode mixed waveform")
		return ""
	}

	key := fmt.Sprintf("waveforms/%s_mixed_waveform_%s.json", stageID, ts)
	if err := h.store.UploadJSON(ctx, key, data); err != nil {
		zlog.Logger.Warn().Err(err).Str("stage_id", stageID).Msg("failed to upload mixed waveform")
		return ""
	}

	update := map[string]any{
		"stageId":            stageID,
		"waveform_data_path": key,
		"num_peaks":          waveform.NumPeaks,
	}
	if err := h.hooks.Notify(ctx, webhook.EndpointWaveformUpdate, stageID, update, model.StatusSuccess); err != nil {
		zlog.Logger.Warn().Err(err).Str("stage_id", stageID).Msg("failed to deliver waveform-update webhook")
	}
	return key
}
