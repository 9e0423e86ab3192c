// Package processor holds the audio engine: content hashing, decoding to
// mono PCM, waveform peak extraction, and stem mixing. Everything here is
// a deterministic single-pass transform over file bytes or samples.
package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/wb-go/wbf/zlog"

	"github.com/waveflow/audio-worker/internal/model"
)

// hashChunkSize bounds memory use while hashing arbitrarily large files.
const hashChunkSize = 4096

// softLimitCeiling is the post-mix peak amplitude cap.
const softLimitCeiling = 0.95

// Processor validates and analyzes audio files.
type Processor struct {
	maxFileSize int64 // bytes; 0 disables the check
	allowedMIME map[string]struct{}
}

// New creates a Processor. maxFileSizeMB caps accepted file sizes;
// allowedMIMETypes is the accepted MIME set for analysis.
func New(maxFileSizeMB int64, allowedMIMETypes []string) *Processor {
	allowed := make(map[string]struct{}, len(allowedMIMETypes))
	for _, m := range allowedMIMETypes {
		allowed[m] = struct{}{}
	}
	return &Processor{
		maxFileSize: maxFileSizeMB * 1024 * 1024,
		allowedMIME: allowed,
	}
}

// Analysis is the full result of analyzing one audio file.
type Analysis struct {
	MIMEType   string
	AudioHash  string
	FileSize   int64
	Duration   float64
	SampleRate int
	Peaks      []float64
}

// HashFile computes the SHA-256 digest of the raw file bytes, streamed in
// fixed-size chunks. Identical bytes always produce the identical
// 64-character lowercase hex digest.
func (p *Processor) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read file for hashing: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateSize returns the file size, rejecting files over the limit.
func (p *Processor) ValidateSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if p.maxFileSize > 0 && info.Size() > p.maxFileSize {
		return 0, fmt.Errorf("file size %.2fMB exceeds limit %.2fMB",
			float64(info.Size())/(1024*1024), float64(p.maxFileSize)/(1024*1024))
	}
	return info.Size(), nil
}

// ValidateMIME detects and validates the file's MIME type. audio/mp3 is
// normalized to audio/mpeg before checking the allowed set.
func (p *Processor) ValidateMIME(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect mime type: %w", err)
	}

	detected := mtype.String()
	if detected == "audio/mp3" {
		detected = "audio/mpeg"
	}
	if _, ok := p.allowedMIME[detected]; !ok {
		return "", fmt.Errorf("unsupported file type: %s", detected)
	}
	return detected, nil
}

// Peaks partitions the absolute amplitude of samples into numPeaks windows
// and returns the normalized window maxima. Remainder samples from integer
// division go to the last window. Inputs shorter than numPeaks are used
// raw and zero-padded. Peaks are normalized by the global maximum (skipped
// for silence) and rounded to 4 decimal digits.
func (p *Processor) Peaks(samples []float64, numPeaks int) []float64 {
	if numPeaks < 1 {
		return nil
	}

	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(s)
	}

	peaks := make([]float64, numPeaks)
	perWindow := len(abs) / numPeaks
	if perWindow == 0 {
		copy(peaks, abs)
	} else {
		for i := 0; i < numPeaks; i++ {
			start := i * perWindow
			end := start + perWindow
			if i == numPeaks-1 {
				end = len(abs)
			}
			peak := 0.0
			for _, v := range abs[start:end] {
				if v > peak {
					peak = v
				}
			}
			peaks[i] = peak
		}
	}

	globalMax := 0.0
	for _, v := range peaks {
		if v > globalMax {
			globalMax = v
		}
	}
	for i := range peaks {
		if globalMax > 0 {
			peaks[i] /= globalMax
		}
		peaks[i] = math.Round(peaks[i]*10000) / 10000
	}
	return peaks
}

// Duration returns the clip length in seconds.
func (p *Processor) Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}

// Waveform builds the JSON artifact uploaded next to analyzed audio.
func (p *Processor) Waveform(samples []float64, sampleRate, numPeaks int) model.WaveformSummary {
	peaks := p.Peaks(samples, numPeaks)
	return model.WaveformSummary{
		Peaks:      peaks,
		Duration:   p.Duration(len(samples), sampleRate),
		SampleRate: sampleRate,
		NumPeaks:   len(peaks),
		CreatedAt:  model.Timestamp(),
	}
}

// Analyze runs the whole engine over one file: size and MIME validation,
// content hash, decode, and peak extraction.
func (p *Processor) Analyze(path string, numPeaks int) (*Analysis, error) {
	size, err := p.ValidateSize(path)
	if err != nil {
		return nil, err
	}

	mime, err := p.ValidateMIME(path)
	if err != nil {
		return nil, err
	}

	hash, err := p.HashFile(path)
	if err != nil {
		return nil, err
	}

	samples, rate, err := p.Load(path)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		MIMEType:   mime,
		AudioHash:  hash,
		FileSize:   size,
		Duration:   p.Duration(len(samples), rate),
		SampleRate: rate,
		Peaks:      p.Peaks(samples, numPeaks),
	}, nil
}

// Track is one decoded stem handed to Mix.
type Track struct {
	Key        string
	Samples    []float64
	SampleRate int
}

// Mix combines stems into one mono signal at the first-seen sample rate.
// Stems at a different rate are skipped (logged, not fatal). Shorter stems
// are zero-padded to the longest included stem; mixing is the per-sample
// arithmetic mean; the result is scaled down if its peak exceeds 0.95.
func (p *Processor) Mix(tracks []Track) (mixed []float64, sampleRate int, skipped []string, err error) {
	if len(tracks) == 0 {
		return nil, 0, nil, fmt.Errorf("no stems to mix")
	}

	sampleRate = tracks[0].SampleRate
	included := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.SampleRate != sampleRate {
			zlog.Logger.Warn().
				Str("stem", t.Key).
				Int("expected_rate", sampleRate).
				Int("actual_rate", t.SampleRate).
				Msg("sample rate mismatch, skipping stem")
			skipped = append(skipped, t.Key)
			continue
		}
		included = append(included, t)
	}
	if len(included) == 0 {
		return nil, 0, skipped, fmt.Errorf("no stems left after sample rate filtering")
	}

	maxLen := 0
	for _, t := range included {
		if len(t.Samples) > maxLen {
			maxLen = len(t.Samples)
		}
	}

	mixed = make([]float64, maxLen)
	for _, t := range included {
		for i, s := range t.Samples {
			mixed[i] += s
		}
	}
	for i := range mixed {
		mixed[i] /= float64(len(included))
	}

	peak := 0.0
	for _, s := range mixed {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak > softLimitCeiling {
		scale := softLimitCeiling / peak
		for i := range mixed {
			mixed[i] *= scale
		}
	}

	return mixed, sampleRate, skipped, nil
}
