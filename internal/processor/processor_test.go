package processor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor() *Processor {
	return New(100, []string{"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave", "audio/mpeg"})
}

func TestHashFile(t *testing.T) {
	p := newTestProcessor()

	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	hash, err := p.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
	assert.Len(t, hash, 64)

	// Same bytes, same digest.
	again, err := p.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestHashFileMissing(t *testing.T) {
	p := newTestProcessor()
	_, err := p.HashFile(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}

func TestValidateSize(t *testing.T) {
	p := New(1, nil) // 1MB limit

	small := filepath.Join(t.TempDir(), "small.bin")
	require.NoError(t, os.WriteFile(small, make([]byte, 1024), 0o600))
	size, err := p.ValidateSize(small)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), size)

	big := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(big, make([]byte, 2*1024*1024), 0o600))
	_, err = p.ValidateSize(big)
	assert.Error(t, err)
}

func TestPeaks(t *testing.T) {
	p := newTestProcessor()

	t.Run("length and range", func(t *testing.T) {
		samples := make([]float64, 1000)
		for i := range samples {
			samples[i] = math.Sin(float64(i) / 10)
		}
		peaks := p.Peaks(samples, 100)
		require.Len(t, peaks, 100)
		for _, v := range peaks {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	})

	t.Run("normalized maximum is one", func(t *testing.T) {
		samples := make([]float64, 400)
		samples[42] = -0.5
		peaks := p.Peaks(samples, 4)
		maxPeak := 0.0
		for _, v := range peaks {
			if v > maxPeak {
				maxPeak = v
			}
		}
		assert.Equal(t, 1.0, maxPeak)
	})

	t.Run("remainder goes to last window", func(t *testing.T) {
		// 1005 samples over 100 windows: the last window covers 15 samples.
		samples := make([]float64, 1005)
		samples[0] = 0.5
		samples[1004] = 1.0
		peaks := p.Peaks(samples, 100)
		require.Len(t, peaks, 100)
		assert.Equal(t, 1.0, peaks[99])
	})

	t.Run("short input is zero padded", func(t *testing.T) {
		peaks := p.Peaks([]float64{0.5, -0.25, 0.125}, 8)
		require.Len(t, peaks, 8)
		assert.Equal(t, 1.0, peaks[0])
		assert.Equal(t, 0.5, peaks[1])
		assert.Equal(t, 0.25, peaks[2])
		for _, v := range peaks[3:] {
			assert.Zero(t, v)
		}
	})

	t.Run("silence stays zero", func(t *testing.T) {
		peaks := p.Peaks(make([]float64, 500), 10)
		require.Len(t, peaks, 10)
		for _, v := range peaks {
			assert.Zero(t, v)
		}
	})

	t.Run("rounded to four decimals", func(t *testing.T) {
		samples := []float64{1.0, 1.0 / 3.0}
		peaks := p.Peaks(samples, 2)
		assert.Equal(t, 0.3333, peaks[1])
	})

	t.Run("invalid peak count", func(t *testing.T) {
		assert.Nil(t, p.Peaks([]float64{0.1}, 0))
	})
}

func TestDuration(t *testing.T) {
	p := newTestProcessor()
	assert.InDelta(t, 2.0, p.Duration(88200, 44100), 1e-9)
	assert.Zero(t, p.Duration(100, 0))
}

func TestMix(t *testing.T) {
	p := newTestProcessor()

	t.Run("pads to longest stem", func(t *testing.T) {
		tracks := []Track{
			{Key: "a.wav", Samples: make([]float64, 1000), SampleRate: 44100},
			{Key: "b.wav", Samples: make([]float64, 1500), SampleRate: 44100},
		}
		mixed, rate, skipped, err := p.Mix(tracks)
		require.NoError(t, err)
		assert.Len(t, mixed, 1500)
		assert.Equal(t, 44100, rate)
		assert.Empty(t, skipped)
	})

	t.Run("per sample mean", func(t *testing.T) {
		tracks := []Track{
			{Key: "a", Samples: []float64{0.4, 0.4}, SampleRate: 44100},
			{Key: "b", Samples: []float64{0.4, 0.4, 0.4, 0.4}, SampleRate: 44100},
		}
		mixed, _, _, err := p.Mix(tracks)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, mixed[0], 1e-9)
		assert.InDelta(t, 0.2, mixed[2], 1e-9)
	})

	t.Run("soft limit caps peak", func(t *testing.T) {
		tracks := []Track{
			{Key: "hot", Samples: []float64{1.0, -1.0, 0.5}, SampleRate: 44100},
		}
		mixed, _, _, err := p.Mix(tracks)
		require.NoError(t, err)
		peak := 0.0
		for _, s := range mixed {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		assert.InDelta(t, 0.95, peak, 1e-9)
	})

	t.Run("mismatched sample rate skipped", func(t *testing.T) {
		tracks := []Track{
			{Key: "a", Samples: []float64{0.1}, SampleRate: 44100},
			{Key: "b", Samples: []float64{0.1}, SampleRate: 48000},
		}
		mixed, rate, skipped, err := p.Mix(tracks)
		require.NoError(t, err)
		assert.Equal(t, 44100, rate)
		assert.Equal(t, []string{"b"}, skipped)
		assert.InDelta(t, 0.1, mixed[0], 1e-9)
	})

	t.Run("no stems", func(t *testing.T) {
		_, _, _, err := p.Mix(nil)
		assert.Error(t, err)
	})
}
