package model

// WaveformSummary is the downsampled amplitude envelope uploaded as a JSON
// artifact next to the analyzed audio. len(Peaks) always equals NumPeaks,
// even for degenerate input.
type WaveformSummary struct {
	Peaks      []float64 `json:"peaks"`
	Duration   float64   `json:"duration"`
	SampleRate int       `json:"sample_rate"`
	NumPeaks   int       `json:"num_peaks"`
	CreatedAt  string    `json:"created_at"`
}
