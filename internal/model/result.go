package model

import "time"

// Status is the terminal state of an invocation as reported downstream.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Result is the envelope a task handler returns. It is never persisted;
// it is handed back in-process and optionally serialized into a webhook
// payload.
type Result struct {
	TaskID      string `json:"task_id"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`
	Payload     any    `json:"result"`
	ProcessedAt string `json:"processed_at"`
}

// Timestamp returns the current time formatted the way all emitted
// payloads and derived object keys expect it.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// HashResult is the payload of a completed hash_and_notify task.
type HashResult struct {
	TaskID           string `json:"task_id"`
	StemID           string `json:"stemId"`
	UserID           string `json:"userId,omitempty"`
	TrackID          string `json:"trackId,omitempty"`
	StageID          string `json:"stageId,omitempty"`
	Filepath         string `json:"filepath"`
	AudioHash        string `json:"audio_hash"`
	Timestamp        string `json:"timestamp,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	State            string `json:"status"`
}

// DeleteResult is the payload of a completed delete_duplicate task.
type DeleteResult struct {
	TaskID    string `json:"task_id"`
	StemID    string `json:"stemId"`
	UserID    string `json:"userId,omitempty"`
	TrackID   string `json:"trackId,omitempty"`
	AudioHash string `json:"audio_hash,omitempty"`
	Filepath  string `json:"filepath"`
	State     string `json:"status"`
}

// AnalyzeResult is the payload of a completed analyze_audio task.
type AnalyzeResult struct {
	TaskID           string  `json:"task_id"`
	StemID           string  `json:"stemId"`
	UserID           string  `json:"userId,omitempty"`
	TrackID          string  `json:"trackId,omitempty"`
	UpstreamID       string  `json:"upstreamId,omitempty"`
	AudioHash        string  `json:"audio_hash"`
	MIMEType         string  `json:"mime_type"`
	FileSize         int64   `json:"file_size"`
	Duration         float64 `json:"duration"`
	SampleRate       int     `json:"sample_rate"`
	NumPeaks         int     `json:"num_peaks"`
	WaveformDataPath string  `json:"waveform_data_path"`
	OriginalFilename string  `json:"original_filename,omitempty"`
}

// MixResult is the payload of a completed mix_stems task.
type MixResult struct {
	TaskID           string   `json:"task_id"`
	StageID          string   `json:"stageId"`
	UpstreamID       string   `json:"upstreamId,omitempty"`
	MixedFilePath    string   `json:"mixed_file_path"`
	WaveformDataPath string   `json:"waveform_data_path,omitempty"`
	StemCount        int      `json:"stem_count"`
	SkippedStems     int      `json:"skipped_stems"`
	StemPaths        []string `json:"stem_paths"`
}

// HealthResult is the payload of a health_check task. Probe failures are
// captured as strings; the task itself never fails.
type HealthResult struct {
	State             string  `json:"status"`
	StorageConnection string  `json:"storage_connection"`
	QueueConnection   string  `json:"queue_connection"`
	MemoryUsedPercent float64 `json:"memory_usage_percent"`
	CPUUsedPercent    float64 `json:"cpu_usage_percent"`
	ResourceError     string  `json:"resource_error,omitempty"`
}

// CleanupResult is the payload of a cleanup_temp task.
type CleanupResult struct {
	CleanedFiles   int      `json:"cleaned_files_count"`
	BytesReclaimed int64    `json:"bytes_reclaimed"`
	FailedDeletes  int      `json:"failed_deletes"`
	Sample         []string `json:"cleaned_files,omitempty"` // first few paths only
}
