package model

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the task types the worker can execute.
type Kind string

const (
	KindHashAndNotify   Kind = "hash_and_notify"
	KindDeleteDuplicate Kind = "delete_duplicate"
	KindAnalyzeAudio    Kind = "analyze_audio"
	KindMixStems        Kind = "mix_stems"
	KindHealthCheck     Kind = "health_check"
	KindCleanupTemp     Kind = "cleanup_temp"
)

// ParseKind maps a wire-level task name to a Kind. The boolean reports
// whether the name is one of the known kinds.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindHashAndNotify, KindDeleteDuplicate, KindAnalyzeAudio,
		KindMixStems, KindHealthCheck, KindCleanupTemp:
		return Kind(s), true
	}
	return Kind(s), false
}

// Invocation is the canonical unit of work produced by decoding an inbound
// queue message. ID is stable across retries of the same invocation;
// Attempt is the current retry count.
type Invocation struct {
	Kind    Kind
	ID      string
	Args    map[string]any
	Attempt int
}

// DecodeArgs maps the loosely-typed argument set onto a per-kind args struct.
// Unknown fields are ignored and absent fields keep their zero values.
func (inv Invocation) DecodeArgs(dst any) error {
	raw, err := json.Marshal(inv.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode args for %s: %w", inv.Kind, err)
	}
	return nil
}

// HashArgs are the arguments of a hash_and_notify invocation.
type HashArgs struct {
	UserID           string `json:"userId"`
	TrackID          string `json:"trackId"`
	StemID           string `json:"stemId"`
	StageID          string `json:"stageId"`
	Filepath         string `json:"filepath"`
	Timestamp        string `json:"timestamp"`
	OriginalFilename string `json:"original_filename"`
}

// DeleteArgs are the arguments of a delete_duplicate invocation.
type DeleteArgs struct {
	UserID    string `json:"userId"`
	TrackID   string `json:"trackId"`
	StemID    string `json:"stemId"`
	Filepath  string `json:"filepath"`
	AudioHash string `json:"audio_hash"`
}

// AnalyzeArgs are the arguments of an analyze_audio invocation.
type AnalyzeArgs struct {
	UserID           string `json:"userId"`
	TrackID          string `json:"trackId"`
	StemID           string `json:"stemId"`
	UpstreamID       string `json:"upstreamId"`
	Filepath         string `json:"filepath"`
	AudioHash        string `json:"audio_hash"`
	Timestamp        string `json:"timestamp"`
	OriginalFilename string `json:"original_filename"`
	NumPeaks         int    `json:"num_peaks"`
}

// MixArgs are the arguments of a mix_stems invocation.
type MixArgs struct {
	StageID    string   `json:"stageId"`
	UpstreamID string   `json:"upstreamId"`
	StemPaths  []string `json:"stem_paths"`
	NumPeaks   int      `json:"num_peaks"`
}
