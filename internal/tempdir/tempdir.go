// Package tempdir manages locally materialized copies of remote objects.
// Every file is exclusively owned by the invocation that acquired it and
// is released on all exit paths; the sweep exists only as a safety net for
// files abandoned by a crashed worker.
package tempdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
)

// Prefixes used for files this worker creates. The sweep recognizes them.
const (
	PrefixAudio    = "audio-"
	PrefixStem     = "stem-"
	PrefixMixed    = "mixed-"
	PrefixWaveform = "waveform-"
)

var sweepPrefixes = []string{PrefixAudio, PrefixStem, PrefixMixed, PrefixWaveform}

var sweepExtensions = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".flac": {}, ".ogg": {}, ".oga": {},
}

// Dir is the worker's local scratch area.
type Dir struct {
	root string
}

// New creates the scratch directory if needed. An empty root selects the
// system temp directory.
func New(root string) (*Dir, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "audio-worker")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the scratch directory path.
func (d *Dir) Root() string {
	return d.root
}

// Resource is an owned local file. Path is unique per acquisition, so
// concurrent invocations never collide.
type Resource struct {
	Path     string
	released bool
}

// Acquire creates an empty owned file named prefix + unique suffix + ext.
func (d *Dir) Acquire(prefix, ext string) (*Resource, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(d.root, prefix+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("acquire temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("acquire temp file: %w", err)
	}
	return &Resource{Path: path}, nil
}

// Release deletes the file. Best effort: a failure is logged and never
// escalated. Safe to call more than once.
func (r *Resource) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		zlog.Logger.Warn().Err(err).Str("path", r.Path).Msg("failed to release temp file")
	}
}

// SweepStats reports what a sweep reclaimed.
type SweepStats struct {
	Removed        int
	BytesReclaimed int64
	Failed         int
	Paths          []string
}

// Sweep removes abandoned files: worker-pattern files older than maxAge,
// and any file older than hardMaxAge regardless of pattern. Individual
// delete failures are counted, not fatal.
func (d *Dir) Sweep(maxAge, hardMaxAge time.Duration) (SweepStats, error) {
	var stats SweepStats

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return stats, fmt.Errorf("scan work dir: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		if age < maxAge {
			continue
		}
		if age < hardMaxAge && !matchesPattern(entry.Name()) {
			continue
		}

		path := filepath.Join(d.root, entry.Name())
		if err := os.Remove(path); err != nil {
			stats.Failed++
			zlog.Logger.Warn().Err(err).Str("path", path).Msg("sweep failed to remove file")
			continue
		}
		stats.Removed++
		stats.BytesReclaimed += info.Size()
		stats.Paths = append(stats.Paths, path)
	}

	return stats, nil
}

func matchesPattern(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range sweepPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	_, ok := sweepExtensions[filepath.Ext(lower)]
	return ok
}
