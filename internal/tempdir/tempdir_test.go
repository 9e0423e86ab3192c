package tempdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	res, err := d.Acquire(PrefixAudio, ".wav")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(res.Path), PrefixAudio))
	assert.True(t, strings.HasSuffix(res.Path, ".wav"))
	_, err = os.Stat(res.Path)
	require.NoError(t, err)

	res.Release()
	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	res.Release()
}

func TestAcquireUniquePaths(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	a, err := d.Acquire(PrefixStem, "wav") // bare extension gets a dot
	require.NoError(t, err)
	defer a.Release()
	b, err := d.Acquire(PrefixStem, ".wav")
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
	assert.True(t, strings.HasSuffix(a.Path, ".wav"))
}

func TestReleaseNil(t *testing.T) {
	var res *Resource
	res.Release() // must not panic
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	d, err := New(root)
	require.NoError(t, err)

	write := func(name string, age time.Duration) string {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte("xxxx"), 0o600))
		mtime := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	oldPattern := write("audio-abc123.wav", 2*time.Hour)
	oldExt := write("leftover.flac", 2*time.Hour)
	oldForeign := write("notes.txt", 2*time.Hour)
	ancientForeign := write("report.txt", 10*time.Hour)
	fresh := write("mixed-def456.wav", time.Minute)

	stats, err := d.Sweep(time.Hour, 4*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Removed)
	assert.Equal(t, int64(12), stats.BytesReclaimed)
	assert.Zero(t, stats.Failed)

	assert.NoFileExists(t, oldPattern)   // pattern, past maxAge
	assert.NoFileExists(t, oldExt)       // audio extension, past maxAge
	assert.NoFileExists(t, ancientForeign) // anything past hardMaxAge
	assert.FileExists(t, oldForeign)     // foreign file under hardMaxAge
	assert.FileExists(t, fresh)          // pattern but too young
}

func TestSweepIgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	d, err := New(root)
	require.NoError(t, err)

	sub := filepath.Join(root, "audio-nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	mtime := time.Now().Add(-10 * time.Hour)
	require.NoError(t, os.Chtimes(sub, mtime, mtime))

	stats, err := d.Sweep(time.Hour, 4*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stats.Removed)
	assert.DirExists(t, sub)
}

func TestNewDefaultsToSystemTemp(t *testing.T) {
	d, err := New("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.TempDir(), "audio-worker"), d.Root())
}
