package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner captures every invocation instead of executing it.
type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil
}

func TestDecodeToWAVArgs(t *testing.T) {
	rec := &recordingRunner{}
	tools := NewTools("", "")
	tools.Run = rec.run

	require.NoError(t, tools.DecodeToWAV(context.Background(), "in.mp3", "out.wav"))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{
		"ffmpeg", "-i", "in.mp3", "-ar", "44100", "-ac", "2",
		"-c:a", "pcm_s16le", "-f", "wav", "-y", "out.wav",
	}, rec.calls[0])
}

func TestAlignToArgs(t *testing.T) {
	rec := &recordingRunner{}
	tools := NewTools("ffmpeg", "demucs")
	tools.Run = rec.run

	require.NoError(t, tools.AlignTo(context.Background(), "stem.wav", "aligned.wav", 44100, 132300))
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], "aresample=44100,apad=whole_len=132300,atrim=end_sample=132300")
}

func TestAlignFilterExact(t *testing.T) {
	assert.Equal(t,
		"aresample=48000,apad=whole_len=96000,atrim=end_sample=96000",
		alignFilter(48000, 96000),
	)
}

func TestEncodeMP3Args(t *testing.T) {
	rec := &recordingRunner{}
	tools := NewTools("", "")
	tools.Run = rec.run

	require.NoError(t, tools.EncodeMP3(context.Background(), "stem.wav", "stem.mp3"))
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], "libmp3lame")
	assert.Contains(t, rec.calls[0], "320k")
}

func TestSeparateFlattensModelOutput(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "stems")

	tools := NewTools("", "")
	tools.Run = func(_ context.Context, name string, args ...string) error {
		// Simulate the separation model's model/track nesting.
		require.Equal(t, "demucs", name)
		trackDir := filepath.Join(outDir, "htdemucs", "reference")
		require.NoError(t, os.MkdirAll(trackDir, 0755))
		for _, stem := range []string{"vocals.wav", "drums.wav", "bass.wav", "other.wav"} {
			require.NoError(t, os.WriteFile(filepath.Join(trackDir, stem), []byte("pcm"), 0644))
		}
		return nil
	}

	require.NoError(t, tools.Separate(context.Background(), outDir, "reference.wav"))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		assert.False(t, entry.IsDir(), "no subdirectories may remain after flattening")
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"vocals.wav", "drums.wav", "bass.wav", "other.wav"}, names)
}

func TestFlattenTreeNoNesting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocals.wav"), []byte("pcm"), 0644))

	require.NoError(t, FlattenTree(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vocals.wav", entries[0].Name())
}

func TestFlattenTreeTwoLevels(t *testing.T) {
	dir := t.TempDir()
	deep := filepath.Join(dir, "model", "track")
	require.NoError(t, os.MkdirAll(deep, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "vocals.wav"), []byte("v"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "drums.wav"), []byte("d"), 0644))

	require.NoError(t, FlattenTree(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		assert.False(t, entry.IsDir())
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"vocals.wav", "drums.wav"}, names)
}

func TestRunCommandWrapsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	err := runCommand(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "sh", toolErr.Tool)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Contains(t, toolErr.Output, "boom")
}

func TestRunCommandSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	require.NoError(t, runCommand(context.Background(), "sh", "-c", "true"))
}
