package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stem420/internal/audio"
	"stem420/internal/blob"
	"stem420/internal/job"
	"stem420/internal/lifecycle"
	"stem420/internal/testsupport"
)

const (
	testRate    = 44100
	testSamples = 2048
)

// fakeBucket serves objects from memory and records uploads.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte // "container/object" -> content
	uploads map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects: make(map[string][]byte),
		uploads: make(map[string][]byte),
	}
}

func (b *fakeBucket) Download(_ context.Context, container, object, localPath string) error {
	b.mu.Lock()
	content, ok := b.objects[container+"/"+object]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("object not found: %s/%s", container, object)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, content, 0644)
}

func (b *fakeBucket) UploadTree(_ context.Context, localDir, container, prefix string) error {
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.uploads[container+"/"+path.Join(prefix, filepath.ToSlash(rel))] = content
		b.mu.Unlock()
		return nil
	})
}

func (b *fakeBucket) List(_ context.Context, container, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for key := range b.objects {
		object := strings.TrimPrefix(key, container+"/")
		if strings.HasPrefix(object, prefix) {
			names = append(names, object)
		}
	}
	return names, nil
}

// fakeTools simulates ffmpeg (writes a valid WAV or touches the output)
// and the separation model (produces a nested model/track tree).
func fakeTools(t *testing.T) *audio.Tools {
	t.Helper()
	tools := audio.NewTools("", "")
	tools.Run = func(_ context.Context, name string, args ...string) error {
		switch name {
		case "demucs":
			outDir := args[1] // "-o" outDir input
			trackDir := filepath.Join(outDir, "htdemucs", "reference")
			if err := os.MkdirAll(trackDir, 0755); err != nil {
				return err
			}
			for _, stem := range []string{"vocals.wav", "drums.wav", "bass.wav", "other.wav"} {
				if err := os.WriteFile(filepath.Join(trackDir, stem), []byte("pcm"), 0644); err != nil {
					return err
				}
			}
			return nil
		case "ffmpeg":
			output := args[len(args)-1]
			if strings.HasSuffix(output, ".wav") {
				return os.WriteFile(output, testsupport.WAVBytes(testRate, 2, testSamples), 0644)
			}
			return os.WriteFile(output, []byte("mp3"), 0644)
		default:
			return fmt.Errorf("unexpected tool %s", name)
		}
	}
	return tools
}

func newOrchestrator(t *testing.T, bucket *fakeBucket) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Tools:     fakeTools(t),
		Tracker:   lifecycle.NewTracker(),
		NewBucket: func(context.Context) (blob.Bucket, error) { return bucket, nil },
	}
}

func TestProcessUploadsAlignedStemsAndMetadata(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["bucket/jobs/1/input/song.mp3"] = []byte("mp3 bytes")

	orch := newOrchestrator(t, bucket)
	req := job.Request{
		SourceLocator:      "gs://bucket/jobs/1/input/song.mp3",
		DestinationLocator: "gs://bucket/jobs/1/output/",
	}
	require.NoError(t, orch.Process(context.Background(), req))

	var uploaded []string
	for key := range bucket.uploads {
		uploaded = append(uploaded, key)
		assert.False(t, strings.HasSuffix(key, ".wav"), "intermediate waveform uploaded: %s", key)
	}
	assert.ElementsMatch(t, []string{
		"bucket/jobs/1/output/vocals.mp3",
		"bucket/jobs/1/output/drums.mp3",
		"bucket/jobs/1/output/bass.mp3",
		"bucket/jobs/1/output/other.mp3",
		"bucket/jobs/1/output/metadata.json",
	}, uploaded)

	var meta Metadata
	require.NoError(t, json.Unmarshal(bucket.uploads["bucket/jobs/1/output/metadata.json"], &meta))
	assert.Equal(t, testRate, meta.SampleRate)
	assert.Equal(t, testSamples, meta.ReferenceSamples)
	assert.InDelta(t, float64(testSamples)/float64(testRate), meta.ReferenceSeconds, 1e-9)
	assert.Equal(t, AlignmentMethod, meta.Alignment)
	assert.GreaterOrEqual(t, meta.ProcessingSeconds, 0.0)
}

func TestProcessRejectsInvalidSource(t *testing.T) {
	orch := newOrchestrator(t, newFakeBucket())
	err := orch.Process(context.Background(), job.Request{
		SourceLocator:      "bucket/no/scheme",
		DestinationLocator: "gs://bucket/out/",
	})
	require.ErrorIs(t, err, blob.ErrInvalidLocator)
}

func TestProcessRejectsInvalidDestinationBeforeAnyWork(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["bucket/in/song.mp3"] = []byte("mp3")

	orch := newOrchestrator(t, bucket)
	err := orch.Process(context.Background(), job.Request{
		SourceLocator:      "gs://bucket/in/song.mp3",
		DestinationLocator: "gs:///missing-container",
	})
	require.ErrorIs(t, err, blob.ErrInvalidLocator)
	assert.Empty(t, bucket.uploads)
}

func TestProcessPropagatesDownloadFailure(t *testing.T) {
	orch := newOrchestrator(t, newFakeBucket())
	err := orch.Process(context.Background(), job.Request{
		SourceLocator:      "gs://bucket/missing.mp3",
		DestinationLocator: "gs://bucket/out/",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProcessPropagatesToolFailure(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["bucket/in/song.mp3"] = []byte("mp3")

	orch := newOrchestrator(t, bucket)
	toolErr := &audio.ToolError{Tool: "demucs", ExitCode: 1, Output: "CUDA out of memory"}
	baseRun := orch.Tools.Run
	orch.Tools.Run = func(ctx context.Context, name string, args ...string) error {
		if name == "demucs" {
			return toolErr
		}
		return baseRun(ctx, name, args...)
	}

	err := orch.Process(context.Background(), job.Request{
		SourceLocator:      "gs://bucket/in/song.mp3",
		DestinationLocator: "gs://bucket/out/",
	})
	var got *audio.ToolError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 1, got.ExitCode)
	assert.Empty(t, bucket.uploads)
}
