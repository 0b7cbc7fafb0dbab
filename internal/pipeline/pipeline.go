package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"stem420/internal/audio"
	"stem420/internal/blob"
	"stem420/internal/job"
	"stem420/internal/lifecycle"
)

// AlignmentMethod identifies how stems are length-matched to the
// reference waveform; written into the run metadata for consumers.
const AlignmentMethod = "pad_trim_exact"

// Metadata is the small record written alongside the stems.
type Metadata struct {
	ProcessingSeconds float64 `json:"processing_seconds"`
	SampleRate        int     `json:"sample_rate"`
	ReferenceSamples  int     `json:"reference_samples"`
	ReferenceSeconds  float64 `json:"reference_seconds"`
	Alignment         string  `json:"alignment"`
}

// Orchestrator runs the per-job pipeline: fetch, decode, separate, align,
// encode, upload. Any stage's failure aborts the rest; the dispatcher
// catches the error once and finalizes the job.
type Orchestrator struct {
	Tools   *audio.Tools
	Tracker *lifecycle.Tracker

	// NewBucket obtains the storage client for a run. When nil,
	// blob.NewClient is used (with its anonymous fallback).
	NewBucket func(ctx context.Context) (blob.Bucket, error)
}

// Process executes all stages for one request. The temporary working
// directory is removed when the run exits, success or failure.
func (o *Orchestrator) Process(ctx context.Context, req job.Request) error {
	start := time.Now()

	// Both locators are checked before any work happens so a bad
	// destination cannot waste a separation run.
	srcContainer, srcObject, err := blob.ParseLocator(req.SourceLocator)
	if err != nil {
		return err
	}
	dstContainer, dstPrefix, err := blob.ParseLocator(req.DestinationLocator)
	if err != nil {
		return err
	}

	bucket, err := o.newBucket(ctx)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "stem420-*")
	if err != nil {
		return fmt.Errorf("pipeline: create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input"+path.Ext(srcObject))
	if err := bucket.Download(ctx, srcContainer, srcObject, inputPath); err != nil {
		return err
	}

	refPath := filepath.Join(workDir, "reference.wav")
	if err := o.Tools.DecodeToWAV(ctx, inputPath, refPath); err != nil {
		return err
	}
	ref, err := audio.ProbeWAV(refPath)
	if err != nil {
		return err
	}
	o.Tracker.Log(fmt.Sprintf("pipeline.reference rate=%d samples=%d", ref.SampleRate, ref.Samples))

	stemsDir := filepath.Join(workDir, "stems")
	if err := o.Tools.Separate(ctx, stemsDir, refPath); err != nil {
		return err
	}

	if err := o.alignAndEncode(ctx, stemsDir, ref); err != nil {
		return err
	}

	if err := writeMetadata(stemsDir, time.Since(start), ref); err != nil {
		return err
	}

	return bucket.UploadTree(ctx, stemsDir, dstContainer, dstPrefix)
}

// alignAndEncode resamples every stem to the reference rate, pads or
// trims it to exactly the reference sample count, re-encodes it, and
// discards the intermediate waveforms.
func (o *Orchestrator) alignAndEncode(ctx context.Context, stemsDir string, ref audio.Info) error {
	entries, err := os.ReadDir(stemsDir)
	if err != nil {
		return fmt.Errorf("pipeline: read stems: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.ToLower(filepath.Ext(name)) != ".wav" {
			continue
		}
		stemPath := filepath.Join(stemsDir, name)
		base := strings.TrimSuffix(name, filepath.Ext(name))
		alignedPath := filepath.Join(stemsDir, base+".aligned.wav")
		encodedPath := filepath.Join(stemsDir, base+".mp3")

		if err := o.Tools.AlignTo(ctx, stemPath, alignedPath, ref.SampleRate, ref.Samples); err != nil {
			return err
		}
		if err := o.Tools.EncodeMP3(ctx, alignedPath, encodedPath); err != nil {
			return err
		}
		if err := os.Remove(alignedPath); err != nil {
			return fmt.Errorf("pipeline: remove %s: %w", alignedPath, err)
		}
		if err := os.Remove(stemPath); err != nil {
			return fmt.Errorf("pipeline: remove %s: %w", stemPath, err)
		}
	}
	return nil
}

func writeMetadata(dir string, elapsed time.Duration, ref audio.Info) error {
	meta := Metadata{
		ProcessingSeconds: elapsed.Seconds(),
		SampleRate:        ref.SampleRate,
		ReferenceSamples:  ref.Samples,
		ReferenceSeconds:  ref.Seconds(),
		Alignment:         AlignmentMethod,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0644); err != nil {
		return fmt.Errorf("pipeline: write metadata: %w", err)
	}
	return nil
}

func (o *Orchestrator) newBucket(ctx context.Context) (blob.Bucket, error) {
	if o.NewBucket != nil {
		return o.NewBucket(ctx)
	}
	return blob.NewClient(ctx)
}
