package audio

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Reference waveform format: 44.1kHz stereo 16-bit PCM.
const (
	ReferenceSampleRate = 44100
	ReferenceChannels   = 2
)

// Tools invokes the external decode/resample/encode and separation tools.
type Tools struct {
	FFmpeg string
	Demucs string
	Run    Runner
}

// NewTools returns a Tools with the default command runner. Empty binary
// names fall back to the commands on PATH.
func NewTools(ffmpeg, demucs string) *Tools {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if demucs == "" {
		demucs = "demucs"
	}
	return &Tools{FFmpeg: ffmpeg, Demucs: demucs, Run: runCommand}
}

func (t *Tools) run(ctx context.Context, name string, args ...string) error {
	if t.Run != nil {
		return t.Run(ctx, name, args...)
	}
	return runCommand(ctx, name, args...)
}

// DecodeToWAV decodes any supported input into the canonical reference
// waveform format.
func (t *Tools) DecodeToWAV(ctx context.Context, input, output string) error {
	return t.run(ctx, t.FFmpeg,
		"-i", input,
		"-ar", fmt.Sprint(ReferenceSampleRate),
		"-ac", fmt.Sprint(ReferenceChannels),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y",
		output,
	)
}

// alignFilter builds the filter chain that resamples to sampleRate and
// pads or trims to exactly samples. apad only extends short input and
// atrim cuts at the exact sample, so the output length is exact in both
// directions.
func alignFilter(sampleRate, samples int) string {
	return fmt.Sprintf("aresample=%d,apad=whole_len=%d,atrim=end_sample=%d", sampleRate, samples, samples)
}

// AlignTo resamples input to sampleRate and pads or trims it to exactly
// samples, writing a WAV to output. Every stem run through this shares
// one timeline with the reference waveform.
func (t *Tools) AlignTo(ctx context.Context, input, output string, sampleRate, samples int) error {
	return t.run(ctx, t.FFmpeg,
		"-i", input,
		"-af", alignFilter(sampleRate, samples),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y",
		output,
	)
}

// EncodeMP3 re-encodes input to the target compressed format.
func (t *Tools) EncodeMP3(ctx context.Context, input, output string) error {
	return t.run(ctx, t.FFmpeg,
		"-i", input,
		"-c:a", "libmp3lame",
		"-b:a", "320k",
		"-y",
		output,
	)
}

// Separate runs the separation model against input with outDir as its
// output root, then flattens the model's nested per-model/per-track
// directories so every stem file sits directly in outDir.
func (t *Tools) Separate(ctx context.Context, outDir, input string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("audio: create separation directory: %w", err)
	}
	if err := t.run(ctx, t.Demucs, "-o", outDir, input); err != nil {
		return err
	}
	return FlattenTree(outDir)
}

// FlattenTree moves every regular file below dir directly into dir and
// removes the emptied subdirectories. Trees with zero nesting levels are
// a no-op; any depth of nesting is handled.
func FlattenTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("audio: read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		err := filepath.WalkDir(sub, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			return os.Rename(p, filepath.Join(dir, d.Name()))
		})
		if err != nil {
			return fmt.Errorf("audio: flatten %s: %w", sub, err)
		}
		if err := os.RemoveAll(sub); err != nil {
			return fmt.Errorf("audio: remove %s: %w", sub, err)
		}
	}
	return nil
}
