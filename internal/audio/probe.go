package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Info describes a decoded waveform: the alignment reference for stems.
type Info struct {
	SampleRate int
	Channels   int
	Samples    int // samples per channel
}

// Seconds returns the waveform duration.
func (i Info) Seconds() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Samples) / float64(i.SampleRate)
}

// ProbeWAV reads the RIFF header of a 16-bit PCM WAV file and returns its
// sample rate and per-channel sample count.
func ProbeWAV(wavPath string) (Info, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return Info{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()

	// RIFF header: "RIFF" <size> "WAVE"
	riffHeader := make([]byte, 12)
	if _, err := io.ReadFull(f, riffHeader); err != nil {
		return Info{}, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("audio: %s is not a WAV file", wavPath)
	}

	var numChannels, sampleRate, bitsPerSample int
	var dataSize int64
	var foundFmt, foundData bool

	for !foundData {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return Info{}, fmt.Errorf("audio: read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case "fmt ":
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return Info{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(fmtData) >= 16 {
				numChannels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			}
			foundFmt = true

		case "data":
			dataSize = chunkSize
			foundData = true

		default:
			// Skip LIST, INFO and other metadata chunks.
			if _, err := f.Seek(chunkSize, io.SeekCurrent); err != nil {
				return Info{}, fmt.Errorf("audio: skip chunk %s: %w", chunkID, err)
			}
		}

		// Chunks are padded to an even byte boundary.
		if chunkSize%2 != 0 && chunkID != "data" {
			f.Seek(1, io.SeekCurrent)
		}
	}

	if !foundFmt {
		return Info{}, fmt.Errorf("audio: %s has no fmt chunk", wavPath)
	}
	if !foundData {
		return Info{}, fmt.Errorf("audio: %s has no data chunk", wavPath)
	}
	if bitsPerSample != 16 {
		return Info{}, fmt.Errorf("audio: only 16-bit WAV is supported, got %d-bit", bitsPerSample)
	}
	if numChannels < 1 {
		return Info{}, fmt.Errorf("audio: %s reports %d channels", wavPath, numChannels)
	}

	return Info{
		SampleRate: sampleRate,
		Channels:   numChannels,
		Samples:    int(dataSize / int64(numChannels*2)),
	}, nil
}
