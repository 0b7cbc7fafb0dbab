// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

// WriteWAV writes a minimal 16-bit PCM WAV file with the given sample
// rate, channel count and per-channel sample count. The PCM payload is
// silence.
func WriteWAV(t *testing.T, path string, sampleRate, channels, samples int) {
	t.Helper()
	if err := os.WriteFile(path, WAVBytes(sampleRate, channels, samples), 0644); err != nil {
		t.Fatalf("write wav fixture %s: %v", path, err)
	}
}

// WAVBytes builds the byte content WriteWAV writes.
func WAVBytes(sampleRate, channels, samples int) []byte {
	dataSize := samples * channels * 2
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))                    // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
