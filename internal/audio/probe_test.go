package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stem420/internal/testsupport"
)

func TestProbeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.wav")
	testsupport.WriteWAV(t, path, 44100, 2, 44100*3)

	info, err := ProbeWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 44100*3, info.Samples)
	assert.InDelta(t, 3.0, info.Seconds(), 1e-9)
}

func TestProbeWAVSkipsMetadataChunks(t *testing.T) {
	// WAV with a LIST chunk between fmt and data.
	base := testsupport.WAVBytes(22050, 1, 1000)
	var buf bytes.Buffer
	buf.Write(base[:36]) // RIFF header + fmt chunk
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.WriteString("INFO")
	buf.Write(base[36:]) // data chunk

	path := filepath.Join(t.TempDir(), "meta.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	info, err := ProbeWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 1000, info.Samples)
}

func TestProbeWAVRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0644))

	_, err := ProbeWAV(path)
	require.Error(t, err)
}

func TestProbeWAVRejectsNon16Bit(t *testing.T) {
	base := testsupport.WAVBytes(44100, 2, 100)
	// Patch bits-per-sample (offset 34 in the canonical header) to 24.
	binary.LittleEndian.PutUint16(base[34:36], 24)

	path := filepath.Join(t.TempDir(), "24bit.wav")
	require.NoError(t, os.WriteFile(path, base, 0644))

	_, err := ProbeWAV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "16-bit")
}
