package microphone

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/proctor"
)

func pcmBytes(samples ...int16) []byte {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, samples)
	return b.Bytes()
}

func TestPCMReaderChunks(t *testing.T) {
	data := pcmBytes(1, -2, 300, -300, 7)
	r := newPCMReader(bytes.NewReader(data), 2, 16000)

	c, ok := r.read()
	require.True(t, ok)
	assert.Equal(t, []int16{1, -2}, c.Samples)
	assert.Equal(t, 16000, c.SampleRate)

	c, ok = r.read()
	require.True(t, ok)
	assert.Equal(t, []int16{300, -300}, c.Samples)

	// Trailing half chunk ends the stream cleanly.
	_, ok = r.read()
	assert.False(t, ok)
	assert.NoError(t, r.streamErr())

	_, ok = r.read()
	assert.False(t, ok)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("pulse:default", 16000)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "pulse", "-i", "default",
		"-vn", "-ac", "1", "-ar", "16000", "-f", "s16le", "pipe:1"}, args)

	args = ffmpegArgs("/tmp/exam.mp4", 16000)
	assert.Contains(t, args, "/tmp/exam.mp4")
	assert.NotContains(t, args, "pulse")
}

func TestFFmpegReadBeforeOpen(t *testing.T) {
	svc := NewFFmpeg("pulse:default", 1024, 16000)
	_, ok := svc.Read()
	assert.False(t, ok)
	assert.NoError(t, svc.Close())
}

// writeWAV writes a 16-bit mono PCM file.
func writeWAV(t *testing.T, rate int, samples []int16) string {
	t.Helper()
	data := pcmBytes(samples...)

	b := new(bytes.Buffer)
	b.WriteString("RIFF")
	binary.Write(b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(b, binary.LittleEndian, uint32(16))
	binary.Write(b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(b, binary.LittleEndian, uint32(rate))
	binary.Write(b, binary.LittleEndian, uint32(rate*2))
	binary.Write(b, binary.LittleEndian, uint16(2))
	binary.Write(b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)

	path := filepath.Join(t.TempDir(), "exam.wav")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestWAVReplay(t *testing.T) {
	samples := make([]int16, 2048)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 500
		} else {
			samples[i] = -500
		}
	}
	svc := NewWAV(writeWAV(t, 16000, samples), 1024, 16000, false)
	require.NoError(t, svc.Open())
	defer svc.Close()

	det := proctor.NewAudioDetector(proctor.DefaultConfig())
	for i := 0; i < 2; i++ {
		c, ok := svc.Read()
		require.True(t, ok, "chunk %d", i)
		require.Len(t, c.Samples, 1024)
		assert.InDelta(t, 500, proctor.RMS(c.Samples), 1)
		assert.True(t, det.Active(c))
	}

	_, ok := svc.Read()
	assert.False(t, ok)
	assert.NoError(t, svc.Err())
}

func TestWAVShortFinalChunk(t *testing.T) {
	samples := make([]int16, 1024+300)
	for i := range samples {
		samples[i] = 500
	}
	svc := NewWAV(writeWAV(t, 16000, samples), 1024, 16000, false)
	require.NoError(t, svc.Open())
	defer svc.Close()

	c, ok := svc.Read()
	require.True(t, ok)
	require.Len(t, c.Samples, 1024)

	c, ok = svc.Read()
	require.True(t, ok)
	require.Len(t, c.Samples, 300)
	assert.InDelta(t, 500, proctor.RMS(c.Samples), 1)

	_, ok = svc.Read()
	assert.False(t, ok)
	assert.NoError(t, svc.Err())
}

func TestWAVMissingFile(t *testing.T) {
	svc := NewWAV(filepath.Join(t.TempDir(), "missing.wav"), 1024, 16000, false)
	err := svc.Open()
	assert.True(t, xerrors.Is(err, proctor.ErrDeviceUnavailable))
}

func TestFake(t *testing.T) {
	svc := NewFake(nil, proctor.AudioChunk{Samples: []int16{1}})
	_, ok := svc.Read()
	assert.False(t, ok, "not opened")

	require.NoError(t, svc.Open())
	c, ok := svc.Read()
	require.True(t, ok)
	assert.False(t, c.Timestamp.IsZero())
	_, ok = svc.Read()
	assert.False(t, ok)

	assert.ErrorIs(t, NewFake(proctor.ErrDeviceUnavailable).Open(), proctor.ErrDeviceUnavailable)
}
