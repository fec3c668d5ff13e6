// Package audiotest writes WAV fixtures for tests.
package audiotest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// WriteWAV encodes data as a PCM WAV file in a temporary directory and returns its path.
// data holds interleaved integer samples at the given bit depth.
func WriteWAV(t testing.TB, sampleRate, bitDepth, channels int, data []int) string {
	t.Helper()
	return writeWAV(t, sampleRate, bitDepth, channels, data, nil)
}

// WriteTaggedMono16 is WriteMono16 with a LIST chunk written after the sample data.
func WriteTaggedMono16(t testing.TB, sampleRate, samples int, artist string) (string, []byte) {
	t.Helper()

	data := Ramp(samples)
	return writeWAV(t, sampleRate, 16, 1, data, &wav.Metadata{Artist: artist}), PCM16(data)
}

func writeWAV(t testing.TB, sampleRate, bitDepth, channels int, data []int, meta *wav.Metadata) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	enc.Metadata = meta
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())

	return path
}

// WriteMono16 writes a mono 16-bit WAV of the given length in samples.
func WriteMono16(t testing.TB, sampleRate, samples int) (string, []byte) {
	t.Helper()

	data := Ramp(samples)
	return WriteWAV(t, sampleRate, 16, 1, data), PCM16(data)
}

// Ramp returns n deterministic sample values that fit in 16 bits.
func Ramp(n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = (i*37)%4000 - 2000
	}
	return data
}

// PCM16 returns the bytes a 16-bit data chunk holds for data.
func PCM16(data []int) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// WriteFile writes arbitrary bytes to a temporary file, for malformed input cases.
func WriteFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}
