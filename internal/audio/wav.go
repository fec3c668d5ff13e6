package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// DefaultBufferSize is the size of the buffers yielded by a Source when none is configured.
const DefaultBufferSize = 4096

// Format describes the PCM layout read from a WAV header
type Format struct {
	SampleRate     int `json:"sample_rate"`
	BytesPerSample int `json:"bytes_per_sample"`
	Channels       int `json:"channels"`
	BitDepth       int `json:"bit_depth"`
}

// ChunkSize returns the size in bytes of one streaming chunk, nominally one second of audio.
func (f Format) ChunkSize() int {
	return f.SampleRate * f.BytesPerSample
}

// DurationBytes converts a duration into the number of sample bytes that cover it.
// The result is always a whole number of samples.
func (f Format) DurationBytes(d time.Duration) int {
	samples := d.Milliseconds() * int64(f.SampleRate) / 1000
	return int(samples) * f.BytesPerSample
}

// SampleUnit is the unit of the configured initial sample length
type SampleUnit string

const (
	// UnitBytes treats the initial sample length as a raw byte count.
	UnitBytes SampleUnit = "bytes"
	// UnitMilliseconds treats the initial sample length as playback time.
	UnitMilliseconds SampleUnit = "ms"
)

// ParseSampleUnit validates a unit name coming from configuration.
func ParseSampleUnit(s string) (SampleUnit, error) {
	switch SampleUnit(s) {
	case UnitBytes, UnitMilliseconds:
		return SampleUnit(s), nil
	case "":
		return UnitBytes, nil
	default:
		return "", fmt.Errorf("unknown sample unit %q (expected %q or %q)", s, UnitBytes, UnitMilliseconds)
	}
}

// InitSampleSize resolves the initial sample length into a byte count for the given format.
func InitSampleSize(f Format, length int, unit SampleUnit) int {
	if length <= 0 {
		return 0
	}

	if unit == UnitMilliseconds {
		return f.DurationBytes(time.Duration(length) * time.Millisecond)
	}

	return length
}

// Source yields the raw PCM bytes of a WAV file as a sequence of buffers.
// A Source is read once and cannot be rewound.
type Source struct {
	path       string
	file       *os.File
	decoder    *wav.Decoder
	data       io.Reader
	format     Format
	bufferSize int

	bytesRead int64
	done      bool
}

// Open opens a WAV file and positions the source at the start of its sample data.
func Open(path string, bufferSize int) (*Source, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, &IOError{Path: path, Op: "decode", Err: ErrNotWAV}
	}

	if decoder.BitDepth == 0 || decoder.BitDepth%8 != 0 {
		file.Close()
		return nil, &IOError{Path: path, Op: "decode",
			Err: fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, decoder.BitDepth)}
	}

	if err := decoder.FwdToPCM(); err != nil {
		file.Close()
		return nil, &IOError{Path: path, Op: "decode", Err: err}
	}

	if decoder.PCMChunk == nil {
		file.Close()
		return nil, &IOError{Path: path, Op: "decode", Err: ErrNotWAV}
	}

	return &Source{
		path:    path,
		file:    file,
		decoder: decoder,
		// the chunk reads from the file itself, so stop at the declared data size
		data: io.LimitReader(decoder.PCMChunk, int64(decoder.PCMSize)),
		format: Format{
			SampleRate:     int(decoder.SampleRate),
			BytesPerSample: int(decoder.BitDepth) / 8,
			Channels:       int(decoder.NumChans),
			BitDepth:       int(decoder.BitDepth),
		},
		bufferSize: bufferSize,
	}, nil
}

// Format returns the header information of the file.
func (s *Source) Format() Format { return s.format }

// Path returns the file path the source was opened from.
func (s *Source) Path() string { return s.path }

// DataSize returns the size of the data chunk as declared by the header.
func (s *Source) DataSize() int { return s.decoder.PCMSize }

// BytesRead returns the number of sample bytes yielded so far.
func (s *Source) BytesRead() int64 { return s.bytesRead }

// Next returns the next buffer of sample bytes. It returns io.EOF once the
// data chunk is exhausted. Every returned slice is freshly allocated.
func (s *Source) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.bufferSize)
	n, err := io.ReadFull(s.data, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case err != nil:
		return nil, &IOError{Path: s.path, Op: "read", Err: err}
	}

	if n == 0 {
		return nil, io.EOF
	}

	s.bytesRead += int64(n)
	return buf[:n], nil
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if err := s.file.Close(); err != nil {
		return &IOError{Path: s.path, Op: "close", Err: err}
	}
	return nil
}

// ReadFormat returns the format of the WAV file at path.
func ReadFormat(path string) (Format, error) {
	src, err := Open(path, DefaultBufferSize)
	if err != nil {
		return Format{}, err
	}
	defer src.Close()

	return src.Format(), nil
}

// ReadInitialSample returns the first n bytes of sample data of the WAV file at path.
// Shorter files return everything they have.
func ReadInitialSample(path string, n int) ([]byte, error) {
	src, err := Open(path, DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return readPrefix(src, n)
}

// StreamSamples calls fn with every buffer of sample data in file order and
// returns the format of the file. It stops at the first error returned by fn.
func StreamSamples(path string, bufferSize int, fn func([]byte) error) (Format, error) {
	src, err := Open(path, bufferSize)
	if err != nil {
		return Format{}, err
	}
	defer src.Close()

	for {
		buf, err := src.Next()
		if errors.Is(err, io.EOF) {
			return src.Format(), nil
		}
		if err != nil {
			return src.Format(), err
		}

		if err := fn(buf); err != nil {
			return src.Format(), err
		}
	}
}

func readPrefix(src *Source, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}

	sample := make([]byte, 0, n)
	for len(sample) < n {
		buf, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sample = append(sample, buf...)
	}

	if len(sample) > n {
		sample = sample[:n]
	}

	return sample, nil
}
