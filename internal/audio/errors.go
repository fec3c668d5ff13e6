package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is matched by every error that comes from opening or reading an audio file.
	ErrIO = errors.New("audio i/o error")

	ErrNotWAV              = errors.New("not a valid WAV file")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrInvalidChunkSize    = errors.New("chunk size must be positive")
)

// IOError describes a failure to open or read an audio file.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports every IOError as ErrIO so callers need not know the underlying cause.
func (e *IOError) Is(target error) bool { return target == ErrIO }
