package a2f

import (
	"errors"
	"fmt"
)

// ErrRemote is matched by every error returned from a call to the Audio2Face service.
var ErrRemote = errors.New("audio2face request failed")

// RemoteError describes a failed call: either a transport failure (Err set)
// or a non-success HTTP status (StatusCode and Body set).
type RemoteError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("a2f %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("a2f %s: HTTP error %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
