package audio

import (
	"errors"
	"fmt"
)

// ErrDecode matches every [DecodeError] via errors.Is. It is the only error
// class that aborts an analysis.
var ErrDecode = errors.New("audio: decode failed")

// Reason classifies why a buffer could not be decoded.
type Reason string

const (
	ReasonEmpty       Reason = "empty"
	ReasonTruncated   Reason = "truncated"
	ReasonUnsupported Reason = "unsupported container"
	ReasonCorrupt     Reason = "corrupt"
)

// DecodeError reports a buffer that could not be turned into a [Clip].
type DecodeError struct {
	// Format is the container the decoder believed it was reading.
	Format string
	Reason Reason
	// Err is the underlying cause, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode %s: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrDecode].
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(format string, reason Reason, err error) *DecodeError {
	return &DecodeError{Format: format, Reason: reason, Err: err}
}
