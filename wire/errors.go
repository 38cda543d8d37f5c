package wire

import (
	"errors"
	"fmt"
)

// ErrorKind classifies wire errors.
type ErrorKind int

const (
	// ErrorUnknownTag indicates a message whose tag is not OPEN, REC or CLOSE.
	ErrorUnknownTag ErrorKind = iota
	// ErrorMalformedHeader indicates a header that failed field validation.
	ErrorMalformedHeader
	// ErrorPartialFrame indicates a truncated or incomplete frame.
	ErrorPartialFrame
	// ErrorFrameTooLarge indicates a frame exceeding MaxFrameSize.
	ErrorFrameTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnknownTag:
		return "unknown_tag"
	case ErrorMalformedHeader:
		return "malformed_header"
	case ErrorPartialFrame:
		return "partial_frame"
	case ErrorFrameTooLarge:
		return "frame_too_large"
	default:
		return fmt.Sprintf("wire_error(%d)", int(k))
	}
}

// Error represents a message or frame that could not be decoded.
// Every wire error is a protocol error and ends a verification run.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a wire error.
func IsProtocolError(err error) bool {
	var wireErr *Error
	return errors.As(err, &wireErr)
}

// IsFrameError returns true if err is a framing error (partial or oversized frame).
func IsFrameError(err error) bool {
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr.Kind == ErrorPartialFrame || wireErr.Kind == ErrorFrameTooLarge
	}
	return false
}

func malformed(format string, args ...any) *Error {
	return &Error{Kind: ErrorMalformedHeader, Msg: fmt.Sprintf(format, args...)}
}
