package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies collector errors for outcome determination.
type ErrorKind int

const (
	// ErrorProtocol indicates a malformed, unrecognized or out-of-order message.
	ErrorProtocol ErrorKind = iota
	// ErrorDecode indicates a record that could not be decoded, or a record
	// arriving before any decoder was established.
	ErrorDecode
	// ErrorConsistency indicates record and close counts reconciled while
	// fewer producers than announced ever opened.
	ErrorConsistency
	// ErrorVerification indicates the verifier rejected a record or the
	// final state.
	ErrorVerification
	// ErrorInterrupted indicates the channel was forcibly closed.
	ErrorInterrupted
	// ErrorTransport indicates the channel failed for a reason other than
	// a normal or forced close (e.g. a lost broker connection).
	ErrorTransport
)

// String returns the outcome error_kind label.
func (k ErrorKind) String() string {
	switch k {
	case ErrorProtocol:
		return "protocol_error"
	case ErrorDecode:
		return "decode_error"
	case ErrorConsistency:
		return "consistency_error"
	case ErrorVerification:
		return "verification_failure"
	case ErrorInterrupted:
		return "channel_interrupted"
	case ErrorTransport:
		return "transport_error"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Error is a fatal collector error. Every kind ends the run; none is retried.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func kindOf(err error) (ErrorKind, bool) {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Kind, true
	}
	return 0, false
}

func isKind(err error, kind ErrorKind) bool {
	k, ok := kindOf(err)
	return ok && k == kind
}

// IsProtocolError returns true if err is a protocol error.
func IsProtocolError(err error) bool { return isKind(err, ErrorProtocol) }

// IsDecodeError returns true if err is a decode error.
func IsDecodeError(err error) bool { return isKind(err, ErrorDecode) }

// IsConsistencyError returns true if err is a consistency error.
func IsConsistencyError(err error) bool { return isKind(err, ErrorConsistency) }

// IsVerificationFailure returns true if err is a verification failure.
func IsVerificationFailure(err error) bool { return isKind(err, ErrorVerification) }

// IsInterrupted returns true if err reports a forced channel closure.
func IsInterrupted(err error) bool { return isKind(err, ErrorInterrupted) }

// IsTransportError returns true if err is a transport failure.
func IsTransportError(err error) bool { return isKind(err, ErrorTransport) }
