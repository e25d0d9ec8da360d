// ABOUTME: Typed error taxonomy shared by the protocol, transport, and group engine
// ABOUTME: One Kind per failure class so callers dispatch on behavior, not strings
package xerrors

import "fmt"

// Kind identifies which class of protocol failure an error belongs
// to. Callers switch on Kind rather than comparing error strings.
type Kind int

const (
	KindMalformedFrame Kind = iota
	KindUnknownMessageType
	KindWrongPhase
	KindWrongRole
	KindPayloadRangeError
	KindBufferOverrun
	KindTransportError
	KindClockDivergence
	KindEncoderError
)

func (k Kind) String() string {
	switch k {
	case KindMalformedFrame:
		return "MalformedFrame"
	case KindUnknownMessageType:
		return "UnknownMessageType"
	case KindWrongPhase:
		return "WrongPhase"
	case KindWrongRole:
		return "WrongRole"
	case KindPayloadRangeError:
		return "PayloadRangeError"
	case KindBufferOverrun:
		return "BufferOverrun"
	case KindTransportError:
		return "TransportError"
	case KindClockDivergence:
		return "ClockDivergence"
	case KindEncoderError:
		return "EncoderError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind so callers can decide
// a policy: log-and-drop, close-no-retry, close-with-retry, etc.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is an *Error of the given Kind, matching the
// standard errors.Is protocol via a plain type assertion (no wrapping
// chains are expected to cross Kind boundaries in this codebase).
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Recoverable reports whether this error kind is handled by logging and
// dropping the offending frame/command rather than closing the Endpoint.
func (k Kind) Recoverable() bool {
	switch k {
	case KindMalformedFrame, KindUnknownMessageType, KindWrongRole, KindPayloadRangeError, KindClockDivergence, KindEncoderError:
		return true
	default:
		return false
	}
}

// Retryable reports whether the close triggered by this error kind should
// re-arm the reconnect driver (BufferOverrun and TransportError
// retry; WrongPhase does not).
func (k Kind) Retryable() bool {
	switch k {
	case KindBufferOverrun, KindTransportError:
		return true
	default:
		return false
	}
}
