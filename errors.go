package lrthrome

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind identifies the category of an Error. The numeric values
// double as the wire error code sent to peers in a ResponseError frame,
// see ErrorKind.Code.
type ErrorKind int

const (
	// KindMalformedPayload is returned when a frame cannot be decoded:
	// invalid UTF-8 in a cstring, an unterminated cstring longer than
	// maxCStringLen, or a buffer longer than maxFrameLen. Short input,
	// including a cstring whose terminator has not arrived yet, is not
	// malformed: Decode reports it as incomplete (see IsIncomplete).
	KindMalformedPayload ErrorKind = iota

	// KindRatelimited is returned when a source IP has exceeded its
	// configured rate limit.
	KindRatelimited

	// KindVersionMismatch is returned when a frame's first byte does
	// not match PROTOCOL_VERSION.
	KindVersionMismatch

	// KindInvalidMessageVariant is returned when a frame's second byte
	// is not one of the enumerated Variant values.
	KindInvalidMessageVariant

	// KindIO covers socket and file errors.
	KindIO

	// KindHTTPFetch covers a Fetcher failing to retrieve its source.
	KindHTTPFetch

	// KindParse covers a Fetcher failing to parse its source (CSV,
	// CIDR, int).
	KindParse

	// KindShutdown is an internal, non-fatal signal driving peer
	// teardown. It never reaches the wire.
	KindShutdown

	// KindOther is anything that doesn't fit the above.
	KindOther
)

// Code returns the wire error code for the kind, per the protocol's
// error-code table. Kinds with no wire representation (KindIO,
// KindHTTPFetch, KindParse, KindShutdown) map to 255, since a
// ResponseError is only ever built from the first four kinds in
// practice; 255 is the inert fallback.
func (k ErrorKind) Code() uint8 {
	switch k {
	case KindMalformedPayload:
		return 0
	case KindRatelimited:
		return 1
	case KindVersionMismatch:
		return 2
	case KindInvalidMessageVariant:
		return 3
	default:
		return 255
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed payload"
	case KindRatelimited:
		return "rate limited"
	case KindVersionMismatch:
		return "version mismatch"
	case KindInvalidMessageVariant:
		return "invalid message variant"
	case KindIO:
		return "io error"
	case KindHTTPFetch:
		return "fetch error"
	case KindParse:
		return "parse error"
	case KindShutdown:
		return "shutdown"
	default:
		return "other"
	}
}

// Error is the sum-type error used throughout lrthrome. It carries a
// Kind (which maps to a wire error code via ErrorKind.Code) and a
// message. An Error built by Wrap holds only the text of the
// underlying cause; the cause itself is not kept and cannot be
// unwrapped.
type Error struct {
	Kind ErrorKind
	msg  string
	// Expected/Received are populated for KindVersionMismatch only.
	Expected, Received uint8
}

func (e *Error) Error() string {
	if e.Kind == KindVersionMismatch {
		return fmt.Sprintf("Mismatching protocol version, expected %d, received %d", e.Expected, e.Received)
	}
	if e.msg != "" {
		return e.msg
	}
	return e.Kind.String()
}

// Wrap annotates err with a message and a kind, formatting the text
// with pkg/errors.Wrap ("msg: err") the way routedns wraps low-level
// I/O errors before logging them. Only that text is stored; err's
// value and the stack trace pkg/errors records are discarded.
func Wrap(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: errors.Wrap(err, msg).Error()}
}

// ErrVersionMismatch builds the VersionMismatch variant with its
// expected/received fields populated for message formatting.
func ErrVersionMismatch(expected, received uint8) *Error {
	return &Error{Kind: KindVersionMismatch, Expected: expected, Received: received}
}

// ErrInvalidVariant builds the InvalidMessageVariant variant.
func ErrInvalidVariant(v uint8) *Error {
	return &Error{Kind: KindInvalidMessageVariant, msg: fmt.Sprintf("invalid message variant %d", v)}
}

// ErrMalformed builds the MalformedPayload variant.
func ErrMalformed(msg string) *Error {
	return &Error{Kind: KindMalformedPayload, msg: msg}
}

// ErrRatelimited is the shared Ratelimited error instance.
var ErrRatelimited = &Error{Kind: KindRatelimited, msg: "Exceeded ratelimit"}

// KindOf extracts the ErrorKind from err, defaulting to KindOther if
// err is not a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}
