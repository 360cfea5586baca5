// Package transfork implements the core of a Media-over-QUIC Transfork
// session engine: a publish/subscribe transport layered over a bidirectional
// datagram-stream substrate (WebTransport/QUIC). It multiplexes many logical
// broadcasts and tracks over a single session, delivering groups of frames
// as independent streams so that slow or lost groups never head-of-line
// block fresher ones.
//
// The underlying transport (WebTransport/QUIC session, TLS, wire varint
// codec) is consumed through the transport package's interfaces, not
// implemented here.
package transfork

import (
	"errors"
	"fmt"
)

// Kind enumerates the stable error kinds propagated across the session
// engine, mirroring moq-transfork's ServeError/MoqError enums.
type Kind int

const (
	// KindCancel means a handle was dropped or a task aborted locally.
	KindCancel Kind = iota
	// KindNotFound means an unknown broadcast, track, or subscribe id.
	KindNotFound
	// KindDuplicate means a duplicate group sequence was created.
	KindDuplicate
	// KindWrongSize means a frame's declared size didn't match bytes written.
	KindWrongSize
	// KindVersion means the handshake versions didn't overlap.
	KindVersion
	// KindRoleIncompatible means no client/server role pairing exists.
	KindRoleIncompatible
	// KindUnexpectedStream means the wrong message tag arrived on a stream.
	KindUnexpectedStream
	// KindTransport wraps an underlying transport (QUIC) error.
	KindTransport
	// KindDecode means a wire message failed to decode.
	KindDecode
	// KindEncode means a wire message failed to encode.
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindCancel:
		return "cancel"
	case KindNotFound:
		return "not found"
	case KindDuplicate:
		return "duplicate"
	case KindWrongSize:
		return "wrong size"
	case KindVersion:
		return "version mismatch"
	case KindRoleIncompatible:
		return "role incompatible"
	case KindUnexpectedStream:
		return "unexpected stream"
	case KindTransport:
		return "transport error"
	case KindDecode:
		return "decode error"
	case KindEncode:
		return "encode error"
	default:
		return "unknown error"
	}
}

// Error is the single error type carried across the session engine.
type Error struct {
	Kind Kind

	// Populated depending on Kind.
	Tag        uint64   // KindUnexpectedStream
	GotVers    []Version // KindVersion
	WantVers   []Version
	ClientRole Role // KindRoleIncompatible
	ServerRole Role
	Err        error // KindTransport, KindDecode, KindEncode
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindVersion:
		return fmt.Sprintf("%s: got %v, want %v", e.Kind, e.GotVers, e.WantVers)
	case KindRoleIncompatible:
		return fmt.Sprintf("%s: client=%s server=%s", e.Kind, e.ClientRole, e.ServerRole)
	case KindUnexpectedStream:
		return fmt.Sprintf("%s: tag %d", e.Kind, e.Tag)
	case KindTransport, KindDecode, KindEncode:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the wrapped transport/codec error, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is compares errors by Kind, so errors.Is(err, ErrNotFound) works
// regardless of which *Error instance produced err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the QUIC stream reset code this error maps to (§7).
func (e *Error) Code() uint32 {
	return uint32(e.Kind)
}

// Sentinel errors for the fixed-shape kinds, usable with errors.Is.
var (
	ErrCancel    = &Error{Kind: KindCancel}
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrDuplicate = &Error{Kind: KindDuplicate}
	ErrWrongSize = &Error{Kind: KindWrongSize}
)

// NewVersionError builds a KindVersion error for a handshake mismatch.
func NewVersionError(got, want []Version) *Error {
	return &Error{Kind: KindVersion, GotVers: got, WantVers: want}
}

// NewRoleIncompatibleError builds a KindRoleIncompatible error.
func NewRoleIncompatibleError(client, server Role) *Error {
	return &Error{Kind: KindRoleIncompatible, ClientRole: client, ServerRole: server}
}

// NewUnexpectedStreamError builds a KindUnexpectedStream error.
func NewUnexpectedStreamError(tag uint64) *Error {
	return &Error{Kind: KindUnexpectedStream, Tag: tag}
}

// NewTransportError wraps an underlying transport error.
func NewTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// NewDecodeError wraps a codec decode failure.
func NewDecodeError(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

// NewEncodeError wraps a codec encode failure.
func NewEncodeError(err error) *Error {
	return &Error{Kind: KindEncode, Err: err}
}

// IsFatal reports whether an error is session-fatal (handshake errors) as
// opposed to stream-local (reset only that stream, session continues).
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindVersion || e.Kind == KindRoleIncompatible
}
