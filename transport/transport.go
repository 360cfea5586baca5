// Package transport declares the external substrate the session engine is
// built on: a WebTransport/QUIC-shaped session exposing bidirectional and
// unidirectional streams. Nothing in this package is implemented here — it
// is the "consumed, not implemented" contract from spec §1/§6. Concrete
// adapters live in transport/quictransport and transport/wtransport.
package transport

import "context"

// Session accepts and opens both stream shapes. A session is the unit the
// rest of the engine builds a handshake and multiplexed dispatch on top of.
type Session interface {
	AcceptBi(ctx context.Context) (SendStream, RecvStream, error)
	AcceptUni(ctx context.Context) (RecvStream, error)
	OpenBi(ctx context.Context) (SendStream, RecvStream, error)
	OpenUni(ctx context.Context) (SendStream, error)

	// Closed resolves when the session itself terminates, carrying
	// whatever reason the transport surfaced.
	Closed(ctx context.Context) error
}

// SendStream is the write half of a stream (bidirectional or unidirectional).
type SendStream interface {
	// WriteBuf writes as much of buf as the transport accepts in one call,
	// returning the number of bytes consumed (mirrors web_transport's
	// write_buf, which may write less than len(buf)).
	WriteBuf(buf []byte) (int, error)
	// Write writes all of buf, looping internally if needed.
	Write(buf []byte) error
	// Close sends a clean FIN, signalling no more data follows.
	Close() error
	// Reset aborts the stream with a QUIC application error code.
	Reset(code uint32)
}

// RecvStream is the read half of a stream.
type RecvStream interface {
	// ReadChunk reads up to max bytes, or returns (nil, nil) on clean
	// end-of-stream.
	ReadChunk(ctx context.Context, max int) ([]byte, error)
	// Closed resolves when the stream reaches a terminal state (either
	// end closed cleanly, or the peer reset it).
	Closed(ctx context.Context) error
}
