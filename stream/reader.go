package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

const readChunkSize = 4096

// Reader decodes framed messages, or raw chunks, from one recv-stream. It
// satisfies wire.Reader so wire message Decode methods can read directly
// from it.
type Reader struct {
	stream transport.RecvStream
	buf    bytes.Buffer
	ctx    context.Context
}

// NewReader wraps an already-open recv-stream.
func NewReader(s transport.RecvStream) *Reader {
	return &Reader{stream: s}
}

// ReadStreamTag reads the leading variant tag on a newly accepted
// bidirectional stream.
func (r *Reader) ReadStreamTag(ctx context.Context) (wire.StreamTag, error) {
	v, err := r.readVarint(ctx)
	return wire.StreamTag(v), err
}

// ReadStreamUniTag reads the leading variant tag on a newly accepted
// unidirectional stream.
func (r *Reader) ReadStreamUniTag(ctx context.Context) (wire.StreamUniTag, error) {
	v, err := r.readVarint(ctx)
	return wire.StreamUniTag(v), err
}

func (r *Reader) readVarint(ctx context.Context) (uint64, error) {
	r.ctx = ctx
	defer func() { r.ctx = nil }()
	v, err := wire.ReadVarint(r)
	if err != nil {
		return 0, transfork.NewTransportError(err)
	}
	return v, nil
}

// Decode reads a framed message, logging it at debug level once decoded.
func (r *Reader) Decode(ctx context.Context, msg wire.Decoder) error {
	if err := r.DecodeSilent(ctx, msg); err != nil {
		return err
	}
	slog.Debug("decode", "msg", msg)
	return nil
}

// DecodeSilent is Decode without the debug log line.
func (r *Reader) DecodeSilent(ctx context.Context, msg wire.Decoder) error {
	r.ctx = ctx
	defer func() { r.ctx = nil }()
	if err := msg.Decode(r); err != nil {
		if errors.Is(err, io.EOF) {
			return transfork.NewTransportError(err)
		}
		return transfork.NewDecodeError(err)
	}
	return nil
}

// DecodeMaybe decodes msg, returning ok=false when the stream ends cleanly
// before any byte of a new message arrives — the normal way a group stream
// finishes. A truncation mid-message, or a codec error, is returned as an
// error rather than folded into ok=false.
func (r *Reader) DecodeMaybe(ctx context.Context, msg wire.Decoder) (ok bool, err error) {
	r.ctx = ctx
	defer func() { r.ctx = nil }()

	if r.buf.Len() == 0 {
		if fillErr := r.fill(ctx); fillErr != nil {
			if errors.Is(fillErr, io.EOF) {
				return false, nil
			}
			return false, transfork.NewTransportError(fillErr)
		}
	}
	if decErr := msg.Decode(r); decErr != nil {
		return false, transfork.NewDecodeError(decErr)
	}
	return true, nil
}

// ReadChunk reads up to max raw bytes, preferring whatever is already
// buffered from a prior framed decode before pulling more from the stream.
func (r *Reader) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	if r.buf.Len() > 0 {
		n := max
		if n > r.buf.Len() {
			n = r.buf.Len()
		}
		chunk := make([]byte, n)
		r.buf.Read(chunk)
		return chunk, nil
	}
	chunk, err := r.stream.ReadChunk(ctx, max)
	if err != nil {
		return nil, transfork.NewTransportError(err)
	}
	return chunk, nil
}

// Closed awaits the underlying stream's terminal state.
func (r *Reader) Closed(ctx context.Context) error {
	return r.stream.Closed(ctx)
}

func (r *Reader) fill(ctx context.Context) error {
	chunk, err := r.stream.ReadChunk(ctx, readChunkSize)
	if err != nil {
		return err
	}
	if chunk == nil {
		return io.EOF
	}
	r.buf.Write(chunk)
	return nil
}

// ReadByte implements io.ByteReader, pulling more from the stream as
// needed using the context set by the in-flight Decode/DecodeSilent call.
func (r *Reader) ReadByte() (byte, error) {
	for r.buf.Len() == 0 {
		if err := r.fill(r.ctx); err != nil {
			return 0, err
		}
	}
	return r.buf.ReadByte()
}

// Read implements io.Reader for the same reason as ReadByte.
func (r *Reader) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 {
		if err := r.fill(r.ctx); err != nil {
			return 0, err
		}
	}
	return r.buf.Read(p)
}
