// Package stream implements the framed message codec layered over one
// transport stream: a Writer buffers an encoded message and flushes it, a
// Reader decodes framed messages or raw chunks as they arrive (spec §4.E).
package stream

import (
	"context"
	"log/slog"

	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// Writer buffers an encoded message into a growable byte buffer and drains
// it to the underlying send-stream.
type Writer struct {
	stream transport.SendStream
	buf    []byte
}

// NewWriter wraps an already-open send-stream.
func NewWriter(s transport.SendStream) *Writer {
	return &Writer{stream: s}
}

// OpenUni opens a unidirectional stream and writes its type tag.
func OpenUni(ctx context.Context, sess transport.Session, tag wire.StreamUniTag) (*Writer, error) {
	s, err := sess.OpenUni(ctx)
	if err != nil {
		return nil, err
	}
	w := NewWriter(s)
	if err := w.EncodeSilent(tagEncoder(tag)); err != nil {
		return nil, err
	}
	return w, nil
}

// OpenBi opens a bidirectional stream, writes its type tag, and returns
// both halves.
func OpenBi(ctx context.Context, sess transport.Session, tag wire.StreamTag) (*Writer, *Reader, error) {
	send, recv, err := sess.OpenBi(ctx)
	if err != nil {
		return nil, nil, err
	}
	w := NewWriter(send)
	if err := w.EncodeSilent(tagEncoder(tag)); err != nil {
		return nil, nil, err
	}
	return w, NewReader(recv), nil
}

type tagEncoder uint64

func (t tagEncoder) Encode(buf []byte) []byte { return wire.AppendVarint(buf, uint64(t)) }

// Encode writes msg, logging it at debug level first.
func (w *Writer) Encode(msg wire.Encoder) error {
	slog.Debug("encode", "msg", msg)
	return w.EncodeSilent(msg)
}

// EncodeSilent is Encode without the debug log line — used for the stream
// type tag that OpenUni and OpenBi write ahead of a stream's first message.
func (w *Writer) EncodeSilent(msg wire.Encoder) error {
	w.buf = msg.Encode(w.buf[:0])
	return w.stream.Write(w.buf)
}

// Write sends raw bytes, bypassing message framing (used for frame
// payloads, which are their own length-prefixed unit handled one level up).
func (w *Writer) Write(buf []byte) error {
	return w.stream.Write(buf)
}

// Close resets the stream with a QUIC application error code. The mapping
// from a *transfork.Error to that code is the caller's job (§7) — this
// layer only knows about streams, not error kinds.
func (w *Writer) Close(code uint32) {
	w.stream.Reset(code)
}

// Finish sends a clean FIN, signalling normal completion rather than abort.
func (w *Writer) Finish() error {
	return w.stream.Close()
}
