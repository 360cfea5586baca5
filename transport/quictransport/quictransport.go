// Package quictransport adapts github.com/quic-go/quic-go's raw QUIC
// connection onto the transport.Session contract, for deployments that run
// MoQ-Transfork directly over QUIC rather than WebTransport.
package quictransport

import (
	"context"
	"errors"
	"io"

	"github.com/quic-go/quic-go"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/transport"
)

// Session wraps a quic.Connection.
type Session struct {
	conn quic.Connection
}

// New wraps an established QUIC connection, typically returned by
// quic.Dial or handed to a quic.Listener's Accept handler.
func New(conn quic.Connection) *Session {
	return &Session{conn: conn}
}

func (s *Session) AcceptBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	stream, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return nil, nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, &recvStream{stream}, nil
}

func (s *Session) AcceptUni(ctx context.Context) (transport.RecvStream, error) {
	stream, err := s.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, transfork.NewTransportError(err)
	}
	return &recvStream{stream}, nil
}

func (s *Session) OpenBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, &recvStream{stream}, nil
}

func (s *Session) OpenUni(ctx context.Context) (transport.SendStream, error) {
	stream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, nil
}

func (s *Session) Closed(ctx context.Context) error {
	select {
	case <-s.conn.Context().Done():
		return transfork.NewTransportError(context.Cause(s.conn.Context()))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamWriter is the subset of quic.SendStream used here.
type streamWriter interface {
	Write(p []byte) (int, error)
	Close() error
	CancelWrite(quic.StreamErrorCode)
}

type sendStream struct {
	s streamWriter
}

func (w *sendStream) WriteBuf(buf []byte) (int, error) {
	n, err := w.s.Write(buf)
	if err != nil {
		return n, transfork.NewTransportError(err)
	}
	return n, nil
}

func (w *sendStream) Write(buf []byte) error {
	for len(buf) > 0 {
		n, err := w.WriteBuf(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (w *sendStream) Close() error {
	return w.s.Close()
}

func (w *sendStream) Reset(code uint32) {
	w.s.CancelWrite(quic.StreamErrorCode(code))
}

// streamReader is the subset of quic.ReceiveStream used here.
type streamReader interface {
	Read(p []byte) (int, error)
	CancelRead(quic.StreamErrorCode)
	Context() context.Context
}

type recvStream struct {
	s streamReader
}

func (r *recvStream) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := r.s.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		if isCleanEOF(err) {
			return nil, nil
		}
		return nil, transfork.NewTransportError(err)
	}
	return nil, nil
}

func (r *recvStream) Closed(ctx context.Context) error {
	select {
	case <-r.s.Context().Done():
		return transfork.NewTransportError(context.Cause(r.s.Context()))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isCleanEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
