// Package wtransport adapts github.com/quic-go/webtransport-go's Session
// onto the transport.Session contract — the deployment path for running
// MoQ-Transfork inside a browser-reachable WebTransport session.
package wtransport

import (
	"context"
	"errors"
	"io"

	"github.com/quic-go/webtransport-go"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/transport"
)

// Session wraps a webtransport.Session.
type Session struct {
	sess *webtransport.Session
}

// New wraps an accepted or dialed WebTransport session.
func New(sess *webtransport.Session) *Session {
	return &Session{sess: sess}
}

func (s *Session) AcceptBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	stream, err := s.sess.AcceptStream(ctx)
	if err != nil {
		return nil, nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, &recvStream{stream}, nil
}

func (s *Session) AcceptUni(ctx context.Context) (transport.RecvStream, error) {
	stream, err := s.sess.AcceptUniStream(ctx)
	if err != nil {
		return nil, transfork.NewTransportError(err)
	}
	return &recvStream{stream}, nil
}

func (s *Session) OpenBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	stream, err := s.sess.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, &recvStream{stream}, nil
}

func (s *Session) OpenUni(ctx context.Context) (transport.SendStream, error) {
	stream, err := s.sess.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, transfork.NewTransportError(err)
	}
	return &sendStream{stream}, nil
}

func (s *Session) Closed(ctx context.Context) error {
	select {
	case <-s.sess.Context().Done():
		return transfork.NewTransportError(context.Cause(s.sess.Context()))
	case <-ctx.Done():
		return ctx.Err()
	}
}

type streamWriter interface {
	Write(p []byte) (int, error)
	Close() error
	CancelWrite(webtransport.StreamErrorCode)
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
	w.s.CancelWrite(webtransport.StreamErrorCode(code))
}

type streamReader interface {
	Read(p []byte) (int, error)
	CancelRead(webtransport.StreamErrorCode)
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
		if errors.Is(err, io.EOF) {
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
