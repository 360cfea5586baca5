package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeSend/pipeRecv adapt an io.Pipe half onto the transport contract.

type pipeSend struct{ w *io.PipeWriter }

func (s *pipeSend) WriteBuf(b []byte) (int, error) { return s.w.Write(b) }
func (s *pipeSend) Write(b []byte) error            { _, err := s.w.Write(b); return err }
func (s *pipeSend) Close() error                    { return s.w.Close() }
func (s *pipeSend) Reset(code uint32)               { s.w.CloseWithError(errCode(code)) }

type errCode uint32

func (e errCode) Error() string { return "reset" }

type pipeRecv struct{ r *io.PipeReader }

func (s *pipeRecv) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := s.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, err
}

func (s *pipeRecv) Closed(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// oneShotSession hands out one pre-wired bi-stream (enough for a handshake
// test) and fails any further accept/open call.
type oneShotSession struct {
	send transport.SendStream
	recv transport.RecvStream
	used bool
}

func (s *oneShotSession) AcceptBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	return s.take()
}
func (s *oneShotSession) OpenBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	return s.take()
}
func (s *oneShotSession) take() (transport.SendStream, transport.RecvStream, error) {
	if s.used {
		return nil, nil, io.EOF
	}
	s.used = true
	return s.send, s.recv, nil
}
func (s *oneShotSession) AcceptUni(ctx context.Context) (transport.RecvStream, error) { return nil, io.EOF }
func (s *oneShotSession) OpenUni(ctx context.Context) (transport.SendStream, error)   { return nil, io.EOF }
func (s *oneShotSession) Closed(ctx context.Context) error                           { <-ctx.Done(); return ctx.Err() }

// newControlPair wires a client and server session sharing one simulated
// bidirectional stream.
func newControlPair() (client, server transport.Session) {
	abR, abW := io.Pipe()
	baR, baW := io.Pipe()

	client = &oneShotSession{send: &pipeSend{abW}, recv: &pipeRecv{baR}}
	server = &oneShotSession{send: &pipeSend{baW}, recv: &pipeRecv{abR}}
	return client, server
}

func TestHandshake_CompatibleRolesNegotiate(t *testing.T) {
	client, server := newControlPair()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	type result struct {
		hs  *Handshake
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		hs, err := Dial(ctx, client, transfork.RolePublisher)
		clientCh <- result{hs, err}
	}()
	go func() {
		hs, err := Accept(ctx, server, transfork.RoleAny)
		serverCh <- result{hs, err}
	}()

	c := <-clientCh
	s := <-serverCh

	require.NoError(t, c.err)
	require.NoError(t, s.err)
	assert.Equal(t, transfork.RolePublisher, c.hs.Role)
	assert.Equal(t, transfork.RolePublisher, s.hs.Role)
}

func TestHandshake_IncompatibleRoles_FailsBothSides(t *testing.T) {
	client, server := newControlPair()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	type result struct {
		hs  *Handshake
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		hs, err := Dial(ctx, client, transfork.RoleSubscriber)
		clientCh <- result{hs, err}
	}()
	go func() {
		hs, err := Accept(ctx, server, transfork.RolePublisher)
		serverCh <- result{hs, err}
	}()

	s := <-serverCh
	require.Error(t, s.err)
	assert.ErrorIs(t, s.err, &transfork.Error{Kind: transfork.KindRoleIncompatible})
	assert.True(t, transfork.IsFatal(s.err))

	c := <-clientCh
	assert.Error(t, c.err)
}
