// Package session implements the handshake and multiplexed stream dispatch
// that sits between the transport and the publisher/subscriber engines
// (spec §4.F).
package session

import (
	"context"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// Control is the long-lived bidirectional stream opened during the
// handshake and kept open for the session's lifetime; its loss terminates
// the session.
type Control struct {
	Writer *stream.Writer
	Reader *stream.Reader
}

// Handshake is the outcome of a completed handshake: the negotiated
// effective role and the still-open control stream.
type Handshake struct {
	Role    transfork.Role
	Control *Control
}

// Dial performs the initiator side of the handshake: opens the control
// stream, sends the Session tag and Client message, and awaits Server.
func Dial(ctx context.Context, sess transport.Session, clientRole transfork.Role) (*Handshake, error) {
	w, r, err := stream.OpenBi(ctx, sess, wire.StreamSession)
	if err != nil {
		return nil, err
	}

	client := wire.Client{Versions: []transfork.Version{transfork.Fork00}}
	client.WithRole(clientRole)
	if err := w.Encode(client); err != nil {
		return nil, err
	}

	var server wire.Server
	if err := r.Decode(ctx, &server); err != nil {
		return nil, err
	}
	if server.Version != transfork.Fork00 {
		return nil, transfork.NewVersionError([]transfork.Version{server.Version}, []transfork.Version{transfork.Fork00})
	}

	role, ok := server.Role()
	if !ok {
		role = clientRole
	}

	return &Handshake{Role: role, Control: &Control{Writer: w, Reader: r}}, nil
}

// Accept performs the responder side of the handshake: awaits the
// initiator's control stream, validates the tag and version, negotiates
// the effective role by downgrade (§4.F), and replies.
func Accept(ctx context.Context, sess transport.Session, serverRole transfork.Role) (*Handshake, error) {
	send, recv, err := sess.AcceptBi(ctx)
	if err != nil {
		return nil, err
	}
	w := stream.NewWriter(send)
	r := stream.NewReader(recv)

	tag, err := r.ReadStreamTag(ctx)
	if err != nil {
		return nil, err
	}
	if tag != wire.StreamSession {
		return nil, transfork.NewUnexpectedStreamError(uint64(tag))
	}

	var client wire.Client
	if err := r.Decode(ctx, &client); err != nil {
		return nil, err
	}
	if !transfork.Versions(client.Versions).Contains(transfork.Fork00) {
		return nil, transfork.NewVersionError(client.Versions, []transfork.Version{transfork.Fork00})
	}

	clientRole, ok := client.Role()
	if !ok {
		clientRole = transfork.RoleAny
	}

	role, ok := serverRole.Downgrade(clientRole)
	if !ok {
		incompatible := transfork.NewRoleIncompatibleError(clientRole, serverRole)
		w.Close(incompatible.Code())
		return nil, incompatible
	}

	server := wire.Server{Version: transfork.Fork00}
	server.WithRole(role)
	if err := w.Encode(server); err != nil {
		return nil, err
	}

	return &Handshake{Role: role, Control: &Control{Writer: w, Reader: r}}, nil
}
