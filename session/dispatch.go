package session

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// SubscribeHandler serves inbound Stream::Subscribe bi-streams; the
// publisher engine implements this.
type SubscribeHandler interface {
	HandleSubscribe(ctx context.Context, w *stream.Writer, r *stream.Reader) error
}

// AnnounceHandler serves inbound Stream::Announce bi-streams; the
// subscriber engine implements this.
type AnnounceHandler interface {
	HandleAnnounce(ctx context.Context, w *stream.Writer, r *stream.Reader) error
}

// GroupHandler serves inbound StreamUni::Group uni-streams; the
// subscriber engine's group ingest implements this.
type GroupHandler interface {
	HandleGroup(ctx context.Context, r *stream.Reader) error
}

// Run accepts incoming bi- and uni-streams and dispatches each to the
// matching handler until ctx is cancelled or the transport session's
// accept calls start failing. It runs the two accept loops concurrently
// and returns the first error either reports.
func Run(ctx context.Context, sess transport.Session, sub SubscribeHandler, ann AnnounceHandler, grp GroupHandler) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return acceptBi(ctx, sess, sub, ann) })
	g.Go(func() error { return acceptUni(ctx, sess, grp) })

	return g.Wait()
}

func acceptBi(ctx context.Context, sess transport.Session, sub SubscribeHandler, ann AnnounceHandler) error {
	for {
		send, recv, err := sess.AcceptBi(ctx)
		if err != nil {
			return err
		}

		w := stream.NewWriter(send)
		r := stream.NewReader(recv)

		go func() {
			if err := dispatchBi(ctx, w, r, sub, ann); err != nil {
				w.Close(resetCode(err))
			}
		}()
	}
}

func dispatchBi(ctx context.Context, w *stream.Writer, r *stream.Reader, sub SubscribeHandler, ann AnnounceHandler) error {
	tag, err := r.ReadStreamTag(ctx)
	if err != nil {
		return err
	}

	switch tag {
	case wire.StreamAnnounce:
		return ann.HandleAnnounce(ctx, w, r)
	case wire.StreamSubscribe:
		return sub.HandleSubscribe(ctx, w, r)
	default:
		return transfork.NewUnexpectedStreamError(uint64(tag))
	}
}

func acceptUni(ctx context.Context, sess transport.Session, grp GroupHandler) error {
	for {
		recv, err := sess.AcceptUni(ctx)
		if err != nil {
			return err
		}

		r := stream.NewReader(recv)
		go dispatchUni(ctx, r, grp)
	}
}

func dispatchUni(ctx context.Context, r *stream.Reader, grp GroupHandler) {
	tag, err := r.ReadStreamUniTag(ctx)
	if err != nil {
		return
	}

	switch tag {
	case wire.StreamUniGroup:
		// A failure here is the subscriber's to surface via the track
		// reader's next gap (§7); there is no reverse direction on a
		// uni-stream to reset from this side.
		_ = grp.HandleGroup(ctx, r)
	}
}

// resetCode maps an error to the QUIC stream reset code it propagates as
// (§7), defaulting to Cancel for anything not already a *transfork.Error.
func resetCode(err error) uint32 {
	var e *transfork.Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return uint32(transfork.KindCancel)
}
