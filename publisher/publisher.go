// Package publisher implements the outbound announce and inbound subscribe
// sides of the session engine (spec §4.G): offering broadcasts to a peer and
// serving its subscriptions from the local model.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/model"
	"github.com/quadrant-labs/transfork/observability"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// Publisher offers broadcasts to a peer and serves its Subscribe requests
// against the local model. One Publisher is bound to one session.
type Publisher struct {
	sess transport.Session

	mu          sync.Mutex
	broadcasts  map[string]*model.BroadcastReader
	subscribers map[string]int
}

// New binds a publisher to an already-handshaked transport session.
func New(sess transport.Session) *Publisher {
	return &Publisher{
		sess:        sess,
		broadcasts:  make(map[string]*model.BroadcastReader),
		subscribers: make(map[string]int),
	}
}

// Announce opens a Stream::Announce bi-stream, advertises reader's broadcast,
// and blocks holding the stream open until the broadcast closes or the peer
// resets the stream — whichever revokes the announcement first.
func (p *Publisher) Announce(ctx context.Context, reader *model.BroadcastReader) error {
	p.mu.Lock()
	p.broadcasts[reader.Name] = reader
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.broadcasts, reader.Name)
		p.mu.Unlock()
	}()

	sw, sr, err := stream.OpenBi(ctx, p.sess, wire.StreamAnnounce)
	if err != nil {
		return err
	}

	if err := sw.Encode(wire.Announce{Broadcast: reader.Name}); err != nil {
		return err
	}

	var ok wire.AnnounceOk
	if err := sr.Decode(ctx, &ok); err != nil {
		return err
	}
	slog.Info("announce ok", "broadcast", reader.Name)

	streamClosed := make(chan error, 1)
	go func() { streamClosed <- sr.Closed(ctx) }()

	broadcastClosed := make(chan error, 1)
	go func() { broadcastClosed <- reader.Closed(ctx) }()

	select {
	case err := <-streamClosed:
		return err
	case err := <-broadcastClosed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleSubscribe satisfies session.SubscribeHandler: it serves one inbound
// Stream::Subscribe bi-stream against the announced broadcast table.
func (p *Publisher) HandleSubscribe(ctx context.Context, w *stream.Writer, r *stream.Reader) error {
	var sub wire.Subscribe
	if err := r.Decode(ctx, &sub); err != nil {
		return err
	}

	p.mu.Lock()
	broadcast, ok := p.broadcasts[sub.Broadcast]
	p.mu.Unlock()
	if !ok {
		return transfork.ErrNotFound
	}

	track, err := broadcast.Subscribe(ctx, model.Track{
		Broadcast:    sub.Broadcast,
		Name:         sub.Track,
		Priority:     &sub.Priority,
		GroupOrder:   &sub.GroupOrder,
		GroupExpires: &sub.GroupExpires,
	})
	if err != nil {
		return err
	}
	// Subscribe may hand back a reader shared with the static track table
	// (or another subscriber); Clone gives this subscription its own
	// epoch cursor to track independently.
	track = track.Clone()
	defer track.Release()

	latest, _ := track.Latest()
	info := wire.Info{
		Priority:     sub.Priority,
		GroupLatest:  latest,
		GroupOrder:   sub.GroupOrder,
		GroupExpires: sub.GroupExpires,
	}
	if err := w.Encode(info); err != nil {
		return err
	}

	key := sub.Broadcast + "/" + sub.Track
	rec := observability.NewRecorder(key)
	p.mu.Lock()
	p.subscribers[key]++
	rec.SetSubscribers(p.subscribers[key])
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.subscribers[key]--
		rec.SetSubscribers(p.subscribers[key])
		p.mu.Unlock()
	}()

	s := newSubscription(p.sess, sub.ID, track, w, r)
	return s.run(ctx)
}
