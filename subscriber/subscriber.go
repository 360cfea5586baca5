// Package subscriber implements the namespace, outbound subscribe, and
// inbound announce/group sides of the session engine (spec §4.H).
package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/state"
	"github.com/quadrant-labs/transfork/model"
	"github.com/quadrant-labs/transfork/observability"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// Subscriber resolves broadcasts by name, issues outbound Subscribes, and
// serves inbound Announce/Group messages against the resulting state. One
// Subscriber is bound to one session.
type Subscriber struct {
	sess transport.Session

	announced *state.Queue[*model.BroadcastReader]

	mu         sync.Mutex
	broadcasts map[string]*model.BroadcastReader
	tracks     map[uint64]*model.TrackWriter

	nextID atomic.Uint64

	// FrameCapacity and GroupCapacity bound how much state HandleGroup will
	// accept from the peer for a single frame/group. Zero means unbounded.
	FrameCapacity uint64
	GroupCapacity int
}

// New binds a subscriber to an already-handshaked transport session.
func New(sess transport.Session) *Subscriber {
	return &Subscriber{
		sess:       sess,
		announced:  state.NewQueue[*model.BroadcastReader](),
		broadcasts: make(map[string]*model.BroadcastReader),
		tracks:     make(map[uint64]*model.TrackWriter),
	}
}

// Announced awaits the next broadcast the peer announced on an Announce
// stream; broadcasts opened locally through Namespace are not queued here.
func (s *Subscriber) Announced(ctx context.Context) *model.BroadcastReader {
	reader, ok := s.announced.Pop(ctx)
	if !ok {
		return nil
	}
	return reader
}

// Namespace returns the cached reader for name if one is already known, or
// creates a broadcast writer/reader pair fronted by a router and spawns a
// background task that fulfills router requests against this peer via
// Subscribe.
func (s *Subscriber) Namespace(ctx context.Context, name string) (*model.BroadcastReader, error) {
	s.mu.Lock()
	if existing, ok := s.broadcasts[name]; ok {
		s.mu.Unlock()
		return existing, nil
	}

	bw, br := model.NewBroadcast(name).Produce()
	s.broadcasts[name] = br
	s.mu.Unlock()

	routerW, routerR := model.NewRouter()
	if err := bw.RouteTracks(routerR); err != nil {
		return nil, err
	}

	go s.runNamespace(ctx, name, bw, routerW)

	return br, nil
}

func (s *Subscriber) runNamespace(ctx context.Context, name string, bw *model.BroadcastWriter, router *model.RouterWriter) {
	defer bw.Release()
	for {
		req := router.Requested(ctx)
		if req == nil {
			return
		}
		go func(req *model.Request) {
			track, err := s.Subscribe(ctx, name, req.Info.Name)
			if err != nil {
				req.Close(err)
				return
			}
			req.Serve(track)
		}(req)
	}
}

// Subscribe opens a Stream::Subscribe bi-stream for broadcast/track, awaits
// the Info reply, and returns a track reader that fills as groups arrive. A
// background task reads GroupDrop reports and tears the subscription down
// when the peer ends the stream, the track closes, or ctx is done; releasing
// the track reader does not end it.
func (s *Subscriber) Subscribe(ctx context.Context, broadcast, track string) (*model.TrackReader, error) {
	id := s.nextID.Add(1)

	tw, tr := model.NewTrack(broadcast, track).Build().Produce()
	s.mu.Lock()
	s.tracks[id] = tw
	s.mu.Unlock()

	w, r, err := stream.OpenBi(ctx, s.sess, wire.StreamSubscribe)
	if err != nil {
		s.dropTrack(id)
		tw.Close(err)
		return nil, err
	}

	req := wire.Subscribe{ID: id, Broadcast: broadcast, Track: track}
	if err := w.Encode(req); err != nil {
		s.dropTrack(id)
		tw.Close(err)
		w.Close(resetCode(err))
		return nil, err
	}

	var info wire.Info
	if err := r.Decode(ctx, &info); err != nil {
		s.dropTrack(id)
		tw.Close(err)
		w.Close(resetCode(err))
		return nil, err
	}
	slog.Info("subscribe ok", "broadcast", broadcast, "track", track, "id", id)

	go s.runSubscribe(ctx, id, tw, w, r)

	return tr, nil
}

func (s *Subscriber) runSubscribe(ctx context.Context, id uint64, tw *model.TrackWriter, w *stream.Writer, r *stream.Reader) {
	defer s.dropTrack(id)
	defer tw.Release()

	drops := make(chan error, 1)
	go func() {
		for {
			var drop wire.GroupDrop
			ok, err := r.DecodeMaybe(ctx, &drop)
			if err != nil {
				drops <- err
				return
			}
			if !ok {
				drops <- nil
				return
			}
			slog.Debug("group drop", "subscribe", id, "sequence", drop.Sequence, "code", drop.Code)
		}
	}()

	closed := make(chan error, 1)
	go func() { closed <- tw.Closed(ctx) }()

	select {
	case err := <-drops:
		w.Close(resetCode(err))
	case err := <-closed:
		w.Close(resetCode(err))
	case <-ctx.Done():
		w.Close(resetCode(ctx.Err()))
	}
}

func (s *Subscriber) dropTrack(id uint64) {
	s.mu.Lock()
	delete(s.tracks, id)
	s.mu.Unlock()
}

// HandleAnnounce satisfies session.AnnounceHandler: it installs the
// announced broadcast via Namespace, pushes it onto the announce queue, and
// holds the stream open until it or the broadcast closes.
func (s *Subscriber) HandleAnnounce(ctx context.Context, w *stream.Writer, r *stream.Reader) error {
	var msg wire.Announce
	if err := r.Decode(ctx, &msg); err != nil {
		return err
	}

	broadcast, err := s.Namespace(ctx, msg.Broadcast)
	if err != nil {
		return err
	}
	if !s.announced.Push(broadcast) {
		return transfork.ErrCancel
	}

	if err := w.Encode(wire.AnnounceOk{}); err != nil {
		return err
	}
	slog.Info("announce ok", "broadcast", msg.Broadcast)

	streamClosed := make(chan error, 1)
	go func() { streamClosed <- r.Closed(ctx) }()

	broadcastClosed := make(chan error, 1)
	go func() { broadcastClosed <- broadcast.Closed(ctx) }()

	select {
	case err := <-streamClosed:
		return err
	case err := <-broadcastClosed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleGroup satisfies session.GroupHandler: it decodes the Group header,
// looks up the subscription's track writer, and copies frames into a new
// group until the uni-stream ends cleanly.
func (s *Subscriber) HandleGroup(ctx context.Context, r *stream.Reader) error {
	var hdr wire.Group
	if err := r.Decode(ctx, &hdr); err != nil {
		return err
	}

	s.mu.Lock()
	tw, ok := s.tracks[hdr.Subscribe]
	s.mu.Unlock()
	if !ok {
		return transfork.ErrNotFound
	}

	group, err := tw.Create(hdr.Sequence)
	if err != nil {
		return err
	}
	observability.NewRecorder(tw.Broadcast + "/" + tw.Name).GroupReceived()

	frames := 0
	for {
		var frameHdr wire.Frame
		more, err := r.DecodeMaybe(ctx, &frameHdr)
		if err != nil {
			group.Close(err)
			return err
		}
		if !more {
			break
		}

		frames++
		if s.GroupCapacity > 0 && frames > s.GroupCapacity {
			group.Close(transfork.ErrWrongSize)
			return transfork.ErrWrongSize
		}
		if s.FrameCapacity > 0 && frameHdr.Size > s.FrameCapacity {
			group.Close(transfork.ErrWrongSize)
			return transfork.ErrWrongSize
		}

		fw, err := group.WriteFrame(frameHdr.Size)
		if err != nil {
			group.Close(err)
			return err
		}

		remain := int(frameHdr.Size)
		for remain > 0 {
			chunk, err := r.ReadChunk(ctx, remain)
			if err != nil {
				group.Close(err)
				return err
			}
			if chunk == nil {
				group.Close(transfork.ErrWrongSize)
				return transfork.ErrWrongSize
			}
			if err := fw.WriteChunk(chunk); err != nil {
				group.Close(err)
				return err
			}
			remain -= len(chunk)
		}
	}

	return group.Close(nil)
}

// resetCode maps an error to the QUIC reset code a stream closes with (§7).
func resetCode(err error) uint32 {
	if err == nil {
		return uint32(transfork.KindCancel)
	}
	var e *transfork.Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return uint32(transfork.KindCancel)
}
