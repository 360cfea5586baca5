package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/model"
	"github.com/quadrant-labs/transfork/observability"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
)

// subscription serves one inbound Subscribe against the track it resolved
// to: it pulls new groups, forwards each as its own uni-stream, reports
// failed groups back on the control stream, and accepts (but does not yet
// act on) SubscribeUpdate frames.
type subscription struct {
	id    uint64
	track *model.TrackReader
	sess  transport.Session
	w     *stream.Writer
	r     *stream.Reader
}

func newSubscription(sess transport.Session, id uint64, track *model.TrackReader, w *stream.Writer, r *stream.Reader) *subscription {
	return &subscription{id: id, track: track, sess: sess, w: w, r: r}
}

type groupMsg struct {
	group *model.GroupReader
	err   error
}

type updateMsg struct {
	update wire.SubscribeUpdate
	done   bool
	err    error
}

type taskResult struct {
	sequence uint64
	err      error
}

// run drives the three-way concurrent serve loop of spec §4.G until the
// track closes and every group task has finished, or an unrecoverable error
// occurs (a reset of the control stream is one). A clean end of the control
// stream stops the update reads but not the serving of groups.
func (s *subscription) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groups := make(chan groupMsg)
	go s.pullGroups(ctx, groups)

	updates := make(chan updateMsg)
	go s.pullUpdates(ctx, updates)

	done := make(chan taskResult)
	active := 0
	groupsOpen := true
	updatesOpen := true

	for groupsOpen || active > 0 {
		var groupsCh chan groupMsg
		if groupsOpen {
			groupsCh = groups
		}
		var updatesCh chan updateMsg
		if updatesOpen {
			updatesCh = updates
		}

		select {
		case m := <-groupsCh:
			if m.err != nil {
				return m.err
			}
			if m.group == nil {
				groupsOpen = false
				continue
			}
			active++
			go s.runGroup(ctx, m.group, done)

		case res := <-done:
			active--
			if res.err != nil {
				if err := s.reportDrop(ctx, res.sequence, res.err); err != nil {
					return err
				}
			}

		case m := <-updatesCh:
			if m.done {
				updatesOpen = false
				if m.err != nil {
					return m.err
				}
				continue
			}
			slog.Debug("subscribe update", "subscribe", s.id, "priority", m.update.Priority)

		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *subscription) pullGroups(ctx context.Context, out chan<- groupMsg) {
	for {
		g, err := s.track.Next(ctx)
		if err != nil {
			select {
			case out <- groupMsg{err: err}:
			case <-ctx.Done():
			}
			return
		}
		if g == nil {
			close(out)
			return
		}
		select {
		case out <- groupMsg{group: g}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) pullUpdates(ctx context.Context, out chan<- updateMsg) {
	for {
		var u wire.SubscribeUpdate
		ok, err := s.r.DecodeMaybe(ctx, &u)
		if err != nil {
			select {
			case out <- updateMsg{done: true, err: err}:
			case <-ctx.Done():
			}
			return
		}
		if !ok {
			select {
			case out <- updateMsg{done: true}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- updateMsg{update: u}:
		case <-ctx.Done():
			return
		}
	}
}

// runGroup forwards one group as its own uni-stream: the Group header,
// then each frame as a Frame{size} header followed by its payload.
func (s *subscription) runGroup(ctx context.Context, g *model.GroupReader, done chan<- taskResult) {
	start := time.Now()
	obs := observability.NewRecorder(s.track.Broadcast + "/" + s.track.Name).LatencyObs("group_forward")
	if obs != nil {
		defer func() { obs.Observe(time.Since(start).Seconds()) }()
	}

	w, err := stream.OpenUni(ctx, s.sess, wire.StreamUniGroup)
	if err != nil {
		reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
		return
	}

	header := wire.Group{Subscribe: s.id, Sequence: g.Sequence}
	if g.Expires != nil {
		header.Expires = *g.Expires
	}
	if err := w.Encode(header); err != nil {
		w.Close(resetCode(err))
		reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
		return
	}

	for {
		frame, err := g.ReadFrame(ctx)
		if err != nil {
			w.Close(resetCode(err))
			reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
			return
		}
		if frame == nil {
			break
		}
		if err := w.Encode(wire.Frame{Size: uint64(len(frame))}); err != nil {
			w.Close(resetCode(err))
			reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
			return
		}
		if err := w.Write(frame); err != nil {
			w.Close(resetCode(err))
			reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
			return
		}
	}

	if err := w.Finish(); err != nil {
		reportResult(ctx, done, taskResult{sequence: g.Sequence, err: err})
		return
	}
	reportResult(ctx, done, taskResult{sequence: g.Sequence})
}

func reportResult(ctx context.Context, done chan<- taskResult, res taskResult) {
	select {
	case done <- res:
	case <-ctx.Done():
	}
}

// reportDrop sends GroupDrop on the control stream after a group task
// fails. Count is always 0 — the task's partial progress isn't tracked
// separately from the failure itself.
func (s *subscription) reportDrop(ctx context.Context, sequence uint64, cause error) error {
	drop := wire.GroupDrop{Sequence: sequence, Count: 0, Code: resetCode(cause)}
	return s.w.Encode(drop)
}

// resetCode maps an error to the QUIC reset code it closes a stream with
// (§7), defaulting to Cancel for anything not already a *transfork.Error.
func resetCode(err error) uint32 {
	var e *transfork.Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return uint32(transfork.KindCancel)
}
