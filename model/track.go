package model

import (
	"context"
	"errors"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/state"
	"github.com/quadrant-labs/transfork/observability"
)

// Track is the immutable descriptor for a named, ordered/unordered
// sequence of groups within a broadcast (spec §3).
type Track struct {
	Broadcast    string
	Name         string
	Priority     *uint64
	GroupOrder   *transfork.GroupOrder
	GroupExpires *time.Duration
}

// NewTrack starts a fluent builder for broadcast/name, mirroring
// moq-transfork's Track::new(...).priority(...).order(...).expires(...).
func NewTrack(broadcast, name string) *TrackBuilder {
	return &TrackBuilder{track: Track{Broadcast: broadcast, Name: name}}
}

// TrackBuilder configures optional Track fields before producing a pair.
type TrackBuilder struct {
	track Track
}

func (b *TrackBuilder) Priority(p uint64) *TrackBuilder {
	b.track.Priority = &p
	return b
}

func (b *TrackBuilder) Order(o transfork.GroupOrder) *TrackBuilder {
	b.track.GroupOrder = &o
	return b
}

func (b *TrackBuilder) Expires(d time.Duration) *TrackBuilder {
	b.track.GroupExpires = &d
	return b
}

func (b *TrackBuilder) Build() Track { return b.track }

func (b *TrackBuilder) Produce() (*TrackWriter, *TrackReader) { return b.track.Produce() }

// trackState holds only the latest group — older groups are implicitly
// dropped, since the engine is a live/low-latency cache, not an archive.
type trackState struct {
	latest *GroupReader
}

// Produce creates the writer/reader pair backing this track descriptor.
func (t Track) Produce() (*TrackWriter, *TrackReader) {
	cell := state.NewCell(trackState{})
	observability.IncTracks()
	go func() {
		_ = cell.Closed(context.Background())
		observability.DecTracks()
	}()
	return &TrackWriter{Track: t, cell: cell}, &TrackReader{Track: t, cell: cell}
}

// TrackWriter publishes groups. Multiple writer handles (via Split) may
// publish concurrently; each caches its own "next" append sequence.
type TrackWriter struct {
	Track

	cell *state.Cell[trackState]
	next uint64
}

// Create builds a new group with the given sequence number. Per §8
// invariant 2: sequence == latest fails with ErrDuplicate; sequence <
// latest returns a writer whose writes are never observable to any reader
// (the group is simply never published).
func (w *TrackWriter) Create(sequence uint64) (*GroupWriter, error) {
	gw, gr := newGroup(sequence, w.GroupExpires)

	var failed error
	published := false
	w.cell.WithLock(func(s *trackState, closed error) bool {
		if closed != nil {
			failed = closed
			return false
		}
		switch {
		case s.latest == nil || sequence > s.latest.Sequence:
			s.latest = gr
			published = true
			return true
		case sequence == s.latest.Sequence:
			failed = transfork.ErrDuplicate
			return false
		default:
			// sequence < latest.Sequence: handed back, never published.
			return false
		}
	})
	if failed != nil {
		return nil, failed
	}
	if published {
		w.next = sequence + 1
	}
	return gw, nil
}

// Append builds a new group using the cached next sequence number,
// producing 0, 1, 2, … when no explicit Create is interleaved (§8
// invariant 4).
func (w *TrackWriter) Append() (*GroupWriter, error) {
	return w.Create(w.next)
}

// Close sets a terminal error on the track. First call wins; subsequent
// calls return the original error.
func (w *TrackWriter) Close(err error) error {
	return w.cell.Close(err)
}

// Closed awaits the track's terminal state from the writer side.
func (w *TrackWriter) Closed(ctx context.Context) error {
	return w.cell.Closed(ctx)
}

// Split returns another writer handle over the same track.
func (w *TrackWriter) Split() *TrackWriter {
	w.cell.AddWriter()
	return &TrackWriter{Track: w.Track, cell: w.cell}
}

// Release relinquishes this writer handle. When the last writer handle is
// released without an explicit Close, the track transitions to ErrCancel.
func (w *TrackWriter) Release() {
	w.cell.ReleaseWriter()
}

// TrackReader observes the latest published group, fanning out to every
// clone.
type TrackReader struct {
	Track

	cell  *state.Cell[trackState]
	epoch uint64

	lastSeq uint64
	seen    bool
}

// Get returns the cached group iff its sequence matches exactly
// (best-effort lookup — only the latest group is retained).
func (r *TrackReader) Get(sequence uint64) *GroupReader {
	s, _, _ := r.cell.Snapshot()
	if s.latest != nil && s.latest.Sequence == sequence {
		return s.latest
	}
	return nil
}

// Latest returns the current latest sequence number, if any.
func (r *TrackReader) Latest() (uint64, bool) {
	s, _, _ := r.cell.Snapshot()
	if s.latest == nil {
		return 0, false
	}
	return s.latest.Sequence, true
}

// Next awaits the next change in latest and returns it. Consecutive calls
// may skip sequences if the writer advanced faster than the reader — the
// engine is live-biased, not lossless. It returns (nil, nil) on clean
// close.
func (r *TrackReader) Next(ctx context.Context) (*GroupReader, error) {
	for {
		s, epoch, closed := r.cell.Snapshot()
		if r.epoch != epoch {
			r.epoch = epoch
			// Close bumps the epoch too; only a group not yet returned by
			// this reader counts as a change in latest.
			if s.latest != nil && (!r.seen || s.latest.Sequence != r.lastSeq) {
				if r.seen && s.latest.Sequence > r.lastSeq+1 {
					skipped := int(s.latest.Sequence - r.lastSeq - 1)
					observability.NewRecorder(r.Broadcast + "/" + r.Name).Catchup(skipped)
				}
				r.lastSeq = s.latest.Sequence
				r.seen = true
				return s.latest, nil
			}
		}
		if closed != nil {
			if errors.Is(closed, transfork.ErrCancel) {
				return nil, nil
			}
			return nil, closed
		}

		select {
		case <-r.cell.Modified(epoch):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Closed awaits the track's terminal state.
func (r *TrackReader) Closed(ctx context.Context) error {
	return r.cell.Closed(ctx)
}

// Clone returns another reader handle with its own cursor: its first Next
// returns the current latest group, if any, and later calls return groups
// published after that.
func (r *TrackReader) Clone() *TrackReader {
	r.cell.AddReader()
	return &TrackReader{Track: r.Track, cell: r.cell}
}

// Release relinquishes this reader handle.
func (r *TrackReader) Release() {
	r.cell.ReleaseReader()
}
