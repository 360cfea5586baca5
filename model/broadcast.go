package model

import (
	"context"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/state"
	"github.com/quadrant-labs/transfork/observability"
)

// Broadcast is the immutable descriptor for a named collection of tracks
// (spec §3, §4.C).
type Broadcast struct {
	Name string
}

// NewBroadcast builds a descriptor for name.
func NewBroadcast(name string) Broadcast {
	return Broadcast{Name: name}
}

type broadcastState struct {
	tracks map[string]*TrackReader
	router *RouterReader
}

// Produce creates the writer/reader pair backing this broadcast.
func (b Broadcast) Produce() (*BroadcastWriter, *BroadcastReader) {
	cell := state.NewCell(broadcastState{tracks: make(map[string]*TrackReader)})
	return &BroadcastWriter{Broadcast: b, cell: cell}, &BroadcastReader{Broadcast: b, cell: cell}
}

// BroadcastWriter populates a broadcast's track table, either statically
// (Insert) or dynamically via a router consulted on lookup misses
// (RouteTracks). Exactly one of the two satisfies any given Subscribe; the
// static table is always checked first.
type BroadcastWriter struct {
	Broadcast

	cell *state.Cell[broadcastState]
}

// Insert publishes reader under its own track name.
func (w *BroadcastWriter) Insert(reader *TrackReader) error {
	var failed error
	w.cell.WithLock(func(s *broadcastState, closed error) bool {
		if closed != nil {
			failed = closed
			return false
		}
		if s.tracks == nil {
			s.tracks = make(map[string]*TrackReader)
		}
		s.tracks[reader.Name] = reader
		return true
	})
	return failed
}

// RouteTracks registers a router consulted for any track name not already
// present in the static table.
func (w *BroadcastWriter) RouteTracks(router *RouterReader) error {
	var failed error
	w.cell.WithLock(func(s *broadcastState, closed error) bool {
		if closed != nil {
			failed = closed
			return false
		}
		s.router = router
		return true
	})
	return failed
}

// Close marks the broadcast terminal; afterwards a Subscribe that finds
// neither an inserted track nor a router fails with err.
func (w *BroadcastWriter) Close(err error) error {
	return w.cell.Close(err)
}

// Split returns another writer handle over the same broadcast.
func (w *BroadcastWriter) Split() *BroadcastWriter {
	w.cell.AddWriter()
	return &BroadcastWriter{Broadcast: w.Broadcast, cell: w.cell}
}

// Release relinquishes this writer handle.
func (w *BroadcastWriter) Release() {
	w.cell.ReleaseWriter()
}

// BroadcastReader resolves track lookups against the writer's table and
// router.
type BroadcastReader struct {
	Broadcast

	cell *state.Cell[broadcastState]
}

// Subscribe returns the cached reader for track if one was inserted;
// otherwise forwards the lookup to the registered router and awaits its
// reply; otherwise fails with ErrNotFound.
func (r *BroadcastReader) Subscribe(ctx context.Context, track Track) (*TrackReader, error) {
	rec := observability.NewRecorder(r.Name + "/" + track.Name)

	s, _, closed := r.cell.Snapshot()
	if tr, ok := s.tracks[track.Name]; ok {
		rec.CacheHit()
		return tr, nil
	}
	if s.router != nil {
		rec.CacheMiss()
		return s.router.Produce(ctx, track)
	}
	if closed != nil {
		return nil, closed
	}
	return nil, transfork.ErrNotFound
}

// Closed awaits the broadcast's terminal state.
func (r *BroadcastReader) Closed(ctx context.Context) error {
	return r.cell.Closed(ctx)
}

// Clone returns another reader handle over the same broadcast.
func (r *BroadcastReader) Clone() *BroadcastReader {
	r.cell.AddReader()
	return &BroadcastReader{Broadcast: r.Broadcast, cell: r.cell}
}

// Release relinquishes this reader handle.
func (r *BroadcastReader) Release() {
	r.cell.ReleaseReader()
}
