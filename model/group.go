// Package model implements the in-memory data model backing broadcasts,
// tracks, and groups: a fan-out cache with bounded retention, ordering
// policies, and close-propagation semantics (spec §3, §4.C).
package model

import (
	"context"
	"errors"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/state"
)

// groupFrame is one frame within a group: a declared size and the bytes
// written to it so far. Chunk boundaries aren't preserved past the point of
// assembly — nothing in the engine observes them once a frame completes.
type groupFrame struct {
	size     uint64
	data     []byte
	complete bool
}

type groupState struct {
	frames []*groupFrame
	fin    bool // descriptive only; termination is driven by cell closure
}

func newGroup(sequence uint64, expires *time.Duration) (*GroupWriter, *GroupReader) {
	cell := state.NewCell(groupState{})
	return &GroupWriter{Sequence: sequence, Expires: expires, cell: cell},
		&GroupReader{Sequence: sequence, Expires: expires, cell: cell}
}

// GroupWriter appends frames to one group. Writes are only visible to
// readers once the group itself is published via TrackWriter.Create/Append.
type GroupWriter struct {
	Sequence uint64
	Expires  *time.Duration

	cell *state.Cell[groupState]
}

// WriteFrame declares the next frame's byte length; the caller streams
// exactly that many bytes into the returned FrameWriter via WriteChunk.
// The previous frame (if any) must already be complete.
func (w *GroupWriter) WriteFrame(size uint64) (*FrameWriter, error) {
	var failed error
	w.cell.WithLock(func(s *groupState, closed error) bool {
		if closed != nil {
			failed = closed
			return false
		}
		if n := len(s.frames); n > 0 && !s.frames[n-1].complete {
			failed = transfork.ErrWrongSize
			return false
		}
		s.frames = append(s.frames, &groupFrame{size: size})
		return true
	})
	if failed != nil {
		return nil, failed
	}
	return &FrameWriter{group: w, size: size}, nil
}

// Close marks the group finished. Passing nil means "clean end"; if the
// last frame was left incomplete, the group closes with ErrWrongSize
// instead regardless (under-delivery, §8 invariant 3). An explicit err
// always wins over that override.
func (w *GroupWriter) Close(err error) error {
	final := err
	w.cell.WithLock(func(s *groupState, closed error) bool {
		if err == nil {
			if n := len(s.frames); n > 0 && !s.frames[n-1].complete {
				final = transfork.ErrWrongSize
			}
		}
		s.fin = true
		return true
	})
	return w.cell.Close(final)
}

// FrameWriter streams the bytes of one declared-size frame.
type FrameWriter struct {
	group *GroupWriter
	size  uint64
}

// WriteChunk appends bytes to the frame. Writing past the declared size
// closes the group with ErrWrongSize and returns that error.
func (f *FrameWriter) WriteChunk(chunk []byte) error {
	overflow := false
	var priorClosed error
	f.group.cell.WithLock(func(s *groupState, closed error) bool {
		if closed != nil {
			priorClosed = closed
			return false
		}
		fr := s.frames[len(s.frames)-1]
		if uint64(len(fr.data)+len(chunk)) > fr.size {
			overflow = true
			return false
		}
		fr.data = append(fr.data, chunk...)
		if uint64(len(fr.data)) == fr.size {
			fr.complete = true
		}
		return true
	})
	if priorClosed != nil {
		return priorClosed
	}
	if overflow {
		f.group.cell.Close(transfork.ErrWrongSize)
		return transfork.ErrWrongSize
	}
	return nil
}

// GroupReader observes frames of one group in write order.
type GroupReader struct {
	Sequence uint64
	Expires  *time.Duration

	cell     *state.Cell[groupState]
	frameIdx int
	chunkOff int
}

// ReadFrame awaits a complete frame and returns its bytes, or (nil, nil) on
// clean end of group.
func (r *GroupReader) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		var frame *groupFrame
		var closedErr error
		epoch := r.cell.WithLock(func(s *groupState, closed error) bool {
			closedErr = closed
			if r.frameIdx < len(s.frames) {
				frame = s.frames[r.frameIdx]
			}
			return false
		})

		if frame != nil && frame.complete {
			r.frameIdx++
			return frame.data, nil
		}
		if closedErr != nil {
			if errors.Is(closedErr, transfork.ErrCancel) {
				return nil, nil
			}
			return nil, closedErr
		}

		select {
		case <-r.cell.Modified(epoch):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReadChunk reads up to max bytes of the current frame as they arrive,
// without waiting for the whole frame to complete. It returns (nil, nil) on
// clean end of group.
func (r *GroupReader) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	for {
		var frame *groupFrame
		var closedErr error
		epoch := r.cell.WithLock(func(s *groupState, closed error) bool {
			closedErr = closed
			if r.frameIdx < len(s.frames) {
				frame = s.frames[r.frameIdx]
			}
			return false
		})

		if frame != nil {
			if avail := len(frame.data) - r.chunkOff; avail > 0 {
				n := avail
				if n > max {
					n = max
				}
				chunk := frame.data[r.chunkOff : r.chunkOff+n]
				r.chunkOff += n
				if frame.complete && r.chunkOff >= len(frame.data) {
					r.frameIdx++
					r.chunkOff = 0
				}
				return chunk, nil
			}
			if frame.complete {
				r.frameIdx++
				r.chunkOff = 0
				continue
			}
		}
		if closedErr != nil {
			if errors.Is(closedErr, transfork.ErrCancel) {
				return nil, nil
			}
			return nil, closedErr
		}

		select {
		case <-r.cell.Modified(epoch):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Closed awaits the group's terminal state.
func (r *GroupReader) Closed(ctx context.Context) error {
	return r.cell.Closed(ctx)
}
