package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/quadrant-labs/transfork/model"
)

// demoBroadcast is a single local broadcast the node always publishes: a
// "clock" track that appends one 8-byte big-endian unix-nanosecond frame per
// tick. It exists so a bare node has something to announce and subscribe to
// without any upstream configuration, and so the model/publisher wiring has
// a live producer to exercise end to end.
type demoBroadcast struct {
	reader *model.BroadcastReader
	writer *model.TrackWriter
}

func newDemoBroadcast() *demoBroadcast {
	bw, br := model.NewBroadcast("node/clock").Produce()

	tw, tr := model.NewTrack("node/clock", "ticks").Build().Produce()
	if err := bw.Insert(tr); err != nil {
		// Insert only fails on a closed broadcast writer, which cannot
		// happen immediately after Produce.
		panic(err)
	}

	return &demoBroadcast{reader: br, writer: tw}
}

// run appends one tick per interval until ctx is cancelled.
func (d *demoBroadcast) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer d.writer.Close(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := d.tick(now); err != nil {
				slog.Error("demo tick failed", "err", err)
				return
			}
		}
	}
}

func (d *demoBroadcast) tick(now time.Time) error {
	gw, err := d.writer.Append()
	if err != nil {
		return err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(now.UnixNano()))

	fw, err := gw.WriteFrame(uint64(len(buf)))
	if err != nil {
		gw.Close(err)
		return err
	}
	if err := fw.WriteChunk(buf[:]); err != nil {
		gw.Close(err)
		return err
	}
	return gw.Close(nil)
}
