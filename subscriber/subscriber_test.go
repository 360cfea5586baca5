package subscriber

import (
	"context"
	"io"
	"testing"
	"time"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/model"
	"github.com/quadrant-labs/transfork/stream"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSend struct{ data []byte }

func (m *memSend) WriteBuf(b []byte) (int, error) { m.data = append(m.data, b...); return len(b), nil }
func (m *memSend) Write(b []byte) error            { m.data = append(m.data, b...); return nil }
func (m *memSend) Close() error                    { return nil }
func (m *memSend) Reset(code uint32)               {}

type memRecv struct{ data []byte }

func (m *memRecv) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	if len(m.data) == 0 {
		return nil, nil
	}
	n := max
	if n > len(m.data) {
		n = len(m.data)
	}
	chunk := m.data[:n]
	m.data = m.data[n:]
	return chunk, nil
}
func (m *memRecv) Closed(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

type fakeSession struct {
	biSend *memSend
	biRecv *memRecv
}

func (s *fakeSession) AcceptBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	return nil, nil, io.EOF
}
func (s *fakeSession) AcceptUni(ctx context.Context) (transport.RecvStream, error) { return nil, io.EOF }
func (s *fakeSession) OpenBi(ctx context.Context) (transport.SendStream, transport.RecvStream, error) {
	return s.biSend, s.biRecv, nil
}
func (s *fakeSession) OpenUni(ctx context.Context) (transport.SendStream, error) { return nil, io.EOF }
func (s *fakeSession) Closed(ctx context.Context) error                         { <-ctx.Done(); return ctx.Err() }

func TestSubscriber_Subscribe_SendsRequestAndAwaitsInfo(t *testing.T) {
	info := wire.Info{Priority: 1, GroupLatest: 4, GroupOrder: 1}
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{data: info.Encode(nil)}}
	s := New(sess)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tr, err := s.Subscribe(ctx, "room", "video")
	require.NoError(t, err)
	assert.Equal(t, "room", tr.Broadcast)
	assert.Equal(t, "video", tr.Name)

	r := stream.NewReader(&memRecv{data: sess.biSend.data})
	tag, err := r.ReadStreamTag(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.StreamSubscribe, tag)

	var req wire.Subscribe
	require.NoError(t, r.Decode(ctx, &req))
	assert.Equal(t, uint64(1), req.ID)
	assert.Equal(t, "room", req.Broadcast)
	assert.Equal(t, "video", req.Track)
}

func TestSubscriber_HandleAnnounce_InstallsNamespaceAndQueues(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)

	announce := wire.Announce{Broadcast: "room"}
	r := stream.NewReader(&memRecv{data: announce.Encode(nil)})
	w := stream.NewWriter(&memSend{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.HandleAnnounce(ctx, w, r) }()

	reader := s.Announced(context.Background())
	require.NotNil(t, reader)
	assert.Equal(t, "room", reader.Name)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("HandleAnnounce did not return after cancel")
	}
}

func TestSubscriber_HandleGroup_WritesFramesIntoTrack(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)

	tw, tr := model.NewTrack("room", "video").Build().Produce()
	s.tracks[5] = tw

	group := wire.Group{Subscribe: 5, Sequence: 0}
	frame := wire.Frame{Size: 5}
	data := group.Encode(nil)
	data = frame.Encode(data)
	data = append(data, []byte("hello")...)

	r := stream.NewReader(&memRecv{data: data})
	require.NoError(t, s.HandleGroup(context.Background(), r))

	g := tr.Get(0)
	require.NotNil(t, g)
	got, err := g.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestSubscriber_HandleGroup_UnknownSubscribe_NotFound(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)

	group := wire.Group{Subscribe: 99, Sequence: 0}
	r := stream.NewReader(&memRecv{data: group.Encode(nil)})

	err := s.HandleGroup(context.Background(), r)
	require.ErrorIs(t, err, transfork.ErrNotFound)
}

func TestSubscriber_HandleGroup_FrameExceedsCapacity(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)
	s.FrameCapacity = 4

	tw, _ := model.NewTrack("room", "video").Build().Produce()
	s.tracks[5] = tw

	group := wire.Group{Subscribe: 5, Sequence: 0}
	frame := wire.Frame{Size: 5}
	data := group.Encode(nil)
	data = frame.Encode(data)
	data = append(data, []byte("hello")...)

	r := stream.NewReader(&memRecv{data: data})
	err := s.HandleGroup(context.Background(), r)
	require.Error(t, err)
}

func TestSubscriber_HandleGroup_FrameCountExceedsCapacity(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)
	s.GroupCapacity = 1

	tw, _ := model.NewTrack("room", "video").Build().Produce()
	s.tracks[5] = tw

	group := wire.Group{Subscribe: 5, Sequence: 0}
	frame := wire.Frame{Size: 1}
	data := group.Encode(nil)
	data = frame.Encode(data)
	data = append(data, 'a')
	data = frame.Encode(data)
	data = append(data, 'b')

	r := stream.NewReader(&memRecv{data: data})
	err := s.HandleGroup(context.Background(), r)
	require.Error(t, err)
}

func TestSubscriber_HandleGroup_WithinCapacity(t *testing.T) {
	sess := &fakeSession{biSend: &memSend{}, biRecv: &memRecv{}}
	s := New(sess)
	s.FrameCapacity = 5
	s.GroupCapacity = 2

	tw, tr := model.NewTrack("room", "video").Build().Produce()
	s.tracks[5] = tw

	group := wire.Group{Subscribe: 5, Sequence: 0}
	frame := wire.Frame{Size: 5}
	data := group.Encode(nil)
	data = frame.Encode(data)
	data = append(data, []byte("hello")...)

	r := stream.NewReader(&memRecv{data: data})
	require.NoError(t, s.HandleGroup(context.Background(), r))

	g := tr.Get(0)
	require.NotNil(t, g)
}
