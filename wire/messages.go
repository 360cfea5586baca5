package wire

import (
	"time"

	transfork "github.com/quadrant-labs/transfork"
)

// Client is sent by the handshake initiator after the Session stream tag
// (spec §4.F, §6).
type Client struct {
	Versions   []transfork.Version
	Extensions map[uint64][]byte
}

// Role reads the Role extension, if present.
func (c Client) Role() (transfork.Role, bool) {
	b, ok := c.Extensions[ExtensionRole]
	if !ok || len(b) == 0 {
		return 0, false
	}
	return transfork.Role(b[0]), true
}

// WithRole sets the Role extension, mutating Extensions in place.
func (c *Client) WithRole(role transfork.Role) {
	if c.Extensions == nil {
		c.Extensions = make(map[uint64][]byte)
	}
	c.Extensions[ExtensionRole] = []byte{byte(role)}
}

func (c Client) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, uint64(len(c.Versions)))
	for _, v := range c.Versions {
		buf = AppendVarint(buf, uint64(v))
	}
	buf = appendExtensions(buf, c.Extensions)
	return buf
}

func (c *Client) Decode(r Reader) error {
	n, err := ReadVarint(r)
	if err != nil {
		return err
	}
	c.Versions = make([]transfork.Version, n)
	for i := range c.Versions {
		v, err := ReadVarint(r)
		if err != nil {
			return err
		}
		c.Versions[i] = transfork.Version(v)
	}
	c.Extensions, err = readExtensions(r)
	return err
}

// Server is the handshake responder's reply.
type Server struct {
	Version    transfork.Version
	Extensions map[uint64][]byte
}

func (s Server) Role() (transfork.Role, bool) {
	b, ok := s.Extensions[ExtensionRole]
	if !ok || len(b) == 0 {
		return 0, false
	}
	return transfork.Role(b[0]), true
}

func (s *Server) WithRole(role transfork.Role) {
	if s.Extensions == nil {
		s.Extensions = make(map[uint64][]byte)
	}
	s.Extensions[ExtensionRole] = []byte{byte(role)}
}

func (s Server) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, uint64(s.Version))
	buf = appendExtensions(buf, s.Extensions)
	return buf
}

func (s *Server) Decode(r Reader) error {
	v, err := ReadVarint(r)
	if err != nil {
		return err
	}
	s.Version = transfork.Version(v)
	s.Extensions, err = readExtensions(r)
	return err
}

func appendExtensions(buf []byte, ext map[uint64][]byte) []byte {
	buf = AppendVarint(buf, uint64(len(ext)))
	for k, v := range ext {
		buf = AppendVarint(buf, k)
		buf = AppendBytes(buf, v)
	}
	return buf
}

func readExtensions(r Reader) (map[uint64][]byte, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	ext := make(map[uint64][]byte, n)
	for i := uint64(0); i < n; i++ {
		k, err := ReadVarint(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadBytes(r)
		if err != nil {
			return nil, err
		}
		ext[k] = v
	}
	return ext, nil
}

// Announce is sent on a Stream::Announce bi-stream to publish a broadcast.
type Announce struct {
	Broadcast string
}

func (a Announce) Encode(buf []byte) []byte { return AppendString(buf, a.Broadcast) }

func (a *Announce) Decode(r Reader) error {
	s, err := ReadString(r)
	if err != nil {
		return err
	}
	a.Broadcast = s
	return nil
}

// AnnounceOk acknowledges an Announce; it carries no fields.
type AnnounceOk struct{}

func (AnnounceOk) Encode(buf []byte) []byte { return buf }
func (*AnnounceOk) Decode(r Reader) error   { return nil }

// Subscribe is sent on a Stream::Subscribe bi-stream to request a track.
type Subscribe struct {
	ID           uint64
	Broadcast    string
	Track        string
	Priority     uint64
	GroupOrder   transfork.GroupOrder
	GroupExpires time.Duration
	GroupMin     *uint64
	GroupMax     *uint64
}

func (s Subscribe) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, s.ID)
	buf = AppendString(buf, s.Broadcast)
	buf = AppendString(buf, s.Track)
	buf = AppendVarint(buf, s.Priority)
	buf = AppendVarint(buf, uint64(s.GroupOrder))
	buf = appendDuration(buf, s.GroupExpires)
	buf = appendOptionalUint64(buf, s.GroupMin)
	buf = appendOptionalUint64(buf, s.GroupMax)
	return buf
}

func (s *Subscribe) Decode(r Reader) error {
	var err error
	if s.ID, err = ReadVarint(r); err != nil {
		return err
	}
	if s.Broadcast, err = ReadString(r); err != nil {
		return err
	}
	if s.Track, err = ReadString(r); err != nil {
		return err
	}
	if s.Priority, err = ReadVarint(r); err != nil {
		return err
	}
	order, err := ReadVarint(r)
	if err != nil {
		return err
	}
	s.GroupOrder = transfork.GroupOrder(order)
	if s.GroupExpires, err = readDuration(r); err != nil {
		return err
	}
	if s.GroupMin, err = readOptionalUint64(r); err != nil {
		return err
	}
	if s.GroupMax, err = readOptionalUint64(r); err != nil {
		return err
	}
	return nil
}

// Info replies to a Subscribe with the track's current state.
type Info struct {
	Priority     uint64
	GroupLatest  uint64
	GroupOrder   transfork.GroupOrder
	GroupExpires time.Duration
}

func (i Info) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, i.Priority)
	buf = AppendVarint(buf, i.GroupLatest)
	buf = AppendVarint(buf, uint64(i.GroupOrder))
	buf = appendDuration(buf, i.GroupExpires)
	return buf
}

func (i *Info) Decode(r Reader) error {
	var err error
	if i.Priority, err = ReadVarint(r); err != nil {
		return err
	}
	if i.GroupLatest, err = ReadVarint(r); err != nil {
		return err
	}
	order, err := ReadVarint(r)
	if err != nil {
		return err
	}
	i.GroupOrder = transfork.GroupOrder(order)
	if i.GroupExpires, err = readDuration(r); err != nil {
		return err
	}
	return nil
}

// SubscribeUpdate mutates a live subscription's filter (spec §4.G; filter
// trimming semantics are an open question carried from the source).
type SubscribeUpdate struct {
	Priority     uint64
	GroupOrder   transfork.GroupOrder
	GroupExpires time.Duration
	GroupMin     *uint64
	GroupMax     *uint64
}

func (u SubscribeUpdate) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, u.Priority)
	buf = AppendVarint(buf, uint64(u.GroupOrder))
	buf = appendDuration(buf, u.GroupExpires)
	buf = appendOptionalUint64(buf, u.GroupMin)
	buf = appendOptionalUint64(buf, u.GroupMax)
	return buf
}

func (u *SubscribeUpdate) Decode(r Reader) error {
	var err error
	if u.Priority, err = ReadVarint(r); err != nil {
		return err
	}
	order, err := ReadVarint(r)
	if err != nil {
		return err
	}
	u.GroupOrder = transfork.GroupOrder(order)
	if u.GroupExpires, err = readDuration(r); err != nil {
		return err
	}
	if u.GroupMin, err = readOptionalUint64(r); err != nil {
		return err
	}
	if u.GroupMax, err = readOptionalUint64(r); err != nil {
		return err
	}
	return nil
}

// Group opens a StreamUni::Group stream's header, identifying which
// subscription and sequence the following frames belong to.
type Group struct {
	Subscribe uint64
	Sequence  uint64
	Expires   time.Duration
}

func (g Group) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, g.Subscribe)
	buf = AppendVarint(buf, g.Sequence)
	buf = appendDuration(buf, g.Expires)
	return buf
}

func (g *Group) Decode(r Reader) error {
	var err error
	if g.Subscribe, err = ReadVarint(r); err != nil {
		return err
	}
	if g.Sequence, err = ReadVarint(r); err != nil {
		return err
	}
	if g.Expires, err = readDuration(r); err != nil {
		return err
	}
	return nil
}

// Frame is the declared-size header preceding a frame's payload bytes
// within a group stream.
type Frame struct {
	Size uint64
}

func (f Frame) Encode(buf []byte) []byte { return AppendVarint(buf, f.Size) }

func (f *Frame) Decode(r Reader) error {
	n, err := ReadVarint(r)
	if err != nil {
		return err
	}
	f.Size = n
	return nil
}

// GroupDrop reports a publisher-side group failure on the Subscribe stream.
type GroupDrop struct {
	Sequence uint64
	Count    uint64
	Code     uint32
}

func (d GroupDrop) Encode(buf []byte) []byte {
	buf = AppendVarint(buf, d.Sequence)
	buf = AppendVarint(buf, d.Count)
	buf = AppendVarint(buf, uint64(d.Code))
	return buf
}

func (d *GroupDrop) Decode(r Reader) error {
	var err error
	if d.Sequence, err = ReadVarint(r); err != nil {
		return err
	}
	if d.Count, err = ReadVarint(r); err != nil {
		return err
	}
	code, err := ReadVarint(r)
	if err != nil {
		return err
	}
	d.Code = uint32(code)
	return nil
}
