package main

import "testing"

func TestPeerRegistry_RegisterAndDeregister(t *testing.T) {
	r := newPeerRegistry()

	id := r.register("127.0.0.1:5000", nil, nil)
	if id == "" {
		t.Fatal("expected non-empty peer id")
	}
	if r.count() != 1 {
		t.Fatalf("count() = %d, want 1", r.count())
	}

	peers := r.list()
	if len(peers) != 1 || peers[0].ID != id {
		t.Fatalf("list() = %+v, want one entry with id %s", peers, id)
	}

	r.deregister(id)
	if r.count() != 0 {
		t.Fatalf("count() after deregister = %d, want 0", r.count())
	}
}

func TestPeerRegistry_MultiplePeers(t *testing.T) {
	r := newPeerRegistry()

	a := r.register("10.0.0.1:1", nil, nil)
	b := r.register("10.0.0.2:2", nil, nil)

	if r.count() != 2 {
		t.Fatalf("count() = %d, want 2", r.count())
	}

	r.deregister(a)
	if r.count() != 1 {
		t.Fatalf("count() after deregistering one = %d, want 1", r.count())
	}

	peers := r.list()
	if len(peers) != 1 || peers[0].ID != b {
		t.Fatalf("list() = %+v, want only %s", peers, b)
	}
}

func TestPeerRegistry_DeregisterUnknown(t *testing.T) {
	r := newPeerRegistry()
	r.deregister("does-not-exist")
	if r.count() != 0 {
		t.Fatalf("count() = %d, want 0", r.count())
	}
}
