package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quadrant-labs/transfork/publisher"
	"github.com/quadrant-labs/transfork/subscriber"
)

// peerInfo holds metadata about one connected peer session.
type peerInfo struct {
	ID          string    `json:"peer_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`

	pub *publisher.Publisher
	sub *subscriber.Subscriber
}

// peerRegistry tracks connected peers in a thread-safe manner, the way a
// reverse-proxy style relay needs to in order to report /health and drive
// an admin listing.
type peerRegistry struct {
	mu    sync.RWMutex
	peers map[string]*peerInfo
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{peers: make(map[string]*peerInfo)}
}

// register adds a peer and returns its generated ID.
func (r *peerRegistry) register(remoteAddr string, pub *publisher.Publisher, sub *subscriber.Subscriber) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = &peerInfo{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		pub:         pub,
		sub:         sub,
	}
	return id
}

// deregister removes a peer by its ID.
func (r *peerRegistry) deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// list returns a snapshot of all currently connected peers, without the
// unexported session handles.
func (r *peerRegistry) list() []peerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]peerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, peerInfo{ID: p.ID, RemoteAddr: p.RemoteAddr, ConnectedAt: p.ConnectedAt})
	}
	return peers
}

// count returns the number of currently connected peers.
func (r *peerRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
