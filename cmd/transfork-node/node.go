package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	transfork "github.com/quadrant-labs/transfork"
	"github.com/quadrant-labs/transfork/internal/config"
	"github.com/quadrant-labs/transfork/model"
	"github.com/quadrant-labs/transfork/observability"
	"github.com/quadrant-labs/transfork/publisher"
	"github.com/quadrant-labs/transfork/session"
	"github.com/quadrant-labs/transfork/subscriber"
	"github.com/quadrant-labs/transfork/transport"
	"github.com/quadrant-labs/transfork/transport/quictransport"
	"github.com/quadrant-labs/transfork/transport/wtransport"
)

// Node wires the session engine (handshake, publisher, subscriber) onto a
// real transport and serves both the MoQ endpoint and the node's ambient
// HTTP surface (/health, /metrics).
type Node struct {
	cfg       *config.Config
	tlsConfig *tls.Config
	role      transfork.Role

	status   *statusHandler
	peers    *peerRegistry
	demo     *demoBroadcast
	recorder *observability.Recorder

	staticBroadcasts []*model.BroadcastReader

	mu       sync.Mutex
	listener *quic.Listener
	h3Server *http3.Server
}

// NewNode builds a node ready to ListenAndServe.
func NewNode(cfg *config.Config, tlsConfig *tls.Config) *Node {
	n := &Node{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		role:      parseRole(cfg.Role),
		status:    newStatusHandler(),
		peers:     newPeerRegistry(),
		demo:      newDemoBroadcast(),
		recorder:  observability.NewRecorder("session"),
	}
	for _, b := range cfg.Broadcasts {
		bw, br := model.NewBroadcast(b.Name).Produce()
		for _, name := range b.Tracks {
			_, tr := model.NewTrack(b.Name, name).Build().Produce()
			if err := bw.Insert(tr); err != nil {
				panic(err)
			}
		}
		n.staticBroadcasts = append(n.staticBroadcasts, br)
	}
	return n
}

func parseRole(s string) transfork.Role {
	switch s {
	case "publisher":
		return transfork.RolePublisher
	case "subscriber":
		return transfork.RoleSubscriber
	case "any":
		return transfork.RoleAny
	default:
		return transfork.RoleBoth
	}
}

// ListenAndServe starts accepting sessions on the configured transport and
// blocks until the listener is closed by Shutdown. It satisfies the
// serverRunner shape serveComponents drives.
func (n *Node) ListenAndServe() error {
	ctx := context.Background()
	go n.demo.run(ctx, time.Second)

	switch n.cfg.Transport {
	case "webtransport":
		return n.listenWebTransport(ctx)
	default:
		return n.listenQUIC(ctx)
	}
}

func (n *Node) listenQUIC(ctx context.Context) error {
	ln, err := quic.ListenAddr(n.cfg.Address, n.tlsConfig, &quic.Config{EnableDatagrams: true})
	if err != nil {
		return fmt.Errorf("listen quic: %w", err)
	}

	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		sess := quictransport.New(conn)
		go n.handleSession(ctx, sess, conn.RemoteAddr().String())
	}
}

func (n *Node) listenWebTransport(ctx context.Context) error {
	h3Server := &http3.Server{Handler: http.DefaultServeMux}
	webtransport.ConfigureHTTP3Server(h3Server)

	wtServer := &webtransport.Server{
		H3:          h3Server,
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		wtSess, err := wtServer.Upgrade(w, r)
		if err != nil {
			slog.Error("webtransport upgrade failed", "err", err)
			return
		}
		sess := wtransport.New(wtSess)
		n.handleSession(ctx, sess, r.RemoteAddr)
	})
	h3Server.Handler = mux

	n.mu.Lock()
	n.h3Server = h3Server
	n.mu.Unlock()

	conn, err := net.ListenPacket("udp", n.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen webtransport: %w", err)
	}
	return h3Server.Serve(conn)
}

// Shutdown closes whichever listener is active.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	ln := n.listener
	h3 := n.h3Server
	n.mu.Unlock()

	if ln != nil {
		return ln.Close()
	}
	if h3 != nil {
		return h3.Close()
	}
	return nil
}

// handleSession runs the handshake and the publisher/subscriber engines for
// one accepted session until it terminates.
func (n *Node) handleSession(ctx context.Context, sess transport.Session, remoteAddr string) {
	ctx, span := observability.Start(ctx, "node.session")
	defer span.End()

	nodeID, region := n.cfg.Node.NodeID, n.cfg.Node.Region

	hs, err := session.Accept(ctx, sess, n.role)
	if err != nil {
		slog.Error("handshake failed", "remote", remoteAddr, "node_id", nodeID, "region", region, "err", err)
		span.Error(err, "handshake failed")
		return
	}
	slog.Info("session established", "remote", remoteAddr, "node_id", nodeID, "region", region, "role", hs.Role.String())

	pub := publisher.New(sess)
	sub := subscriber.New(sess)
	sub.FrameCapacity = uint64(n.cfg.Node.FrameCapacity)
	sub.GroupCapacity = n.cfg.Node.GroupCapacity

	id := n.peers.register(remoteAddr, pub, sub)
	n.status.incrementSessions()
	defer func() {
		n.peers.deregister(id)
		n.status.decrementSessions()
	}()

	if hs.Role.IsPublisher() {
		go func() {
			if err := pub.Announce(ctx, n.demo.reader); err != nil {
				slog.Debug("demo announce ended", "remote", remoteAddr, "err", err)
			}
		}()
		for _, br := range n.staticBroadcasts {
			go func(br *model.BroadcastReader) {
				if err := pub.Announce(ctx, br); err != nil {
					slog.Debug("static announce ended", "remote", remoteAddr, "broadcast", br.Name, "err", err)
				}
			}(br)
		}
	}

	if hs.Role.IsSubscriber() {
		go n.drainAnnounced(ctx, sub, remoteAddr, nodeID, region)
	}

	if err := session.Run(ctx, sess, pub, sub, sub); err != nil {
		slog.Info("session ended", "remote", remoteAddr, "node_id", nodeID, "region", region, "err", err)
	}
}

// drainAnnounced logs every broadcast the peer announces on an Announce
// stream for the lifetime of the session.
func (n *Node) drainAnnounced(ctx context.Context, sub *subscriber.Subscriber, remoteAddr, nodeID, region string) {
	n.status.incrementSubscribers()
	n.recorder.IncSubscribers()
	defer n.status.decrementSubscribers()
	defer n.recorder.DecSubscribers()

	for {
		reader := sub.Announced(ctx)
		if reader == nil {
			return
		}
		slog.Info("peer announced broadcast", "remote", remoteAddr, "node_id", nodeID, "region", region, "broadcast", reader.Name)
	}
}
