// Command transfork-node runs a standalone MoQ-Transfork session endpoint:
// it accepts sessions over QUIC or WebTransport, serves a demo broadcast,
// logs peer announces, and exposes /health and /metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quadrant-labs/transfork/internal/config"
	"github.com/quadrant-labs/transfork/internal/version"
	"github.com/quadrant-labs/transfork/observability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("transfork-node", flag.ExitOnError)
	configFile := fs.String("config", "config.node.yaml", "path to config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Println(version.Full())
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tlsConfig, err := setupTLS(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("setup TLS: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := observability.Setup(ctx, observability.Config{
		Service:   cfg.Trace.ServiceName,
		TraceAddr: cfg.Trace.Endpoint,
		Metrics:   cfg.Trace.Metrics,
	}); err != nil {
		return fmt.Errorf("setup observability: %w", err)
	}
	defer observability.Shutdown(context.Background())

	node := NewNode(cfg, tlsConfig)

	mux := http.NewServeMux()
	mux.Handle("/health", node.status)
	mux.Handle("/metrics", promhttp.Handler())

	adminAddr := cfg.AdminAddr
	if adminAddr == "" {
		adminAddr = cfg.MetricsAddr
	}
	httpServer := &http.Server{Addr: adminAddr, Handler: mux}

	serveComponents(ctx, node, httpServer, config.ShutdownTimeout)
	return nil
}

// serverRunner is the minimal interface implemented by both *Node and
// *http.Server, so the run/shutdown flow can be unit-tested with fakes.
type serverRunner interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// serveComponents starts the node's session listener and its admin HTTP
// server, then blocks until ctx is cancelled before shutting both down.
// ListenAndServe errors are logged but do not abort the shutdown sequence.
func serveComponents(ctx context.Context, nodeSrv serverRunner, httpSrv serverRunner, shutdownTimeout time.Duration) {
	go func() {
		if err := nodeSrv.ListenAndServe(); err != nil {
			log.Printf("node server error: %v", err)
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			log.Printf("admin http server error: %v", err)
		}
	}()

	log.Println("transfork-node started")
	log.Println("  session endpoint on the configured transport")
	log.Println("  /health  - liveness/readiness (?probe=live|ready)")
	log.Println("  /metrics - Prometheus metrics")

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := nodeSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("node shutdown error: %v", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin http shutdown error: %v", err)
	}

	slog.Info("shutdown complete")
}
