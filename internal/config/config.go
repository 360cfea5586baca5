// Package config loads the node's YAML configuration file, decoding it into
// a nested structure that mirrors the file's own layout before copying it
// into a flatter, typed Config the rest of cmd/transfork-node consumes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the typed, flattened configuration cmd/transfork-node runs on.
type Config struct {
	Address     string
	CertFile    string
	KeyFile     string
	MetricsAddr string
	AdminAddr   string

	Node       NodeConfig
	Trace      TraceConfig
	Role       string // "publisher", "subscriber", "both" (default), "any"
	Transport  string // "quic" (default) or "webtransport"
	Broadcasts []Broadcast
}

// NodeConfig names the node and bounds how much local state it holds.
type NodeConfig struct {
	NodeID        string
	Region        string
	GroupCapacity int
	FrameCapacity int
}

// TraceConfig configures observability.Setup.
type TraceConfig struct {
	ServiceName string
	Endpoint    string // OTLP/gRPC collector address; empty disables tracing
	Metrics     bool
}

// Broadcast describes one statically-published local broadcast to seed the
// node's publisher with at startup.
type Broadcast struct {
	Name   string
	Tracks []string
}

// Load opens filename, decodes it as YAML into the file's own nested shape,
// applies defaults, and returns the flattened Config.
func Load(filename string) (*Config, error) {
	type yamlConfig struct {
		Server struct {
			Address  string `yaml:"address"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"server"`
		Metrics struct {
			Address string `yaml:"address"`
		} `yaml:"metrics"`
		Admin struct {
			Address string `yaml:"address"`
		} `yaml:"admin"`
		Node struct {
			ID            string `yaml:"id"`
			Region        string `yaml:"region"`
			GroupCapacity int    `yaml:"group_capacity"`
			FrameCapacity int    `yaml:"frame_capacity"`
			Role          string `yaml:"role"`
			Transport     string `yaml:"transport"`
		} `yaml:"node"`
		Trace *struct {
			Service string `yaml:"service"`
			Address string `yaml:"address"`
			Metrics bool   `yaml:"metrics"`
		} `yaml:"trace"`
		Broadcasts []struct {
			Name   string   `yaml:"name"`
			Tracks []string `yaml:"tracks"`
		} `yaml:"broadcasts"`
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", filename, err)
	}
	defer file.Close()

	var y yamlConfig
	if err := yaml.NewDecoder(file).Decode(&y); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", filename, err)
	}

	if y.Node.FrameCapacity == 0 {
		y.Node.FrameCapacity = 1500
	}
	if y.Node.GroupCapacity == 0 {
		y.Node.GroupCapacity = 100
	}
	if y.Node.Role == "" {
		y.Node.Role = "both"
	}
	if y.Node.Transport == "" {
		y.Node.Transport = "quic"
	}

	cfg := &Config{
		Address:     y.Server.Address,
		CertFile:    y.Server.CertFile,
		KeyFile:     y.Server.KeyFile,
		MetricsAddr: y.Metrics.Address,
		AdminAddr:   y.Admin.Address,
		Role:        y.Node.Role,
		Transport:   y.Node.Transport,
		Node: NodeConfig{
			NodeID:        y.Node.ID,
			Region:        y.Node.Region,
			GroupCapacity: y.Node.GroupCapacity,
			FrameCapacity: y.Node.FrameCapacity,
		},
	}

	if y.Trace != nil {
		cfg.Trace = TraceConfig{
			ServiceName: y.Trace.Service,
			Endpoint:    y.Trace.Address,
			Metrics:     y.Trace.Metrics,
		}
	}

	for _, b := range y.Broadcasts {
		cfg.Broadcasts = append(cfg.Broadcasts, Broadcast{Name: b.Name, Tracks: b.Tracks})
	}

	return cfg, nil
}

// ShutdownTimeout bounds the graceful shutdown of the node and its admin
// HTTP server. The node's own Shutdown closes its listener and does not wait
// for open sessions.
const ShutdownTimeout = 10 * time.Second
