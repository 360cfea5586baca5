package main

import (
	"crypto/tls"
	"fmt"
)

// setupTLS loads the node's certificate and advertises the ALPN values this
// node's transport mode needs: "moq-00" for raw QUIC sessions, "h3" for
// browser-reachable WebTransport sessions.
func setupTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h3", "moq-00"},
	}, nil
}
