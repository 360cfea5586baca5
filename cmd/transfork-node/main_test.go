package main

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type mockServer struct {
	listenCalled   chan struct{}
	shutdownCalled chan struct{}
	listenErr      error
}

func newMockServer(listenErr error) *mockServer {
	return &mockServer{
		listenCalled:   make(chan struct{}),
		shutdownCalled: make(chan struct{}),
		listenErr:      listenErr,
	}
}

func (m *mockServer) ListenAndServe() error {
	close(m.listenCalled)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.shutdownCalled
	return nil
}

func (m *mockServer) Shutdown(_ context.Context) error {
	select {
	case <-m.shutdownCalled:
	default:
		close(m.shutdownCalled)
	}
	return nil
}

func TestServeComponents_ShutdownOnContextCancel(t *testing.T) {
	nodeMock := newMockServer(nil)
	httpMock := newMockServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serveComponents(ctx, nodeMock, httpMock, time.Second)

	<-nodeMock.listenCalled
	<-httpMock.listenCalled

	cancel()

	select {
	case <-nodeMock.shutdownCalled:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("node shutdown was not called")
	}

	select {
	case <-httpMock.shutdownCalled:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("http shutdown was not called")
	}
}

func TestServeComponents_IgnoresImmediateListenError(t *testing.T) {
	nodeMock := newMockServer(fmt.Errorf("listen failed"))
	httpMock := newMockServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serveComponents(ctx, nodeMock, httpMock, time.Second)

	<-nodeMock.listenCalled
	<-httpMock.listenCalled

	cancel()

	select {
	case <-httpMock.shutdownCalled:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("http shutdown was not called after context cancel")
	}
}
