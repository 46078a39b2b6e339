package cacheproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcceptor_ServeHandlesConnectionsAndStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxClients = 2
	cfg.ClientReadTimeout = 500 * time.Millisecond

	h := testHandler(t, nil)
	acceptor := NewAcceptor(ln, h, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- acceptor.Serve(ctx)
	}()

	// Dial a few connections that will fail to produce a well-formed
	// request and so close without a response, exercising the gate's
	// acquire/release cycle without needing a real upstream.
	for i := 0; i < 5; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		conn.Write([]byte("garbage\r\n\r\n"))
		conn.Close()
	}

	cancel()

	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
