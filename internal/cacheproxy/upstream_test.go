package cacheproxy

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aneeshsharma72067/proxy-server-with-cache/internal/cacheproxy/request"
)

// startFakeOrigin listens on an ephemeral loopback port, accepts a single
// connection, reads the request up to the blank line, and writes back a
// fixed response.
func startFakeOrigin(t *testing.T, response string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte(response))
	}()

	return ln.Addr().String()
}

func TestUpstreamClient_FetchStreamsAndCaptures(t *testing.T) {
	addr := startFakeOrigin(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.UpstreamTimeout = 2 * time.Second
	client := NewUpstreamClient(cfg)

	req := request.New()
	require.NoError(t, req.Parse([]byte("GET / HTTP/1.1\r\nHost: " + host + "\r\n\r\n")))
	req.Port = port

	var sink bytes.Buffer
	body, complete, err := client.Fetch(context.Background(), req, &sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, sink.Bytes(), body)
	assert.Contains(t, string(body), "hello")
}

func TestUpstreamClient_FetchConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpstreamTimeout = 200 * time.Millisecond
	client := NewUpstreamClient(cfg)

	req := request.New()
	require.NoError(t, req.Parse([]byte("GET / HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n")))
	req.Port = "1" // nothing listens on port 1

	var sink bytes.Buffer
	_, _, err := client.Fetch(context.Background(), req, &sink)
	assert.Error(t, err)
}
