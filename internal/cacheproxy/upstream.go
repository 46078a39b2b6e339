package cacheproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/aneeshsharma72067/proxy-server-with-cache/internal/cacheproxy/request"
)

// upstreamReadBufferBytes is spec.md §4.2's BUF_BYTES.
const upstreamReadBufferBytes = 4096

// Errors the Upstream Client surfaces to the Request Handler, matching
// the taxonomy in spec.md §4.2 and §7.
var (
	ErrResolutionFailed = errors.New("upstream: dns resolution failed")
	ErrConnectFailed    = errors.New("upstream: connect failed")
	ErrUpstreamRead     = errors.New("upstream: read failed before any bytes were delivered")
	ErrClientWrite      = errors.New("upstream: client write failed")
)

// UpstreamClient establishes a connection to an origin host:port,
// reconstructs the client's request, and streams the response back while
// capturing it for the Cache Store.
type UpstreamClient struct {
	dns     *dnsResolver
	timeout time.Duration
}

// NewUpstreamClient builds an UpstreamClient governed by cfg's DNS cache
// TTL and timeout.
func NewUpstreamClient(cfg *Config) *UpstreamClient {
	return &UpstreamClient{
		dns:     newDNSResolver(cfg.DNSCacheTTL),
		timeout: cfg.UpstreamTimeout,
	}
}

// Fetch resolves req.Host, dials the origin, writes the reconstructed
// request, and streams the response to client while capturing it.
//
// complete reports whether the full response was read to EOF. When the
// upstream connection fails mid-stream after some bytes already reached
// client, Fetch returns the partial capture with complete=false and a nil
// error — the exchange already delivered data to the client, so there is
// nothing left to report as an error, but the partial body must not be
// cached (see Handler.handleForwarding).
func (u *UpstreamClient) Fetch(ctx context.Context, req *request.Request, client io.Writer) (body []byte, complete bool, err error) {
	ip, err := u.dns.Resolve(ctx, req.Host)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}

	port := req.Port
	if port == "" {
		port = "80"
	}

	dialer := net.Dialer{Timeout: u.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), port))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()

	req.HeaderSet("Connection", "close")
	if _, ok := req.HeaderGet("Host"); !ok {
		req.HeaderSet("Host", req.Host)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(u.timeout)); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if _, err := conn.Write(req.Unparse()); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	return u.streamAndCapture(conn, client)
}

// streamAndCapture reads from upstream in BUF_BYTES chunks, forwarding
// each chunk to client and appending it to the capture buffer, until
// upstream signals EOF or an error.
func (u *UpstreamClient) streamAndCapture(upstream net.Conn, client io.Writer) (body []byte, complete bool, err error) {
	buf := make([]byte, upstreamReadBufferBytes)
	var captured []byte

	for {
		if dlErr := upstream.SetReadDeadline(time.Now().Add(u.timeout)); dlErr != nil {
			if len(captured) == 0 {
				return nil, false, fmt.Errorf("%w: %v", ErrUpstreamRead, dlErr)
			}
			return captured, false, nil
		}

		n, readErr := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, writeErr := client.Write(chunk); writeErr != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrClientWrite, writeErr)
			}
			captured = append(captured, chunk...)
		}

		if readErr != nil {
			if readErr == io.EOF {
				return captured, true, nil
			}
			if len(captured) == 0 {
				return nil, false, fmt.Errorf("%w: %v", ErrUpstreamRead, readErr)
			}
			// Bytes already reached the client; spec.md §7's
			// UpstreamReadError row calls for a 500 "only if no bytes
			// yet delivered to client", otherwise just close.
			return captured, false, nil
		}
	}
}
