package cacheproxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aneeshsharma72067/proxy-server-with-cache/internal/cacheproxy/request"
)

// clientReadBufferBytes bounds how much of a request line and headers the
// Request Handler will buffer before giving up, matching the fixed 4 KiB
// read buffer spec.md §4.3 describes for the Reading state.
const clientReadBufferBytes = 4096

// Handler runs the per-connection state machine: Reading, Dispatch, and
// one of ReplayCached, Forwarding, or ErrorOut, always ending in Done.
type Handler struct {
	cfg      *Config
	cache    *Cache
	upstream *UpstreamClient
	detector *Detector
	metrics  *Metrics
	logger   *zap.Logger
}

// NewHandler wires the Request Handler's collaborators.
func NewHandler(cfg *Config, cache *Cache, upstream *UpstreamClient, detector *Detector, metrics *Metrics, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, cache: cache, upstream: upstream, detector: detector, metrics: metrics, logger: logger}
}

// Handle runs one connection's full lifecycle to completion. It always
// closes conn on every exit path, a panic included (the close is
// deferred); the Acceptor's goroutine does not recover panics.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	log := h.logger.With(
		zap.String("conn_id", connID),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	raw, err := h.readRequest(conn)
	if err != nil {
		log.Debug("reading state closed without a request", zap.Error(err))
		return
	}

	fingerprint := NewFingerprint(raw)

	if entry, hit := h.cache.Find(fingerprint); hit {
		log.Info("cache hit")
		h.replay(conn, entry, log)
		return
	}

	req := request.New()
	defer req.Close()

	if err := req.Parse(raw); err != nil {
		// ParseFailed: spec.md §7 calls for logging and closing without
		// a response.
		log.Warn("request parse failed", zap.Error(err))
		return
	}

	if req.Method != "GET" {
		// MethodUnsupported: close without a response (spec.md §7,
		// resolving the Open Question on non-GET methods).
		log.Info("unsupported method, closing without response", zap.String("method", req.Method))
		return
	}

	if req.Host == "" || !req.IsSupportedVersion() {
		// RequestInvalid: missing host or an unsupported HTTP version.
		log.Warn("invalid request", zap.String("host", req.Host), zap.String("version", req.Version))
		h.writeErrorAndLog(conn, 500, log)
		return
	}

	h.handleForwarding(ctx, conn, req, fingerprint, log)
}

// readRequest reads up to clientReadBufferBytes from conn looking for the
// blank-line header terminator, returning the raw bytes through (and
// including) that terminator. This raw slice, unparsed, is the cache
// fingerprint.
func (h *Handler) readRequest(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.cfg.ClientReadTimeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	buf := make([]byte, clientReadBufferBytes)
	total := 0

	for {
		n, err := conn.Read(buf[total:])
		total += n

		if idx := bytes.Index(buf[:total], []byte("\r\n\r\n")); idx != -1 {
			return buf[:idx+4], nil
		}

		if err != nil {
			return nil, fmt.Errorf("reading request: %w", err)
		}
		if total >= len(buf) {
			return nil, fmt.Errorf("reading request: no header terminator within %d bytes", clientReadBufferBytes)
		}
	}
}

// replay writes a cached entry's captured bytes back to the client
// verbatim, with no re-validation — the ReplayCached state.
func (h *Handler) replay(conn net.Conn, entry Entry, log *zap.Logger) {
	if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.ClientWriteTimeout)); err != nil {
		log.Warn("setting write deadline for replay", zap.Error(err))
		return
	}
	if _, err := conn.Write(entry.Body); err != nil {
		log.Warn("replay write failed", zap.Error(err))
	}
}

// handleForwarding runs the Forwarding state: fetch from upstream while
// streaming to the client, then admit the captured response to the cache
// if (and only if) it was read in full.
func (h *Handler) handleForwarding(ctx context.Context, conn net.Conn, req *request.Request, fingerprint Fingerprint, log *zap.Logger) {
	fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
	defer cancel()

	body, complete, err := h.upstream.Fetch(fetchCtx, req, conn)
	if err != nil {
		log.Warn("upstream fetch failed", zap.Error(err))
		if errors.Is(err, ErrClientWrite) {
			// The client is the one that's gone; there is no socket
			// left to put a 500 on, so just close.
			return
		}
		h.writeErrorAndLog(conn, 500, log)
		return
	}

	if !complete {
		// Bytes already reached the client before upstream failed;
		// nothing left to send, and a truncated body must not be
		// cached.
		log.Warn("upstream stream truncated, not caching")
		return
	}

	if result := h.cache.Add(fingerprint, body); result == RejectedTooLarge {
		log.Debug("response too large to cache")
	}

	if status, headers, ok := parseResponsePreamble(body); ok {
		h.metrics.RecordClassification(h.detector.Classify(status, headers).Label())
	}
}

func (h *Handler) writeErrorAndLog(conn net.Conn, code int, log *zap.Logger) {
	if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.ClientWriteTimeout)); err != nil {
		log.Warn("setting write deadline for error response", zap.Error(err))
		return
	}
	if err := writeErrorResponse(conn, code); err != nil {
		log.Warn("writing error response failed", zap.Error(err))
	}
}

// parseResponsePreamble extracts the status code and headers from a
// captured response's status line and header block, for the Content
// Classifier's benefit only. A response that doesn't parse as HTTP still
// gets cached (spec.md never requires the cache to understand its
// payload) but contributes no classification metric.
func parseResponsePreamble(body []byte) (int, http.Header, bool) {
	reader := bufio.NewReader(bytes.NewReader(body))
	tp := textproto.NewReader(reader)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return 0, nil, false
	}

	fields := bytes.Fields([]byte(statusLine))
	if len(fields) < 2 {
		return 0, nil, false
	}
	status, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0, nil, false
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && len(mimeHeader) == 0 {
		return status, http.Header{}, true
	}
	return status, http.Header(mimeHeader), true
}
