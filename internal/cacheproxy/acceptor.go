package cacheproxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Acceptor runs the listener's accept loop, gating the number of
// connections being actively served at any moment with a weighted
// semaphore rather than letting an unbounded burst of clients spawn an
// unbounded number of goroutines.
type Acceptor struct {
	listener net.Listener
	handler  *Handler
	logger   *zap.Logger

	gate *semaphore.Weighted

	wg sync.WaitGroup
}

// NewAcceptor wraps listener with a concurrency gate sized to
// cfg.MaxClients.
func NewAcceptor(listener net.Listener, handler *Handler, cfg *Config, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		listener: listener,
		handler:  handler,
		logger:   logger,
		gate:     semaphore.NewWeighted(int64(cfg.MaxClients)),
	}
}

// Serve runs the accept loop until ctx is canceled or Accept returns an
// error. Any Accept error not caused by cancellation ends the loop and is
// returned. It blocks until every in-flight connection's handler
// goroutine has returned.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			a.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if err := a.gate.Acquire(ctx, 1); err != nil {
			_ = conn.Close()
			a.wg.Wait()
			return nil
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.gate.Release(1)
			a.handler.Handle(ctx, conn)
		}()
	}
}

// Listen opens a TCP listener on port with SO_REUSEADDR set, so a
// restarted proxy doesn't have to wait out TIME_WAIT on its old socket —
// the original server.c set this same option on its listening socket.
// net.ListenConfig.Control is the standard library's hook for per-socket
// options; no third-party package in the example pack offers one.
func Listen(ctx context.Context, port string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}
	return lc.Listen(ctx, "tcp", net.JoinHostPort("", port))
}
