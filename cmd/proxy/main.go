// Command proxy starts the forward HTTP caching proxy. Its command line
// contract is deliberately narrow — a single positional port argument,
// unchanged from the original server's argc==2 check — with every other
// tunable left to $PROXY_CONFIG.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aneeshsharma72067/proxy-server-with-cache/internal/cacheproxy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy <port>",
		Short: "Forward HTTP proxy with a size-bounded response cache",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return nil
			}
			fmt.Println("Too few arguements")
			os.Exit(1)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	return cmd
}

func run(port string) error {
	cfg, err := cacheproxy.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := cacheproxy.NewLogger(os.Getenv("PROXY_DEBUG") == "1")
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	metrics := cacheproxy.NewMetrics(cfg.EnableMetrics)
	cache := cacheproxy.NewCache(cfg, metrics)
	detector := cacheproxy.NewDetector()
	upstream := cacheproxy.NewUpstreamClient(cfg)
	handler := cacheproxy.NewHandler(cfg, cache, upstream, detector, metrics, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	listener, err := cacheproxy.Listen(ctx, port)
	if err != nil {
		logger.Fatal("listening failed", zap.String("port", port), zap.Error(err))
	}

	logger.Info("proxy listening",
		zap.String("port", port),
		zap.Int64("max_entry_bytes", cfg.MaxEntryBytes),
		zap.Int64("max_total_bytes", cfg.MaxTotalBytes),
		zap.Int("max_clients", cfg.MaxClients),
	)

	if cfg.EnableMetrics && cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.Collector(cache))
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	acceptor := cacheproxy.NewAcceptor(listener, handler, cfg, logger)
	if err := acceptor.Serve(ctx); err != nil {
		logger.Error("accept loop exited", zap.Error(err))
		return err
	}

	logger.Info("proxy shut down")
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", zap.Error(err))
	}
}
