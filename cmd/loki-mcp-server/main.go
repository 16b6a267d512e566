// Command loki-mcp-server runs the Loki MCP server: it loads layered
// configuration, wires the Loki client and per-request pipeline, registers
// the fixed tool catalog, and serves the composed HTTP surface described
// in SPEC_FULL.md §5.10.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lokimcp/loki-mcp-server/internal/config"
	"github.com/lokimcp/loki-mcp-server/internal/fpcache"
	"github.com/lokimcp/loki-mcp-server/internal/guardrail"
	"github.com/lokimcp/loki-mcp-server/internal/httpapi"
	"github.com/lokimcp/loki-mcp-server/internal/lokiclient"
	"github.com/lokimcp/loki-mcp-server/internal/metrics"
	"github.com/lokimcp/loki-mcp-server/internal/orchestrator"
	"github.com/lokimcp/loki-mcp-server/internal/ratelimit"
	"github.com/lokimcp/loki-mcp-server/internal/ring"
	"github.com/lokimcp/loki-mcp-server/internal/timeref"
	"github.com/lokimcp/loki-mcp-server/internal/tools"
)

// version returns the binary's build version, populated by the
// runtime/debug package from git information in the build directory.
var version = sync.OnceValue(func() string {
	v := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok {
		v = bi.Main.Version
	}
	return v
})

const defaultShutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath  string
		listen      string
		lokiURL     string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to the TOML configuration file")
	flag.StringVar(&listen, "listen", "", "Override the [server].listen address, e.g. :8080")
	flag.StringVar(&lokiURL, "loki-url", "", "Override the [loki].url base address")
	flag.StringVar(&logLevel, "log-level", "", "Override the [server].log_level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if lokiURL != "" {
		cfg.Loki.URL = lokiURL
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)})))

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	o, err := buildOrchestrator(cfg)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	mcpServer := server.NewMCPServer("loki-mcp-server", version())
	tools.Register(mcpServer, o, httpapi.IdentityFromContext, httpapi.RequestIDFromContext)

	api := httpapi.New(cfg, o, mcpServer)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: api.Handler,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting loki-mcp-server", "version", version(), "listen", cfg.Server.Listen, "mcp_endpoint", cfg.Server.MCPEndpointPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		slog.Warn("received signal, shutting down", "signal", sig)
		cancel()
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()

	slog.Info("shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// buildOrchestrator wires the Loki client and every per-request pipeline
// component from cfg, matching the composition internal/tools expects.
func buildOrchestrator(cfg config.Config) (*orchestrator.Orchestrator, error) {
	var tlsConfig *lokiclient.TLSConfig
	if cfg.Loki.TLSCertFile != "" || cfg.Loki.TLSKeyFile != "" || cfg.Loki.CACertFile != "" || cfg.Loki.SkipVerify {
		tlsConfig = &lokiclient.TLSConfig{
			CertFile:   cfg.Loki.TLSCertFile,
			KeyFile:    cfg.Loki.TLSKeyFile,
			CAFile:     cfg.Loki.CACertFile,
			SkipVerify: cfg.Loki.SkipVerify,
		}
	}
	transport, err := tlsConfig.HTTPTransport(http.DefaultTransport.(*http.Transport))
	if err != nil {
		return nil, fmt.Errorf("building Loki TLS transport: %w", err)
	}

	loki, err := lokiclient.New(lokiclient.Config{
		BaseURL:   cfg.Loki.URL,
		TenantID:  cfg.Loki.TenantID,
		Auth:      lokiclient.AuthType(cfg.Loki.AuthType),
		Username:  cfg.Loki.Username,
		Password:  cfg.Loki.Password,
		Token:     cfg.Loki.Token,
		Transport: transport,
		Timeout:   cfg.LokiTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating Loki client: %w", err)
	}

	return &orchestrator.Orchestrator{
		Loki:         loki,
		TimeResolver: timeref.NewResolver(cfg.Server.Timezone),
		Guardrail: guardrail.NewEvaluator(guardrail.Config{
			MaxBytesScanned:      cfg.Guardrails.MaxBytesScanned,
			MaxStreams:           cfg.Guardrails.MaxStreams,
			SkipTools:            toSet(cfg.Guardrails.SkipTools),
			DisablePrecheckTools: toSet(cfg.Guardrails.DisablePrecheckTools),
		}),
		RateLimiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
			PerToolRPS:   cfg.RateLimit.PerTool,
			IdleEvict:    cfg.RateLimitIdleEvict(),
		}),
		Cache:         fpcache.New(cfg.Cache.Capacity, cfg.CacheTTL()),
		Ring:          ring.New(cfg.RecentActions.Capacity),
		Metrics:       metrics.New(cfg.Metrics.Prefix),
		DefaultWindow: cfg.DefaultWindow(),
		MaxWindow:     cfg.MaxWindow(),
		CacheRounding: cfg.CacheRounding(),
	}, nil
}

// toSet converts a TOML string list into the set form guardrail.Config
// expects.
func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
