package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpmon/mcpmon/internal/config"
	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/health"
	"github.com/mcpmon/mcpmon/internal/httpserver"
	"github.com/mcpmon/mcpmon/internal/httpserver/deps"
	"github.com/mcpmon/mcpmon/internal/integrations/ollama"
	"github.com/mcpmon/mcpmon/internal/logger"
	"github.com/mcpmon/mcpmon/internal/metrics"
	"github.com/mcpmon/mcpmon/internal/registry"
	"github.com/mcpmon/mcpmon/internal/sources/seed"
	"github.com/mcpmon/mcpmon/internal/version"
	"github.com/mcpmon/mcpmon/internal/ws"
)

type App struct {
	cfg        *config.Config
	logger     logger.Logger
	server     *httpserver.Server
	store      *registry.Store
	bus        *eventbus.Bus
	monitor    *health.Monitor
	aggregator *metrics.Aggregator
	assistant  *ollama.Client
	hub        *ws.Hub
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Private Prometheus registry so tests can run many apps side by side.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := registry.NewStore()
	bus := eventbus.New(loggerClient, promRegistry)

	prober := health.NewHTTPProber(cfg.ProbeTimeout)
	monitor := health.NewMonitor(store, bus, prober, loggerClient,
		cfg.ProbeInterval, cfg.RestartDelay)

	aggregator := metrics.NewAggregator(store, bus, loggerClient,
		cfg.MetricsInterval, promRegistry)

	assistant := ollama.New(cfg.OllamaURL, cfg.OllamaModel,
		cfg.OllamaTimeout, cfg.OllamaCheckInterval, loggerClient)

	hub := ws.NewHub(bus, loggerClient)

	// Seed well-known services before the first sweep.
	if cfg.SeedFile != "" {
		loggerClient.Info("loading seed file", logger.String("file", cfg.SeedFile))
		configs, err := seed.NewLoader(cfg.SeedFile).Load()
		if err != nil {
			loggerClient.Errorf("Failed to load seed file: %v", err)
			os.Exit(1)
		}
		for _, sc := range configs {
			svc, err := store.Register(sc)
			if err != nil {
				loggerClient.Errorf("Failed to register seeded service %q: %v", sc.Name, err)
				os.Exit(1)
			}
			loggerClient.Info("seeded service",
				logger.String("service_id", svc.ID),
				logger.String("name", svc.Name))
		}
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		TrustProxy:       cfg.TrustProxy,
		RateBurst:        cfg.RateBurst,
		RateRefillPerMin: cfg.RateRefillPerMin,
		Store:            store,
		Bus:              bus,
		Monitor:          monitor,
		Tester:           prober,
		Assistant:        assistant,
		WSHandler:        hub,
		PromHTTP: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{
			Registry: promRegistry,
		}),
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:        cfg,
		logger:     loggerClient,
		server:     server,
		store:      store,
		bus:        bus,
		monitor:    monitor,
		aggregator: aggregator,
		assistant:  assistant,
		hub:        hub,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting mcpmon v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("mcpmon %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the health monitor (runs an immediate sweep)
	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	a.logger.Info("health monitor started",
		logger.Duration("interval", a.cfg.ProbeInterval))

	// Start the metrics aggregator
	if err := a.aggregator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics aggregator: %w", err)
	}
	a.logger.Info("metrics aggregator started",
		logger.Duration("interval", a.cfg.MetricsInterval))

	// Start the assistant backend watcher
	if err := a.assistant.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ollama watcher: %w", err)
	}

	// Bridge the event bus onto websocket clients
	go a.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.monitor.Stop()
	a.aggregator.Stop()
	a.assistant.Stop()
	a.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.logger.Sync(); err != nil {
		// Sync on stderr is expected to fail on some platforms; ignore.
		_ = err
	}

	return nil
}
