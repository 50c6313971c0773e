// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the control frontend: a ROUTER socket for clients,
// a DEALER socket to the upstream service, and the validating router between
// them.
//
// Usage:
//
//	frontend [--log-level LEVEL] [upstream_addr] [bind_addr]
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
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/ctlproxy"
	"github.com/absmach/ctlproxy/examples/simple"
	"github.com/absmach/ctlproxy/pkg/breaker"
	"github.com/absmach/ctlproxy/pkg/correlator"
	"github.com/absmach/ctlproxy/pkg/health"
	"github.com/absmach/ctlproxy/pkg/metrics"
	"github.com/absmach/ctlproxy/pkg/router"
	"github.com/absmach/ctlproxy/pkg/schema"
	"github.com/absmach/ctlproxy/pkg/transport"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const svcName = "frontend"

func main() {
	dotenvErr := godotenv.Load()

	cfg, err := ctlproxy.NewConfig(env.Options{Prefix: ctlproxy.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()
	if args := flag.Args(); len(args) > 0 {
		cfg.UpstreamAddress = args[0]
		if len(args) > 1 {
			cfg.BindAddress = args[1]
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if dotenvErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error(fmt.Sprintf("%s service terminated with error: %s", svcName, err))
		os.Exit(1)
	}
	logger.Info(fmt.Sprintf("%s service stopped", svcName))
}

func run(cfg ctlproxy.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(svcName, reg)
	status := metrics.NewStatus(svcName, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Sockets live until every router has drained.
	sockCtx, closeSockets := context.WithCancel(context.Background())
	defer closeSockets()

	// An unreachable upstream is retried in the background and reported
	// through health checks.
	upstream := transport.DialDealer(sockCtx, cfg.UpstreamAddress, cfg.Identity, logger)
	defer upstream.Close()

	client, err := transport.ListenRouter(sockCtx, cfg.BindAddress)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("Starting control frontend",
		slog.String("upstream", cfg.UpstreamAddress),
		slog.String("bind", cfg.BindAddress),
		slog.String("identity", cfg.Identity),
		slog.Duration("reply_timeout", cfg.ReplyTimeout),
		slog.Int("max_inflight", cfg.MaxInflight))

	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.CircuitBreakerState.Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.Inc()
		}
	})

	schemas := schema.Default()
	if cfg.SchemaFile != "" {
		if schemas, err = schema.LoadFile(cfg.SchemaFile); err != nil {
			return err
		}
		logger.Info("Loaded schema file", slog.String("path", cfg.SchemaFile))
	}

	h := &InstrumentedHandler{
		handler:  simple.New(logger),
		metrics:  m,
		commands: schemas,
	}

	corr := correlator.New(upstream, logger)
	opts := []router.Option{
		router.WithSchemas(schemas),
		router.WithStatus(status),
		router.WithHandler(h),
		router.WithBreaker(cb),
	}
	newRouter := func(transportName string, sock transport.Socket) *router.Router {
		return router.New(router.Config{
			Name:            svcName,
			Transport:       transportName,
			ReplyTimeout:    cfg.ReplyTimeout,
			MaxInflight:     cfg.MaxInflight,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		}, sock, upstream, corr, opts...)
	}

	routers := []*router.Router{newRouter("zmq", client)}

	if cfg.WSAddress != "" {
		ws := transport.NewWebSocket(transport.WebSocketConfig{
			Address:         cfg.WSAddress,
			Path:            cfg.WSPath,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		})
		g.Go(func() error {
			return ws.Listen(ctx)
		})
		routers = append(routers, newRouter("ws", ws))
	}

	var serving sync.WaitGroup
	for _, r := range routers {
		serving.Add(1)
		g.Go(func() error {
			defer serving.Done()
			return r.Serve(ctx)
		})
	}

	corrCtx, stopCorr := context.WithCancel(context.Background())
	g.Go(func() error {
		// A failed upstream socket stops the process.
		return corr.Run(corrCtx)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-corrCtx.Done():
		}
		serving.Wait()
		stopCorr()
		return nil
	})

	inflight := func() int {
		n := 0
		for _, r := range routers {
			n += r.InflightCount()
		}
		return n
	}

	checker := health.NewChecker(10 * time.Second)
	checker.RegisterCritical("upstream_connection", health.ConnectionCheck(upstream.Connected))
	checker.RegisterCritical("upstream_circuit", health.BreakerCheck(cb))
	checker.Register("inflight", health.InflightCheck(inflight, cfg.MaxInflight*len(routers)))
	checker.Register("goroutines", health.GoroutineCheck(cfg.MaxGoroutines))

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		g.Go(func() error {
			return serveHTTP(ctx, "metrics", cfg.MetricsPort, mux, logger)
		})
	}
	if cfg.HealthPort > 0 {
		mux := checker.Mux()
		mux.Handle("/inflight", router.InflightHandler(routers...))
		g.Go(func() error {
			return serveHTTP(ctx, "health", cfg.HealthPort, mux, logger)
		})
	}

	g.Go(func() error {
		sampleGauges(ctx, m, gauges{
			inflight:  inflight,
			connected: upstream.Connected,
			waiters:   corr.Pending,
		})
		return nil
	})

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	err = g.Wait()
	closeSockets()
	if errors.Is(err, router.ErrShutdownTimeout) {
		logger.Warn("Shutdown timeout exceeded, in-flight requests abandoned")
		return nil
	}
	return err
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("service", svcName))
}

// serveHTTP serves handler on port until ctx is done.
func serveHTTP(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Starting %s server", name), slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	}
}

type gauges struct {
	inflight  func() int
	connected func() bool
	waiters   func() (replies, heartbeats int)
}

// sampleGauges refreshes the point-in-time gauges until ctx is done.
func sampleGauges(ctx context.Context, m *metrics.Metrics, src gauges) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		m.Inflight.Set(float64(src.inflight()))
		m.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
		connected := 0.0
		if src.connected() {
			connected = 1
		}
		m.UpstreamConnected.Set(connected)
		replies, heartbeats := src.waiters()
		m.UpstreamWaiters.WithLabelValues("reply").Set(float64(replies))
		m.UpstreamWaiters.WithLabelValues("heartbeat").Set(float64(heartbeats))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
