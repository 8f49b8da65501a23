package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/xk6-marionette/api"
	"github.com/grafana/xk6-marionette/common"
	"github.com/grafana/xk6-marionette/env"
	"github.com/grafana/xk6-marionette/headless"
	"github.com/grafana/xk6-marionette/listener"
	"github.com/grafana/xk6-marionette/log"
	"github.com/grafana/xk6-marionette/metrics"
	"github.com/grafana/xk6-marionette/otel"
	"github.com/grafana/xk6-marionette/server"
	"github.com/grafana/xk6-marionette/storage"
	"github.com/grafana/xk6-marionette/trace"
)

const (
	hubPath     = "/listener"
	metricsPath = "/metrics"

	// quitGrace lets the reply to quitApplication reach the client before
	// the server stops.
	quitGrace       = 250 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

func newLogger(cfg env.Config) (*log.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	filter, err := cfg.CategoryFilter()
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&log.ConsoleFormatter{NoColor: cfg.Log.NoColor || color.NoColor})
	return log.New(l, false, filter), nil
}

func newTraceProvider(ctx context.Context, cfg env.Config) (otel.TraceProvider, error) {
	switch {
	case cfg.Trace.Stdout:
		return otel.NewTraceProvider(ctx, "stdout", "", false)
	case cfg.Trace.Endpoint != "":
		return otel.NewTraceProvider(ctx, "http", cfg.Trace.Endpoint, cfg.Trace.Insecure)
	}
	return otel.NewNoopTraceProvider(), nil
}

func newScriptStore(cfg env.Config) (*storage.ScriptStore, error) {
	if cfg.TempDir == "" {
		return storage.NewScriptStore("")
	}
	dir, err := os.MkdirTemp(cfg.TempDir, "marionette-scripts-*")
	if err != nil {
		return nil, fmt.Errorf("creating script directory: %w", err)
	}
	return storage.NewScriptStore(dir)
}

// run serves clients until ctx is done or the application quits.
func run(ctx context.Context, cfg env.Config, remoteListeners bool) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	framing, err := cfg.WireFraming()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.RegisterCustomMetrics(registry)

	tp, err := newTraceProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnf("main:run", "shutting down tracing: %v", err)
		}
	}()
	tracer := trace.NewTracer(logger, tp, map[string]string{"app": cfg.AppName, "device": cfg.Device})

	store, err := newScriptStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("main:run", "%v", err)
		}
	}()

	bus := listener.NewBus(logger)
	mux := http.NewServeMux()
	mux.Handle(hubPath, listener.NewHub(bus, logger, m))
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	hubURL := ""
	if remoteListeners {
		hubURL = "ws://" + cfg.ListenerListen + hubPath
	}
	app, err := headless.New(headless.Options{
		Info: api.AppInfo{
			Name:            cfg.AppName,
			Version:         version,
			BuildID:         version,
			Platform:        runtime.GOOS,
			PlatformVersion: runtime.Version(),
			Device:          cfg.Device,
		},
		Bus:    bus,
		Logger: logger,
		HubURL: hubURL,
		OnQuit: func(flags []string) {
			logger.Infof("main:run", "application quit flags:%v", flags)
			time.AfterFunc(quitGrace, cancel)
		},
	})
	if err != nil {
		return fmt.Errorf("starting application: %w", err)
	}

	driver := common.NewDriver(common.Options{
		App:               app,
		Bus:               bus,
		Logger:            logger,
		Scripts:           store,
		Tracer:            tracer,
		NewSessionTimeout: cfg.NewSessionTimeout(),
		ScriptTimeout:     cfg.ScriptTimeoutMS,
	})
	defer func() { _ = driver.Close() }()

	srv := server.New(server.Options{
		Driver:         driver,
		Framing:        framing,
		MaxConnections: cfg.MaxConnections,
		Logger:         logger,
		Metrics:        m,
		Tracer:         tracer,
	})
	hs := &http.Server{Addr: cfg.ListenerListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("main:run", "listener hub on ws://%s%s, metrics on http://%s%s",
			cfg.ListenerListen, hubPath, cfg.ListenerListen, metricsPath)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving listener hub: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return hs.Shutdown(sctx)
	})
	g.Go(func() error {
		if _, err := app.OpenWindow(gctx, "", headless.BrowserWindowType); err != nil {
			return fmt.Errorf("opening browser window: %w", err)
		}
		return srv.ListenAndServe(gctx, cfg.Listen)
	})

	err = g.Wait()
	if len(app.Windows()) > 0 {
		if qerr := app.Quit(context.Background(), nil); qerr != nil {
			logger.Warnf("main:run", "quitting application: %v", qerr)
		}
	}
	return err
}
