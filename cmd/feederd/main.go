package main

import (
	"context"
	"errors"
	"flag"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/api"
	"github.com/devghori1264/feederbalancer/internal/config"
	"github.com/devghori1264/feederbalancer/internal/events"
	"github.com/devghori1264/feederbalancer/internal/logging"
	"github.com/devghori1264/feederbalancer/internal/metrics"
	natsclient "github.com/devghori1264/feederbalancer/internal/nats"
	"github.com/devghori1264/feederbalancer/internal/nodegen"
	"github.com/devghori1264/feederbalancer/internal/registry"
	"github.com/devghori1264/feederbalancer/internal/server"
	"github.com/devghori1264/feederbalancer/internal/storage"
	"github.com/devghori1264/feederbalancer/internal/telemetry"
	"github.com/devghori1264/feederbalancer/internal/tracing"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("feederd exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(os.Stdout)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	seed := cfg.Fleet.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	fleet := nodegen.New(rnd, time.Now).Generate(cfg.Fleet.Count, cfg.Fleet.ScatterDeg)
	log.Info("fleet generated", zap.Int("nodes", len(fleet)), zap.String("real_node", cfg.Fleet.RealNodeID))

	durable, err := telemetry.Open(telemetry.Dialect(cfg.Telemetry.Driver), cfg.Telemetry.DSN)
	if err != nil {
		return err
	}
	defer durable.Close()

	var commands storage.CommandStore = storage.NewMemoryStore()
	if cfg.Commands.BadgerPath != "" {
		bs, err := storage.NewBadgerStore(cfg.Commands.BadgerPath)
		if err != nil {
			return err
		}
		commands = bs
	}
	defer commands.Close()

	var relay server.Relay
	if cfg.Relay.URL != "" {
		pub, err := natsclient.NewPublisher(cfg.Relay.URL, cfg.Relay.Name, log)
		if err != nil {
			log.Warn("nats unavailable, relay disabled", zap.String("url", cfg.Relay.URL), zap.Error(err))
		} else {
			defer pub.Close()
			relay = pub
		}
	}

	srv := server.New(server.Deps{
		Registry:      registry.New(fleet),
		Events:        events.NewLog(events.DefaultCapacity),
		Commands:      commands,
		Telemetry:     telemetry.NewMemLog(telemetry.DefaultRetention),
		Durable:       durable,
		Relay:         relay,
		Metrics:       metrics.New(prometheus.DefaultRegisterer),
		Logger:        log,
		RealNodeID:    cfg.Fleet.RealNodeID,
		SubjectPrefix: cfg.Relay.SubjectPrefix,
		Rand:          rnd,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(srv, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http listen", zap.Error(err))
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux, prometheus.DefaultGatherer)
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info("Prometheus metrics available", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("metrics server", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown initiated")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	log.Info("shutdown complete")
	return nil
}
