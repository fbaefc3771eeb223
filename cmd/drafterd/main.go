// Drafter gRPC Server
// Keeps versioned drafts per user and thread for agent tool calls
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/drafter/internal/config"
	"github.com/nainya/drafter/internal/logger"
	"github.com/nainya/drafter/internal/metrics"
	"github.com/nainya/drafter/internal/server"
	"github.com/nainya/drafter/internal/tracing"
	"github.com/nainya/drafter/pkg/draft"
	"github.com/nainya/drafter/pkg/version"
)

// buildVersion is set with -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("drafterd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "config file (.yaml, .yml, .json or .jsonc)")
	dataDir := flagSet.String("data-dir", "", "version store root (overrides config)")
	exportDir := flagSet.String("export-dir", "", "directory for saved drafts (overrides config)")
	port := flagSet.Int("port", 0, "gRPC port (overrides config)")
	metricsPort := flagSet.Int("metrics-port", 0, "observability HTTP port (overrides config)")
	logLevel := flagSet.String("log-level", "", "trace, debug, info, warn or error (overrides config)")
	pretty := flagSet.Bool("pretty", false, "human-readable console logs")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("drafterd %s\n", buildVersion)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *exportDir != "" {
		cfg.Export.Dir = *exportDir
	}
	if *port != 0 {
		cfg.GRPCPort = *port
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *pretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.InitGlobalLogger(cfg.LoggerConfig())
	log := logger.GetGlobalLogger()
	log.LogServerStart(cfg.GRPCPort, cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "drafter",
		Version:     buildVersion,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracer shutdown failed").Err(err).Send()
		}
	}()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, err := version.Open(cfg.DataDir, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("opening version store: %w", err)
	}
	sink := &draft.DirSink{Dir: cfg.Export.Dir, NoSync: !cfg.Storage.Fsync}
	svc := draft.NewService(store, sink, draft.WithLogger(log), draft.WithMetrics(m))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.UnaryInterceptor(m, log)),
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)
	server.NewServer(svc, log).Register(grpcServer)

	// Register reflection service for grpcurl/grpcui
	reflection.Register(grpcServer)

	ready := func() error {
		_, err := os.Stat(store.Root())
		return err
	}
	obs := server.NewObservabilityServer(cfg.MetricsPort, prometheus.DefaultGatherer, ready, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.LogServerReady(cfg.GRPCPort)
		return grpcServer.Serve(lis)
	})
	g.Go(obs.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.LogServerShutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-sctx.Done():
			grpcServer.Stop()
		}
		return obs.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
