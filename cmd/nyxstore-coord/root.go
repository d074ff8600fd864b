package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"nyxstore/internal/config"
	"nyxstore/internal/logutil"
	"nyxstore/internal/node"
	"nyxstore/internal/observability/metrics"
	"nyxstore/internal/observability/tracing"
	"nyxstore/internal/pd"
	pdgrpc "nyxstore/internal/pd/grpc"
	"nyxstore/internal/pd/mockpd"
	"nyxstore/internal/raftstore"
	"nyxstore/internal/raftstore/pdworker"
	"nyxstore/internal/server"
	"nyxstore/internal/transport"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "nyxstore-coord",
		Short:         "Placement coordination for a nyxstore storage node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newMockPDCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, cfg.Validate()
	}
	return config.Load(path)
}

func newRunCmd(configPath *string) *cobra.Command {
	var inMemoryPD bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the store event loop and pd worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, inMemoryPD)
		},
	}
	cmd.Flags().BoolVar(&inMemoryPD, "in-memory-pd", false, "use an in-process PD instead of pd.endpoint")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, inMemoryPD bool) error {
	logger, err := logutil.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.Uint64("store_id", cfg.StoreID))

	shutdownTracing, err := tracing.Setup(ctx, cfg.TracingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPDCollector(reg, cfg.Metrics.Namespace)
	if cfg.Metrics.Address != "" {
		if err := metrics.StartServer(ctx, cfg.Metrics.Address, reg, logger); err != nil {
			return err
		}
	}

	var client pd.Client
	if inMemoryPD {
		client = mockpd.New(0)
		logger.Info("using in-memory pd")
	} else {
		grpcClient, err := pdgrpc.NewClient(cfg.PD.Endpoint, pdgrpc.WithTimeout(cfg.PD.RequestTimeout))
		if err != nil {
			return fmt.Errorf("connect pd %s: %w", cfg.PD.Endpoint, err)
		}
		defer grpcClient.Close()
		client = grpcClient
		logger.Info("using pd", zap.String("endpoint", cfg.PD.Endpoint))
	}

	inbound := transport.NewSendCh[raftstore.Msg]("store-inbound", cfg.Raftstore.InboundCapacity)
	scheduler := pdworker.NewScheduler(cfg.SchedulerConfig(), client, inbound, logger,
		pdworker.WithMetrics(collector),
		pdworker.WithTracer(tracing.Tracer()))
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	table := node.NewRegionTable()
	store := node.NewStore(cfg.StoreConfig(), inbound, scheduler,
		node.TableApplier{Table: table, Logger: logger}, storeStats{table: table, address: cfg.StoreAddress}, table, logger)

	loop := server.NewLoop(store, cfg.LoopConfig(), logger)
	logger.Info("store started",
		zap.Int("pd_workers", cfg.PD.WorkerCount),
		zap.Duration("tick_interval", cfg.Raftstore.TickInterval))
	return loop.Run(ctx)
}

type storeStats struct {
	table   *node.RegionTable
	address string
}

func (s storeStats) StoreStats() pd.StoreStats {
	st := s.table.StoreStats()
	st.Address = s.address
	return st
}

func newMockPDCmd(configPath *string) *cobra.Command {
	var addr, dataDir string
	cmd := &cobra.Command{
		Use:   "mock-pd",
		Short: "Serve an in-memory PD over gRPC for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := logutil.New(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if addr == "" {
				addr = cfg.PD.Endpoint
			}

			backend := mockpd.New(0)
			if dataDir != "" {
				backend, err = mockpd.Open(dataDir, 0)
				if err != nil {
					return fmt.Errorf("open mock pd data: %w", err)
				}
				defer backend.Close()
			}

			grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
			pdgrpc.RegisterServer(grpcServer, pdgrpc.NewService(backend))

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			logger.Info("mock pd listening", zap.String("addr", lis.Addr().String()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				grpcServer.GracefulStop()
			}()
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			logger.Info("mock pd stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to pd.endpoint)")
	cmd.Flags().StringVar(&dataDir, "data", "", "directory to persist regions in; in-memory when empty")
	return cmd
}
