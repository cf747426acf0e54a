package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/config"
	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/server"
	"github.com/alfredjeanlab/kodblock/internal/store"
	"github.com/alfredjeanlab/kodblock/internal/store/memory"
	"github.com/alfredjeanlab/kodblock/internal/store/postgres"
	kbsync "github.com/alfredjeanlab/kodblock/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the kodblock HTTP and gRPC servers",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (KODBLOCK_NATS_URL not set)")
		}

		kbServer := server.NewKodblockServer(st, publisher, registry)
		grpcServer := server.NewGRPCServer(kbServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.LoggingMiddleware(kbServer.NewHTTPHandler(cfg.AuthToken)),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cfg, st, logger)

		watchCtx, stopWatch := context.WithCancel(context.Background())
		defer stopWatch()
		startRegistryWatch(watchCtx, cfg, kbServer, logger)

		logger.Info("kodblock server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"block_types", len(registry.Types()),
			"auth", cfg.AuthToken != "",
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		stopWatch()
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore connects to Postgres when a database URL is configured and
// falls back to the in-memory store otherwise.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("KODBLOCK_DATABASE_URL not set, drafts are kept in memory")
		return memory.New(), nil
	}
	return postgres.New(cfg.DatabaseURL)
}

// startRegistryWatch hot-reloads the block-type registry when a registry
// file is configured.
func startRegistryWatch(ctx context.Context, cfg *config.Config, kbServer *server.KodblockServer, logger *slog.Logger) {
	if cfg.BlocksFile == "" {
		return
	}
	rw, err := config.NewRegistryWatcher(cfg.BlocksFile, logger)
	if err != nil {
		logger.Warn("registry hot reload disabled", "path", cfg.BlocksFile, "err", err)
		return
	}
	go rw.Run(ctx, kbServer.SetRegistry)
	logger.Info("watching block registry", "path", cfg.BlocksFile)
}

// syncDestinations builds the export destinations named by cfg.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []kbsync.Destination {
	var dests []kbsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := kbsync.NewS3Destination(
			ctx,
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, kbsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	return dests
}

// startSync starts the export scheduler when an interval and at least one
// destination are configured. It returns nil otherwise.
func startSync(cfg *config.Config, st store.Store, logger *slog.Logger) *kbsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	dests := syncDestinations(context.Background(), cfg, logger)
	if len(dests) == 0 {
		return nil
	}
	scheduler := kbsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
