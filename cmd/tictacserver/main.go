// Package main runs the tic-tac-toe server: the WebSocket game endpoint, the
// gRPC health service and, when enabled, the PostgreSQL match archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/archive"
	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/health"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/server"
	"github.com/cory-johannsen/tictactoe/internal/storage/postgres"
	"github.com/cory-johannsen/tictactoe/internal/transport/websocket"
)

const (
	archiveService = "tictactoe.Archive"
	monitorPeriod  = 15 * time.Second
	stopTimeout    = 10 * time.Second
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (empty = defaults and environment)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging, "tictacserver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tictacserver",
		zap.String("ws_addr", cfg.Server.Addr()),
		zap.String("grpc_health_addr", cfg.Health.Addr()),
		zap.Bool("archive", cfg.Archive.Enabled),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger, stopTimeout)
	healthSrv := health.NewServer(cfg.Health, logger.Named("health"))

	var recorder archive.Recorder = archive.Nop{}
	if cfg.Archive.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		async := archive.NewAsyncRecorder(
			postgres.NewMatchResultRepository(pool.DB()),
			cfg.Archive.QueueSize,
			cfg.Archive.WriteTimeout,
			logger.Named("archive"),
		)
		recorder = async
		lifecycle.Add("archive", async)

		monitorCtx, stopMonitor := context.WithCancel(ctx)
		lifecycle.Add("archive-monitor", &server.FuncService{
			StartFn: func() error {
				healthSrv.Monitor(monitorCtx, archiveService, monitorPeriod, pool.Checker(monitorPeriod))
				return nil
			},
			StopFn: stopMonitor,
		})
	}

	rooms := session.NewRegistry()
	hub := websocket.NewHub(logger.Named("hub"))
	svc := gameserver.NewService(rooms, hub, recorder, logger.Named("game"))
	wsSrv := websocket.NewServer(cfg.Server, hub, svc, logger.Named("websocket"))

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsSrv.ListenAndServe,
		StopFn:  wsSrv.Stop,
	})
	lifecycle.Add("health", &server.FuncService{
		StartFn: healthSrv.ListenAndServe,
		StopFn:  healthSrv.Stop,
	})
	healthSrv.SetServing(true)

	logger.Info("tictacserver initialized", zap.Duration("startup", time.Since(start)))
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("tictacserver exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
