package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/wyfcoding/yieldmarket/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	ledgermysql "github.com/wyfcoding/yieldmarket/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/wyfcoding/yieldmarket/internal/ledger/interfaces/http"
	"github.com/wyfcoding/yieldmarket/internal/lending/application"
	"github.com/wyfcoding/yieldmarket/internal/lending/domain"
	"github.com/wyfcoding/yieldmarket/internal/lending/infrastructure/messaging"
	lendingmysql "github.com/wyfcoding/yieldmarket/internal/lending/infrastructure/persistence/mysql"
	lendinghttp "github.com/wyfcoding/yieldmarket/internal/lending/interfaces/http"
	"github.com/wyfcoding/yieldmarket/pkg/config"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	"github.com/wyfcoding/yieldmarket/pkg/logger"
	"github.com/wyfcoding/yieldmarket/pkg/metrics"
	"github.com/wyfcoding/yieldmarket/pkg/middleware"
	"github.com/wyfcoding/yieldmarket/pkg/mq"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/lending/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	slog.SetDefault(logger.Get())

	// 3. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		panic(fmt.Sprintf("init database failed: %v", err))
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&ledgerdomain.Mint{},
		&ledgerdomain.TokenAccount{},
		&domain.Strategy{},
		&domain.UserDeposit{},
		&messaging.OutboxMessage{},
	); err != nil {
		panic(fmt.Sprintf("migrate database failed: %v", err))
	}

	// 4. Infrastructure
	mintRepo := ledgermysql.NewMintRepository(database)
	accountRepo := ledgermysql.NewTokenAccountRepository(database)
	strategyRepo := lendingmysql.NewStrategyRepository(database)
	depositRepo := lendingmysql.NewUserDepositRepository(database)
	publisher := messaging.NewOutboxPublisher(database)

	producer := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	defer producer.Close()
	relay := messaging.NewOutboxRelay(database, producer, cfg.Kafka.EventTopic,
		time.Duration(cfg.Kafka.RelayInterval)*time.Millisecond)

	// 5. Application
	lendingService := application.NewLendingService(
		strategyRepo, depositRepo, mintRepo, accountRepo, publisher, database, logger.Get())
	ledgerService := ledgerapp.NewLedgerService(mintRepo, accountRepo, database, logger.Get())

	// 6. Interfaces
	m := metrics.New("lending")

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinLogging(), middleware.GinMetrics(m), middleware.GinRecovery())

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	r.GET("/metrics", gin.WrapH(m.Handler()))
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	api := r.Group("/api/v1")
	lendinghttp.NewHandler(lendingService, m).RegisterRoutes(api)
	ledgerhttp.NewHandler(ledgerService).RegisterRoutes(api)

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	// 7. Start
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(rootCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		slog.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		slog.Info("outbox relay starting", "topic", cfg.Kafka.EventTopic)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// 8. Graceful shutdown
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("service stopped")
}
