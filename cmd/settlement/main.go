package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/oiltrading/internal/settlement/application"
	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
	"github.com/wyfcoding/oiltrading/internal/settlement/infrastructure/messaging"
	"github.com/wyfcoding/oiltrading/internal/settlement/infrastructure/persistence/mysql"
	httpserver "github.com/wyfcoding/oiltrading/internal/settlement/interfaces/http"
	"github.com/wyfcoding/oiltrading/pkg/config"
	"github.com/wyfcoding/oiltrading/pkg/db"
	"github.com/wyfcoding/oiltrading/pkg/logger"
	"github.com/wyfcoding/oiltrading/pkg/metrics"
	"github.com/wyfcoding/oiltrading/pkg/middleware"
	"github.com/wyfcoding/oiltrading/pkg/mq"
)

var configPath = flag.String("config", "configs/settlement/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 3. Metrics
	metricsImpl := metrics.New(cfg.ServiceName)
	if err := metricsImpl.Register(); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		go metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. Infrastructure
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
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&domain.Settlement{},
			&domain.SettlementCharge{},
			&domain.Payment{},
			&domain.PaymentStatusChange{},
			&domain.PricingEvent{},
			&mysql.BenchmarkPriceModel{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	producer := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	defer producer.Close()

	// 5. Application
	settlementRepo := mysql.NewSettlementRepository(database.DB)
	paymentRepo := mysql.NewPaymentRepository(database.DB)
	pricingRepo := mysql.NewPricingEventRepository(database.DB)
	resolver := mysql.NewBenchmarkPriceResolver(database.DB)
	publisher := messaging.NewKafkaEventPublisher(producer)

	commandService := application.NewSettlementCommandService(settlementRepo, pricingRepo, resolver, publisher, metricsImpl)
	paymentService := application.NewPaymentCommandService(paymentRepo, settlementRepo, publisher)
	queryService := application.NewSettlementQueryService(settlementRepo, paymentRepo, pricingRepo)

	// 6. Interfaces
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinLogging(), middleware.GinRecovery(), middleware.GinMetrics(metricsImpl))

	handler := httpserver.NewHandler(commandService, paymentService, queryService)
	handler.RegisterRoutes(r)

	// 7. Start
	g, ctx := errgroup.WithContext(context.Background())

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
