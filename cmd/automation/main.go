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

	"github.com/wyfcoding/oiltrading/internal/automation/application"
	"github.com/wyfcoding/oiltrading/internal/automation/domain"
	"github.com/wyfcoding/oiltrading/internal/automation/infrastructure/actions"
	automationmysql "github.com/wyfcoding/oiltrading/internal/automation/infrastructure/persistence/mysql"
	"github.com/wyfcoding/oiltrading/internal/automation/infrastructure/targets"
	httpserver "github.com/wyfcoding/oiltrading/internal/automation/interfaces/http"
	settlementapp "github.com/wyfcoding/oiltrading/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/oiltrading/internal/settlement/domain"
	"github.com/wyfcoding/oiltrading/internal/settlement/infrastructure/messaging"
	settlementmysql "github.com/wyfcoding/oiltrading/internal/settlement/infrastructure/persistence/mysql"
	"github.com/wyfcoding/oiltrading/pkg/config"
	"github.com/wyfcoding/oiltrading/pkg/db"
	"github.com/wyfcoding/oiltrading/pkg/logger"
	"github.com/wyfcoding/oiltrading/pkg/metrics"
	"github.com/wyfcoding/oiltrading/pkg/middleware"
	"github.com/wyfcoding/oiltrading/pkg/mq"
)

var configPath = flag.String("config", "configs/automation/config.toml", "config file path")

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
			&domain.AutomationRule{},
			&domain.RuleCondition{},
			&domain.RuleAction{},
			&domain.RuleExecution{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()

	// 5. Application
	// 动作执行器直接复用结算上下文的应用服务，与规则服务共享同一个库
	settlementRepo := settlementmysql.NewSettlementRepository(database.DB)
	pricingRepo := settlementmysql.NewPricingEventRepository(database.DB)
	resolver := settlementmysql.NewBenchmarkPriceResolver(database.DB)
	publisher := messaging.NewKafkaEventPublisher(producer)
	settlementService := settlementapp.NewSettlementCommandService(settlementRepo, pricingRepo, resolver, publisher, metricsImpl)
	paymentRepo := settlementmysql.NewPaymentRepository(database.DB)
	paymentService := settlementapp.NewPaymentCommandService(paymentRepo, settlementRepo, publisher)

	ruleRepo := automationmysql.NewRuleRepository(database.DB)
	execRepo := automationmysql.NewExecutionRepository(database.DB)
	provider := targets.NewProvider(database.DB)
	executor := actions.NewExecutor(settlementService, paymentService, producer)
	engine := domain.NewEngine(executor)

	ruleService := application.NewRuleService(ruleRepo, execRepo, provider, engine, metricsImpl)
	scheduler := application.NewScheduler(ruleRepo, ruleService)

	// 6. Interfaces
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinLogging(), middleware.GinRecovery(), middleware.GinMetrics(metricsImpl))

	handler := httpserver.NewHandler(ruleService, scheduler)
	handler.RegisterRoutes(r)

	// 7. Start
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	if err := scheduler.Start(ctx); err != nil {
		slog.Error("failed to start rule scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// 事件触发：消费结算事件主题，触发监听该主题的规则
	eventConsumer := application.NewEventConsumer(
		mq.NewConsumer(kafkaCfg, settlementdomain.TopicSettlementEvents),
		ruleRepo, ruleService, settlementdomain.TopicSettlementEvents)
	g.Go(func() error {
		return eventConsumer.Run(ctx)
	})

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
		<-ctx.Done()
		slog.Info("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
