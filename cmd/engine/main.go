package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"futures-decision-engine/config"
	"futures-decision-engine/internal/analysis"
	"futures-decision-engine/internal/api"
	"futures-decision-engine/internal/circuit"
	"futures-decision-engine/internal/engine"
	"futures-decision-engine/internal/events"
	"futures-decision-engine/internal/exchange"
	"futures-decision-engine/internal/logging"
	"futures-decision-engine/internal/market"
	"futures-decision-engine/internal/performance"
	"futures-decision-engine/internal/risk"
	"futures-decision-engine/internal/signal"
	"futures-decision-engine/internal/storage"
)

func main() {
	genConfig := flag.Bool("generate-config", false, "write a sample config.json and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatalf("Failed to generate sample config: %v", err)
		}
		fmt.Println("Sample configuration written to config.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSONFormat)
	logger.Info().Str("level", cfg.Logging.Level).Msg("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exchange client: the mock stays in-process for dry runs and demos.
	var client exchange.Client
	if cfg.Exchange.MockMode {
		client = exchange.NewMockClient()
		logger.Info().Msg("Exchange in mock mode, no orders will reach the network")
	} else {
		client = exchange.NewRESTClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.TestNet, logger)
	}

	bus := events.NewBus()

	var repo *storage.Repository
	if cfg.Database.Enabled {
		repo, err = storage.NewRepository(ctx, storage.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Database unavailable, continuing memory-only")
			repo = nil
		} else if err := repo.Migrate(ctx); err != nil {
			logger.Error().Err(err).Msg("Database migration failed")
		}
	}

	var cache *storage.SnapshotCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = storage.NewSnapshotCache(rdb, logger)
	}

	classifier := analysis.NewClassifier(analysis.DefaultClassifierConfig(), logger)

	monitor := risk.NewMonitor(risk.MonitorConfig{
		Levels:        cfg.Invalidation.Levels,
		FastTimeframe: cfg.Engine.FastTimeframe,
		FailClosed:    cfg.Invalidation.FailClosed,
	}, client, logger)

	cascade := risk.NewCascade(risk.CascadeConfig{
		HoldThreshold:        cfg.Cascade.HoldThreshold,
		ProtectionMargin:     cfg.Cascade.ProtectionMargin,
		PartialTakeProfitPct: cfg.Cascade.PartialTakeProfitPct,
	}, logger)

	sizer := risk.NewSizer(risk.SizerConfig{
		BaseLeverage: map[signal.Confidence]int{
			signal.ConfidenceHigh:   cfg.Sizing.HighLeverage,
			signal.ConfidenceMedium: cfg.Sizing.MediumLeverage,
			signal.ConfidenceLow:    cfg.Sizing.LowLeverage,
		},
		MinLeverage:     cfg.Sizing.MinLeverage,
		MaxLeverage:     cfg.Sizing.MaxLeverage,
		TradeMargin:     cfg.Sizing.TradeMargin,
		ConfidenceFloor: cfg.Sizing.ConfidenceFloor,
	}, logger)

	ledger := performance.NewLedger(cfg.Sizing.TradeMargin, logger)

	breaker := circuit.NewBreaker(circuit.BreakerConfig{
		Enabled:              cfg.Breaker.Enabled,
		MaxConsecutiveLosses: cfg.Breaker.MaxConsecutiveLosses,
		MaxDailyLoss:         cfg.Breaker.MaxDailyLoss,
		CooldownMinutes:      cfg.Breaker.CooldownMinutes,
	}, logger)

	var signals signal.Source
	if cfg.Signals.Endpoint != "" {
		signals = signal.NewLLMSource(signal.LLMConfig{
			Endpoint:    cfg.Signals.Endpoint,
			APIKey:      cfg.Signals.APIKey,
			Model:       cfg.Signals.Model,
			Temperature: cfg.Signals.Temperature,
			Timeout:     cfg.Signals.Timeout,
		}, logger)
	}

	eng := engine.New(engine.Config{
		Symbols:       cfg.Engine.Symbols,
		FastTimeframe: cfg.Engine.FastTimeframe,
		SlowTimeframe: cfg.Engine.SlowTimeframe,
		CycleInterval: cfg.Engine.CycleInterval,
		CandleLimit:   cfg.Engine.CandleLimit,
		FetchTimeout:  cfg.Engine.FetchTimeout,
		DryRun:        cfg.Engine.DryRun,
	}, engine.Deps{
		Client:     client,
		Store:      market.NewStore(cfg.Engine.CandleLimit),
		Classifier: classifier,
		Monitor:    monitor,
		Cascade:    cascade,
		Sizer:      sizer,
		Ledger:     ledger,
		Signals:    signals,
		Breaker:    breaker,
		Bus:        bus,
		Repo:       repo,
		Cache:      cache,
	}, logger)

	go eng.Run(ctx)
	logger.Info().
		Strs("symbols", cfg.Engine.Symbols).
		Dur("interval", cfg.Engine.CycleInterval).
		Bool("dry_run", cfg.Engine.DryRun).
		Msg("Decision engine started")

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(api.ServerConfig{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, eng, repo, bus, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
		logger.Info().Int("port", cfg.Server.Port).Msg("API server started")
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
	}
	if repo != nil {
		repo.Close()
	}
	logger.Info().Msg("Decision engine stopped")
}
