package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"propdesk/internal/api"
	"propdesk/internal/api/handlers"
	"propdesk/internal/config"
	"propdesk/internal/feed"
	"propdesk/internal/market"
	"propdesk/internal/models"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
	"propdesk/internal/service"
	"propdesk/internal/websocket"
	"propdesk/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := utils.InitLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	utils.SetGlobalLogger(appLogger)
	logger := appLogger.Logger
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ============ База данных (опционально) ============

	var db *sql.DB
	if cfg.Database.Enabled {
		db, err = initDatabase(cfg)
		if err != nil {
			logger.Fatal("failed to connect to database",
				zap.String("dsn", cfg.Database.DSNWithoutPassword()),
				zap.Error(err),
			)
		}
		defer db.Close()
		logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	}

	// ============ Источник котировок ============

	httpClient := feed.NewHTTPClient(feed.DefaultHTTPClientConfig())
	defer httpClient.Close()

	var (
		source    market.TickSource
		sim       *feed.Simulator
		feedState = func() string { return "simulated" }
	)
	switch cfg.Market.Source {
	case config.MarketSourceWS:
		wsCfg := feed.DefaultWSConfig(cfg.Market.FeedURL)
		wsCfg.HistoryURL = cfg.Market.HistoryURL
		if cfg.Market.WSReconnectDelay > 0 {
			wsCfg.InitialDelay = cfg.Market.WSReconnectDelay
		}
		if cfg.Market.WSPingInterval > 0 {
			wsCfg.PingInterval = cfg.Market.WSPingInterval
		}
		if cfg.Market.WSReadTimeout > 0 {
			wsCfg.ReadTimeout = cfg.Market.WSReadTimeout
		}
		ws := feed.NewWSSource(wsCfg, httpClient, logger)
		source = ws
		feedState = func() string { return ws.State().String() }
	default:
		sim = feed.NewSimulator(feed.SimulatorConfig{
			Instruments: cfg.Market.Instruments,
			Interval:    cfg.Market.SimInterval,
			Seed:        cfg.Market.SimSeed,
		}, logger)
		source = sim
	}

	// ============ WebSocket hub ============

	hub := websocket.NewHub(logger, cfg.Server.CORSOrigins...)
	go hub.Run()

	// ============ Агрегация свечей ============

	agg := market.NewAggregator(market.AggregatorConfig{
		Period:     cfg.Market.CandlePeriod,
		MaxHistory: cfg.Market.MaxCandles,
		Shards:     cfg.Market.Shards,
	}, logger)

	pipeline := market.NewPipeline(agg, source, market.PipelineConfig{
		Instruments:     cfg.Market.Instruments,
		ShardBuffer:     cfg.Market.ShardBuffer,
		HistoryLookback: cfg.Market.HistoryLookback,
	}, logger)
	pipeline.AddObserver(hub)

	var recorder *service.CandleRecorder
	if db != nil && cfg.Market.PersistCandles {
		recorder = service.NewCandleRecorder(repository.NewCandleRepository(db), service.CandleRecorderConfig{}, logger)
		pipeline.AddObserver(recorder)
		go recorder.Run(ctx)
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("market pipeline stopped", zap.Error(err))
		}
	}()

	// ============ Сервисы ============

	var assessmentStore service.AssessmentStore
	if db != nil && cfg.Risk.PersistAssessments {
		assessmentStore = repository.NewAssessmentRepository(db)
	}
	riskService := service.NewRiskService(assessmentStore, logger)

	var notificationStore service.NotificationStore
	if db != nil {
		notificationStore = repository.NewNotificationRepository(db)
	}
	notificationService := service.NewNotificationService(notificationStore)
	notificationService.SetWebSocketHub(hub)
	riskService.SetNotificationService(notificationService)

	marketCfg := service.MarketServiceConfig{
		Candles:     agg,
		Instruments: cfg.Market.Instruments,
		Logger:      logger,
	}
	if db != nil {
		marketCfg.Store = repository.NewCandleRepository(db)
		marketCfg.Positions = repository.NewPositionRepository(db)
	} else if sim != nil {
		marketCfg.Demo = sim.DemoPositions
	}
	marketService := service.NewMarketService(marketCfg)

	// ============ Мониторинг риска ============

	fetcher, err := initSnapshotFetcher(cfg, db, httpClient, logger)
	if err != nil {
		logger.Fatal("failed to init snapshot source", zap.Error(err))
	}

	monitor := risk.Start(ctx, risk.MonitorConfig{
		PollInterval: cfg.Risk.PollInterval,
		FetchTimeout: cfg.Risk.FetchTimeout,
		Logger:       logger,
	}, fetcher, func(assessments []models.RiskAssessment) {
		hub.BroadcastRiskUpdate(assessments)
		riskService.HandleUpdate(assessments)
	})
	riskService.SetSource(monitor)

	// ============ HTTP ============

	health := handlers.HealthDeps{
		Monitor:   monitor,
		Pipeline:  pipeline,
		Hub:       hub,
		FeedState: feedState,
	}
	if db != nil {
		health.DB = db
	}

	router := api.SetupRoutes(&api.Dependencies{
		MarketService:       marketService,
		RiskService:         riskService,
		NotificationService: notificationService,
		Stream:              http.HandlerFunc(hub.ServeWS),
		Health:              health,
		CORSOrigins:         cfg.Server.CORSOrigins,
		Logger:              logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// монитор останавливается первым: после Stop рассылок риска в hub нет
	monitor.Stop()
	cancel()
	<-pipelineDone
	if recorder != nil {
		<-recorder.Done()
	}
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initSnapshotFetcher выбирает поставщика снимков счетов
func initSnapshotFetcher(cfg *config.Config, db *sql.DB, httpClient *feed.HTTPClient, logger *zap.Logger) (risk.SnapshotFetcher, error) {
	if cfg.Risk.SnapshotSource == config.SnapshotSourceDB {
		if db == nil {
			return nil, errors.New("snapshot source db requires DB_ENABLED=true")
		}
		return repository.NewAccountRepository(db), nil
	}

	client, err := feed.NewAccountClient(feed.AccountClientConfig{
		BaseURL:           cfg.Risk.AccountServiceURL,
		RequestsPerSecond: cfg.Risk.RequestsPerSecond,
	}, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}
