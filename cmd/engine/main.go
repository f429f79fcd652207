// Package main is the entry point for the cryptopaper engine.
//
// The engine:
//  1. Loads environment and the trading configuration
//  2. Initializes storage, the data fetcher, the detectors, the optional
//     ML filter registry, and the paper trader
//  3. Recovers any open positions from a prior run
//  4. Starts the scan-tick and exit-tick loops under the supervisor
//  5. Serves /healthz, /metrics, and /reload-config until a termination
//     signal arrives
//
// Subcommands:
//   - "run" (default): start the engine and run until terminated.
//   - "backfill <symbol> <from> <to>": loads historical bars into
//     ohlc_data via internal/ingest when INGEST_BASE_URL is set,
//     otherwise defers to the external ingester; never touches
//     scan_history or paper_trades.
//   - "reset-positions": administrative, closes every open position with
//     exit reason "manual".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/control"
	"github.com/nitinkhare/cryptopaper/internal/ingest"
	"github.com/nitinkhare/cryptopaper/internal/market"
	"github.com/nitinkhare/cryptopaper/internal/metrics"
	"github.com/nitinkhare/cryptopaper/internal/mlfilter"
	"github.com/nitinkhare/cryptopaper/internal/scanlog"
	"github.com/nitinkhare/cryptopaper/internal/scanner"
	"github.com/nitinkhare/cryptopaper/internal/storage"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
	"github.com/nitinkhare/cryptopaper/internal/supervisor"
	"github.com/nitinkhare/cryptopaper/internal/trader"
)

func main() {
	_ = godotenv.Load() // optional local .env, silently skipped if absent

	logger := newLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	args := os.Args[1:]
	subcommand := "run"
	if len(args) > 0 && args[0][0] != '-' {
		subcommand = args[0]
		args = args[1:]
	}

	if env := os.Getenv("ENVIRONMENT"); env == "live" {
		logger.Fatal("refusing to start: ENVIRONMENT=live is out of scope for this engine")
	}

	var err error
	switch subcommand {
	case "run":
		err = runEngine(logger)
	case "backfill":
		err = runBackfill(logger, args)
	case "reset-positions":
		err = runResetPositions(logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (expected: run | backfill | reset-positions)\n", subcommand)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("fatal error", zap.String("subcommand", subcommand), zap.Error(err))
		if storage.IsStoreError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level.SetLevel(zap.DebugLevel)
	case "warn":
		cfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		cfg.Level.SetLevel(zap.ErrorLevel)
	default:
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// engineDeps is every wired component the run/reset-positions subcommands
// share: storage, the data fetcher, config loader, and the trader.
type engineDeps struct {
	store        *storage.PostgresStore
	fetcher      *market.HybridDataFetcher
	configLoader *config.Loader
	trader       *trader.Trader
}

func wireEngine(ctx context.Context, logger *zap.Logger) (*engineDeps, error) {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}
	store, err := storage.NewPostgresStore(ctx, dbURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/trading_config.json"
	}
	configLoader, err := config.NewLoader(configPath, store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}

	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("engine: invalid REDIS_URL, running without L2 cache", zap.Error(err))
		} else {
			redisClient = redis.NewClient(opts)
		}
	}

	fetcher := market.NewHybridDataFetcher(store, redisClient, market.FetcherConfig{}, logger)

	startingBalance := 10000.0
	tr := trader.NewTrader(store, fetcher, configLoader, startingBalance, logger)
	if err := tr.Recover(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("recover open positions: %w", err)
	}

	return &engineDeps{store: store, fetcher: fetcher, configLoader: configLoader, trader: tr}, nil
}

func runEngine(logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := wireEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	modelDir := os.Getenv("ML_MODEL_DIR")
	registry, err := mlfilter.LoadRegistry(modelDir, logger)
	if err != nil {
		return fmt.Errorf("load ml model registry: %w", err)
	}

	sl := scanlog.New(deps.store, scanlog.Config{}, logger)
	go sl.Run(ctx)

	detectors := []strategy.Detector{
		strategy.NewDCADetector(),
		strategy.NewSwingDetector(),
		strategy.NewChannelDetector(),
	}
	simpleDetectors := map[config.StrategyName]strategy.Detector{
		config.StrategyDCA:     strategy.NewSimpleDCARule(),
		config.StrategySwing:   strategy.NewSimpleSwingRule(),
		config.StrategyChannel: strategy.NewSimpleChannelRule(),
	}

	snapshot := deps.configLoader.Current()
	referenceSymbol := "BTC"
	if large, ok := snapshot.MarketCapTiers[config.TierLargeCap]; ok && len(large) > 0 {
		referenceSymbol = large[0]
	}

	mgr := scanner.New(deps.fetcher, deps.configLoader, detectors, simpleDetectors, registry, deps.trader, sl, 0, referenceSymbol, logger)

	collectors := metrics.New()
	mgr.SetMetrics(collectors)
	deps.trader.SetMetrics(collectors)

	heartbeats := heartbeatAdapter{store: deps.store}
	sup := supervisor.New(supervisor.Config{
		ScanInterval: time.Duration(snapshot.GlobalSettings.ScanIntervalSeconds) * time.Second,
		ExitInterval: time.Duration(snapshot.GlobalSettings.ExitIntervalSeconds) * time.Second,
	}, mgr.RunTick, wrapExitTick(deps.trader), heartbeats, sl, logger)
	sup.SetMetrics(collectors)

	controlSrv := control.NewServer(control.Config{Addr: os.Getenv("CONTROL_ADDR")}, deps.configLoader, logger)
	controlSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = controlSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("engine: starting", zap.String("config_version", snapshot.Version), zap.Int("universe_size", len(snapshot.GlobalSettings.Universe)))
	sup.Run(ctx)
	return nil
}

// wrapExitTick adapts Trader.RunExitTick (no return value) to the
// error-returning shape the supervisor drives its loops with.
func wrapExitTick(tr *trader.Trader) func(context.Context) error {
	return func(ctx context.Context) error {
		tr.RunExitTick(ctx)
		return nil
	}
}

// heartbeatAdapter bridges supervisor.HeartbeatWriter (job-name/status/
// metadata) to storage.HeartbeatWriter (a full Heartbeat row), so
// internal/supervisor never imports internal/storage directly.
type heartbeatAdapter struct {
	store *storage.PostgresStore
}

func (h heartbeatAdapter) UpsertHeartbeat(ctx context.Context, serviceName string, status supervisor.Status, metadata map[string]any) error {
	return h.store.UpsertHeartbeat(ctx, storage.Heartbeat{
		ServiceName:   serviceName,
		LastHeartbeat: time.Now().UTC(),
		Status:        storage.HeartbeatStatus(status),
		Metadata:      metadata,
	})
}

// runBackfill loads historical bars for one symbol into ohlc_data only —
// it never touches scan_history or paper_trades, so it can run
// alongside a live engine without conflicting on writes (§6). Normal
// operation defers to the external market-data ingester (§1); this
// subcommand fetches itself only when INGEST_BASE_URL names a REST
// candle provider, which keeps the CLI surface real without coupling
// the engine to one exchange's API.
func runBackfill(logger *zap.Logger, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: engine backfill <symbol> <from> <to>")
	}
	symbol, fromStr, toStr := args[0], args[1], args[2]
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return fmt.Errorf("parse from date %q: %w", fromStr, err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return fmt.Errorf("parse to date %q: %w", toStr, err)
	}

	baseURL := os.Getenv("INGEST_BASE_URL")
	if baseURL == "" {
		logger.Info("engine: INGEST_BASE_URL not set, backfill is handled by the external market-data ingester; arguments validated only",
			zap.String("symbol", symbol), zap.String("from", fromStr), zap.String("to", toStr))
		return nil
	}

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, dbURL, logger)
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}
	defer store.Close()

	provider := ingest.NewRestProvider(ingest.RestConfig{
		BaseURL:   baseURL,
		APIKey:    os.Getenv("INGEST_API_KEY"),
		RateLimit: 110 * time.Millisecond,
	})

	written, err := ingest.Backfill(ctx, provider, store, symbol, market.Timeframe1m, from, to)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", symbol, err)
	}
	logger.Info("engine: backfill complete", zap.String("symbol", symbol), zap.Int("bars_written", written))
	return nil
}

func runResetPositions(logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, err := wireEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	closed, failed := deps.trader.CloseAllManual(ctx)
	logger.Info("engine: reset-positions complete", zap.Int("closed", closed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("reset-positions: %d position(s) could not be priced and remain open", failed)
	}
	return nil
}
