package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-swap-pricer/internal/ingestion"
	"solana-swap-pricer/internal/lookup"
	"solana-swap-pricer/internal/observability"
	"solana-swap-pricer/internal/price"
	"solana-swap-pricer/internal/pricing"
	"solana-swap-pricer/internal/solana"
	"solana-swap-pricer/internal/storage"
	chstore "solana-swap-pricer/internal/storage/clickhouse"
	"solana-swap-pricer/internal/storage/memory"
	"solana-swap-pricer/internal/storage/migrations"
	pgstore "solana-swap-pricer/internal/storage/postgres"
	"solana-swap-pricer/internal/swapdiff"
)

type config struct {
	mode          string
	rpcEndpoint   string
	wsEndpoint    string
	commitment    string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	migrate       bool
	redisAddr     string
	redisPassword string
	priceTTL      time.Duration
	jupiterURL    string
	refPrice      float64
	refMint       string
	pricingMode   string
	programs      string
	dex           string
	address       string
	before        string
	until         string
	limit         int
	archive       string
	workers       int
	metricsAddr   string
	mint          string
	fromMs        int64
	toMs          int64
	interval      time.Duration
}

func main() {
	// .env never overrides variables already set in the environment
	_ = godotenv.Load()

	var cfg config
	flag.StringVar(&cfg.mode, "mode", "tx", "Mode: tx, live, backfill, replay, or candles")
	flag.StringVar(&cfg.rpcEndpoint, "rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	flag.StringVar(&cfg.wsEndpoint, "ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	flag.StringVar(&cfg.commitment, "commitment", solana.DefaultCommitment, "RPC commitment level")
	flag.StringVar(&cfg.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	flag.StringVar(&cfg.clickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	flag.BoolVar(&cfg.useMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.BoolVar(&cfg.migrate, "migrate", false, "Apply embedded migrations before starting")
	flag.StringVar(&cfg.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the reference price cache (optional)")
	flag.StringVar(&cfg.redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	flag.DurationVar(&cfg.priceTTL, "price-ttl", 15*time.Second, "Reference price cache TTL")
	flag.StringVar(&cfg.jupiterURL, "jupiter-url", envOr("JUPITER_PRICE_URL", price.DefaultJupiterURL), "Jupiter price API URL")
	flag.Float64Var(&cfg.refPrice, "reference-price", envFloat("REFERENCE_PRICE"), "Fixed reference price; disables Jupiter lookups when > 0")
	flag.StringVar(&cfg.refMint, "reference-mint", swapdiff.WSOLMint, "Reference asset mint")
	flag.StringVar(&cfg.pricingMode, "pricing-mode", string(pricing.ModeMint), "Leg reconciliation: mint or owner")
	flag.StringVar(&cfg.programs, "programs", "", "Comma-separated DEX program IDs to monitor")
	flag.StringVar(&cfg.dex, "dex", "raydium,pumpfun", "Comma-separated DEX aliases (raydium, raydium-clmm, pumpfun, orca, jupiter)")
	flag.StringVar(&cfg.address, "address", "", "Address whose history is backfilled")
	flag.StringVar(&cfg.before, "before", "", "Backfill: start below this signature")
	flag.StringVar(&cfg.until, "until", "", "Backfill: stop at this signature")
	flag.IntVar(&cfg.limit, "limit", 1000, "Backfill: max signatures to examine (0 = all)")
	flag.StringVar(&cfg.archive, "archive", "", "Replay: JSON Lines archive of balance snapshots")
	flag.IntVar(&cfg.workers, "workers", 8, "Concurrent pricing workers")
	flag.StringVar(&cfg.mint, "mint", "", "Candles: token mint to aggregate")
	flag.Int64Var(&cfg.fromMs, "from", 0, "Candles: range start, Unix ms")
	flag.Int64Var(&cfg.toMs, "to", 0, "Candles: range end, Unix ms (0 = now)")
	flag.DurationVar(&cfg.interval, "interval", time.Minute, "Candles: bucket width")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[pricer] ", log.LstdFlags|log.Lshortfile)
	metrics := observability.DefaultMetrics

	if cfg.metricsAddr != "" && cfg.mode != "tx" && cfg.mode != "candles" {
		go serveMetrics(logger, cfg.metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, metrics, cfg)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg config) error {
	swaps, points, closeStores, err := openStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.mode == "candles" {
		return runCandles(ctx, cfg, points)
	}

	prices, closePrices, err := buildPriceSource(ctx, logger, metrics, cfg)
	if err != nil {
		return err
	}
	defer closePrices()

	var rpc solana.RPCClient
	if cfg.rpcEndpoint != "" {
		rpc = solana.NewHTTPClient(cfg.rpcEndpoint,
			solana.WithCommitment(cfg.commitment),
			solana.WithLatencyObserver(metrics.RecordRPCLatency),
		)
	}

	pricer, err := pricing.NewPricer(pricing.Config{
		RPC:           rpc,
		Prices:        prices,
		Swaps:         swaps,
		Points:        points,
		ReferenceMint: cfg.refMint,
		Mode:          pricing.Mode(cfg.pricingMode),
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	switch cfg.mode {
	case "tx":
		if rpc == nil {
			return fmt.Errorf("--rpc-endpoint is required for tx mode")
		}
		return runTx(ctx, pricer, flag.Args())
	case "live":
		return runLive(ctx, logger, metrics, cfg, pricer)
	case "backfill":
		if rpc == nil {
			return fmt.Errorf("--rpc-endpoint is required for backfill mode")
		}
		return runBackfill(ctx, logger, metrics, cfg, rpc, pricer)
	case "replay":
		return runReplay(ctx, logger, metrics, cfg, pricer)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.mode)
	}
}

// runTx prices the signatures given as arguments and prints each swap as JSON.
func runTx(ctx context.Context, pricer *pricing.Pricer, signatures []string) error {
	if len(signatures) == 0 {
		return fmt.Errorf("tx mode needs at least one signature argument")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	var failed int
	for _, sig := range signatures {
		swap, err := pricer.PriceTransaction(ctx, sig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", sig, err)
			failed++
			continue
		}
		if err := enc.Encode(swap); err != nil {
			return fmt.Errorf("encode swap: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d transactions could not be priced", failed, len(signatures))
	}
	return nil
}

// runCandles prints the OHLC candles of one mint as JSON.
func runCandles(ctx context.Context, cfg config, points storage.PricePointStore) error {
	if points == nil {
		return fmt.Errorf("candles mode needs a price point store (--clickhouse-dsn or --use-memory)")
	}
	if cfg.mint == "" {
		return fmt.Errorf("--mint is required for candles mode")
	}

	to := cfg.toMs
	if to == 0 {
		to = time.Now().UnixMilli()
	}

	candles, err := lookup.NewService(points).Candles(ctx, cfg.mint, cfg.fromMs, to, cfg.interval.Milliseconds())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(candles)
}

func runLive(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg config, pricer *pricing.Pricer) error {
	if cfg.rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required for live mode")
	}
	if cfg.wsEndpoint == "" {
		return fmt.Errorf("--ws-endpoint is required for live mode")
	}

	programs := solana.ResolvePrograms(cfg.programs, cfg.dex)
	if len(programs) == 0 {
		return fmt.Errorf("no DEX programs specified, use --programs or --dex")
	}
	logger.Printf("Monitoring DEX programs: %v", programs)

	stream, err := solana.NewLogStream(ctx, cfg.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create log stream: %w", err)
	}
	defer stream.Close()

	live := ingestion.NewLive(ingestion.LiveOptions{
		Stream:   stream,
		Pricer:   pricer,
		Programs: programs,
		Workers:  cfg.workers,
		Metrics:  metrics,
		Logger:   logger,
	})

	logger.Println("Starting live pricing...")
	res, err := live.Run(ctx)
	logResult(logger, "live", res)
	return err
}

func runBackfill(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg config, rpc solana.RPCClient, pricer *pricing.Pricer) error {
	if !solana.IsValidPubkey(cfg.address) {
		return fmt.Errorf("--address must be a base58 public key, got %q", cfg.address)
	}

	b := ingestion.NewBackfiller(ingestion.BackfillOptions{
		RPC:     rpc,
		Pricer:  pricer,
		Address: cfg.address,
		Before:  cfg.before,
		Until:   cfg.until,
		Limit:   cfg.limit,
		Workers: cfg.workers,
		Metrics: metrics,
		Logger:  logger,
	})

	res, err := b.Run(ctx)
	logResult(logger, "backfill", res)
	return err
}

func runReplay(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg config, pricer *pricing.Pricer) error {
	if cfg.archive == "" {
		return fmt.Errorf("--archive is required for replay mode")
	}

	r := ingestion.NewReplayer(ingestion.ReplayOptions{
		Pricer:  pricer,
		Metrics: metrics,
		Logger:  logger,
	})

	res, err := r.ReplayFile(ctx, cfg.archive)
	logResult(logger, "replay", res)
	return err
}

func logResult(logger *log.Logger, mode string, res *ingestion.Result) {
	logger.Printf("%s finished in %v: seen=%d priced=%d skipped=%d errors=%d",
		mode, res.Duration.Round(time.Millisecond), res.Seen, res.Priced, res.Skipped, res.Errors)
}

func openStores(ctx context.Context, logger *log.Logger, cfg config) (storage.PricedSwapStore, storage.PricePointStore, func(), error) {
	if cfg.useMemory {
		logger.Println("Using in-memory storage")
		return memory.NewPricedSwapStore(), memory.NewPricePointStore(), func() {}, nil
	}
	if cfg.postgresDSN == "" {
		return nil, nil, nil, fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Println("Applied postgres migrations")
	}

	swaps := pgstore.NewPricedSwapStore(pool)
	if cfg.clickhouseDSN == "" {
		return swaps, nil, pool.Close, nil
	}

	var conn *chstore.Conn
	if cfg.migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.clickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	closeAll := func() {
		_ = conn.Close()
		pool.Close()
	}
	return swaps, chstore.NewPricePointStore(conn), closeAll, nil
}

func buildPriceSource(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, cfg config) (price.Source, func(), error) {
	if cfg.refPrice > 0 {
		logger.Printf("Using fixed reference price %g", cfg.refPrice)
		static := price.NewStaticSource(0)
		static.Set(cfg.refMint, cfg.refPrice)
		return price.Observed(static, "static", metrics.RecordPriceFetch), func() {}, nil
	}

	src := price.Observed(price.NewJupiterSource(cfg.jupiterURL), "jupiter", metrics.RecordPriceFetch)
	if cfg.redisAddr == "" {
		return src, func() {}, nil
	}

	rdb, err := price.NewRedisClient(ctx, price.RedisConfig{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("Caching reference prices in redis %s (ttl %v)", cfg.redisAddr, cfg.priceTTL)

	cached := price.NewCachedSource(rdb, src, cfg.priceTTL,
		price.WithCacheLogger(logger),
		price.WithLookupObserver(metrics.RecordCacheLookup),
	)
	return cached, func() { _ = rdb.Close() }, nil
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}
