// Command icarusd runs the staked-collateral lending engine on a localnet:
// in-memory bank and stake programs, a wall clock driven slot counter, the
// epoch cranker and the read-only HTTP gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/palindrome-eng/srl-program/config"
	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/core/events"
	"github.com/palindrome-eng/srl-program/core/state"
	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/gateway/middleware"
	"github.com/palindrome-eng/srl-program/gateway/routes"
	"github.com/palindrome-eng/srl-program/native/bank"
	nativecommon "github.com/palindrome-eng/srl-program/native/common"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/native/stake"
	"github.com/palindrome-eng/srl-program/observability/logging"
	"github.com/palindrome-eng/srl-program/observability/metrics"
	telemetry "github.com/palindrome-eng/srl-program/observability/otel"
	"github.com/palindrome-eng/srl-program/services/cranker"
	"github.com/palindrome-eng/srl-program/services/journal"
	"github.com/palindrome-eng/srl-program/storage"
)

func main() {
	var (
		cfgPath      string
		allowMigrate bool
		validators   string
	)
	flag.StringVar(&cfgPath, "config", "icarusd.toml", "path to icarusd config (.toml or .yaml)")
	flag.BoolVar(&allowMigrate, "allow-migrate", false, "permit opening a database stamped with an older state version")
	flag.StringVar(&validators, "bootstrap-validators", "", "comma separated validator keys to open reserves for in a fresh localnet market")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, logCloser := logging.SetupWithFile(cfg.Logging.Service, cfg.Logging.Env, cfg.Logging.File)
	defer logCloser.Close()

	if err := run(cfg, logger, allowMigrate, validators); err != nil {
		logger.Error("icarusd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, allowMigrate bool, bootstrap string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Logging.Service,
			Environment: cfg.Logging.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,

			Markets:        cfg.Cranker.Markets,
			SlotsPerEpoch:  cfg.Clock.SlotsPerEpoch,
			StorageBackend: cfg.Storage.Backend,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(shutdownCtx)
		}()
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	if err := state.EnsureStateVersion(db, allowMigrate); err != nil {
		return err
	}
	logger.Info("storage ready", "backend", cfg.Storage.Backend)
	store := state.NewLendingStore(state.NewManager(db))

	emitters := events.MultiEmitter{events.EmitterFunc(func(evt events.Event) {
		metrics.Lending().ObserveEvent(evt.EventType())
	})}
	var eventLog routes.EventLog
	if cfg.Journal.DSN != "" {
		jr, err := journal.Open(cfg.Journal.DSN, logger)
		if err != nil {
			return err
		}
		defer jr.Close()
		emitters = append(emitters, jr)
		eventLog = jr
		logger.Info("event journal enabled", logging.MaskField("dsn", cfg.Journal.DSN))
	}

	ledger := bank.NewLedger()
	clock := epoch.NewManualClock(cfg.EpochConfig())
	engine := lending.NewEngine(cfg.Reconciler)
	engine.SetState(store)
	engine.SetStakeProgram(stake.NewMemory(ledger, clock, cfg.Reconciler.StakeRentExempt))
	engine.SetTokenProgram(ledger)
	engine.SetClock(clock)
	engine.SetPauses(nativecommon.NewPauses(cfg.Paused...))
	engine.SetEmitter(emitters)

	if bootstrap != "" {
		if err := bootstrapMarket(engine, ledger, bootstrap, logger); err != nil {
			return fmt.Errorf("bootstrap market: %w", err)
		}
	}

	markets := make([]crypto.Pubkey, 0, len(cfg.Cranker.Markets))
	for _, raw := range cfg.Cranker.Markets {
		key, err := crypto.ParsePubkey(raw)
		if err != nil {
			return err
		}
		markets = append(markets, key)
	}
	crank := cranker.New(engine, store, cranker.Config{
		Interval: cfg.Cranker.Interval.Duration,
		Markets:  markets,
	}, logger)

	var limiter *middleware.RateLimiter
	if cfg.Gateway.RateLimitPerSecond > 0 {
		limiter = middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"lending": {RatePerSecond: cfg.Gateway.RateLimitPerSecond, Burst: cfg.Gateway.Burst},
		}, logger)
	}
	router, err := routes.New(routes.Config{
		Engine:      engine,
		Clock:       clock,
		Events:      eventLog,
		RateLimiter: limiter,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.Logging.Service,
		}, logger),
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}
	handler := router
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, "gateway")
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Gateway.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Gateway.Listen, err)
	}

	go epoch.Ticker(ctx, clock, cfg.Clock.SlotDuration.Duration)
	go crank.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "listen", listener.Addr().String())
		serverErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

// bootstrapMarket creates a market owned by a fresh localnet key and opens
// one reserve per validator, funding the seed delegations by airdrop.
func bootstrapMarket(engine *lending.Engine, ledger *bank.Ledger, raw string, logger *slog.Logger) error {
	var validators []crypto.Pubkey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := crypto.ParsePubkey(part)
		if err != nil {
			return err
		}
		validators = append(validators, key)
	}
	if len(validators) == 0 {
		return nil
	}
	owner, err := crypto.NewPubkey()
	if err != nil {
		return err
	}
	seed, err := engine.Params().SeedLamports()
	if err != nil {
		return err
	}
	if err := ledger.Airdrop(owner, seed*uint64(len(validators))); err != nil {
		return err
	}
	market, err := engine.InitLendingMarket(owner)
	if err != nil {
		return err
	}
	for _, validator := range validators {
		reserve, err := engine.InitReserve(market.Key, owner, validator)
		if err != nil {
			return fmt.Errorf("init reserve for %s: %w", validator, err)
		}
		logger.Info("reserve opened", "market", market.Key.String(), "validator", validator.String(), "reserve", reserve.Key.String())
	}
	return nil
}
