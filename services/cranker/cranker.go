// Package cranker periodically refreshes every reserve and rolls its stake
// tranches forward. Cranking is permissionless; any number of crankers can
// run against the same state since each reconciliation pass is a no-op once
// the reserve has seen the current epoch.
package cranker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/palindrome-eng/srl-program/crypto"
	"github.com/palindrome-eng/srl-program/native/lending"
	"github.com/palindrome-eng/srl-program/observability/metrics"
	telemetry "github.com/palindrome-eng/srl-program/observability/otel"
)

// Engine is the subset of the lending engine the cranker drives.
type Engine interface {
	Reserves(market crypto.Pubkey) ([]*lending.Reserve, error)
	RefreshEpoch(market, validator crypto.Pubkey) (lending.ReconcileReport, error)
}

// MarketLister enumerates markets when no explicit list is configured.
type MarketLister interface {
	ListMarkets() ([]crypto.Pubkey, error)
}

type Config struct {
	Interval time.Duration
	// Markets restricts cranking to the listed markets.
	Markets []crypto.Pubkey
}

// Summary reports one cranking round.
type Summary struct {
	RunID      string
	Markets    int
	Reserves   int
	Reconciled int
	Failed     int
}

type Cranker struct {
	engine    Engine
	markets   MarketLister
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
	telemetry *metrics.LendingMetrics
	nowFn     func() time.Time
}

func New(engine Engine, markets MarketLister, cfg Config, logger *slog.Logger) *Cranker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cranker{
		engine:    engine,
		markets:   markets,
		cfg:       cfg,
		logger:    logger.With("component", "cranker"),
		tracer:    telemetry.Tracer("icarus/cranker"),
		telemetry: metrics.Lending(),
		nowFn:     time.Now,
	}
}

// Run cranks once immediately and then on every interval until ctx is
// cancelled.
func (c *Cranker) Run(ctx context.Context) {
	if c.engine == nil {
		return
	}
	c.Round(ctx)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Round(ctx)
		}
	}
}

// Round refreshes every reserve of every target market once. Failures on
// one reserve do not stop the round.
func (c *Cranker) Round(ctx context.Context) Summary {
	summary := Summary{RunID: uuid.NewString()}
	start := c.nowFn()
	ctx, span := c.tracer.Start(ctx, "cranker.round", trace.WithAttributes(
		attribute.String("run_id", summary.RunID),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("reserves", summary.Reserves),
			attribute.Int("reconciled", summary.Reconciled),
			attribute.Int("failed", summary.Failed),
		)
		if summary.Failed > 0 {
			span.SetStatus(codes.Error, "reserve refresh failed")
		}
		span.End()
		c.telemetry.ObserveCrankRound(c.nowFn().Sub(start).Seconds())
	}()
	log := c.logger.With("run_id", summary.RunID)

	markets, err := c.targets()
	if err != nil {
		log.Error("list markets", "error", err)
		summary.Failed++
		return summary
	}
	summary.Markets = len(markets)
	for _, market := range markets {
		if ctx.Err() != nil {
			return summary
		}
		reserves, err := c.engine.Reserves(market)
		if err != nil {
			log.Error("list reserves", "market", market.String(), "error", err)
			summary.Failed++
			continue
		}
		for _, reserve := range reserves {
			summary.Reserves++
			report, err := c.engine.RefreshEpoch(reserve.Market, reserve.Validator)
			if err != nil {
				log.Warn("refresh epoch", "reserve", reserve.Key.String(), "error", err)
				summary.Failed++
				continue
			}
			if report.Noop() {
				continue
			}
			summary.Reconciled++
			log.Info("reserve reconciled",
				"reserve", reserve.Key.String(),
				"epoch", reserve.LastEpoch+report.EpochsAdvanced,
				"activated", report.Activated,
				"merged", len(report.Merged),
				"swept", report.Swept,
				"deactivated", report.Deactivated,
			)
		}
	}
	return summary
}

func (c *Cranker) targets() ([]crypto.Pubkey, error) {
	if len(c.cfg.Markets) > 0 {
		return c.cfg.Markets, nil
	}
	if c.markets == nil {
		return nil, nil
	}
	return c.markets.ListMarkets()
}
