// Command marketmaker runs a single-venue, single-symbol high-frequency
// market-making engine.
//
// Architecture:
//
//	main.go                    — loads config/flags, wires adapter + quoter, runs the engine
//	internal/engine             — orchestrator: tick/strategy/order/risk workers over SPSC queues
//	internal/book                — best-bid/ask/VWAP/imbalance book kept by the tick worker
//	internal/strategy            — Quoter variants (baseline, inventory-adjusted, Avellaneda-Stoikov)
//	internal/risk                — pre-trade gate, position/PnL tracking, kill switch
//	internal/exchange             — Adapter contract plus a REST+WS venue client and a paper adapter
//	internal/store                — crash-safe JSON position persistence
//	internal/api                  — read-only snapshot/metrics HTTP surface
//
// The bot earns the spread by quoting both sides of the book simultaneously.
// Inventory skew shifts both quotes down while long and up while short, and
// the risk gate's kill switch halts quoting the moment losses or errors
// exceed their configured thresholds.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/0xtitan6/hft-marketmaker/internal/api"
	"github.com/0xtitan6/hft-marketmaker/internal/config"
	"github.com/0xtitan6/hft-marketmaker/internal/engine"
	"github.com/0xtitan6/hft-marketmaker/internal/exchange"
	"github.com/0xtitan6/hft-marketmaker/internal/risk"
	"github.com/0xtitan6/hft-marketmaker/internal/store"
	"github.com/0xtitan6/hft-marketmaker/internal/strategy"
	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

const exitStartupFailure = 1

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath   = flag.StringP("config", "c", "configs/config.yaml", "path to the YAML config file")
		testnet   = flag.Bool("testnet", false, "swap in the exchange's testnet REST/WS endpoints")
		symbolOpt = flag.StringP("symbol", "s", "", "override trading.symbol from the config file")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *cfgPath, err)
		return exitStartupFailure
	}
	if *symbolOpt != "" {
		cfg.Trading.Symbol = *symbolOpt
	}
	if *testnet {
		applyTestnetEndpoints(cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return exitStartupFailure
	}

	logger := newLogger(cfg.Logging)

	symbol, err := fixedpoint.NewSymbol(cfg.Trading.Symbol)
	if err != nil {
		logger.Error("invalid trading symbol", "symbol", cfg.Trading.Symbol, "error", err)
		return exitStartupFailure
	}

	reg := prometheus.NewRegistry()

	adapter, err := buildAdapter(*cfg)
	if err != nil {
		logger.Error("failed to build exchange adapter", "error", err)
		return exitStartupFailure
	}

	quoter, err := buildQuoter(cfg.Strategy, fixedpoint.NewMonotonicClock())
	if err != nil {
		logger.Error("failed to build quoter", "error", err)
		return exitStartupFailure
	}

	positionStore, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open position store", "error", err)
		return exitStartupFailure
	}
	defer positionStore.Close()

	eng, err := engine.New(engineConfig(*cfg, symbol), adapter, quoter, fixedpoint.NewMonotonicClock(), logger, reg)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return exitStartupFailure
	}

	if saved, err := positionStore.LoadPosition(cfg.Trading.Symbol); err != nil {
		logger.Error("failed to load saved position", "error", err)
	} else if saved != nil {
		eng.RestorePosition(*saved)
		logger.Info("restored position", "symbol", cfg.Trading.Symbol, "qty", saved.Qty.ToFloat())
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		return exitStartupFailure
	}

	logger.Info("market maker started",
		"symbol", cfg.Trading.Symbol,
		"variant", cfg.Strategy.Variant,
		"paper_trading", cfg.Trading.PaperTrading,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case evt := <-eng.Fatal():
		logger.Error("engine forced shutdown", "kind", evt.Kind.String(), "message", evt.Message)
		exitCode = 1
	}

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
	eng.Stop()

	if pos := eng.PositionSnapshot(); true {
		if err := positionStore.SavePosition(cfg.Trading.Symbol, pos); err != nil {
			logger.Error("failed to persist position on shutdown", "error", err)
		}
	}

	return exitCode
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyTestnetEndpoints swaps production URLs for their testnet
// counterparts. Real venues publish distinct testnet hosts; this mirrors
// the convention of suffixing a recognizable marker since no concrete
// venue's testnet topology is pinned by the config schema itself.
func applyTestnetEndpoints(cfg *config.Config) {
	if cfg.Exchange.RESTURL != "" {
		cfg.Exchange.RESTURL = withTestnetHost(cfg.Exchange.RESTURL)
	}
	if cfg.Exchange.WSURL != "" {
		cfg.Exchange.WSURL = withTestnetHost(cfg.Exchange.WSURL)
	}
}

func withTestnetHost(url string) string {
	const marker = "testnet."
	for i := 0; i < len(url); i++ {
		if url[i] == '/' && i+1 < len(url) && url[i+1] == '/' {
			return url[:i+2] + marker + url[i+2:]
		}
	}
	return marker + url
}

func buildAdapter(cfg config.Config) (exchange.Adapter, error) {
	if cfg.Trading.PaperTrading {
		return exchange.New("paper", exchange.PaperConfig{
			BaseAsset:     "BASE",
			QuoteAsset:    "QUOTE",
			StartBaseQty:  fixedpoint.QtyFromFloat(0),
			StartQuoteQty: fixedpoint.QtyFromFloat(100000),
		})
	}
	return exchange.New(cfg.Exchange.Name, exchange.RESTWSConfig{
		RESTBaseURL: cfg.Exchange.RESTURL,
		WSURL:       cfg.Exchange.WSURL,
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		DryRun:      false,
		Limits:      exchange.DefaultRateLimits(),
	})
}

func buildQuoter(cfg config.StrategyConfig, clock fixedpoint.Clock) (strategy.Quoter, error) {
	params := strategy.Params{
		MinSpreadBps:     cfg.MinSpreadBps,
		MaxSpreadBps:     cfg.MaxSpreadBps,
		TargetSpreadBps:  cfg.TargetSpreadBps,
		InventorySkew:    cfg.InventorySkew,
		InventoryTarget:  cfg.InventoryTarget,
		MaxPosition:      fixedpoint.QtyFromFloat(cfg.MaxPosition),
		DefaultOrderSize: fixedpoint.QtyFromFloat(cfg.DefaultOrderSize),
		MinOrderSize:     fixedpoint.QtyFromFloat(cfg.MinOrderSize),
		MaxOrderSize:     fixedpoint.QtyFromFloat(cfg.MaxOrderSize),
		TickSize:         fixedpoint.PriceFromFloat(cfg.TickSize),
	}

	switch cfg.Variant {
	case "", "baseline":
		return strategy.NewBaseline(params), nil
	case "inventory_adjusted":
		return strategy.NewInventoryAdjusted(params), nil
	case "avellaneda_stoikov":
		return strategy.NewAvellanedaStoikov(params, strategy.ASParams{
			Gamma:     cfg.Gamma,
			Sigma:     cfg.Sigma,
			Kappa:     cfg.K,
			Horizon:   cfg.T,
			StartTime: clock.Now(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown strategy.variant %q", cfg.Variant)
	}
}

func engineConfig(cfg config.Config, symbol fixedpoint.Symbol) engine.Config {
	ec := engine.DefaultConfig()
	ec.Symbol = symbol
	ec.RiskLimits = risk.Limits{
		MaxOrderQty:     fixedpoint.QtyFromFloat(cfg.Risk.MaxOrderQty),
		MaxOrderValue:   fixedpoint.Notional(fixedpoint.PriceFromFloat(cfg.Risk.MaxOrderValue)),
		MaxOrdersPerSec: cfg.Risk.MaxOrdersPerSecond,
		MaxOpenOrders:   cfg.Risk.MaxOpenOrders,
		MaxPositionQty:  fixedpoint.QtyFromFloat(cfg.Risk.MaxPositionQty),
		MaxPositionVal:  fixedpoint.Notional(fixedpoint.PriceFromFloat(cfg.Risk.MaxPositionValue)),
		MaxDailyLoss:    fixedpoint.Notional(fixedpoint.PriceFromFloat(cfg.Risk.MaxDailyLoss)),
		MaxDrawdown:     fixedpoint.Notional(fixedpoint.PriceFromFloat(cfg.Risk.MaxDrawdown)),
		MaxDeviationBps: cfg.Risk.MaxDeviationBps,
		ErrorThreshold:  cfg.Risk.ErrorThreshold,
		RejectThreshold: cfg.Risk.RejectThreshold,
	}
	ec.RiskRecomputeInterval = time.Second
	ec.FlowWindow = time.Duration(cfg.Flow.WindowSeconds) * time.Second
	ec.FlowToxicityThreshold = cfg.Flow.ToxicityThreshold
	ec.FlowCooldown = time.Duration(cfg.Flow.CooldownSeconds) * time.Second
	ec.FlowMaxWidenBps = cfg.Flow.MaxWidenBps
	return ec
}
