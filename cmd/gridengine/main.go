// Command gridengine runs the grid market-making decision core: the
// four-state regime machine, risk triggers and stops, grid generator,
// skew engine, voluntary de-risk engine, order manager, and advantage
// gate, wired together and driven by a venue-agnostic tick loop.
//
// It intentionally does not speak to a real exchange. Venue REST/
// WebSocket adapters are explicitly out of scope for the decision core
// (they are thin, venue-specific wrappers); wiring one in means
// implementing the same four narrow interfaces internal/dryrun does here
// (ordermgr.ExecutionAdapter, ordermgr.PositionActuator,
// riskengine.EmergencyActions, eventloop.PlacerCanceller) against a real
// client. Until that exists, only -dry-run (the default) sessions start:
// every order/cancel/reduce call goes through the logging-only
// internal/dryrun adapter, -dry-run=false exits at startup whether or not
// exchange credentials are set, and the market feed is a synthetic random
// walk rather than a real price stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gridcore/internal/account"
	"gridcore/internal/advantage"
	"gridcore/internal/audit"
	"gridcore/internal/config"
	"gridcore/internal/derisk"
	"gridcore/internal/domain"
	"gridcore/internal/dryrun"
	"gridcore/internal/eventloop"
	"gridcore/internal/execadapter"
	"gridcore/internal/gridgen"
	"gridcore/internal/inventory"
	"gridcore/internal/ordermgr"
	"gridcore/internal/riskengine"
	"gridcore/internal/skew"
	"gridcore/internal/snapshot"
	"gridcore/internal/statemachine"
	"gridcore/internal/volatility"
	"gridcore/pkg/telemetry"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "traded symbol")
	outerLow := flag.Float64("outer-low", 0, "outer range lower bound (required)")
	outerHigh := flag.Float64("outer-high", 0, "outer range upper bound (required)")
	initialBalance := flag.Float64("initial-balance", 10000, "starting equity, in quote currency")
	leverage := flag.Float64("leverage", 1.0, "account leverage, used for the max-inventory-notional cap")
	marketType := flag.String("market-type", "swap", "spot or swap")
	dryRun := flag.Bool("dry-run", true, "never place real orders, even if credentials are present")
	configPath := flag.String("config", "", "optional YAML config file overriding the built-in defaults")
	dataDir := flag.String("data-dir", "./data", "directory for the audit journal and warm-restart snapshot")
	logLevel := flag.String("log-level", "INFO", "DEBUG, INFO, WARN, ERROR, or FATAL")
	tickInterval := flag.Duration("tick-interval", 5*time.Second, "interval between market-data ticks")
	controlTickInterval := flag.Duration("control-tick-interval", 4*time.Hour, "interval between advantage-gate control ticks (spec default 4h)")
	flag.Parse()

	if *marketType != "spot" && *marketType != "swap" {
		fmt.Fprintf(os.Stderr, "invalid -market-type %q: must be spot or swap\n", *marketType)
		os.Exit(1)
	}
	if *outerLow <= 0 || *outerHigh <= *outerLow {
		fmt.Fprintf(os.Stderr, "invalid outer range: -outer-low=%v -outer-high=%v (must have 0 < low < high)\n", *outerLow, *outerHigh)
		os.Exit(1)
	}

	apiKey := os.Getenv("GRIDENGINE_API_KEY")
	apiSecret := os.Getenv("GRIDENGINE_API_SECRET")
	if !*dryRun && (apiKey == "" || apiSecret == "") {
		fmt.Fprintln(os.Stderr, "fatal: -dry-run=false requires GRIDENGINE_API_KEY and GRIDENGINE_API_SECRET")
		os.Exit(1)
	}
	if !*dryRun {
		// No venue adapter is wired up yet (see package doc); refuse to
		// pretend we can trade live rather than silently falling back to
		// dry-run under the user's back.
		fmt.Fprintln(os.Stderr, "fatal: live trading is not implemented; rerun with -dry-run (the default)")
		os.Exit(1)
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	tel, err := telemetry.Setup("gridengine")
	if err != nil {
		logger.Fatal("failed to set up telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}
	cfg.Trading.Symbol = *symbol

	sessionID := "s" + time.Now().Format("20060102_150405")
	logger = logger.With(zap.String("correlation_id", uuid.NewString()))
	logger.Info("starting gridengine",
		zap.String("session_id", sessionID),
		zap.String("symbol", *symbol),
		zap.String("market_type", *marketType),
		zap.Bool("dry_run", *dryRun),
		zap.String("config_hash", cfg.Hash()),
	)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal("failed to create data dir", zap.Error(err))
	}

	pool := pond.New(4, 256)
	defer pool.StopAndWait()

	journal, err := audit.NewFileJournal(*dataDir, "audit_events.jsonl", pool, logger)
	if err != nil {
		logger.Fatal("failed to open audit journal", zap.Error(err))
	}
	defer journal.Close() //nolint:errcheck

	store, err := snapshot.Open(filepath.Join(*dataDir, "engine_state.db"))
	if err != nil {
		logger.Fatal("failed to open snapshot store", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck

	configHashFn := func() string { return cfg.Hash() }

	outerLowD := decimal.NewFromFloat(*outerLow)
	outerHighD := decimal.NewFromFloat(*outerHigh)

	initial := loadInitialRegime(context.Background(), store, sessionID, logger)

	gate := advantage.NewEngine(sessionID, journal, configHashFn, outerLowD, outerHighD)

	rawVenue := dryrun.NewVenueAdapter(logger)
	rawPlacer := dryrun.NewOrderPlacer(logger, rawVenue)

	emergencyTrigger := riskengine.NewEmergencyTrigger()
	applyEmergencyThresholds(emergencyTrigger, cfg.DecisionCore.Emergency)

	// Every place/cancel/cancel-all call against the venue is composed
	// with a failsafe-go retry policy and circuit breaker, and the
	// cancel path is gated by a golang.org/x/time/rate limiter; retry
	// exhaustion and recovery feed the emergency api-fault axis.
	venue := execadapter.New(rawVenue, emergencyTrigger, execadapter.DefaultConfig(), logger)
	placer := execadapter.NewPlacer(rawPlacer, venue)

	orders := ordermgr.New(sessionID, *symbol, journal, venue, venue, throttleConfigFrom(cfg))

	machine := statemachine.New(sessionID, journal, logger, orders, venue, initial)
	machine.SetSymbol(*symbol)
	machine.SetEmergencyExitCallback(func() string {
		_ = venue.EmergencyExit()
		return "emergency_exit_complete"
	})

	inventoryTrigger := riskengine.NewInventoryTrigger()
	applyInventoryThresholds(inventoryTrigger, cfg.DecisionCore.Inventory)
	riskBudgetTrigger := riskengine.NewRiskBudgetTrigger()
	applyRiskBudgetThresholds(riskBudgetTrigger, cfg.DecisionCore.RiskBudget)
	structuralTrigger := riskengine.NewStructuralTrigger()
	structuralTrigger.ConfirmMinutes = cfg.DecisionCore.Structural.ConfirmMinutes
	priceBoundaryTrigger := riskengine.NewPriceBoundaryTrigger()
	priceBoundaryTrigger.BufferATRMult = cfg.DecisionCore.PriceBoundary.BufferATRMult
	priceBoundaryTrigger.MinStateHoldMinutes = float64(cfg.DecisionCore.PriceBoundary.MinStateHoldMinutes)

	inventoryStop := riskengine.NewInventoryStop(inventoryTrigger, orders, journal, sessionID)
	riskBudgetStop := riskengine.NewRiskBudgetStop(riskBudgetTrigger, orders, journal, sessionID)
	structuralStop := riskengine.NewStructuralStop(structuralTrigger, orders, journal, sessionID)
	emergencyStop := riskengine.NewEmergencyStopAction(emergencyTrigger, orders, venue, journal, sessionID)

	riskEng := riskengine.NewEngine(emergencyStop, structuralStop, inventoryStop, riskBudgetStop, priceBoundaryTrigger, machine.CurrentRegime)

	gridCfg := gridgen.DefaultConfig(*symbol, decimal.NewFromFloat(cfg.Trading.OrderQuantity))
	applyGridThresholds(&gridCfg, cfg.DecisionCore.Grid)
	generator := gridgen.New(gridCfg)

	skewCfg := skew.DefaultConfig()
	applySkewThresholds(&skewCfg, cfg.DecisionCore.Skew)
	skewEngine := skew.New(skewCfg)

	deriskCfg := derisk.DefaultConfig()
	applyDeriskThresholds(&deriskCfg, cfg.DecisionCore.Derisk)
	deriskEngine := derisk.New(deriskCfg)

	loop := eventloop.New(sessionID, *symbol, machine, riskEng, generator, skewEngine, deriskEngine, gate, orders, placer, logger)

	maxInventoryNotional := decimal.NewFromFloat(*initialBalance * *leverage)
	inv := inventory.NewInventory(maxInventoryNotional)
	breakeven := inventory.NewBreakeven()
	acctState := account.New()
	acctState.UpdateFromExchange(decimal.NewFromFloat(*initialBalance), decimal.NewFromFloat(*initialBalance), decimal.Zero, decimal.NewFromInt(10), decimal.Zero, decimal.Zero, decimal.Zero, time.Now())

	atrCalc := volatility.NewATR(14)

	feed := &syntheticFeed{
		price: (*outerLow + *outerHigh) / 2,
		rng:   rand.New(rand.NewSource(1)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	tickTicker := time.NewTicker(*tickInterval)
	defer tickTicker.Stop()
	controlTicker := time.NewTicker(*controlTickInterval)
	defer controlTicker.Stop()

	peakEquity := *initialBalance
	lastTickAt := time.Now()

	logger.Info("gridengine running", zap.Duration("tick_interval", *tickInterval), zap.Duration("control_tick_interval", *controlTickInterval))

runLoop:
	for {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			break runLoop
		case ts := <-controlTicker.C:
			loop.OnControlTick(ts)
		case ts := <-tickTicker.C:
			high, low, close := feed.next()
			atr := atrCalc.Update(high, low, close)
			inv.UpdatePrice(close, ts)
			acctState.UpdatePrices(close, nil, ts)

			inventoryRatio := inv.InventoryRatio()
			if inv.IsShort() {
				inventoryRatio = inventoryRatio.Neg()
			}
			inventoryRatioF, _ := inventoryRatio.Float64()
			closeF, _ := close.Float64()
			atrF, _ := atr.Float64()

			equity := acctState.Equity
			equityF, _ := equity.Float64()
			if equityF > peakEquity {
				peakEquity = equityF
			}
			drawdown := 0.0
			if peakEquity > 0 {
				drawdown = (peakEquity - equityF) / peakEquity
			}

			inventoryTrigger.Update(inventoryRatioF, machine.CurrentRegime())
			riskBudgetTrigger.Update(acctState.MarginUsage().InexactFloat64(), drawdown, machine.CurrentRegime())
			structuralTrigger.Update(closeF, machine.CurrentRegime(), *outerLow, *outerHigh, atrF)
			emergencyTrigger.UpdateMarginRatio(acctState.MarginRatio.InexactFloat64())
			emergencyTrigger.UpdateLiqDistance(liqDistanceFloat(acctState))
			emergencyTrigger.UpdateDataAge(time.Since(lastTickAt).Seconds())
			lastTickAt = time.Now()
			stateSince := machine.StateSince()
			priceBoundaryTrigger.Update(closeF, atrF, machine.CurrentRegime(), *outerLow, *outerHigh, &stateSince)

			md := eventloop.MarketData{
				Timestamp:  ts,
				MarkPrice:  close,
				LastPrice:  close,
				ATR:        atr,
				OuterRange: domain.PriceRange{Low: outerLowD, High: outerHighD},
			}
			acc := eventloop.AccountData{
				InventoryRatio: inventoryRatio,
				PositionQty:    inv.PositionQty(),
				BreakevenPrice: breakeven.Price(),
				RealizedPnL:    acctState.RealizedPnL,
				UnrealizedPnL:  acctState.UnrealizedPnL,
				Equity:         equity,
				InitialEquity:  decimal.NewFromFloat(*initialBalance),
				MarginUsage:    acctState.MarginUsage(),
			}

			if err := loop.OnTick(ctx, md, acc); err != nil {
				logger.Error("tick failed", zap.Error(err))
			}

			if err := persistRegime(ctx, store, sessionID, machine, cfg); err != nil {
				logger.Warn("failed to persist warm-restart snapshot", zap.Error(err))
			}
		}
	}

	if err := journal.Flush(); err != nil {
		logger.Error("final journal flush failed", zap.Error(err))
	}
	logger.Info("gridengine stopped", zap.Int("orders_placed", rawPlacer.PlacedCount()))
}

// newLogger builds a zap logger with an OTel bridge, matching the
// console-encoder + otelzap-tee shape the rest of the module uses.
func newLogger(levelStr string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)
	otelCore := otelzap.NewCore("gridengine", otelzap.WithLoggerProvider(global.GetLoggerProvider()))
	combined := zapcore.NewTee(consoleCore, otelCore)

	return zap.New(combined, zap.AddCaller()), nil
}

func loadInitialRegime(ctx context.Context, store *snapshot.Store, sessionID string, logger *zap.Logger) domain.Regime {
	state, err := store.Load(ctx)
	if err != nil {
		logger.Warn("failed to load warm-restart snapshot, starting in Normal", zap.Error(err))
		return domain.RegimeNormal
	}
	if state == nil {
		return domain.RegimeNormal
	}
	logger.Info("recovered warm-restart state", zap.String("regime", string(state.Regime)))
	return state.Regime
}

func persistRegime(ctx context.Context, store *snapshot.Store, sessionID string, machine *statemachine.Machine, cfg *config.Config) error {
	return store.Save(ctx, snapshot.State{
		SessionID:    sessionID,
		Regime:       machine.CurrentRegime(),
		StateSince:   machine.StateSince(),
		ConfigHash:   cfg.Hash(),
		ConfigJSON:   cfg.String(),
		UpdatedAtUTC: time.Now().UTC(),
	})
}

func throttleConfigFrom(cfg *config.Config) ordermgr.ThrottleConfig {
	t := cfg.DecisionCore.OrderManager
	return ordermgr.ThrottleConfig{
		MinOrderLifetimeSeconds:     t.MinOrderLifetimeSeconds,
		PriceChangeThresholdATRMult: t.PriceChangeThresholdATRMult,
		CancelRateLimitPerMinute:    t.CancelRateLimitPerMinute,
		FreezeDurationSeconds:       t.FreezeDurationSeconds,
	}
}

func applyInventoryThresholds(t *riskengine.InventoryTrigger, c config.InventoryThresholds) {
	t.Warn, t.Damage, t.Stop, t.BackToNormal = c.Warn, c.Damage, c.Stop, c.BackToNormal
}

func applyRiskBudgetThresholds(t *riskengine.RiskBudgetTrigger, c config.RiskBudgetThresholds) {
	t.MarginCap, t.MaxDrawdown = c.MarginCap, c.MaxDrawdown
}

func applyEmergencyThresholds(t *riskengine.EmergencyTrigger, c config.EmergencyThresholds) {
	t.LiqDistanceThreshold = c.LiqDistanceThreshold
	t.MarginRatioThreshold = c.MarginRatioThreshold
	t.APIFaultMaxConsecutive = c.APIFaultMaxConsecutive
	t.DataStaleSeconds = float64(c.DataStaleSeconds)
	t.PriceGapATRMult = c.PriceGapATRMult
}

func applyGridThresholds(cfg *gridgen.Config, c config.GridThresholds) {
	cfg.BuyActiveCount = c.BuyActiveCount
	cfg.SellActiveCount = c.SellActiveCount
	cfg.CoreCompressFactor = decimal.NewFromFloat(c.CoreCompressFactor)
	cfg.BufferExpandFactor = decimal.NewFromFloat(c.BufferExpandFactor)
	cfg.EdgeDecayFactor = decimal.NewFromFloat(c.EdgeDecayFactor)
	cfg.EdgeDecayRungs = c.EdgeDecayRungs
}

func applySkewThresholds(cfg *skew.Config, c config.SkewThresholds) {
	cfg.SkewMax = c.SkewMax
	cfg.SkewPerInvUnit = c.SkewPerInvUnit
	cfg.InvThresholdForSkew = c.InvThresholdForSkew
}

func applyDeriskThresholds(cfg *derisk.Config, c config.DeriskThresholds) {
	cfg.HarvestProfitThreshold = c.HarvestProfitThreshold
	cfg.HarvestInventoryRatio = c.HarvestInventoryRatio
	cfg.HarvestRequireMinutes = c.HarvestRequireMinutes
	cfg.DeriskEfficiencyDrop = c.DeriskEfficiencyDrop
	cfg.DeriskMinInventory = c.DeriskMinInventory
	cfg.HouseMoneyProfitPct = c.HouseMoneyProfitPct
	cfg.HouseMoneyReduceTarget = c.HouseMoneyReduceTarget
	cfg.ReduceBatchSize = c.ReduceBatchSize
	cfg.ReduceCooldownMinutes = c.ReduceCooldownMinutes
}

func liqDistanceFloat(s *account.State) *float64 {
	d := s.LiqDistance()
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// syntheticFeed produces a bounded random walk standing in for a real
// price stream. It exists only so the wiring above has something to
// drive it with; a live deployment replaces this with a real venue feed
// behind the same (high, low, close) shape.
type syntheticFeed struct {
	price float64
	rng   *rand.Rand
}

func (f *syntheticFeed) next() (high, low, close decimal.Decimal) {
	noise := f.rng.NormFloat64() * f.price * 0.0015
	f.price = math.Max(f.price+noise, 0.01)
	spread := f.price * 0.0005
	return decimal.NewFromFloat(f.price + spread),
		decimal.NewFromFloat(f.price - spread),
		decimal.NewFromFloat(f.price)
}
