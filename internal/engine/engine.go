// Package engine runs the strategy cycle loop: resync, reconcile, plan,
// execute, persist. One engine owns one state document; everything in a
// cycle runs on a single logical sequence.
package engine

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/executor"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/routing"
	"github.com/driftline/ate/internal/state"
	"github.com/driftline/ate/internal/syncmodel"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
)

// TradeInstruction is one strategy decision handed to the engine. Buys give
// a reserve amount to spend; sells give the base quantity to dispose.
type TradeInstruction struct {
	Pair              types.TradingPairIdentifier
	Direction         types.TradeDirection
	Quantity          sdkmath.LegacyDec
	ReserveAmount     sdkmath.LegacyDec
	SlippageTolerance float64
}

// Strategy supplies trade decisions. The engine treats it as an external
// collaborator; a nil strategy runs reconciliation-only cycles.
type Strategy interface {
	DecideTrades(ctx context.Context, st *portfolio.State, u *universe.PairUniverse, pricing universe.PricingModel, at time.Time) ([]TradeInstruction, error)
}

// Options are the tunables the engine needs per run.
type Options struct {
	MaxSlippageFraction float64
	CycleInterval       time.Duration
	// CheckBalances forces on-chain input balance reads before swaps.
	CheckBalances bool
	// GasWarnBalanceWei triggers a low gas tank warning. Zero disables.
	GasWarnBalanceWei uint64
}

// Engine wires the subsystems into the cycle loop.
type Engine struct {
	syncModel syncmodel.SyncModel
	executor  *executor.Executor
	chain     *chain.Client
	universe  *universe.PairUniverse
	pricing   universe.PricingModel
	strategy  Strategy
	gasWallet *wallet.HotWallet
	state     *portfolio.State
	opts      Options
	logger    zerolog.Logger

	// LastReport is the most recent cycle report, served by the web status
	// endpoints.
	LastReport *executor.CycleReport
}

// NewEngine assembles the engine. gasWallet may be nil for the no-op model.
func NewEngine(
	syncModel syncmodel.SyncModel,
	exec *executor.Executor,
	chainClient *chain.Client,
	u *universe.PairUniverse,
	pricing universe.PricingModel,
	strategy Strategy,
	gasWallet *wallet.HotWallet,
	st *portfolio.State,
	opts Options,
) (*Engine, error) {
	if syncModel == nil {
		return nil, fmt.Errorf("sync model is required")
	}
	if st == nil {
		return nil, fmt.Errorf("state is required")
	}
	return &Engine{
		syncModel: syncModel,
		executor:  exec,
		chain:     chainClient,
		universe:  u,
		pricing:   pricing,
		strategy:  strategy,
		gasWallet: gasWallet,
		state:     st,
		opts:      opts,
		logger:    logger.GetForComponent("engine"),
	}, nil
}

// State exposes the live state document, read-only by convention.
func (e *Engine) State() *portfolio.State {
	return e.state
}

// RunLoop runs cycles until the context is cancelled.
func (e *Engine) RunLoop(ctx context.Context) error {
	e.logger.Info().Dur("interval", e.opts.CycleInterval).Msg("Starting engine loop")
	for {
		if report, err := e.RunCycle(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Cycle failed")
		} else {
			e.logger.Info().Str("summary", report.String()).Msg("Cycle complete")
		}
		select {
		case <-time.After(e.opts.CycleInterval):
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopping")
			return ctx.Err()
		}
	}
}

// RunCycle executes one full pass: nonce resync, treasury reconciliation,
// strategy decisions, trade execution, persistence.
func (e *Engine) RunCycle(ctx context.Context) (*executor.CycleReport, error) {
	cycleID := uuid.New().String()
	startedAt := time.Now()
	log := e.logger.With().Str("cycle_id", cycleID).Logger()
	report := executor.NewCycleReport(cycleID, startedAt)

	if err := e.syncModel.ResyncNonce(ctx); err != nil {
		return nil, fmt.Errorf("nonce resync: %w", err)
	}

	updates, scan, err := e.syncModel.SyncTreasury(ctx, startedAt, e.state, e.universe)
	if err != nil {
		return nil, fmt.Errorf("treasury sync: %w", err)
	}
	report.BalanceUpdateCount = len(updates)
	if scan != nil {
		report.DuplicateEventCount = scan.DuplicateEvents
		report.UncheckedAssets = scan.UncheckedAssets
	}

	e.warnOnLowGas(ctx, log)

	trades, err := e.planTrades(ctx, startedAt, log, report)
	if err != nil {
		return nil, err
	}

	if len(trades) > 0 {
		if err := e.executeTrades(ctx, trades, report, log); err != nil {
			return nil, err
		}
	}

	e.state.MarkCycle(startedAt)
	report.Duration = time.Since(startedAt)
	e.LastReport = report

	if err := e.persist(report, log); err != nil {
		return nil, err
	}
	return report, nil
}

// planTrades asks the strategy for decisions and mints trades for them.
func (e *Engine) planTrades(ctx context.Context, at time.Time, log zerolog.Logger, report *executor.CycleReport) ([]*types.Trade, error) {
	if e.strategy == nil {
		return nil, nil
	}
	instructions, err := e.strategy.DecideTrades(ctx, e.state, e.universe, e.pricing, at)
	if err != nil {
		return nil, fmt.Errorf("strategy decisions: %w", err)
	}
	var trades []*types.Trade
	for _, instruction := range instructions {
		price, err := e.plannedPrice(ctx, instruction)
		if err != nil {
			log.Warn().Err(err).Str("pair", instruction.Pair.String()).Msg("Skipping trade without a price quote")
			report.Skip(0, instruction.Pair.String(), fmt.Sprintf("no price quote: %v", err))
			continue
		}
		quantity := instruction.Quantity
		reserveAmount := instruction.ReserveAmount
		if instruction.Direction == types.TradeBuy {
			if reserveAmount.IsNil() || !reserveAmount.IsPositive() {
				report.Skip(0, instruction.Pair.String(), "buy instruction without a positive reserve amount")
				continue
			}
			quantity = reserveAmount.Quo(price)
		} else {
			if quantity.IsNil() || quantity.IsZero() {
				report.Skip(0, instruction.Pair.String(), "sell instruction without a quantity")
				continue
			}
			reserveAmount = quantity.Abs().Mul(price)
		}
		trade := e.state.Portfolio.CreateTrade(
			instruction.Pair, instruction.Direction,
			quantity, reserveAmount, price,
			instruction.SlippageTolerance, at,
		)
		trades = append(trades, trade)
	}
	return trades, nil
}

func (e *Engine) plannedPrice(ctx context.Context, instruction TradeInstruction) (sdkmath.LegacyDec, error) {
	if e.pricing == nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("no pricing model configured")
	}
	if instruction.Direction == types.TradeBuy {
		return e.pricing.GetBuyPrice(ctx, instruction.Pair, nilIfZero(instruction.ReserveAmount))
	}
	return e.pricing.GetSellPrice(ctx, instruction.Pair, nilIfZero(instruction.Quantity.Abs()))
}

func nilIfZero(quantity sdkmath.LegacyDec) *sdkmath.LegacyDec {
	if quantity.IsNil() || quantity.IsZero() {
		return nil
	}
	return &quantity
}

// executeTrades starts a sequencing pass and hands the trades to the
// executor.
func (e *Engine) executeTrades(ctx context.Context, trades []*types.Trade, report *executor.CycleReport, log zerolog.Logger) error {
	builder, err := e.syncModel.CreateTransactionBuilder(ctx)
	if err != nil {
		return fmt.Errorf("transaction builder: %w", err)
	}
	if builder == nil {
		for _, trade := range trades {
			report.Skip(trade.ID, trade.Pair.String(), "sync model cannot sign, trade not executed")
		}
		log.Info().Int("trades", len(trades)).Msg("No signing capability, trades recorded but not executed")
		return nil
	}
	routingState := routing.NewRoutingState(builder, e.chain, e.syncModel.HolderAddress())
	return e.executor.ExecuteTrades(
		ctx, routingState, e.universe, e.state.Portfolio,
		trades, e.opts.MaxSlippageFraction, e.opts.CheckBalances, report,
	)
}

// warnOnLowGas checks the signer's native balance against the configured
// floor.
func (e *Engine) warnOnLowGas(ctx context.Context, log zerolog.Logger) {
	if e.gasWallet == nil || e.chain == nil || e.opts.GasWarnBalanceWei == 0 {
		return
	}
	balance, err := e.gasWallet.GasBalance(ctx, e.chain)
	if err != nil {
		log.Warn().Err(err).Msg("Gas balance preflight failed")
		return
	}
	if balance.LT(sdkmath.NewIntFromUint64(e.opts.GasWarnBalanceWei)) {
		log.Warn().
			Str("balance_wei", balance.String()).
			Uint64("floor_wei", e.opts.GasWarnBalanceWei).
			Msg("Gas tank is running low")
	}
}

// persist saves the state document and the cycle summary. Persistence
// failures are cycle-fatal so the ledger and the chain never drift apart
// silently.
func (e *Engine) persist(report *executor.CycleReport, log zerolog.Logger) error {
	if state.DB == nil {
		log.Debug().Msg("No database configured, skipping persistence")
		return nil
	}
	if err := state.SaveState(e.state); err != nil {
		return err
	}
	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		return err
	}
	if _, err := state.SaveCycleSummary(cycleNumber, report); err != nil {
		return err
	}
	return nil
}
