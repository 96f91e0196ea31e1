// Package engine is the cycle scheduler and the single logical writer of all
// trading state.
//
// Each cycle it reads the portfolio, folds it into the performance tracker,
// adapts risk parameters, scans markets, evaluates strategies, gates the
// ranked opportunities, asks the reasoner to pick among the survivors, and
// executes at most one trade. All mutations of the caches, the risk
// parameters, the performance state, and the pending-order set happen on the
// cycle goroutine.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Snapwave333/klashibot-sub000/internal/api"
	"github.com/Snapwave333/klashibot-sub000/internal/cache"
	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/internal/exchange"
	"github.com/Snapwave333/klashibot-sub000/internal/executor"
	"github.com/Snapwave333/klashibot-sub000/internal/perf"
	"github.com/Snapwave333/klashibot-sub000/internal/reasoning"
	"github.com/Snapwave333/klashibot-sub000/internal/risk"
	"github.com/Snapwave333/klashibot-sub000/internal/scanner"
	"github.com/Snapwave333/klashibot-sub000/internal/store"
	"github.com/Snapwave333/klashibot-sub000/internal/strategy"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

const (
	portfolioTimeout = 2 * time.Second
	maxBackoff       = 30 * time.Second
	eventBuffer      = 100
)

// Engine orchestrates one trading pipeline.
type Engine struct {
	cfg       config.Config
	port      exchange.Port
	reasoner  reasoning.Reasoner
	scanner   *scanner.Scanner
	evaluator *strategy.Evaluator
	gate      *risk.Gate
	tracker   *perf.Tracker
	executor  *executor.Executor
	store     *store.Store
	logger    *slog.Logger

	// Cycle-goroutine state. Single writer; see package comment.
	params     types.RiskParams
	cycleIndex uint64
	backoff    time.Duration
	haltedDay  string   // "2006-01-02" of the day the breaker tripped
	pending    []string // order IDs to cancel before the cycle ends

	events chan api.Event

	snapMu   sync.RWMutex
	snapshot api.Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New wires the pipeline around an exchange port and a reasoner. Risk
// parameters persisted by a previous run are restored from the store.
func New(
	cfg config.Config,
	port exchange.Port,
	reasoner reasoning.Reasoner,
	st *store.Store,
	logger *slog.Logger,
) (*Engine, error) {
	marketList := cache.New[[]types.Market](cfg.Cache.MarketsTTL, cfg.Cache.MaxSize)
	books := cache.New[types.OrderBook](cfg.Cache.MarketsTTL, cfg.Cache.MaxSize)
	opps := cache.New[types.MarketOpportunity](cfg.Cache.OpportunityTTL, cfg.Cache.MaxSize)

	params := cfg.Risk
	if st != nil {
		saved, err := st.LoadRiskParams()
		if err != nil {
			return nil, fmt.Errorf("restore risk params: %w", err)
		}
		if saved != nil {
			params = *saved
			logger.Info("restored persisted risk params",
				"kelly_fraction", params.KellyFraction,
				"min_edge_pct", params.MinEdgePct)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		port:      port,
		reasoner:  reasoner,
		scanner:   scanner.New(port, cfg.Scanner, marketList, books, logger),
		evaluator: strategy.NewEvaluator(nil, opps, cfg.Cache.OpportunityTTL, logger),
		gate:      risk.NewGate(nil, logger),
		tracker:   perf.NewTracker(),
		executor:  executor.New(port, cfg.Executor, logger),
		store:     st,
		logger:    logger.With("component", "engine"),
		params:    params,
		events:    make(chan api.Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}, nil
}

// Events is the outbound event stream consumed by the observer server.
// Closed on Stop.
func (e *Engine) Events() <-chan api.Event {
	return e.events
}

// Start launches the cycle loop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
	return nil
}

// Stop shuts down: stops the loop, cancels any resting orders as a safety
// net, persists risk parameters, and closes the event stream.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCancel()
	for _, id := range e.pending {
		if err := e.port.CancelOrder(cancelCtx, id); err != nil {
			e.logger.Error("failed to cancel order on shutdown", "order_id", id, "error", err)
		}
	}

	if e.store != nil {
		if err := e.store.SaveRiskParams(e.params); err != nil {
			e.logger.Error("failed to persist risk params", "error", err)
		}
		e.store.Close()
	}

	close(e.events)
	e.logger.Info("shutdown complete")
}

// run executes cycles at the configured interval, stretching the sleep by
// any rate-limit backoff.
func (e *Engine) run() {
	interval := e.cfg.Engine.CycleInterval

	for {
		start := e.now()
		e.runCycle(e.ctx)

		sleep := interval - e.now().Sub(start) + e.backoff
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle is one pass of the pipeline. Every failure path emits an event
// and returns; only validation errors escalate beyond the cycle boundary.
func (e *Engine) runCycle(ctx context.Context) {
	e.cycleIndex++
	cycleStart := e.now()
	e.emit(api.NewEvent(api.EventCycleBegin, api.CyclePayload{CycleIndex: e.cycleIndex}))
	defer func() {
		e.cancelPending(ctx)
		e.emit(api.NewEvent(api.EventCycleEnd, api.CyclePayload{
			CycleIndex: e.cycleIndex,
			DurationMS: e.now().Sub(cycleStart).Milliseconds(),
		}))
	}()

	portfolio, err := e.fetchPortfolio(ctx)
	if err != nil {
		e.emitError(api.SeverityWarn, "PortfolioUnavailable", err)
		return
	}
	e.tracker.ObservePortfolio(*portfolio)
	e.emit(api.NewEvent(api.EventPortfolio, portfolio))

	// Adaptation runs even on a halted day: the breaker stops order flow,
	// not the feedback loop.
	e.adaptParams()

	if e.checkCircuitBreaker(*portfolio) {
		return
	}

	candidates, err := e.scanner.Scan(ctx)
	if err != nil {
		e.emitError(api.SeverityWarn, "ScanFailed", err)
		return
	}

	opps := e.evaluator.EvaluateAll(candidates, e.params.MinEdgePct)
	e.emit(api.NewEvent(api.EventOpportunities, opps))

	admitted, rejections, err := e.gate.FilterAndSize(opps, *portfolio, e.params, e.cfg.Engine.TopKAdmitted)
	for _, rej := range rejections {
		e.emit(api.NewEvent(api.EventRiskBlocked, api.RiskBlockedPayload{
			Reason: rej.Reason, Ticker: rej.Ticker,
		}))
	}
	if err != nil {
		if errors.Is(err, types.ErrCircuitBreaker) {
			e.tripBreaker(err)
		} else {
			e.emitError(api.SeverityError, "RiskGateFailed", err)
		}
		e.updateSnapshot(*portfolio, opps)
		return
	}
	e.updateSnapshot(*portfolio, opps)

	if len(admitted) == 0 {
		return
	}

	decision := e.decide(ctx, *portfolio, admitted)
	e.dispatch(ctx, decision, admitted, *portfolio)
}

// fetchPortfolio reads the portfolio under its own deadline.
func (e *Engine) fetchPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error) {
	pctx, cancel := context.WithTimeout(ctx, portfolioTimeout)
	defer cancel()
	return e.port.GetPortfolio(pctx)
}

// checkCircuitBreaker reports whether trading is halted for today, tripping
// the breaker first if this portfolio read crosses the daily loss limit.
// Portfolio reads continue while halted.
func (e *Engine) checkCircuitBreaker(p types.PortfolioSnapshot) bool {
	today := e.now().Format("2006-01-02")
	if e.haltedDay == today {
		return true
	}
	e.haltedDay = "" // new day, breaker resets

	if p.DailyPnLPct() <= -e.params.MaxDailyLossPct {
		e.tripBreaker(fmt.Errorf("%w: daily pnl %.2f%% breaches -%.1f%%",
			types.ErrCircuitBreaker, p.DailyPnLPct(), e.params.MaxDailyLossPct))
		return true
	}
	return false
}

func (e *Engine) tripBreaker(err error) {
	e.haltedDay = e.now().Format("2006-01-02")
	e.logger.Error("circuit breaker tripped, trading halted for the day", "error", err)
	e.emitError(api.SeverityCritical, "CircuitBreakerTripped", err)
}

// adaptParams runs the adaptive loop and persists/announces any changes.
func (e *Engine) adaptParams() {
	updated, changes := risk.Adapt(e.tracker.Snapshot(), e.params)
	if len(changes) == 0 {
		return
	}
	e.params = updated
	for _, ch := range changes {
		e.logger.Info("risk param adapted",
			"param", ch.Param, "before", ch.Before, "after", ch.After, "reason", ch.Reason)
		e.emit(api.NewEvent(api.EventDecision, api.DecisionPayload{
			Param: ch.Param, Before: ch.Before, After: ch.After, Reason: ch.Reason,
		}))
	}
	if e.store != nil {
		if err := e.store.SaveRiskParams(e.params); err != nil {
			e.logger.Warn("failed to persist risk params", "error", err)
		}
	}
}

// decide asks the reasoner under min(configured deadline, I/2), falling back
// to the top admitted opportunity as a plain trade.
func (e *Engine) decide(
	ctx context.Context,
	portfolio types.PortfolioSnapshot,
	admitted []types.MarketOpportunity,
) reasoning.Decision {
	deadline := e.cfg.Reasoning.Deadline
	if half := e.cfg.Engine.CycleInterval / 2; half < deadline {
		deadline = half
	}

	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	decision, err := e.reasoner.Decide(dctx, e.buildContext(portfolio, admitted))
	if err != nil {
		e.emitError(api.SeverityWarn, "ReasonerUnavailable", err)
		top := admitted[0]
		return reasoning.Decision{
			Kind:      reasoning.DecideTrade,
			Ticker:    top.Ticker,
			Side:      top.Side,
			Size:      top.SuggestedSize,
			Reasoning: "fallback: reasoner unavailable",
		}
	}
	return *decision
}

// buildContext serializes engine state into the reasoner's packet.
func (e *Engine) buildContext(
	portfolio types.PortfolioSnapshot,
	admitted []types.MarketOpportunity,
) reasoning.Context {
	positions := make([]reasoning.PositionContext, 0, len(portfolio.Positions))
	for _, pos := range portfolio.Positions {
		positions = append(positions, reasoning.PositionContext{
			Ticker:       pos.Ticker,
			Quantity:     pos.Quantity,
			EntryPrice:   pos.EntryPrice,
			CurrentPrice: pos.CurrentPrice,
		})
	}

	state := e.tracker.Snapshot()
	perStrategy := make(map[string]reasoning.StrategyContext, len(state.PerStrategy))
	for name, s := range state.PerStrategy {
		perStrategy[name] = reasoning.StrategyContext{
			Count:        s.Count,
			AvgEdge:      s.AvgEdge,
			AvgLatencyMS: s.AvgLatencyMS,
			TotalPnL:     s.TotalPnL,
		}
	}

	return reasoning.Context{
		Portfolio: reasoning.PortfolioContext{
			Cash:      portfolio.Cash,
			Equity:    portfolio.Equity,
			DailyPnL:  portfolio.DailyPnL,
			Positions: positions,
		},
		Opportunities: admitted,
		Performance: reasoning.PerformanceContext{
			WinRate:           state.WinRate(),
			Trades:            state.Trades(),
			TotalPnL:          state.TotalPnL,
			ConsecutiveWins:   state.ConsecutiveWins,
			ConsecutiveLosses: state.ConsecutiveLosses,
			DrawdownPct:       state.DrawdownPct,
			PerStrategy:       perStrategy,
		},
		RiskParams: e.params,
	}
}

// dispatch acts on the reasoner's decision.
func (e *Engine) dispatch(
	ctx context.Context,
	decision reasoning.Decision,
	admitted []types.MarketOpportunity,
	portfolio types.PortfolioSnapshot,
) {
	switch decision.Kind {
	case reasoning.DecideHold:
		e.logger.Info("holding", "reasoning", decision.Reasoning)

	case reasoning.DecideTrade:
		opp, ok := matchOpportunity(admitted, decision.Ticker)
		if !ok {
			e.logger.Warn("reasoner picked unadmitted ticker, using top-ranked",
				"ticker", decision.Ticker)
			opp = admitted[0]
		}
		if decision.Size > 0 && decision.Size < opp.SuggestedSize {
			opp.SuggestedSize = decision.Size // reasoner may shrink, never grow
		}
		if decision.PriceHint >= 1 && decision.PriceHint <= 99 {
			opp.EntryPrice = decision.PriceHint
		}
		e.execute(ctx, opp)

	case reasoning.DecideAdjust:
		e.applyAdjust(decision)

	case reasoning.DecideClose:
		e.closePosition(ctx, decision, portfolio)
	}
}

// execute submits one opportunity and folds the result into state.
func (e *Engine) execute(ctx context.Context, opp types.MarketOpportunity) {
	result := e.executor.Execute(ctx, opp)

	if result.Backoff {
		if e.backoff == 0 {
			e.backoff = e.cfg.Engine.CycleInterval
		} else {
			e.backoff *= 2
		}
		if e.backoff > maxBackoff {
			e.backoff = maxBackoff
		}
		e.logger.Warn("rate limited, extending next cycle", "backoff", e.backoff)
	} else {
		e.backoff = 0
	}

	if result.Err != nil {
		severity := api.SeverityError
		if errors.Is(result.Err, types.ErrDeadlineExceeded) {
			severity = api.SeverityWarn
		}
		e.emitError(severity, errorCode(result.Err), result.Err)
		return
	}

	order := result.Order
	if order == nil {
		return
	}

	// Resting or partially filled orders are cancelled at cycle end rather
	// than left working into the next cycle.
	if order.OrderID != "" && order.FillQty < opp.SuggestedSize {
		e.pending = append(e.pending, order.OrderID)
	}

	if result.Outcome == nil {
		return
	}

	outcome := *result.Outcome
	e.tracker.RecordOutcome(outcome)
	if e.store != nil {
		if err := e.store.AppendOutcome(outcome); err != nil {
			e.logger.Warn("failed to append audit log", "error", err)
		}
	}

	e.emit(api.NewEvent(api.EventExecution, api.ExecutionPayload{
		OrderID:     order.OrderID,
		Ticker:      opp.Ticker,
		Side:        string(opp.Side),
		Qty:         order.FillQty,
		FillPrice:   order.FillPrice,
		LatencyMS:   outcome.LatencyMS,
		SlippagePct: outcome.SlippagePct,
	}))
}

// applyAdjust applies a reasoner-driven parameter change, clamped to the
// same bounds as the adaptive loop.
func (e *Engine) applyAdjust(decision reasoning.Decision) {
	before, after := 0.0, decision.NewValue
	switch decision.RiskParam {
	case "kelly_fraction":
		before = e.params.KellyFraction
		e.params.KellyFraction = clampF(after, 0.05, 0.50)
		after = e.params.KellyFraction
	case "min_edge_pct":
		before = e.params.MinEdgePct
		e.params.MinEdgePct = clampF(after, 0.5, 10)
		after = e.params.MinEdgePct
	case "max_position_pct":
		before = e.params.MaxPositionPct
		e.params.MaxPositionPct = clampF(after, 1, 50)
		after = e.params.MaxPositionPct
	default:
		e.logger.Warn("reasoner adjust for unknown param ignored", "param", decision.RiskParam)
		return
	}

	e.logger.Info("risk param adjusted by reasoner",
		"param", decision.RiskParam, "before", before, "after", after)
	e.emit(api.NewEvent(api.EventDecision, api.DecisionPayload{
		Param: decision.RiskParam, Before: before, After: after,
		Reason: "reasoner adjustment", Reasoning: decision.Reasoning,
	}))
	if e.store != nil {
		if err := e.store.SaveRiskParams(e.params); err != nil {
			e.logger.Warn("failed to persist risk params", "error", err)
		}
	}
}

// closePosition unwinds an open position by buying the opposite side.
func (e *Engine) closePosition(ctx context.Context, decision reasoning.Decision, portfolio types.PortfolioSnapshot) {
	pos, ok := portfolio.Positions[decision.Ticker]
	if !ok || pos.Quantity == 0 {
		e.logger.Warn("close requested for unknown position", "ticker", decision.Ticker)
		return
	}

	qty := pos.Quantity
	if qty < 0 {
		qty = -qty
	}
	exitSide := pos.Side().Opposite()
	exitPrice := 100 - pos.CurrentPrice
	if exitPrice < 1 {
		exitPrice = 1
	}
	if exitPrice > 99 {
		exitPrice = 99
	}

	e.logger.Info("closing position",
		"ticker", decision.Ticker, "side", exitSide, "qty", qty,
		"reasoning", decision.Reasoning)
	e.execute(ctx, types.MarketOpportunity{
		Ticker:        decision.Ticker,
		Side:          exitSide,
		EntryPrice:    exitPrice,
		Strategy:      types.StrategyValue,
		SuggestedSize: qty,
		Reasoning:     "position close: " + decision.Reasoning,
		CreatedAt:     e.now(),
	})
}

// cancelPending cancels orders left resting or partially filled this cycle.
func (e *Engine) cancelPending(ctx context.Context) {
	if len(e.pending) == 0 {
		return
	}
	for _, id := range e.pending {
		if err := e.port.CancelOrder(ctx, id); err != nil {
			e.logger.Warn("failed to cancel resting order", "order_id", id, "error", err)
		}
	}
	e.pending = e.pending[:0]
}

// emit sends an event without blocking the cycle. When the channel is full,
// non-essential events are dropped; trade and error events displace the
// oldest queued event instead.
func (e *Engine) emit(evt api.Event) {
	select {
	case e.events <- evt:
		return
	default:
	}

	if !evt.Essential() {
		return
	}
	select {
	case <-e.events:
	default:
	}
	select {
	case e.events <- evt:
	default:
	}
}

func (e *Engine) emitError(severity, code string, err error) {
	e.logger.Log(context.Background(), levelFor(severity), "cycle error",
		"code", code, "error", err)
	e.emit(api.NewEvent(api.EventError, api.ErrorPayload{
		Severity: severity,
		Code:     code,
		Message:  err.Error(),
	}))
}

// updateSnapshot publishes state for the observer server.
func (e *Engine) updateSnapshot(portfolio types.PortfolioSnapshot, opps []types.MarketOpportunity) {
	snap := api.Snapshot{
		Timestamp:     e.now(),
		Mode:          e.cfg.Mode,
		CycleIndex:    e.cycleIndex,
		Halted:        e.haltedDay != "",
		Portfolio:     portfolio,
		Opportunities: opps,
		RiskParams:    e.params,
		Performance:   e.tracker.Snapshot(),
		Feedback:      e.tracker.Feedback(),
	}
	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()
}

// StateSnapshot implements api.SnapshotProvider.
func (e *Engine) StateSnapshot() api.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot
}

func matchOpportunity(admitted []types.MarketOpportunity, ticker string) (types.MarketOpportunity, bool) {
	for _, opp := range admitted {
		if opp.Ticker == ticker {
			return opp, true
		}
	}
	return types.MarketOpportunity{}, false
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrDeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, types.ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, types.ErrPermanent):
		return "PermanentError"
	case errors.Is(err, types.ErrTransport):
		return "TransportError"
	default:
		return "Unknown"
	}
}

func levelFor(severity string) slog.Level {
	switch severity {
	case api.SeverityWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
