// Package executor submits the single approved opportunity of a cycle and
// accounts for its latency and slippage.
//
// Submission prices carry a price-impact adjustment learned from recent fills
// on the same ticker and side, so resting-book drift between evaluation and
// submission doesn't turn marketable orders into misses.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/internal/exchange"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

const (
	// defaultImpactOffset is used until a ticker-side has fill history.
	defaultImpactOffset = 0.5

	// impactOffsetMax clamps the learned offset, in cents.
	impactOffsetMax = 2.0
)

// Result reports one execution attempt to the engine.
type Result struct {
	State   types.OrderState
	Order   *types.OrderResult  // nil unless the exchange acknowledged
	Outcome *types.TradeOutcome // nil unless contracts filled
	Backoff bool                // rate limited: engine extends the next interval
	Err     error
}

// impactHistory is a fixed ring of recent per-fill price impacts, in cents.
type impactHistory struct {
	samples []float64
	next    int
	full    bool
}

func (h *impactHistory) add(v float64) {
	h.samples[h.next] = v
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

func (h *impactHistory) mean() (float64, bool) {
	n := h.next
	if h.full {
		n = len(h.samples)
	}
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range h.samples[:n] {
		sum += v
	}
	return sum / float64(n), true
}

// Executor submits orders through the exchange port. Single caller: the
// engine's cycle loop owns it, so no locking on the impact history.
type Executor struct {
	port   exchange.Port
	cfg    config.ExecutorConfig
	impact map[string]*impactHistory
	logger *slog.Logger

	now func() time.Time
}

// New creates an executor.
func New(port exchange.Port, cfg config.ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.ImpactWindow <= 0 {
		cfg.ImpactWindow = 20
	}
	return &Executor{
		port:   port,
		cfg:    cfg,
		impact: make(map[string]*impactHistory),
		logger: logger.With("component", "executor"),
		now:    time.Now,
	}
}

// Execute submits the opportunity as a limit order at the impact-adjusted
// price and returns the attempt result. The submit call runs under the
// configured order deadline; exceeding it yields the timeout state.
func (e *Executor) Execute(ctx context.Context, opp types.MarketOpportunity) Result {
	adjusted := e.adjustedPrice(opp.Ticker, opp.Side, opp.EntryPrice)

	req := types.OrderRequest{
		Ticker:   opp.Ticker,
		Side:     opp.Side,
		Price:    adjusted,
		Quantity: opp.SuggestedSize,
		Type:     types.OrderLimit,
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderDeadline)
	defer cancel()

	start := e.now()
	res, err := e.port.SubmitOrder(octx, req)
	latency := e.now().Sub(start).Milliseconds()

	if err != nil {
		return e.classifyFailure(opp, err, latency)
	}

	state := res.State(opp.SuggestedSize)
	result := Result{State: state, Order: res}
	if res.FillQty == 0 {
		e.logger.Info("order resting, no fill",
			"ticker", opp.Ticker, "order_id", res.OrderID, "price", adjusted)
		return result
	}

	slippage := slippagePct(opp.EntryPrice, res.FillPrice)
	e.recordImpact(opp.Ticker, opp.Side, opp.EntryPrice, res.FillPrice)

	// Realized P&L is unknown at fill time; it is attributed at settlement.
	result.Outcome = &types.TradeOutcome{
		Ticker:      opp.Ticker,
		Strategy:    opp.Strategy,
		Side:        opp.Side,
		Edge:        opp.Edge,
		LatencyMS:   latency,
		SlippagePct: slippage,
		Timestamp:   e.now(),
	}

	e.logger.Info("order filled",
		"ticker", opp.Ticker,
		"side", opp.Side,
		"qty", res.FillQty,
		"requested", opp.SuggestedSize,
		"fill_price", res.FillPrice,
		"latency_ms", latency,
		"slippage_pct", fmt.Sprintf("%.3f", slippage),
	)
	return result
}

func (e *Executor) classifyFailure(opp types.MarketOpportunity, err error, latency int64) Result {
	result := Result{Err: err}
	switch {
	case errors.Is(err, types.ErrDeadlineExceeded):
		result.State = types.OrderTimeout
		e.logger.Warn("order deadline exceeded",
			"ticker", opp.Ticker, "latency_ms", latency)
	case errors.Is(err, types.ErrRateLimited):
		result.State = types.OrderRejected
		result.Backoff = true
		e.logger.Warn("rate limited, backing off", "ticker", opp.Ticker)
	default:
		result.State = types.OrderRejected
		e.logger.Error("order submission failed",
			"ticker", opp.Ticker, "error", err)
	}
	return result
}

// adjustedPrice adds the learned impact offset and re-clamps to a valid
// contract price.
func (e *Executor) adjustedPrice(ticker string, side types.Side, entry int) int {
	offset := e.impactOffset(ticker, side)
	adjusted := entry + int(math.Round(offset))
	if adjusted < 1 {
		adjusted = 1
	}
	if adjusted > 99 {
		adjusted = 99
	}
	return adjusted
}

// impactOffset returns the mean fill impact for a ticker-side in cents,
// clamped to [0, impactOffsetMax]. Default until history exists.
func (e *Executor) impactOffset(ticker string, side types.Side) float64 {
	h, ok := e.impact[impactKey(ticker, side)]
	if !ok {
		return defaultImpactOffset
	}
	mean, ok := h.mean()
	if !ok {
		return defaultImpactOffset
	}
	if mean < 0 {
		return 0
	}
	if mean > impactOffsetMax {
		return impactOffsetMax
	}
	return mean
}

// recordImpact appends the realized impact (fill minus intended entry, in
// cents) to the ticker-side ring.
func (e *Executor) recordImpact(ticker string, side types.Side, entry, fill int) {
	key := impactKey(ticker, side)
	h, ok := e.impact[key]
	if !ok {
		h = &impactHistory{samples: make([]float64, e.cfg.ImpactWindow)}
		e.impact[key] = h
	}
	h.add(float64(fill - entry))
}

func impactKey(ticker string, side types.Side) string {
	return ticker + "|" + string(side)
}

// slippagePct is (fill − entry)/entry · 100 for both sides; favorable fills
// come out negative.
func slippagePct(entry, fill int) float64 {
	if entry == 0 {
		return 0
	}
	return float64(fill-entry) / float64(entry) * 100
}

// SetClock overrides the time source. Test hook.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}
