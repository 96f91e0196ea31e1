// Package strategy detects mispriced contracts in order book snapshots.
//
// Three strategies run per market — arbitrage, spread capture, and value —
// and the best surviving candidate (by edge × confidence × liquidity) becomes
// the market's opportunity. Evaluation is pure: the same market and book
// always produce the same opportunity, which makes results cacheable by
// (ticker, time bucket).
package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Snapwave333/klashibot-sub000/internal/cache"
	"github.com/Snapwave333/klashibot-sub000/internal/scanner"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

const (
	// liquidityRef is the book size at which liquidity saturates to 1.0.
	liquidityRef = 500.0

	// arbThreshold is the minimum deviation of yes_bid+no_bid from 100 cents.
	arbThreshold = 2.0

	// spreadMaxWidth is the exclusive upper bound on yes spread for capture.
	spreadMaxWidth = 3

	// spreadMinLiquidity gates spread capture on a minimally real book.
	spreadMinLiquidity = 0.04

	// valueThreshold is the minimum deviation of the combined mids from 100.
	valueThreshold = 1.5

	confArbitrage     = 0.90
	confSpreadCapture = 0.70
	confValue         = 0.60
)

// Evaluator runs the strategy set over scan candidates with a per-bucket
// result cache.
type Evaluator struct {
	classify GroupClassifier
	opps     *cache.Cache[types.MarketOpportunity]
	oppTTL   time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewEvaluator creates an evaluator. The opportunity cache is owned by the
// engine; ttl must match the cache's TTL so bucket keys roll over with it.
func NewEvaluator(classify GroupClassifier, opps *cache.Cache[types.MarketOpportunity], ttl time.Duration, logger *slog.Logger) *Evaluator {
	if classify == nil {
		classify = ClassifyByKeywords
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Evaluator{
		classify: classify,
		opps:     opps,
		oppTTL:   ttl,
		logger:   logger.With("component", "evaluator"),
		now:      time.Now,
	}
}

// EvaluateAll evaluates every candidate and returns opportunities ranked by
// score descending. minEdge rejects weak signals before ranking.
func (e *Evaluator) EvaluateAll(candidates []scanner.Candidate, minEdge float64) []types.MarketOpportunity {
	var out []types.MarketOpportunity
	for _, c := range candidates {
		key := e.bucketKey(c.Market.Ticker)
		if cached, ok := e.opps.Get(key); ok {
			out = append(out, cached)
			continue
		}

		opp := e.Evaluate(c.Market, c.Book, minEdge)
		if opp == nil {
			continue
		}
		if err := e.opps.Put(key, *opp); err != nil {
			e.logger.Warn("opportunity cache put failed", "ticker", c.Market.Ticker, "error", err)
		}
		out = append(out, *opp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

// bucketKey keys cached results by ticker and coarse time bucket so entries
// roll over together with the cache TTL.
func (e *Evaluator) bucketKey(ticker string) string {
	bucket := e.now().Unix() / int64(e.oppTTL.Seconds())
	return fmt.Sprintf("%s@%d", ticker, bucket)
}

// Evaluate runs all three strategies on one market and returns the best
// candidate, or nil when nothing clears minEdge. Pure given its inputs.
func (e *Evaluator) Evaluate(market types.Market, book types.OrderBook, minEdge float64) *types.MarketOpportunity {
	group := e.classify(market.Title)

	var best *types.MarketOpportunity
	for _, detect := range []func(types.Market, types.OrderBook) *types.MarketOpportunity{
		e.detectArbitrage,
		e.detectSpreadCapture,
		e.detectValue,
	} {
		opp := detect(market, book)
		if opp == nil || opp.Edge < minEdge {
			continue
		}
		if opp.EntryPrice < 1 || opp.EntryPrice > 99 {
			continue
		}
		opp.CorrelationGroup = group
		if best == nil || opp.Score() > best.Score() {
			best = opp
		}
	}
	return best
}

// liquidityScore scales the thinner top-of-book side against liquidityRef.
func liquidityScore(book types.OrderBook) float64 {
	minSize := book.YesBidSize
	if book.YesAskSize < minSize {
		minSize = book.YesAskSize
	}
	return math.Min(1, float64(minSize)/liquidityRef)
}

// detectArbitrage fires when the two bids sum away from 100 cents: buying
// the cheap side locks in the gap if the books converge.
func (e *Evaluator) detectArbitrage(market types.Market, book types.OrderBook) *types.MarketOpportunity {
	if !book.HasYes() || !book.HasNo() {
		return nil
	}

	sum := float64(book.YesBid + book.NoBid)
	edge := math.Abs(sum - 100)
	if edge <= arbThreshold {
		return nil
	}

	side := types.SideYes
	if sum >= 100 {
		side = types.SideNo
	}
	entry := book.AskFor(side)
	if entry == 0 {
		return nil
	}

	return &types.MarketOpportunity{
		Ticker:         market.Ticker,
		Side:           side,
		EntryPrice:     entry,
		Edge:           edge,
		Confidence:     confArbitrage,
		LiquidityScore: liquidityScore(book),
		Strategy:       types.StrategyArbitrage,
		Reasoning:      fmt.Sprintf("yes_bid+no_bid=%.0f deviates %.1fc from 100", sum, edge),
		CreatedAt:      book.Timestamp,
	}
}

// detectSpreadCapture bids one tick above the best bid inside a tight spread.
func (e *Evaluator) detectSpreadCapture(market types.Market, book types.OrderBook) *types.MarketOpportunity {
	if !book.HasYes() {
		return nil
	}

	width := book.YesAsk - book.YesBid
	liq := liquidityScore(book)
	if width >= spreadMaxWidth || liq < spreadMinLiquidity {
		return nil
	}

	return &types.MarketOpportunity{
		Ticker:         market.Ticker,
		Side:           types.SideYes,
		EntryPrice:     book.YesBid + 1,
		Edge:           float64(width) / 2,
		Confidence:     confSpreadCapture,
		LiquidityScore: liq,
		Strategy:       types.StrategySpreadCapture,
		Reasoning:      fmt.Sprintf("yes spread %dc with liquidity %.2f", width, liq),
		CreatedAt:      book.Timestamp,
	}
}

// detectValue fires when the combined mids drift from 100: the side trading
// below its complement-implied price is underpriced.
func (e *Evaluator) detectValue(market types.Market, book types.OrderBook) *types.MarketOpportunity {
	if !book.HasYes() || !book.HasNo() {
		return nil
	}

	total := book.YesMid() + book.NoMid()
	edge := math.Abs(100 - total)
	if edge <= valueThreshold {
		return nil
	}

	side := types.SideYes
	if total >= 100 {
		side = types.SideNo
	}
	entry := book.AskFor(side)
	if entry == 0 {
		return nil
	}

	return &types.MarketOpportunity{
		Ticker:         market.Ticker,
		Side:           side,
		EntryPrice:     entry,
		Edge:           edge,
		Confidence:     confValue,
		LiquidityScore: liquidityScore(book),
		Strategy:       types.StrategyValue,
		Reasoning:      fmt.Sprintf("combined mids %.1f deviate %.1fc from 100", total, edge),
		CreatedAt:      book.Timestamp,
	}
}

// SetClock overrides the time source used for bucket keys. Test hook.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}
