// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — markets, order books,
// opportunities, positions, portfolio snapshots, and trade outcomes. It has no
// dependencies on internal packages, so it can be imported by any layer.
//
// Prices are integer cents in [1, 99]. Money amounts (cash, equity, PnL) are
// int64 cents. Edges and percentages are float64.
package types

import (
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the contract side of a binary market: YES or NO.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen    MarketStatus = "open"
	StatusSettled MarketStatus = "settled"
	StatusClosed  MarketStatus = "closed"
)

// StrategyName identifies which detection strategy produced an opportunity.
type StrategyName string

const (
	StrategyArbitrage     StrategyName = "arbitrage"
	StrategySpreadCapture StrategyName = "spread_capture"
	StrategyValue         StrategyName = "value"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// OrderState tracks a single order attempt through its lifecycle.
// Initial state is submitted; terminal states are filled, partial,
// rejected, and timeout.
type OrderState string

const (
	OrderSubmitted OrderState = "submitted"
	OrderFilled    OrderState = "filled"
	OrderPartial   OrderState = "partial"
	OrderRejected  OrderState = "rejected"
	OrderTimeout   OrderState = "timeout"
)

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Market is a snapshot of one binary prediction market. Produced by the
// scanner and never mutated afterwards.
type Market struct {
	Ticker       string       `json:"ticker"`
	Title        string       `json:"title"`
	Status       MarketStatus `json:"status"`
	Volume       int64        `json:"volume"`        // lifetime contracts traded
	OpenInterest int64        `json:"open_interest"` // currently open contracts
}

// OrderBook is a top-of-book snapshot for one market. All prices are cents
// in [0, 100]. A side with zero bid and ask prices is absent (no quotes).
type OrderBook struct {
	Ticker string `json:"ticker"`

	YesBid int `json:"yes_bid"`
	YesAsk int `json:"yes_ask"`
	NoBid  int `json:"no_bid"`
	NoAsk  int `json:"no_ask"`

	YesBidSize int `json:"yes_bid_size"`
	YesAskSize int `json:"yes_ask_size"`
	NoBidSize  int `json:"no_bid_size"`
	NoAskSize  int `json:"no_ask_size"`

	Timestamp time.Time `json:"timestamp"`
}

// HasYes reports whether both YES quotes are present.
func (b OrderBook) HasYes() bool {
	return b.YesBid > 0 && b.YesAsk > 0
}

// HasNo reports whether both NO quotes are present.
func (b OrderBook) HasNo() bool {
	return b.NoBid > 0 && b.NoAsk > 0
}

// YesMid returns the YES mid price in cents.
func (b OrderBook) YesMid() float64 {
	return float64(b.YesBid+b.YesAsk) / 2
}

// NoMid returns the NO mid price in cents.
func (b OrderBook) NoMid() float64 {
	return float64(b.NoBid+b.NoAsk) / 2
}

// AskFor returns the ask price on the given side.
func (b OrderBook) AskFor(side Side) int {
	if side == SideYes {
		return b.YesAsk
	}
	return b.NoAsk
}

// BidFor returns the bid price on the given side.
func (b OrderBook) BidFor(side Side) int {
	if side == SideYes {
		return b.YesBid
	}
	return b.NoBid
}

// ————————————————————————————————————————————————————————————————————————
// Opportunities
// ————————————————————————————————————————————————————————————————————————

// MarketOpportunity is a concrete, priced trade candidate produced by the
// strategy evaluator and sized by the risk gate.
type MarketOpportunity struct {
	Ticker           string       `json:"ticker"`
	Side             Side         `json:"side"`
	EntryPrice       int          `json:"entry_price"` // cents, [1, 99]
	Edge             float64      `json:"edge"`        // percent of notional, >= 0
	Confidence       float64      `json:"confidence"`  // [0, 1]
	LiquidityScore   float64      `json:"liquidity_score"`
	Strategy         StrategyName `json:"strategy"`
	SuggestedSize    int          `json:"suggested_size"` // contracts, set by risk gate
	Reasoning        string       `json:"reasoning"`
	CorrelationGroup string       `json:"correlation_group"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Score ranks opportunities: edge weighted by confidence and liquidity.
func (o MarketOpportunity) Score() float64 {
	return o.Edge * o.Confidence * o.LiquidityScore
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio
// ————————————————————————————————————————————————————————————————————————

// Position is the current holding in one market. Quantity is signed:
// positive = YES contracts, negative = NO contracts.
type Position struct {
	Ticker        string `json:"ticker"`
	Quantity      int    `json:"quantity"`
	EntryPrice    int    `json:"entry_price"`
	CurrentPrice  int    `json:"current_price"`
	UnrealizedPnL int64  `json:"unrealized_pnl"` // cents
}

// Side returns which side of the contract the position holds.
func (p Position) Side() Side {
	if p.Quantity < 0 {
		return SideNo
	}
	return SideYes
}

// MarketValue is the mark-to-market value of the position in cents.
func (p Position) MarketValue() int64 {
	qty := int64(p.Quantity)
	if qty < 0 {
		qty = -qty
		return qty * int64(100-p.CurrentPrice)
	}
	return qty * int64(p.CurrentPrice)
}

// PortfolioSnapshot is a point-in-time view of the account. All money in cents.
// Invariant: Equity == Cash + sum of position market values.
type PortfolioSnapshot struct {
	Cash        int64               `json:"cash"`
	Equity      int64               `json:"equity"`
	DailyPnL    int64               `json:"daily_pnl"`
	Positions   map[string]Position `json:"positions"`
	PeakEquity  int64               `json:"peak_equity"`
	DrawdownPct float64             `json:"drawdown_pct"`
	TakenAt     time.Time           `json:"taken_at"`
}

// DailyPnLPct returns today's PnL as a percentage of start-of-day equity.
func (p PortfolioSnapshot) DailyPnLPct() float64 {
	start := p.Equity - p.DailyPnL
	if start <= 0 {
		return 0
	}
	return float64(p.DailyPnL) / float64(start) * 100
}

// ————————————————————————————————————————————————————————————————————————
// Orders & outcomes
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is submitted to the exchange port.
type OrderRequest struct {
	Ticker   string    `json:"ticker"`
	Side     Side      `json:"side"`
	Price    int       `json:"price"` // limit price in cents
	Quantity int       `json:"quantity"`
	Type     OrderType `json:"type"`
}

// OrderResult is the exchange's response to a submitted order.
type OrderResult struct {
	OrderID   string `json:"order_id"`
	FillPrice int    `json:"fill_price"` // cents; 0 if nothing filled
	FillQty   int    `json:"fill_qty"`
}

// State derives the order lifecycle state from the fill against the request.
func (r OrderResult) State(requested int) OrderState {
	switch {
	case r.FillQty == 0:
		return OrderRejected
	case r.FillQty < requested:
		return OrderPartial
	default:
		return OrderFilled
	}
}

// TradeOutcome records a completed execution for performance tracking and
// the audit log.
type TradeOutcome struct {
	Ticker      string       `json:"ticker"`
	Strategy    StrategyName `json:"strategy"`
	Side        Side         `json:"side"`
	Edge        float64      `json:"edge"`
	RealizedPnL int64        `json:"realized_pnl"` // cents
	LatencyMS   int64        `json:"latency_ms"`
	SlippagePct float64      `json:"slippage_pct"` // negative = favorable fill
	Timestamp   time.Time    `json:"timestamp"`
}

// ————————————————————————————————————————————————————————————————————————
// Risk parameters
// ————————————————————————————————————————————————————————————————————————

// RiskParams is the tunable set the gate sizes with and the adaptive loop
// mutates. All values are owned by the cycle scheduler.
type RiskParams struct {
	MaxPositionPct            float64 `json:"max_position_pct" mapstructure:"max_position_pct"`
	MinEdgePct                float64 `json:"min_edge_pct" mapstructure:"min_edge_pct"`
	KellyFraction             float64 `json:"kelly_fraction" mapstructure:"kelly_fraction"`
	MaxDailyLossPct           float64 `json:"max_daily_loss_pct" mapstructure:"max_daily_loss_pct"`
	MaxConcentrationPct       float64 `json:"max_concentration_pct" mapstructure:"max_concentration_pct"`
	MaxCorrelationGroupCount  int     `json:"max_correlation_group_count" mapstructure:"max_correlation_group_count"`
	CorrelationEdgeMultiplier float64 `json:"correlation_edge_multiplier" mapstructure:"correlation_edge_multiplier"`
}

// DefaultRiskParams returns the documented defaults.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		MaxPositionPct:            15,
		MinEdgePct:                2.0,
		KellyFraction:             0.25,
		MaxDailyLossPct:           10,
		MaxConcentrationPct:       20,
		MaxCorrelationGroupCount:  2,
		CorrelationEdgeMultiplier: 1.5,
	}
}
