// Package reasoning defines the boundary to the external reasoner that
// refines the engine's default trade selection. The engine builds a Context
// packet once per cycle, calls Decide under a deadline, and falls back to the
// top admitted opportunity if the reasoner fails or times out.
package reasoning

import (
	"context"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// DecisionKind tags the variant of a Decision.
type DecisionKind string

const (
	DecideTrade  DecisionKind = "trade"
	DecideHold   DecisionKind = "hold"
	DecideAdjust DecisionKind = "adjust"
	DecideClose  DecisionKind = "close"
)

// Decision is the reasoner's structured action. Exactly one variant's fields
// are meaningful, selected by Kind.
type Decision struct {
	Kind      DecisionKind `json:"kind"`
	Reasoning string       `json:"reasoning"`

	// Trade
	Ticker     string     `json:"ticker,omitempty"`
	Side       types.Side `json:"side,omitempty"`
	Size       int        `json:"size,omitempty"`
	PriceHint  int        `json:"price_hint,omitempty"` // cents, 0 = use opportunity price
	Confidence float64    `json:"confidence,omitempty"`

	// Adjust
	RiskParam string  `json:"risk_param,omitempty"`
	NewValue  float64 `json:"new_value,omitempty"`
}

// PortfolioContext is the serialized portfolio section of the context packet.
type PortfolioContext struct {
	Cash      int64             `json:"cash"`
	Equity    int64             `json:"equity"`
	DailyPnL  int64             `json:"daily_pnl"`
	Positions []PositionContext `json:"positions"`
}

type PositionContext struct {
	Ticker       string `json:"ticker"`
	Quantity     int    `json:"quantity"`
	EntryPrice   int    `json:"entry_price"`
	CurrentPrice int    `json:"current_price"`
}

// PerformanceContext summarizes recent results for the reasoner.
type PerformanceContext struct {
	WinRate           float64                    `json:"win_rate"`
	Trades            int                        `json:"trades"`
	TotalPnL          int64                      `json:"total_pnl"`
	ConsecutiveWins   int                        `json:"consecutive_wins"`
	ConsecutiveLosses int                        `json:"consecutive_losses"`
	DrawdownPct       float64                    `json:"drawdown_pct"`
	PerStrategy       map[string]StrategyContext `json:"per_strategy"`
}

type StrategyContext struct {
	Count        int     `json:"count"`
	AvgEdge      float64 `json:"avg_edge"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalPnL     int64   `json:"total_pnl"`
}

// Context is the packet handed to the reasoner each cycle.
type Context struct {
	Portfolio       PortfolioContext          `json:"portfolio"`
	Opportunities   []types.MarketOpportunity `json:"opportunities"`
	Performance     PerformanceContext        `json:"performance"`
	RiskParams      types.RiskParams          `json:"risk_params"`
	ExternalSignals []string                  `json:"external_signals,omitempty"`
}

// Reasoner is the single-operation port. Implementations must honor the
// deadline on ctx; the engine treats any error as ReasonerUnavailable.
type Reasoner interface {
	Decide(ctx context.Context, rc Context) (*Decision, error)
}
