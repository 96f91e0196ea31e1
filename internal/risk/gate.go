// Package risk gates opportunities before execution: correlation-aware
// filtering, Kelly-criterion sizing, hard exposure caps, and the adaptive
// parameter loop that reacts to streaks and drawdown.
//
// Adapt is a pure function of (performance state, params) → params, so the
// engine stays the only writer of RiskParams. FilterAndSize never reorders
// admitted opportunities; the evaluator's ranking carries through.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/Snapwave333/klashibot-sub000/internal/perf"
	"github.com/Snapwave333/klashibot-sub000/internal/strategy"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Clamp bounds for adaptive parameters.
const (
	kellyFractionMin = 0.05
	kellyFractionMax = 0.50
	minEdgeFloor     = 0.5
	minEdgeCeil      = 10.0
)

// Adaptive triggers.
const (
	winStreakTrigger  = 5
	lossStreakTrigger = 3
	drawdownTrigger   = 5.0
)

// ParamChange records one adaptive adjustment for the event stream.
type ParamChange struct {
	Param  string  `json:"param"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Reason string  `json:"reason"`
}

// Rejection explains why an opportunity was blocked. Not an error.
type Rejection struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Gate filters and sizes opportunities under the current risk parameters.
type Gate struct {
	groupOf strategy.GroupClassifier
	logger  *slog.Logger
}

// NewGate creates a gate. groupOf classifies position tickers into
// correlation groups; nil selects the default keyword classifier.
func NewGate(groupOf strategy.GroupClassifier, logger *slog.Logger) *Gate {
	if groupOf == nil {
		groupOf = strategy.ClassifyByKeywords
	}
	return &Gate{
		groupOf: groupOf,
		logger:  logger.With("component", "risk"),
	}
}

// Adapt applies the streak and drawdown rules to params and returns the
// updated set plus the changes made. All outputs are clamped to documented
// bounds. Pure: no state is touched.
func Adapt(state perf.State, params types.RiskParams) (types.RiskParams, []ParamChange) {
	var changes []ParamChange

	apply := func(param string, before, after float64, reason string, set func(float64)) {
		if before == after {
			return
		}
		set(after)
		changes = append(changes, ParamChange{
			Param: param, Before: before, After: after, Reason: reason,
		})
	}

	if state.ConsecutiveWins >= winStreakTrigger {
		apply("kelly_fraction", params.KellyFraction,
			clamp(params.KellyFraction*1.2, kellyFractionMin, kellyFractionMax),
			fmt.Sprintf("%d consecutive wins", state.ConsecutiveWins),
			func(v float64) { params.KellyFraction = v })
		apply("min_edge_pct", params.MinEdgePct,
			clamp(params.MinEdgePct*0.9, minEdgeFloor, minEdgeCeil),
			fmt.Sprintf("%d consecutive wins", state.ConsecutiveWins),
			func(v float64) { params.MinEdgePct = v })
	}

	if state.ConsecutiveLosses >= lossStreakTrigger {
		apply("kelly_fraction", params.KellyFraction,
			clamp(params.KellyFraction*0.7, kellyFractionMin, kellyFractionMax),
			fmt.Sprintf("%d consecutive losses", state.ConsecutiveLosses),
			func(v float64) { params.KellyFraction = v })
		apply("min_edge_pct", params.MinEdgePct,
			clamp(params.MinEdgePct*1.3, minEdgeFloor, minEdgeCeil),
			fmt.Sprintf("%d consecutive losses", state.ConsecutiveLosses),
			func(v float64) { params.MinEdgePct = v })
	}

	if state.DrawdownPct > drawdownTrigger {
		apply("kelly_fraction", params.KellyFraction,
			clamp(params.KellyFraction*0.8, kellyFractionMin, kellyFractionMax),
			fmt.Sprintf("drawdown %.1f%%", state.DrawdownPct),
			func(v float64) { params.KellyFraction = v })
	}

	return params, changes
}

// FilterAndSize runs the two-phase gate over ranked opportunities: the
// correlation filter, then Kelly sizing with hard caps. At most topK
// opportunities are admitted, in their incoming order.
//
// Returns ErrCircuitBreaker when today's loss has already breached the daily
// limit; the caller halts trading for the calendar day.
func (g *Gate) FilterAndSize(
	opps []types.MarketOpportunity,
	portfolio types.PortfolioSnapshot,
	params types.RiskParams,
	topK int,
) ([]types.MarketOpportunity, []Rejection, error) {
	if portfolio.DailyPnLPct() <= -params.MaxDailyLossPct {
		return nil, nil, fmt.Errorf("%w: daily pnl %.1f%% breaches -%.1f%%",
			types.ErrCircuitBreaker, portfolio.DailyPnLPct(), params.MaxDailyLossPct)
	}

	// Existing exposure per correlation group.
	groupCount := make(map[string]int)
	for ticker := range portfolio.Positions {
		groupCount[g.groupOf(ticker)]++
	}

	escapeEdge := params.MinEdgePct * params.CorrelationEdgeMultiplier

	var admitted []types.MarketOpportunity
	var rejections []Rejection
	for _, opp := range opps {
		if len(admitted) >= topK {
			break
		}

		group := opp.CorrelationGroup
		if groupCount[group] >= params.MaxCorrelationGroupCount && opp.Edge < escapeEdge {
			rejections = append(rejections, Rejection{
				Ticker: opp.Ticker,
				Reason: fmt.Sprintf("correlation group %q at cap %d (edge %.2f < %.2f)",
					group, params.MaxCorrelationGroupCount, opp.Edge, escapeEdge),
			})
			continue
		}

		size := KellySize(opp, portfolio.Equity, params)
		if size == 0 {
			rejections = append(rejections, Rejection{
				Ticker: opp.Ticker,
				Reason: "kelly size rounded to zero",
			})
			continue
		}

		if rej, ok := g.checkConcentration(opp, size, portfolio, params); !ok {
			rejections = append(rejections, rej)
			continue
		}

		opp.SuggestedSize = size
		admitted = append(admitted, opp)
		groupCount[group]++
	}

	return admitted, rejections, nil
}

// KellySize computes the suggested contract count for an opportunity.
//
// The market price p (as probability p/100) is taken as the market's implied
// probability; the model's probability is that plus the edge. The Kelly
// fraction is scaled by the configured multiplier and the opportunity's
// confidence, then capped at max_position_pct of equity.
func KellySize(opp types.MarketOpportunity, equity int64, params types.RiskParams) int {
	p := float64(opp.EntryPrice)
	if p < 1 || p > 99 || equity <= 0 {
		return 0
	}

	q := clamp(p/100+opp.Edge/100, 0.01, 0.99)
	b := (100 - p) / p
	kelly := (b*q - (1 - q)) / b
	if kelly < 0 {
		kelly = 0
	}

	fraction := clamp(kelly*params.KellyFraction*opp.Confidence, 0, params.MaxPositionPct/100)
	targetNotional := float64(equity) * fraction
	return int(math.Floor(targetNotional / p))
}

// checkConcentration rejects an opportunity whose post-trade position value
// would exceed max_concentration_pct of equity.
func (g *Gate) checkConcentration(
	opp types.MarketOpportunity,
	size int,
	portfolio types.PortfolioSnapshot,
	params types.RiskParams,
) (Rejection, bool) {
	var existing int64
	if pos, ok := portfolio.Positions[opp.Ticker]; ok {
		existing = pos.MarketValue()
	}
	postTrade := existing + int64(size)*int64(opp.EntryPrice)
	limit := int64(float64(portfolio.Equity) * params.MaxConcentrationPct / 100)
	if postTrade > limit {
		return Rejection{
			Ticker: opp.Ticker,
			Reason: fmt.Sprintf("post-trade value %dc exceeds %.0f%% concentration cap",
				postTrade, params.MaxConcentrationPct),
		}, false
	}
	return Rejection{}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
