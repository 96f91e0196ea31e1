// Package perf tracks realized performance: win/loss streaks, drawdown, and
// per-strategy statistics, and turns them into feedback recommendations.
//
// The tracker has exactly one writer — the engine's cycle loop. Instead of a
// mutex it carries a contention guard: if a second goroutine ever mutates
// concurrently, the Contentions counter goes nonzero, which the test suite
// asserts never happens.
package perf

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// StrategyStats accumulates results for one strategy.
type StrategyStats struct {
	Count        int     `json:"count"`
	AvgEdge      float64 `json:"avg_edge"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalPnL     int64   `json:"total_pnl"`
}

// State is the tracked performance snapshot.
type State struct {
	Wins              int                      `json:"wins"`
	Losses            int                      `json:"losses"`
	TotalPnL          int64                    `json:"total_pnl"`
	ConsecutiveWins   int                      `json:"consecutive_wins"`
	ConsecutiveLosses int                      `json:"consecutive_losses"`
	MaxDrawdownPct    float64                  `json:"max_drawdown_pct"`
	PeakEquity        int64                    `json:"peak_equity"`
	DrawdownPct       float64                  `json:"drawdown_pct"`
	PerStrategy       map[string]StrategyStats `json:"per_strategy"`
}

// WinRate returns wins/(wins+losses), or 0 with no decided trades.
func (s State) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}

// Trades returns the number of decided trades.
func (s State) Trades() int {
	return s.Wins + s.Losses
}

// FeedbackMetrics is produced on demand for the reasoner and observers.
type FeedbackMetrics struct {
	WinRate         float64   `json:"win_rate"`
	Trades          int       `json:"trades"`
	TotalPnL        int64     `json:"total_pnl"`
	DrawdownPct     float64   `json:"drawdown_pct"`
	BestStrategy    string    `json:"best_strategy,omitempty"`
	Recommendations []string  `json:"recommendations"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Tracker owns performance state. Single writer; see package comment.
type Tracker struct {
	state State

	inUse       atomic.Int32
	contentions atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		state: State{PerStrategy: make(map[string]StrategyStats)},
	}
}

// enter flags the tracker as being mutated; a concurrent mutation bumps the
// contention counter instead of corrupting silently.
func (t *Tracker) enter() {
	if !t.inUse.CompareAndSwap(0, 1) {
		t.contentions.Add(1)
	}
}

func (t *Tracker) leave() {
	t.inUse.Store(0)
}

// Contentions returns how many concurrent mutations were observed. Must stay
// zero under the single-writer discipline.
func (t *Tracker) Contentions() int64 {
	return t.contentions.Load()
}

// RecordOutcome folds one trade outcome into the state. A zero-PnL outcome
// counts as neither win nor loss but still updates strategy stats.
func (t *Tracker) RecordOutcome(outcome types.TradeOutcome) {
	t.enter()
	defer t.leave()

	switch {
	case outcome.RealizedPnL > 0:
		t.state.Wins++
		t.state.ConsecutiveWins++
		t.state.ConsecutiveLosses = 0
	case outcome.RealizedPnL < 0:
		t.state.Losses++
		t.state.ConsecutiveLosses++
		t.state.ConsecutiveWins = 0
	}
	t.state.TotalPnL += outcome.RealizedPnL

	name := string(outcome.Strategy)
	stats := t.state.PerStrategy[name]
	n := float64(stats.Count)
	stats.AvgEdge = (stats.AvgEdge*n + outcome.Edge) / (n + 1)
	stats.AvgLatencyMS = (stats.AvgLatencyMS*n + float64(outcome.LatencyMS)) / (n + 1)
	stats.Count++
	stats.TotalPnL += outcome.RealizedPnL
	t.state.PerStrategy[name] = stats
}

// ObservePortfolio updates peak equity and drawdown from a fresh snapshot.
// Peak equity is monotonic across cycles.
func (t *Tracker) ObservePortfolio(p types.PortfolioSnapshot) {
	t.enter()
	defer t.leave()

	if p.Equity > t.state.PeakEquity {
		t.state.PeakEquity = p.Equity
	}
	if t.state.PeakEquity > 0 {
		dd := float64(t.state.PeakEquity-p.Equity) / float64(t.state.PeakEquity) * 100
		if dd < 0 {
			dd = 0
		}
		t.state.DrawdownPct = dd
		if dd > t.state.MaxDrawdownPct {
			t.state.MaxDrawdownPct = dd
		}
	}
}

// Snapshot returns a copy of the current state, with the strategy map cloned
// so callers can't alias internal storage.
func (t *Tracker) Snapshot() State {
	s := t.state
	s.PerStrategy = make(map[string]StrategyStats, len(t.state.PerStrategy))
	for k, v := range t.state.PerStrategy {
		s.PerStrategy[k] = v
	}
	return s
}

// Feedback derives threshold-based recommendations from the current state.
func (t *Tracker) Feedback() FeedbackMetrics {
	s := t.state
	fb := FeedbackMetrics{
		WinRate:     s.WinRate(),
		Trades:      s.Trades(),
		TotalPnL:    s.TotalPnL,
		DrawdownPct: s.DrawdownPct,
		GeneratedAt: time.Now(),
	}

	if s.Trades() > 0 {
		switch {
		case fb.WinRate < 0.45:
			fb.Recommendations = append(fb.Recommendations, "tighten min_edge")
		case fb.WinRate > 0.65:
			fb.Recommendations = append(fb.Recommendations, "size up cautiously")
		}
	}
	if s.DrawdownPct > 5 {
		fb.Recommendations = append(fb.Recommendations, "risk reduction active")
	}

	if best, ok := bestStrategy(s.PerStrategy); ok {
		fb.BestStrategy = best
		fb.Recommendations = append(fb.Recommendations,
			fmt.Sprintf("best strategy: %s", best))
	}
	return fb
}

// bestStrategy names the top strategy when its total PnL beats the runner-up
// by at least 20%.
func bestStrategy(stats map[string]StrategyStats) (string, bool) {
	if len(stats) < 2 {
		return "", false
	}
	var bestName string
	var best, second int64
	first := true
	for name, s := range stats {
		if first || s.TotalPnL > best {
			if !first {
				second = best
			}
			best = s.TotalPnL
			bestName = name
			first = false
		} else if s.TotalPnL > second {
			second = s.TotalPnL
		}
	}
	if best <= 0 {
		return "", false
	}
	if second <= 0 {
		return bestName, true
	}
	if float64(best) >= float64(second)*1.2 {
		return bestName, true
	}
	return "", false
}
