package strategy

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snapwave333/klashibot-sub000/internal/cache"
	"github.com/Snapwave333/klashibot-sub000/internal/scanner"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	opps := cache.New[types.MarketOpportunity](30*time.Second, 50)
	return NewEvaluator(nil, opps, 30*time.Second, slog.New(slog.DiscardHandler))
}

func book(yesBid, yesAsk, noBid, noAsk, size int) types.OrderBook {
	return types.OrderBook{
		YesBid: yesBid, YesAsk: yesAsk,
		NoBid: noBid, NoAsk: noAsk,
		YesBidSize: size, YesAskSize: size,
		NoBidSize: size, NoAskSize: size,
		Timestamp: time.Unix(1_700_000_000, 0),
	}
}

func TestClearArbitrage(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	m := types.Market{Ticker: "BTC-100K", Title: "BTC above 100k", Status: types.StatusOpen}
	b := book(48, 49, 49, 50, 200)

	opp := e.Evaluate(m, b, 2.0)
	require.NotNil(t, opp)

	assert.Equal(t, types.StrategyArbitrage, opp.Strategy)
	assert.Equal(t, types.SideYes, opp.Side)
	assert.Equal(t, 49, opp.EntryPrice)
	assert.InDelta(t, 3.0, opp.Edge, 1e-9)
	assert.InDelta(t, 0.90, opp.Confidence, 1e-9)
	assert.InDelta(t, 0.4, opp.LiquidityScore, 1e-9)
	assert.Equal(t, GroupCrypto, opp.CorrelationGroup)
}

func TestBelowEdgeThreshold(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	m := types.Market{Ticker: "T", Title: "whatever", Status: types.StatusOpen}
	// S = 99: arbitrage edge 1.0, spread capture edge 0.5, both under 2.0.
	b := book(50, 51, 49, 50, 200)

	opp := e.Evaluate(m, b, 2.0)
	assert.Nil(t, opp)
}

func TestArbitrageInvariant(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	m := types.Market{Ticker: "T", Title: "t"}

	cases := []struct {
		yesBid, noBid int
		wantEmit      bool
		wantEdge      float64
		wantSide      types.Side
	}{
		{48, 49, true, 3.0, types.SideYes},  // S=97
		{49, 49, false, 0, ""},              // S=98, edge 2.0 not > 2.0
		{50, 49, false, 0, ""},              // S=99
		{50, 50, false, 0, ""},              // S=100
		{51, 51, false, 0, ""},              // S=102, edge 2.0 not > 2.0
		{52, 51, true, 3.0, types.SideNo},   // S=103
		{55, 55, true, 10.0, types.SideNo},  // S=110
		{40, 45, true, 15.0, types.SideYes}, // S=85
	}

	for _, tc := range cases {
		b := book(tc.yesBid, tc.yesBid+2, tc.noBid, tc.noBid+2, 100)
		opp := e.detectArbitrage(m, b)
		if !tc.wantEmit {
			assert.Nilf(t, opp, "S=%d should not emit", tc.yesBid+tc.noBid)
			continue
		}
		require.NotNilf(t, opp, "S=%d should emit", tc.yesBid+tc.noBid)
		assert.InDelta(t, tc.wantEdge, opp.Edge, 1e-9)
		assert.Equal(t, tc.wantSide, opp.Side)
	}
}

func TestPriceDomain(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	m := types.Market{Ticker: "T", Title: "t"}

	books := []types.OrderBook{
		book(1, 2, 90, 91, 500),
		book(97, 98, 1, 2, 500),
		book(48, 49, 49, 50, 500),
		book(30, 33, 60, 62, 500),
	}
	for _, b := range books {
		opp := e.Evaluate(m, b, 0.1)
		if opp == nil {
			continue
		}
		assert.GreaterOrEqual(t, opp.EntryPrice, 1)
		assert.LessOrEqual(t, opp.EntryPrice, 99)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	m := types.Market{Ticker: "BTC-100K", Title: "BTC above 100k"}
	b := book(48, 49, 49, 50, 200)

	first := e.Evaluate(m, b, 2.0)
	second := e.Evaluate(m, b, 2.0)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestEvaluateAllRanksByScoreAndCaches(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)
	fixed := time.Unix(1_700_000_000, 0)
	e.SetClock(func() time.Time { return fixed })

	strong := scanner.Candidate{
		Market: types.Market{Ticker: "STRONG", Title: "a"},
		Book:   book(44, 46, 48, 50, 500), // S=92, edge 8
	}
	weak := scanner.Candidate{
		Market: types.Market{Ticker: "WEAK", Title: "b"},
		Book:   book(48, 49, 49, 50, 500), // S=97, edge 3
	}

	ranked := e.EvaluateAll([]scanner.Candidate{weak, strong}, 2.0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "STRONG", ranked[0].Ticker)
	assert.Equal(t, "WEAK", ranked[1].Ticker)

	// A changed book inside the same TTL bucket must not change the cached
	// result.
	strong.Book = book(49, 50, 50, 51, 500)
	again := e.EvaluateAll([]scanner.Candidate{strong}, 2.0)
	require.Len(t, again, 1)
	assert.Equal(t, ranked[0], again[0])
}

func TestClassifyByKeywords(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Will BTC close above 100k":      GroupCrypto,
		"NBA finals winner":              GroupSports,
		"Presidential election outcome":  GroupElection,
		"Fed rate decision in December":  GroupEconomy,
		"Nasdaq new all-time high":       GroupStocks,
		"Will it rain in Seattle Friday": GroupOther,
	}
	for title, want := range cases {
		assert.Equal(t, want, ClassifyByKeywords(title), title)
	}
}
