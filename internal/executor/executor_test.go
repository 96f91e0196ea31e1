package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// fakePort records submissions and returns scripted results.
type fakePort struct {
	submitted []types.OrderRequest
	fillWith  func(req types.OrderRequest) (*types.OrderResult, error)
}

func (f *fakePort) ListOpenMarkets(context.Context, int) ([]types.Market, error) {
	return nil, nil
}

func (f *fakePort) GetOrderBook(context.Context, string) (*types.OrderBook, error) {
	return nil, nil
}

func (f *fakePort) GetPortfolio(context.Context) (*types.PortfolioSnapshot, error) {
	return nil, nil
}

func (f *fakePort) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	f.submitted = append(f.submitted, req)
	return f.fillWith(req)
}

func (f *fakePort) CancelOrder(context.Context, string) error {
	return nil
}

func fillAt(price int) func(types.OrderRequest) (*types.OrderResult, error) {
	n := 0
	return func(req types.OrderRequest) (*types.OrderResult, error) {
		n++
		return &types.OrderResult{
			OrderID:   fmt.Sprintf("ord-%d", n),
			FillPrice: price,
			FillQty:   req.Quantity,
		}, nil
	}
}

func newTestExecutor(port *fakePort) *Executor {
	return New(port, config.ExecutorConfig{
		OrderDeadline: 2 * time.Second,
		ImpactWindow:  20,
	}, slog.New(slog.DiscardHandler))
}

func testOpp(entry, size int) types.MarketOpportunity {
	return types.MarketOpportunity{
		Ticker:        "T",
		Side:          types.SideYes,
		EntryPrice:    entry,
		Edge:          3,
		Confidence:    0.9,
		Strategy:      types.StrategyArbitrage,
		SuggestedSize: size,
	}
}

func TestDefaultImpactOffsetRoundsUp(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(51)}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	require.NoError(t, res.Err)

	// No history: 0.5 cents default, rounded to the nearest cent.
	require.Len(t, port.submitted, 1)
	assert.Equal(t, 51, port.submitted[0].Price)
	assert.Equal(t, types.OrderFilled, res.State)
}

func TestSlippageSign(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(51)}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	require.NotNil(t, res.Outcome)
	assert.InDelta(t, 2.0, res.Outcome.SlippagePct, 1e-9) // (51-50)/50*100

	port2 := &fakePort{fillWith: fillAt(49)}
	e2 := newTestExecutor(port2)
	res2 := e2.Execute(context.Background(), testOpp(50, 10))
	require.NotNil(t, res2.Outcome)
	assert.InDelta(t, -2.0, res2.Outcome.SlippagePct, 1e-9) // favorable
}

func TestImpactOffsetLearnsFromFills(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(52)}
	e := newTestExecutor(port)

	// First fill at 52 against entry 50 records an impact of +2 cents.
	res := e.Execute(context.Background(), testOpp(50, 10))
	require.NoError(t, res.Err)

	res = e.Execute(context.Background(), testOpp(50, 10))
	require.NoError(t, res.Err)
	require.Len(t, port.submitted, 2)
	assert.Equal(t, 52, port.submitted[1].Price, "learned +2 offset")
}

func TestImpactOffsetClampedAtTwoCents(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(57)}
	e := newTestExecutor(port)

	// Fill 7 cents through records a +7 impact; the offset clamps at 2.
	_ = e.Execute(context.Background(), testOpp(50, 10))
	_ = e.Execute(context.Background(), testOpp(50, 10))

	require.Len(t, port.submitted, 2)
	assert.Equal(t, 52, port.submitted[1].Price)
}

func TestNegativeImpactClampedAtZero(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(48)}
	e := newTestExecutor(port)

	_ = e.Execute(context.Background(), testOpp(50, 10))
	_ = e.Execute(context.Background(), testOpp(50, 10))

	require.Len(t, port.submitted, 2)
	assert.Equal(t, 50, port.submitted[1].Price, "favorable history never discounts the price")
}

func TestAdjustedPriceClampedToDomain(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: fillAt(99)}
	e := newTestExecutor(port)

	_ = e.Execute(context.Background(), testOpp(99, 10))
	require.Len(t, port.submitted, 1)
	assert.LessOrEqual(t, port.submitted[0].Price, 99)
}

func TestPartialFill(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: func(req types.OrderRequest) (*types.OrderResult, error) {
		return &types.OrderResult{OrderID: "ord-1", FillPrice: req.Price, FillQty: req.Quantity / 2}, nil
	}}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	require.NoError(t, res.Err)
	assert.Equal(t, types.OrderPartial, res.State)
	require.NotNil(t, res.Outcome)
}

func TestRestingOrderHasNoOutcome(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: func(types.OrderRequest) (*types.OrderResult, error) {
		return &types.OrderResult{OrderID: "ord-1"}, nil
	}}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	require.NoError(t, res.Err)
	assert.Equal(t, types.OrderRejected, res.State)
	assert.Nil(t, res.Outcome)
	assert.Equal(t, "ord-1", res.Order.OrderID)
}

func TestDeadlineProducesTimeoutState(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: func(types.OrderRequest) (*types.OrderResult, error) {
		return nil, fmt.Errorf("%w: submit_order", types.ErrDeadlineExceeded)
	}}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	assert.Equal(t, types.OrderTimeout, res.State)
	assert.True(t, errors.Is(res.Err, types.ErrDeadlineExceeded))
	assert.False(t, res.Backoff)
}

func TestRateLimitedSignalsBackoff(t *testing.T) {
	t.Parallel()
	port := &fakePort{fillWith: func(types.OrderRequest) (*types.OrderResult, error) {
		return nil, fmt.Errorf("%w: 429", types.ErrRateLimited)
	}}
	e := newTestExecutor(port)

	res := e.Execute(context.Background(), testOpp(50, 10))
	assert.True(t, res.Backoff)
	assert.True(t, errors.Is(res.Err, types.ErrRateLimited))
}

func TestSubmitContextCarriesDeadline(t *testing.T) {
	t.Parallel()
	var gotDeadline bool
	port := &fakePort{}
	port.fillWith = func(types.OrderRequest) (*types.OrderResult, error) {
		return &types.OrderResult{OrderID: "x", FillPrice: 50, FillQty: 1}, nil
	}

	e := New(&deadlinePort{inner: port, saw: &gotDeadline},
		config.ExecutorConfig{OrderDeadline: 50 * time.Millisecond, ImpactWindow: 20},
		slog.New(slog.DiscardHandler))

	res := e.Execute(context.Background(), testOpp(50, 1))
	require.NoError(t, res.Err)
	assert.True(t, gotDeadline, "submit context must carry the order deadline")
}

// deadlinePort records whether SubmitOrder received a context with a deadline.
type deadlinePort struct {
	inner *fakePort
	saw   *bool
}

func (d *deadlinePort) ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	return d.inner.ListOpenMarkets(ctx, limit)
}

func (d *deadlinePort) GetOrderBook(ctx context.Context, ticker string) (*types.OrderBook, error) {
	return d.inner.GetOrderBook(ctx, ticker)
}

func (d *deadlinePort) GetPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error) {
	return d.inner.GetPortfolio(ctx)
}

func (d *deadlinePort) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if _, ok := ctx.Deadline(); ok {
		*d.saw = true
	}
	return d.inner.SubmitOrder(ctx, req)
}

func (d *deadlinePort) CancelOrder(ctx context.Context, orderID string) error {
	return d.inner.CancelOrder(ctx, orderID)
}
