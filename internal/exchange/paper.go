package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Paper is a deterministic execution simulator. Market data is delegated to
// an inner read-only Port; orders and the portfolio are simulated locally.
//
// Fill rule: a limit buy whose price crosses the resting ask fills instantly
// at the limit price plus 5 bps of adverse slippage, capped at the displayed
// ask size. Non-crossing orders rest unfilled (zero fill quantity). There is
// no stochastic maker-fill model, so tests stay reproducible.
type Paper struct {
	data   Port
	logger *slog.Logger

	mu          sync.Mutex
	cash        int64 // cents
	startEquity int64 // start-of-day equity for daily PnL
	peakEquity  int64
	positions   map[string]types.Position
	lastBooks   map[string]types.OrderBook // latest book per ticker, for marks
	resting     map[string]types.OrderRequest
}

// slippageBps is the fixed adverse slippage applied to paper fills.
var slippageBps = decimal.NewFromFloat(0.0005)

// NewPaper creates a paper port with the given starting cash (cents).
func NewPaper(data Port, startingCash int64, logger *slog.Logger) *Paper {
	return &Paper{
		data:        data,
		logger:      logger.With("component", "paper"),
		cash:        startingCash,
		startEquity: startingCash,
		peakEquity:  startingCash,
		positions:   make(map[string]types.Position),
		lastBooks:   make(map[string]types.OrderBook),
		resting:     make(map[string]types.OrderRequest),
	}
}

// ListOpenMarkets delegates to the market-data port.
func (p *Paper) ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	return p.data.ListOpenMarkets(ctx, limit)
}

// GetOrderBook delegates to the market-data port and remembers the book for
// mark-to-market.
func (p *Paper) GetOrderBook(ctx context.Context, ticker string) (*types.OrderBook, error) {
	book, err := p.data.GetOrderBook(ctx, ticker)
	if err != nil || book == nil {
		return book, err
	}
	p.mu.Lock()
	p.lastBooks[ticker] = *book
	p.mu.Unlock()
	return book, nil
}

// GetPortfolio marks all positions to the latest seen mid and returns a
// consistent snapshot.
func (p *Paper) GetPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make(map[string]types.Position, len(p.positions))
	var positionValue int64
	for ticker, pos := range p.positions {
		if book, ok := p.lastBooks[ticker]; ok && book.HasYes() {
			pos.CurrentPrice = int(book.YesMid())
		}
		qty := int64(pos.Quantity)
		if qty < 0 {
			pos.UnrealizedPnL = -qty * int64((100-pos.CurrentPrice)-(100-pos.EntryPrice))
		} else {
			pos.UnrealizedPnL = qty * int64(pos.CurrentPrice-pos.EntryPrice)
		}
		positions[ticker] = pos
		positionValue += pos.MarketValue()
	}

	equity := p.cash + positionValue
	if equity > p.peakEquity {
		p.peakEquity = equity
	}
	var drawdown float64
	if p.peakEquity > 0 {
		drawdown = float64(p.peakEquity-equity) / float64(p.peakEquity) * 100
		if drawdown < 0 {
			drawdown = 0
		}
	}

	return &types.PortfolioSnapshot{
		Cash:        p.cash,
		Equity:      equity,
		DailyPnL:    equity - p.startEquity,
		Positions:   positions,
		PeakEquity:  p.peakEquity,
		DrawdownPct: drawdown,
		TakenAt:     time.Now(),
	}, nil
}

// SubmitOrder simulates a limit order against the latest book for the ticker.
func (p *Paper) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if req.Price < 1 || req.Price > 99 {
		return nil, fmt.Errorf("%w: order price %d outside [1,99]", types.ErrValidation, req.Price)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: order quantity %d", types.ErrValidation, req.Quantity)
	}

	book, err := p.data.GetOrderBook(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("%w: unknown ticker %s", types.ErrPermanent, req.Ticker)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastBooks[req.Ticker] = *book

	ask := book.AskFor(req.Side)
	askSize := book.YesAskSize
	if req.Side == types.SideNo {
		askSize = book.NoAskSize
	}

	orderID := uuid.New().String()

	if ask == 0 || req.Price < ask {
		// Order rests; nothing crosses.
		p.resting[orderID] = req
		p.logger.Debug("paper order resting",
			"ticker", req.Ticker, "side", req.Side, "price", req.Price, "ask", ask)
		return &types.OrderResult{OrderID: orderID}, nil
	}

	fillQty := req.Quantity
	if askSize > 0 && fillQty > askSize {
		fillQty = askSize
	}
	fillPrice := applySlippage(req.Price)

	// Price is quoted per side, so the fill price is the cost per contract
	// for both YES and NO.
	cost := int64(fillQty) * int64(fillPrice)
	if cost > p.cash {
		return nil, fmt.Errorf("%w: insufficient paper cash", types.ErrPermanent)
	}
	p.cash -= cost

	// Position prices are YES-referenced: a NO fill at price p is stored as
	// entry 100-p so mark-to-market works off a single price axis.
	signed := fillQty
	entry := fillPrice
	if req.Side == types.SideNo {
		signed = -fillQty
		entry = 100 - fillPrice
	}

	pos := p.positions[req.Ticker]
	pos.Ticker = req.Ticker
	if pos.Quantity == 0 || (pos.Quantity > 0) == (signed > 0) {
		// Opening or adding. The latest fill sets the reference price.
		pos.Quantity += signed
		pos.EntryPrice = entry
		pos.CurrentPrice = entry
	} else {
		// Offsetting. Each matched YES/NO pair redeems at 100 cents.
		held := pos.Quantity
		if held < 0 {
			held = -held
		}
		offset := fillQty
		if offset > held {
			offset = held
		}
		p.cash += int64(offset) * 100
		pos.Quantity += signed
		if pos.Quantity != 0 && (pos.Quantity > 0) == (signed > 0) {
			// Flipped through zero; the remainder opens at the fill price.
			pos.EntryPrice = entry
			pos.CurrentPrice = entry
		}
	}
	if pos.Quantity == 0 {
		delete(p.positions, req.Ticker)
	} else {
		p.positions[req.Ticker] = pos
	}

	if fillQty < req.Quantity {
		p.resting[orderID] = req
	}

	p.logger.Info("paper fill",
		"ticker", req.Ticker,
		"side", req.Side,
		"limit", req.Price,
		"fill_price", fillPrice,
		"fill_qty", fillQty,
		"cash", p.cash,
	)

	return &types.OrderResult{
		OrderID:   orderID,
		FillPrice: fillPrice,
		FillQty:   fillQty,
	}, nil
}

// CancelOrder removes a resting simulated order.
func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resting[orderID]; !ok {
		return fmt.Errorf("%w: unknown order %s", types.ErrPermanent, orderID)
	}
	delete(p.resting, orderID)
	return nil
}

// RestingCount returns how many simulated orders are resting.
func (p *Paper) RestingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resting)
}

// applySlippage adds 5 bps of adverse slippage to a fill price and rounds to
// the nearest cent within [1, 99].
func applySlippage(price int) int {
	adjusted := decimal.NewFromInt(int64(price)).
		Mul(decimal.NewFromInt(1).Add(slippageBps)).
		Round(0).
		IntPart()
	if adjusted < 1 {
		adjusted = 1
	}
	if adjusted > 99 {
		adjusted = 99
	}
	return int(adjusted)
}
