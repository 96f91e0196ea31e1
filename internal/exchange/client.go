package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Client is the live REST API client. It wraps a resty HTTP client with
// per-category rate limiting and converts every failure into a pkg/types
// error kind at this boundary.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

// wire-format structs. The API returns money as decimal dollar strings
// ("12.50"); prices are already integer cents.

type apiMarket struct {
	Ticker       string `json:"ticker"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
}

type apiMarketsResponse struct {
	Markets []apiMarket `json:"markets"`
}

type apiOrderBook struct {
	Ticker     string `json:"ticker"`
	YesBid     int    `json:"yes_bid"`
	YesAsk     int    `json:"yes_ask"`
	NoBid      int    `json:"no_bid"`
	NoAsk      int    `json:"no_ask"`
	YesBidSize int    `json:"yes_bid_size"`
	YesAskSize int    `json:"yes_ask_size"`
	NoBidSize  int    `json:"no_bid_size"`
	NoAskSize  int    `json:"no_ask_size"`
}

type apiPosition struct {
	Ticker       string `json:"ticker"`
	Quantity     int    `json:"quantity"`
	EntryPrice   int    `json:"entry_price"`
	CurrentPrice int    `json:"current_price"`
}

type apiPortfolio struct {
	Cash      string        `json:"cash"`      // dollars, e.g. "1043.27"
	Equity    string        `json:"equity"`    // dollars
	DailyPnL  string        `json:"daily_pnl"` // dollars, signed
	Positions []apiPosition `json:"positions"`
}

type apiOrderResponse struct {
	OrderID   string `json:"order_id"`
	FillPrice int    `json:"fill_price"`
	FillQty   int    `json:"fill_qty"`
}

// NewClient creates a live REST client.
func NewClient(cfg config.APIConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.ApiKey)

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "exchange"),
	}
}

// classify maps an HTTP outcome to an error kind. ctx errors become deadline
// errors; 429 is throttling; remaining 4xx are permanent; everything else is
// transport.
func classify(resp *resty.Response, err error, op string) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", types.ErrDeadlineExceeded, op)
		}
		return fmt.Errorf("%w: %s: %v", types.ErrTransport, op, err)
	}
	code := resp.StatusCode()
	switch {
	case code == http.StatusOK || code == http.StatusCreated:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", types.ErrRateLimited, op)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: %s: status %d: %s", types.ErrPermanent, op, code, resp.String())
	default:
		return fmt.Errorf("%w: %s: status %d", types.ErrTransport, op, code)
	}
}

// ListOpenMarkets fetches open markets, sorted by volume descending.
func (c *Client) ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: list markets: %v", types.ErrDeadlineExceeded, err)
	}

	var result apiMarketsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"status": "open",
		}).
		SetResult(&result).
		Get("/markets")
	if cerr := classify(resp, err, "list markets"); cerr != nil {
		return nil, cerr
	}

	markets := make([]types.Market, 0, len(result.Markets))
	for _, m := range result.Markets {
		markets = append(markets, types.Market{
			Ticker:       m.Ticker,
			Title:        m.Title,
			Status:       types.MarketStatus(m.Status),
			Volume:       m.Volume,
			OpenInterest: m.OpenInterest,
		})
	}
	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Volume > markets[j].Volume
	})
	return markets, nil
}

// GetOrderBook fetches the top-of-book for one ticker. Returns nil for an
// unknown or closed market.
func (c *Client) GetOrderBook(ctx context.Context, ticker string) (*types.OrderBook, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: get book: %v", types.ErrDeadlineExceeded, err)
	}

	var result apiOrderBook
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + ticker + "/orderbook")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if cerr := classify(resp, err, "get book"); cerr != nil {
		return nil, cerr
	}

	return &types.OrderBook{
		Ticker:     ticker,
		YesBid:     result.YesBid,
		YesAsk:     result.YesAsk,
		NoBid:      result.NoBid,
		NoAsk:      result.NoAsk,
		YesBidSize: result.YesBidSize,
		YesAskSize: result.YesAskSize,
		NoBidSize:  result.NoBidSize,
		NoAskSize:  result.NoAskSize,
		Timestamp:  time.Now(),
	}, nil
}

// GetPortfolio fetches the account snapshot. Dollar strings are converted to
// cents with decimal arithmetic; truncation would lose sub-cent amounts the
// exchange never reports, so Round(0) after scaling is exact.
func (c *Client) GetPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: get portfolio: %v", types.ErrDeadlineExceeded, err)
	}

	var result apiPortfolio
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/portfolio")
	if cerr := classify(resp, err, "get portfolio"); cerr != nil {
		return nil, cerr
	}

	cash, err := dollarsToCents(result.Cash)
	if err != nil {
		return nil, fmt.Errorf("%w: portfolio cash %q", types.ErrValidation, result.Cash)
	}
	equity, err := dollarsToCents(result.Equity)
	if err != nil {
		return nil, fmt.Errorf("%w: portfolio equity %q", types.ErrValidation, result.Equity)
	}
	dailyPnL, err := dollarsToCents(result.DailyPnL)
	if err != nil {
		return nil, fmt.Errorf("%w: portfolio daily_pnl %q", types.ErrValidation, result.DailyPnL)
	}

	positions := make(map[string]types.Position, len(result.Positions))
	for _, p := range result.Positions {
		pos := types.Position{
			Ticker:       p.Ticker,
			Quantity:     p.Quantity,
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.CurrentPrice,
		}
		qty := int64(p.Quantity)
		if qty < 0 {
			qty = -qty
			pos.UnrealizedPnL = qty * int64((100-p.CurrentPrice)-(100-p.EntryPrice))
		} else {
			pos.UnrealizedPnL = qty * int64(p.CurrentPrice-p.EntryPrice)
		}
		positions[p.Ticker] = pos
	}

	return &types.PortfolioSnapshot{
		Cash:      cash,
		Equity:    equity,
		DailyPnL:  dailyPnL,
		Positions: positions,
		TakenAt:   time.Now(),
	}, nil
}

// SubmitOrder places one order. Called at most once per logical attempt.
func (c *Client) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if req.Price < 1 || req.Price > 99 {
		return nil, fmt.Errorf("%w: order price %d outside [1,99]", types.ErrValidation, req.Price)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: order quantity %d", types.ErrValidation, req.Quantity)
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: submit order: %v", types.ErrDeadlineExceeded, err)
	}

	var result apiOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/orders")
	if cerr := classify(resp, err, "submit order"); cerr != nil {
		return nil, cerr
	}

	c.logger.Info("order submitted",
		"ticker", req.Ticker,
		"side", req.Side,
		"price", req.Price,
		"qty", req.Quantity,
		"order_id", result.OrderID,
		"fill_qty", result.FillQty,
	)

	return &types.OrderResult{
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice,
		FillQty:   result.FillQty,
	}, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return fmt.Errorf("%w: cancel order: %v", types.ErrDeadlineExceeded, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/orders/" + orderID)
	if cerr := classify(resp, err, "cancel order"); cerr != nil {
		return cerr
	}

	c.logger.Info("order cancelled", "order_id", orderID)
	return nil
}

// dollarsToCents converts a decimal dollar string to int64 cents.
func dollarsToCents(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
