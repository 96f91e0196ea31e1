package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

func newTestClient(url string) *Client {
	return NewClient(config.APIConfig{BaseURL: url, ApiKey: "test-key"}, discard())
}

func TestDollarsToCents(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"", 0},
		{"1043.27", 104327},
		{"-12.50", -1250},
		{"0.01", 1},
		{"1000000", 100000000},
	}
	for _, tc := range cases {
		got, err := dollarsToCents(tc.in)
		if err != nil {
			t.Errorf("dollarsToCents(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("dollarsToCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := dollarsToCents("not-a-number"); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestListOpenMarketsSortsByVolume(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets":[
			{"ticker":"SMALL","title":"s","status":"open","volume":100,"open_interest":10},
			{"ticker":"BIG","title":"b","status":"open","volume":9000,"open_interest":10}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	markets, err := c.ListOpenMarkets(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListOpenMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}
	if markets[0].Ticker != "BIG" {
		t.Errorf("first market = %s, want BIG", markets[0].Ticker)
	}
}

func TestGetOrderBookNotFoundIsNil(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	book, err := c.GetOrderBook(context.Background(), "GONE")
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if book != nil {
		t.Errorf("book = %+v, want nil for unknown ticker", book)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited},
		{http.StatusBadRequest, types.ErrPermanent},
		{http.StatusForbidden, types.ErrPermanent},
		{http.StatusInternalServerError, types.ErrTransport},
		{http.StatusBadGateway, types.ErrTransport},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := newTestClient(srv.URL)
		_, err := c.GetPortfolio(context.Background())
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: error = %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestGetPortfolioParsesDollars(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"cash":"900.00","equity":"1043.27","daily_pnl":"-12.50",
			"positions":[{"ticker":"T","quantity":-5,"entry_price":40,"current_price":45}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	snap, err := c.GetPortfolio(context.Background())
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if snap.Cash != 90000 {
		t.Errorf("Cash = %d, want 90000", snap.Cash)
	}
	if snap.Equity != 104327 {
		t.Errorf("Equity = %d, want 104327", snap.Equity)
	}
	if snap.DailyPnL != -1250 {
		t.Errorf("DailyPnL = %d, want -1250", snap.DailyPnL)
	}

	pos := snap.Positions["T"]
	if pos.Quantity != -5 {
		t.Errorf("Quantity = %d, want -5", pos.Quantity)
	}
	// Short 5 YES (long NO): price moving 40→45 loses 5 cents per contract.
	if pos.UnrealizedPnL != -25 {
		t.Errorf("UnrealizedPnL = %d, want -25", pos.UnrealizedPnL)
	}
}

func TestSubmitOrderValidatesDomain(t *testing.T) {
	t.Parallel()
	c := newTestClient("http://unused.invalid")

	_, err := c.SubmitOrder(context.Background(), types.OrderRequest{
		Ticker: "T", Side: types.SideYes, Price: 100, Quantity: 1,
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("price 100 error = %v, want ErrValidation", err)
	}

	_, err = c.SubmitOrder(context.Background(), types.OrderRequest{
		Ticker: "T", Side: types.SideYes, Price: 50, Quantity: -1,
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("negative qty error = %v, want ErrValidation", err)
	}
}
