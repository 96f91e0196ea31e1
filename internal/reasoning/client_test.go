package reasoning

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ctxWithOpps() Context {
	return Context{
		Opportunities: []types.MarketOpportunity{
			{Ticker: "BTC-100K", Side: types.SideYes, EntryPrice: 49, Edge: 3, Confidence: 0.9, SuggestedSize: 20},
			{Ticker: "NBA-FINALS", Side: types.SideNo, EntryPrice: 60, Edge: 2.5, Confidence: 0.7, SuggestedSize: 10},
		},
	}
}

func TestRuleBasedTradesTopRanked(t *testing.T) {
	t.Parallel()
	d, err := RuleBased{}.Decide(context.Background(), ctxWithOpps())
	require.NoError(t, err)
	assert.Equal(t, DecideTrade, d.Kind)
	assert.Equal(t, "BTC-100K", d.Ticker)
	assert.Equal(t, 20, d.Size)
}

func TestRuleBasedHoldsWithoutOpportunities(t *testing.T) {
	t.Parallel()
	d, err := RuleBased{}.Decide(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, DecideHold, d.Kind)
}

func TestClientParsesDecision(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/decide", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kind":"trade","ticker":"BTC-100K","side":"YES","size":15,"confidence":0.8,"reasoning":"looks cheap"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	d, err := c.Decide(context.Background(), ctxWithOpps())
	require.NoError(t, err)
	assert.Equal(t, DecideTrade, d.Kind)
	assert.Equal(t, "BTC-100K", d.Ticker)
	assert.Equal(t, 15, d.Size)
}

func TestClientBadStatusIsReasonerUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	_, err := c.Decide(context.Background(), ctxWithOpps())
	assert.ErrorIs(t, err, types.ErrReasonerUnavailable)
}

func TestClientUnknownKindIsReasonerUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kind":"shrug"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	_, err := c.Decide(context.Background(), ctxWithOpps())
	assert.ErrorIs(t, err, types.ErrReasonerUnavailable)
}

func TestClientHonorsDeadline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Decide(ctx, ctxWithOpps())
	assert.ErrorIs(t, err, types.ErrReasonerUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}
