package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Client calls an external reasoning service over HTTP: POST /decide with the
// context packet, expecting a Decision back. Any failure — transport, status,
// timeout — surfaces as ErrReasonerUnavailable so the engine can fall back.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a reasoner client for the given endpoint.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(endpoint).
			SetTimeout(30 * time.Second). // outer cap; the per-call ctx deadline governs
			SetHeader("Content-Type", "application/json"),
		logger: logger.With("component", "reasoner"),
	}
}

// Decide posts the context packet and parses the structured decision.
func (c *Client) Decide(ctx context.Context, rc Context) (*Decision, error) {
	var decision Decision
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rc).
		SetResult(&decision).
		Post("/decide")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: decide timed out", types.ErrReasonerUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrReasonerUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", types.ErrReasonerUnavailable, resp.StatusCode())
	}

	switch decision.Kind {
	case DecideTrade, DecideHold, DecideAdjust, DecideClose:
	default:
		return nil, fmt.Errorf("%w: unknown decision kind %q", types.ErrReasonerUnavailable, decision.Kind)
	}

	c.logger.Debug("reasoner decision",
		"kind", decision.Kind,
		"ticker", decision.Ticker,
		"reasoning", decision.Reasoning,
	)
	return &decision, nil
}

// RuleBased is the built-in local reasoner used when no endpoint is
// configured. It takes the top-ranked opportunity as given, holds when the
// gate admitted nothing, and never adjusts parameters.
type RuleBased struct{}

// Decide implements Reasoner.
func (RuleBased) Decide(_ context.Context, rc Context) (*Decision, error) {
	if len(rc.Opportunities) == 0 {
		return &Decision{Kind: DecideHold, Reasoning: "no admitted opportunities"}, nil
	}
	top := rc.Opportunities[0]
	return &Decision{
		Kind:       DecideTrade,
		Ticker:     top.Ticker,
		Side:       top.Side,
		Size:       top.SuggestedSize,
		Confidence: top.Confidence,
		Reasoning:  "top-ranked admitted opportunity",
	}, nil
}
