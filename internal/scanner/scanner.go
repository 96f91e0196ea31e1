// Package scanner discovers candidate markets for each cycle.
//
// A scan checks the market-list cache (one shared "markets" key, short TTL),
// pre-filters by status/volume/open interest, then fans out order-book
// fetches across a bounded worker pool. Workers send results over a channel;
// the scanning goroutine — the engine's cycle loop — is the only cache
// writer. A failed book fetch drops that ticker for the cycle; a failed
// market-list fetch fails the whole scan and the engine skips the cycle.
package scanner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Snapwave333/klashibot-sub000/internal/cache"
	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/internal/exchange"
	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// marketListKey is the shared cache key for the full market list.
const marketListKey = "markets"

// bookFetchTimeout bounds each per-ticker order book fetch.
const bookFetchTimeout = time.Second

// Candidate pairs a market snapshot with its order book for the evaluator.
type Candidate struct {
	Market types.Market
	Book   types.OrderBook
}

// Scanner produces ranked candidate lists using the exchange port and the
// engine-owned caches.
type Scanner struct {
	port       exchange.Port
	cfg        config.ScannerConfig
	marketList *cache.Cache[[]types.Market]
	books      *cache.Cache[types.OrderBook]
	logger     *slog.Logger
}

// New creates a scanner. Both caches are owned by the caller (the engine);
// the scanner only touches them from the goroutine that calls Scan.
func New(
	port exchange.Port,
	cfg config.ScannerConfig,
	marketList *cache.Cache[[]types.Market],
	books *cache.Cache[types.OrderBook],
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		port:       port,
		cfg:        cfg,
		marketList: marketList,
		books:      books,
		logger:     logger.With("component", "scanner"),
	}
}

// Scan returns this cycle's candidates in ranking order: volume descending,
// ties broken by higher open interest, then lexicographic ticker.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	markets, err := s.listMarkets(ctx)
	if err != nil {
		return nil, err
	}

	filtered := s.preFilter(markets)
	candidates := s.fetchBooks(ctx, filtered)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Market, candidates[j].Market
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		if a.OpenInterest != b.OpenInterest {
			return a.OpenInterest > b.OpenInterest
		}
		return a.Ticker < b.Ticker
	})

	s.logger.Info("scan complete",
		"listed", len(markets),
		"filtered", len(filtered),
		"candidates", len(candidates),
	)
	return candidates, nil
}

// listMarkets returns the cached market list, refreshing it on a miss.
func (s *Scanner) listMarkets(ctx context.Context) ([]types.Market, error) {
	if cached, ok := s.marketList.Get(marketListKey); ok {
		return cached, nil
	}

	markets, err := s.port.ListOpenMarkets(ctx, s.cfg.MarketLimit)
	if err != nil {
		return nil, err
	}
	if err := s.marketList.Put(marketListKey, markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// preFilter keeps only open markets with enough lifetime volume and open
// interest to be worth pricing.
func (s *Scanner) preFilter(markets []types.Market) []types.Market {
	var result []types.Market
	for _, m := range markets {
		if m.Status != types.StatusOpen {
			continue
		}
		if m.Volume <= s.cfg.MinVolume {
			continue
		}
		if m.OpenInterest <= s.cfg.MinOpenInterest {
			continue
		}
		result = append(result, m)
	}
	return result
}

// fetchBooks fans out order-book fetches with bounded concurrency. Cached
// books are used directly; fresh books flow back over a channel so only this
// goroutine writes the cache.
func (s *Scanner) fetchBooks(ctx context.Context, markets []types.Market) []Candidate {
	type fetched struct {
		market types.Market
		book   types.OrderBook
	}

	candidates := make([]Candidate, 0, len(markets))
	var toFetch []types.Market
	for _, m := range markets {
		if book, ok := s.books.Get(m.Ticker); ok {
			candidates = append(candidates, Candidate{Market: m, Book: book})
			continue
		}
		toFetch = append(toFetch, m)
	}

	if len(toFetch) == 0 {
		return candidates
	}

	results := make(chan fetched, len(toFetch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, m := range toFetch {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, bookFetchTimeout)
			defer cancel()

			book, err := s.port.GetOrderBook(fctx, m.Ticker)
			if err != nil {
				s.logger.Warn("book fetch failed, dropping ticker",
					"ticker", m.Ticker, "error", err)
				return nil // per-ticker errors are non-fatal
			}
			if book == nil {
				return nil // unknown or closed since listing
			}
			results <- fetched{market: m, book: *book}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for f := range results {
		if err := s.books.Put(f.market.Ticker, f.book); err != nil {
			s.logger.Warn("book cache put failed", "ticker", f.market.Ticker, "error", err)
			continue
		}
		candidates = append(candidates, Candidate{Market: f.market, Book: f.book})
	}
	return candidates
}
