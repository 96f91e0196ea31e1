package strategy

import "strings"

// GroupClassifier maps a market title to a correlation group tag. The default
// is keyword-based; callers can swap in a precomputed or learned classifier
// without touching the risk gate.
type GroupClassifier func(title string) string

// Correlation group tags.
const (
	GroupElection = "election"
	GroupCrypto   = "crypto"
	GroupStocks   = "stocks"
	GroupSports   = "sports"
	GroupEconomy  = "economy"
	GroupOther    = "other"
)

var groupKeywords = []struct {
	group    string
	keywords []string
}{
	{GroupElection, []string{"election", "politics"}},
	{GroupCrypto, []string{"btc", "eth", "crypto"}},
	{GroupStocks, []string{"sp500", "nasdaq", "dow"}},
	{GroupSports, []string{"nba", "nfl", "mlb"}},
	{GroupEconomy, []string{"gdp", "cpi", "fed", "rate"}},
}

// ClassifyByKeywords is the default classifier: first keyword match wins,
// anything unmatched lands in "other".
func ClassifyByKeywords(title string) string {
	lower := strings.ToLower(title)
	for _, g := range groupKeywords {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.group
			}
		}
	}
	return GroupOther
}
