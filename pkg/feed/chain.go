package feed

import (
	"context"
	"fmt"
	"time"

	"kisfeed/pkg/kis"
)

func init() {
	RegisterFetcher(KindOptionChain, newChainFetcher)
}

// chainFetcher polls the option display board. The board is a point-in-time
// snapshot rather than a bar series, so there is no completion tracking; the
// fetcher instead dedupes to at most one snapshot per minute.
type chainFetcher struct {
	client *kis.Client
	clock  *Clock
	sub    Subscription

	lastMinute time.Time
}

func newChainFetcher(deps BuildDeps, sub Subscription) (Fetcher, error) {
	if deps.Client == nil || deps.Clock == nil {
		return nil, fmt.Errorf("chain fetcher %s: missing client or clock", sub.Label())
	}
	return &chainFetcher{client: deps.Client, clock: deps.Clock, sub: sub}, nil
}

func (f *chainFetcher) Label() string { return f.sub.Label() }

func (f *chainFetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if !f.clock.IsOpen(MarketDeriv) {
		return FetchResult{Skipped: true}, nil
	}
	minute := f.clock.FloorMinute()
	if minute.Equal(f.lastMinute) {
		return FetchResult{Skipped: true}, nil
	}
	resp, err := f.client.OptionChain(ctx, f.sub.Maturity, f.sub.MarketClass)
	if err != nil {
		return FetchResult{}, err
	}
	if len(resp.Calls) == 0 && len(resp.Puts) == 0 {
		return FetchResult{}, fmt.Errorf("option chain %s: empty board", f.sub.Maturity)
	}
	snapshot := ChainSnapshot{
		Timestamp:        minute,
		UnderlyingSymbol: f.sub.Label(),
		Calls:            quotesFromRows(resp.Calls),
		Puts:             quotesFromRows(resp.Puts),
	}
	if len(resp.Calls) > 0 {
		snapshot.UnderlyingPrice = resp.Calls[0].Underlying()
	} else {
		snapshot.UnderlyingPrice = resp.Puts[0].Underlying()
	}
	f.lastMinute = minute
	return FetchResult{Records: []Record{snapshot}}, nil
}

func quotesFromRows(rows []kis.OptionRow) []OptionQuote {
	quotes := make([]OptionQuote, 0, len(rows))
	for _, row := range rows {
		strike, price, iv, delta, gamma, vega, theta, rho := row.Floats()
		volume, openInterest := row.Counts()
		quotes = append(quotes, OptionQuote{
			Symbol:       row.Symbol,
			ATMClass:     row.ATMClass,
			Strike:       strike,
			Price:        price,
			IV:           iv,
			Delta:        delta,
			Gamma:        gamma,
			Vega:         vega,
			Theta:        theta,
			Rho:          rho,
			Volume:       volume,
			OpenInterest: openInterest,
		})
	}
	return quotes
}
