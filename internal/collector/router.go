package collector

import (
	"context"
	"fmt"

	"SignalScanner/internal/model"
)

// MarketRouter dispatches each symbol to the fetcher for its market class.
type MarketRouter struct {
	routes map[model.MarketClass]Fetcher
}

func NewMarketRouter(routes map[model.MarketClass]Fetcher) *MarketRouter {
	return &MarketRouter{routes: routes}
}

func (r *MarketRouter) Name() string { return "router" }

func (r *MarketRouter) FetchBars(ctx context.Context, sym model.Symbol, timeframe string, count int) ([]model.OHLCV, error) {
	f, ok := r.routes[sym.Market]
	if !ok {
		return nil, fmt.Errorf("no data source for market %q (%s)", sym.Market, sym.Name)
	}
	bars, err := f.FetchBars(ctx, sym, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return bars, nil
}
