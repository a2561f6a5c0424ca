package collector

import (
	"context"

	"SignalScanner/internal/model"

	"github.com/rs/zerolog"
)

// Universe yields the symbols scanned in one cycle.
type Universe interface {
	Symbols(ctx context.Context) ([]model.Symbol, error)
}

// StaticUniverse is a fixed symbol list.
type StaticUniverse []model.Symbol

func (u StaticUniverse) Symbols(context.Context) ([]model.Symbol, error) {
	return append([]model.Symbol(nil), u...), nil
}

// SymbolLister lists tradable pairs for a quote asset.
type SymbolLister interface {
	ListSymbols(ctx context.Context, quote string, limit int) ([]model.Symbol, error)
}

// ExchangeUniverse lists pairs from an exchange each cycle and falls back
// to a static list when the listing fails or comes back empty.
type ExchangeUniverse struct {
	Lister   SymbolLister
	Quote    string
	Limit    int
	Fallback []model.Symbol
	Log      zerolog.Logger
}

func (u *ExchangeUniverse) Symbols(ctx context.Context) ([]model.Symbol, error) {
	syms, err := u.Lister.ListSymbols(ctx, u.Quote, u.Limit)
	if err != nil || len(syms) == 0 {
		u.Log.Warn().Err(err).Int("fallback", len(u.Fallback)).Msg("symbol listing unavailable, using fallback universe")
		return append([]model.Symbol(nil), u.Fallback...), nil
	}
	return syms, nil
}
