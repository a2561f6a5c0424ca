package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"SignalScanner/internal/model"
)

const binanceMaxLimit = 1000

// BinanceFetcher implements Fetcher using the Binance spot REST API.
type BinanceFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewBinanceFetcher creates a new fetcher with optional proxy support.
func NewBinanceFetcher(baseURL, proxyURL string) *BinanceFetcher {
	return &BinanceFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  newHTTPClient(proxyURL, 30*time.Second),
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

// FetchBars reads klines. Each kline is a positional array:
// [openTime, open, high, low, close, volume, closeTime, ...] with prices
// encoded as strings.
func (f *BinanceFetcher) FetchBars(ctx context.Context, sym model.Symbol, timeframe string, count int) ([]model.OHLCV, error) {
	if count > binanceMaxLimit {
		count = binanceMaxLimit
	}
	q := url.Values{}
	q.Set("symbol", sym.Name)
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(count))

	var raw [][]json.RawMessage
	if err := f.get(ctx, "/api/v3/klines?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", sym.Name, err)
	}

	bars := make([]model.OHLCV, 0, len(raw))
	for i, k := range raw {
		bar, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: row %d: %w", sym.Name, i, err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseKline(k []json.RawMessage) (model.OHLCV, error) {
	if len(k) < 6 {
		return model.OHLCV{}, fmt.Errorf("short kline: %d fields", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return model.OHLCV{}, fmt.Errorf("open time: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return model.OHLCV{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.OHLCV{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return model.OHLCV{
		Time:   time.UnixMilli(openTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		QuoteAsset           string `json:"quoteAsset"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
	} `json:"symbols"`
}

// ListSymbols returns every spot pair currently trading against quote,
// sorted by name. A positive limit truncates the list.
func (f *BinanceFetcher) ListSymbols(ctx context.Context, quote string, limit int) ([]model.Symbol, error) {
	var info exchangeInfo
	if err := f.get(ctx, "/api/v3/exchangeInfo", &info); err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}
	var out []model.Symbol
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed || !strings.EqualFold(s.QuoteAsset, quote) {
			continue
		}
		out = append(out, model.Symbol{Name: s.Symbol, Market: model.MarketCrypto})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *BinanceFetcher) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
