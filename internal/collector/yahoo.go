package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"SignalScanner/internal/model"
)

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(baseURL, proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  newHTTPClient(proxyURL, 30*time.Second),
		SymbolMap: map[string]string{
			"XU100":  "XU100.IS",
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"NDX":    "^NDX",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooSymbol maps a symbol to a Yahoo ticker. Borsa Istanbul tickers carry
// the ".IS" suffix.
func (f *YahooFetcher) yahooSymbol(sym model.Symbol) string {
	if mapped, ok := f.SymbolMap[sym.Name]; ok {
		return mapped
	}
	if sym.Market == model.MarketBIST && !strings.Contains(sym.Name, ".") {
		return sym.Name + ".IS"
	}
	return sym.Name
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return 0
	}
	return *vs[i]
}

type yahooInterval struct {
	name     string
	step     time.Duration
	maxRange string
}

var yahooIntervals = map[string]yahooInterval{
	"1m":  {"1m", time.Minute, "5d"},
	"5m":  {"5m", 5 * time.Minute, "1mo"},
	"15m": {"15m", 15 * time.Minute, "1mo"},
	"30m": {"30m", 30 * time.Minute, "1mo"},
	"1h":  {"60m", time.Hour, "2y"},
	"60m": {"60m", time.Hour, "2y"},
	"1d":  {"1d", 24 * time.Hour, "10y"},
	"1wk": {"1wk", 7 * 24 * time.Hour, "10y"},
}

var yahooRanges = []struct {
	name string
	span time.Duration
}{
	{"1d", 24 * time.Hour},
	{"5d", 5 * 24 * time.Hour},
	{"1mo", 30 * 24 * time.Hour},
	{"3mo", 90 * 24 * time.Hour},
	{"6mo", 180 * 24 * time.Hour},
	{"1y", 365 * 24 * time.Hour},
	{"2y", 730 * 24 * time.Hour},
	{"10y", 3650 * 24 * time.Hour},
}

// chartRange picks the shortest Yahoo range that covers count bars of iv.
// Exchange sessions last a fraction of the day, so intraday needs are
// scaled by five to cover closed hours and weekends.
func chartRange(iv yahooInterval, count int) string {
	need := time.Duration(count) * iv.step
	if iv.step < 24*time.Hour {
		need *= 5
	} else {
		need = need * 7 / 5
	}
	for _, r := range yahooRanges {
		if r.span >= need || r.name == iv.maxRange {
			return r.name
		}
	}
	return iv.maxRange
}

func (f *YahooFetcher) FetchBars(ctx context.Context, sym model.Symbol, timeframe string, count int) ([]model.OHLCV, error) {
	iv, ok := yahooIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %q", timeframe)
	}
	bars, err := f.fetchChart(ctx, f.yahooSymbol(sym), iv.name, chartRange(iv, count))
	if err != nil {
		return nil, err
	}
	// Trim to requested count
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, ticker, interval, rng string) ([]model.OHLCV, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(ticker), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s: status %d", ticker, resp.StatusCode)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars (holidays, halts)
		}
		bars = append(bars, model.OHLCV{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
