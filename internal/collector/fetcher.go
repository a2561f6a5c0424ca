package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"SignalScanner/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchBars returns up to count bars of the given timeframe, oldest
	// first. Providers may return fewer bars than requested.
	FetchBars(ctx context.Context, sym model.Symbol, timeframe string, count int) ([]model.OHLCV, error)
	Name() string
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
