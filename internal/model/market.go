package model

import "time"

// MarketClass groups symbols that share a data source and a trading-hours table.
type MarketClass string

const (
	MarketCrypto MarketClass = "CRYPTO"
	MarketBIST   MarketClass = "BIST"
	MarketUS     MarketClass = "US"
)

// Symbol is one tradable instrument in the scan universe.
type Symbol struct {
	Name   string      `yaml:"symbol" json:"symbol"`
	Market MarketClass `yaml:"market" json:"market"`
}

func (s Symbol) String() string { return string(s.Market) + ":" + s.Name }

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
