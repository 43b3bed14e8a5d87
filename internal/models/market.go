package models

import "time"

// Quote holds the latest bid/ask/trade for a symbol. Used for
// tradeability checks (spread, last price).
type Quote struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	BidSize   int64     `json:"bid_size"`
	AskPrice  float64   `json:"ask_price"`
	AskSize   int64     `json:"ask_size"`
	LastPrice float64   `json:"last_price"`
	LastSize  int64     `json:"last_size"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"`
}

// Bar represents a single OHLCV bar
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"`
}

// MarketSnapshot is a discovery result: a mover with price and volume.
type MarketSnapshot struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Description   string  `json:"description,omitempty"`
	Source        string  `json:"source,omitempty"`
}

// CompanyProfile holds fundamental context for a symbol.
type CompanyProfile struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Sector      string `json:"sector,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Description string `json:"description,omitempty"`
	Employees   int64  `json:"employees,omitempty"`
	Website     string `json:"website,omitempty"`
}

// NewsItem is a headline attached to one or more symbols.
type NewsItem struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// BarRequest bundles the parameters of a historical bars query.
type BarRequest struct {
	Symbols   []string
	Timeframe string // e.g. "1m", "5m", "1d"
	Limit     int    // default 200
	Start     time.Time
	End       time.Time
}

// ScreeningCriteria filters discovery candidates.
type ScreeningCriteria struct {
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	MinVolume    int64   `json:"min_volume,omitempty"`
	Sector       string  `json:"sector,omitempty"`
	MinMarketCap float64 `json:"min_market_cap,omitempty"`
}
