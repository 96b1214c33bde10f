package model

// StreamConfig declares which event families a connector should subscribe
// to. It is sanitized once per connector launch against the target market
// type (see Sanitize) so that a connector never opens a stream for a family
// the market type cannot produce.
type StreamConfig struct {
	RawTrades      bool     `json:"raw_trades" mapstructure:"raw_trades"`
	AggTrades      bool     `json:"agg_trades" mapstructure:"agg_trades"`
	OrderBook      bool     `json:"order_book" mapstructure:"order_book"`
	Ticker         bool     `json:"ticker" mapstructure:"ticker"`
	BookTicker     bool     `json:"book_ticker" mapstructure:"book_ticker"`
	MarkPrice      bool     `json:"mark_price" mapstructure:"mark_price"`
	IndexPrice     bool     `json:"index_price" mapstructure:"index_price"`
	Liquidation    bool     `json:"liquidation" mapstructure:"liquidation"`
	FundingRate    bool     `json:"funding_rate" mapstructure:"funding_rate"`
	OpenInterest   bool     `json:"open_interest" mapstructure:"open_interest"`
	Greeks         bool     `json:"greeks" mapstructure:"greeks"`
	KlineIntervals []string `json:"kline_intervals" mapstructure:"kline_intervals"`
}

// Sanitize zeroes fields that are inapplicable to market, returning a new,
// sanitized StreamConfig. It is the single source of truth preventing
// bandwidth waste and data leakage across market types: spot markets clear
// every perpetual/derivative-only family; futures clear option greeks.
func (c StreamConfig) Sanitize(market MarketType) StreamConfig {
	out := c
	switch market {
	case MarketSpot:
		out.MarkPrice = false
		out.IndexPrice = false
		out.FundingRate = false
		out.OpenInterest = false
		out.Liquidation = false
		out.Greeks = false
	case MarketLinearFuture, MarketInverseFuture:
		out.Greeks = false
	case MarketOption:
		// options retain everything declared; greeks are meaningful here.
	}
	return out
}

// AnyEnabled reports whether at least one family (including kline intervals)
// is enabled. A connector with no enabled family never opens a socket.
func (c StreamConfig) AnyEnabled() bool {
	return c.RawTrades || c.AggTrades || c.OrderBook || c.Ticker || c.BookTicker ||
		c.MarkPrice || c.IndexPrice || c.Liquidation || c.FundingRate ||
		c.OpenInterest || c.Greeks || len(c.KlineIntervals) > 0
}
