package model

import (
	"encoding/json"
	"fmt"
)

// Side is the aggressor/book side of a trade or level.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceLevel is a single (price, quantity) pair in an order book side.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a full-depth snapshot for a topic. Exchanges in scope deliver
// absolute levels on every update, never incremental diffs, so the registry
// never reconstructs depth from deltas (see Non-goals).
type OrderBook struct {
	Topic         string       `json:"topic"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
	LastUpdateID  uint64       `json:"last_update_id"`
}

// Trade is a single executed trade.
type Trade struct {
	TradeID   uint64  `json:"trade_id"`
	Topic     string  `json:"topic"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	TsMs      uint64  `json:"ts_ms"`
	Side      Side    `json:"side"`
}

// AggTrade is an aggregated trade covering a run of trade ids at one price.
type AggTrade struct {
	AggID         uint64  `json:"agg_id"`
	Topic         string  `json:"topic"`
	Price         float64 `json:"price"`
	Qty           float64 `json:"qty"`
	TsMs          uint64  `json:"ts_ms"`
	Side          Side    `json:"side"`
	FirstTradeID  uint64  `json:"first_trade_id"`
	LastTradeID   uint64  `json:"last_trade_id"`
}

// Candle is one OHLCV bar for an interval.
type Candle struct {
	Topic      string  `json:"topic"`
	Interval   string  `json:"interval"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	StartTime  uint64  `json:"start_time"`
	CloseTime  uint64  `json:"close_time"`
	IsClosed   bool    `json:"is_closed"`
}

// Ticker is a rolling-window 24h ticker.
type Ticker struct {
	Topic        string  `json:"topic"`
	PriceChange  float64 `json:"price_change"`
	Pct          float64 `json:"pct"`
	Last         float64 `json:"last"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Vol          float64 `json:"vol"`
	QuoteVol     float64 `json:"quote_vol"`
	TsMs         uint64  `json:"ts"`
}

// BookTicker is the best bid/ask top-of-book.
type BookTicker struct {
	Topic      string  `json:"topic"`
	BestBid    float64 `json:"best_bid"`
	BestBidQty float64 `json:"best_bid_qty"`
	BestAsk    float64 `json:"best_ask"`
	BestAskQty float64 `json:"best_ask_qty"`
}

// MarkPrice carries a perpetual's mark/index price and next funding time.
type MarkPrice struct {
	Topic             string  `json:"topic"`
	Mark              float64 `json:"mark"`
	Index             float64 `json:"index"`
	NextFundingTimeMs uint64  `json:"next_funding_time"`
}

// FundingRate is the current funding rate for a perpetual.
type FundingRate struct {
	Topic string  `json:"topic"`
	Rate  float64 `json:"rate"`
	TsMs  uint64  `json:"ts"`
}

// OpenInterest is the current open interest for a perpetual.
type OpenInterest struct {
	Topic string  `json:"topic"`
	OI    float64 `json:"oi"`
	TsMs  uint64  `json:"ts"`
}

// Liquidation is a single forced-liquidation order report.
type Liquidation struct {
	Topic string  `json:"topic"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
	Side  Side    `json:"side"`
}

// HistoricalCandles is a response envelope for bulk historical data. It is
// never placed on the broadcast bus.
type HistoricalCandles struct {
	Topic   string   `json:"topic"`
	Candles []Candle `json:"candles"`
}

// Kind discriminates the MarketEvent union on the wire.
type Kind string

const (
	KindOrderBook         Kind = "OrderBook"
	KindTrade             Kind = "Trade"
	KindAggTrade          Kind = "AggTrade"
	KindCandle            Kind = "Candle"
	KindTicker            Kind = "Ticker"
	KindBookTicker        Kind = "BookTicker"
	KindMarkPrice         Kind = "MarkPrice"
	KindFundingRate       Kind = "FundingRate"
	KindOpenInterest      Kind = "OpenInterest"
	KindLiquidation       Kind = "Liquidation"
	KindHistoricalCandles Kind = "HistoricalCandles"
)

// Event is a tagged-union envelope: {"type": <Kind>, "data": <payload>}.
// Data holds exactly one of the typed payloads above; callers switch on Kind.
type Event struct {
	Kind Kind `json:"type"`
	Data any  `json:"data"`
}

// MarshalJSON emits the tagged-union wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind Kind `json:"type"`
		Data any  `json:"data"`
	}
	return json.Marshal(wire{Kind: e.Kind, Data: e.Data})
}

// UnmarshalJSON decodes the tagged-union wire form into the concrete payload
// type named by "type", so round-tripping an Event yields a typed Data value
// rather than a bare map[string]any.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire struct {
		Kind Kind            `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	e.Kind = wire.Kind

	var err error
	switch wire.Kind {
	case KindOrderBook:
		var v OrderBook
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindTrade:
		var v Trade
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindAggTrade:
		var v AggTrade
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindCandle:
		var v Candle
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindTicker:
		var v Ticker
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindBookTicker:
		var v BookTicker
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindMarkPrice:
		var v MarkPrice
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindFundingRate:
		var v FundingRate
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindOpenInterest:
		var v OpenInterest
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindLiquidation:
		var v Liquidation
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	case KindHistoricalCandles:
		var v HistoricalCandles
		err = json.Unmarshal(wire.Data, &v)
		e.Data = v
	default:
		return fmt.Errorf("model: unknown event kind %q", wire.Kind)
	}
	return err
}

// NewEvent wraps a concrete payload into a tagged Event, deriving Kind from
// its Go type. Panics on an unrecognized type — that is a programming error,
// not a runtime condition (every family is closed and known at compile time).
func NewEvent(payload any) Event {
	switch payload.(type) {
	case OrderBook:
		return Event{Kind: KindOrderBook, Data: payload}
	case Trade:
		return Event{Kind: KindTrade, Data: payload}
	case AggTrade:
		return Event{Kind: KindAggTrade, Data: payload}
	case Candle:
		return Event{Kind: KindCandle, Data: payload}
	case Ticker:
		return Event{Kind: KindTicker, Data: payload}
	case BookTicker:
		return Event{Kind: KindBookTicker, Data: payload}
	case MarkPrice:
		return Event{Kind: KindMarkPrice, Data: payload}
	case FundingRate:
		return Event{Kind: KindFundingRate, Data: payload}
	case OpenInterest:
		return Event{Kind: KindOpenInterest, Data: payload}
	case Liquidation:
		return Event{Kind: KindLiquidation, Data: payload}
	case HistoricalCandles:
		return Event{Kind: KindHistoricalCandles, Data: payload}
	default:
		panic(fmt.Sprintf("model: NewEvent: unsupported payload type %T", payload))
	}
}

// TopicOf returns the topic field carried by the payload inside ev.Data.
// Used by the session's broadcast topic extraction (internal/session
// extractTopic) and by tests; every branch must stay exhaustive as new
// families are added.
func TopicOf(ev Event) string {
	switch d := ev.Data.(type) {
	case OrderBook:
		return d.Topic
	case Trade:
		return d.Topic
	case AggTrade:
		return d.Topic
	case Candle:
		return d.Topic
	case Ticker:
		return d.Topic
	case BookTicker:
		return d.Topic
	case MarkPrice:
		return d.Topic
	case FundingRate:
		return d.Topic
	case OpenInterest:
		return d.Topic
	case Liquidation:
		return d.Topic
	case HistoricalCandles:
		return d.Topic
	default:
		return ""
	}
}
