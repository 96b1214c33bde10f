// Package binance implements the Binance connector.Connector: URL
// composition from a sanitized StreamConfig and wire decoding for spot,
// linear-perpetual, and inverse-perpetual market types.
//
// Grounded on original_source/ingestion_engine/src/connectors/binance.rs:
// the cheap-discriminator-before-full-parse dispatch, parse_raw_levels'
// tolerant float parsing, and the buyer-maker→side mapping.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ingestd/marketfeed/internal/model"
)

// Connector dials Binance's combined-stream WebSocket endpoint.
type Connector struct {
	SpotWSURL          string
	LinearFutureWSURL  string
	InverseFutureWSURL string
	OrderBookDepth     int
}

func (c Connector) baseURL(market model.MarketType) string {
	switch market {
	case model.MarketLinearFuture:
		return c.LinearFutureWSURL
	case model.MarketInverseFuture:
		return c.InverseFutureWSURL
	default:
		return c.SpotWSURL
	}
}

// streamDescriptors builds one descriptor per enabled family, in the order
// families are declared, per spec.md §4.4.
func (c Connector) streamDescriptors(symbol string, cfg model.StreamConfig) []string {
	sym := strings.ToLower(symbol)
	var streams []string

	if cfg.RawTrades {
		streams = append(streams, sym+"@trade")
	}
	if cfg.AggTrades {
		streams = append(streams, sym+"@aggTrade")
	}
	if cfg.OrderBook {
		streams = append(streams, fmt.Sprintf("%s@depth%d", sym, c.OrderBookDepth))
	}
	if cfg.Ticker {
		streams = append(streams, sym+"@ticker")
	}
	if cfg.BookTicker {
		streams = append(streams, sym+"@bookTicker")
	}
	if cfg.MarkPrice {
		streams = append(streams, sym+"@markPrice")
	}
	if cfg.Liquidation {
		streams = append(streams, sym+"@forceOrder")
	}
	for _, interval := range cfg.KlineIntervals {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", sym, interval))
	}

	return streams
}

// Connect composes the combined-stream URL and dials it. If no families are
// enabled, this is never reached — Supervisor.Spawn checks AnyEnabled first.
func (c Connector) Connect(ctx context.Context, symbol string, market model.MarketType, cfg model.StreamConfig) (*websocket.Conn, error) {
	streams := c.streamDescriptors(symbol, cfg)
	url := c.baseURL(market) + "/stream?streams=" + strings.Join(streams, "/")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	return conn, err
}

// Decode dispatches on a cheap discriminator before attempting a full parse,
// per spec.md §4.1. A single frame may yield more than one event (the
// markPriceUpdate frame carries both MarkPrice and FundingRate).
func (c Connector) Decode(topic string, raw []byte) []any {
	data := unwrapCombined(raw)

	switch {
	case hasField(data, `"e":"trade"`):
		if t, ok := decodeTrade(topic, data); ok {
			return []any{t}
		}
	case hasField(data, `"e":"aggTrade"`):
		if t, ok := decodeAggTrade(topic, data); ok {
			return []any{t}
		}
	case hasField(data, `"e":"depthUpdate"`) || (hasField(data, `"bids"`) && hasField(data, `"asks"`)):
		if ob, ok := decodeOrderBook(topic, data); ok {
			return []any{ob}
		}
	case hasField(data, `"e":"24hrTicker"`):
		if tk, ok := decodeTicker(topic, data); ok {
			return []any{tk}
		}
	case hasField(data, `"e":"markPriceUpdate"`):
		return decodeMarkPriceAndFunding(topic, data)
	case hasField(data, `"e":"forceOrder"`):
		if liq, ok := decodeLiquidation(topic, data); ok {
			return []any{liq}
		}
	case hasField(data, `"e":"kline"`):
		if c, ok := decodeCandle(topic, data); ok {
			return []any{c}
		}
	case !hasField(data, `"e":`) && hasField(data, `"b"`) && hasField(data, `"B"`) && hasField(data, `"a"`) && hasField(data, `"A"`):
		if bt, ok := decodeBookTicker(topic, data); ok {
			return []any{bt}
		}
	}
	return nil
}

func hasField(raw []byte, needle string) bool {
	return strings.Contains(string(raw), needle)
}

func unwrapCombined(raw []byte) []byte {
	idx := strings.Index(string(raw), `"data":`)
	if idx < 0 {
		return raw
	}
	inner := raw[idx+len(`"data":`):]
	if len(inner) > 0 && inner[len(inner)-1] == '}' {
		inner = inner[:len(inner)-1]
	}
	return inner
}

// parseFloat tolerantly parses a wire numeric (string or bare number),
// returning zero on failure rather than propagating an error — the
// normalization contract never treats a bad number as fatal (spec.md §3).
func parseFloat(s string) float64 {
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
