// Package bybit implements the Bybit connector.Connector: unlike Binance,
// Bybit subscribes to topics after connecting via an {"op":"subscribe",
// "args":[...]} control frame rather than through the URL path.
//
// Grounded on other_examples' romanzzaa-code-bybit-options-roller
// MarketStream (connect-then-subscribe shape, "op"/"args" control frame,
// ping keepalive); wire payload field names from Bybit v5 public topics.
package bybit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ingestd/marketfeed/internal/model"
)

var errNoTopics = errors.New("bybit: no topics to subscribe")

// Connector dials Bybit's v5 public WebSocket endpoints.
type Connector struct {
	LinearWSURL string
	SpotWSURL   string
}

func (c Connector) baseURL(market model.MarketType) string {
	switch market {
	case model.MarketLinearFuture, model.MarketInverseFuture:
		return c.LinearWSURL
	default:
		return c.SpotWSURL
	}
}

// topics builds one v5 public topic per enabled family, per spec.md §4.4's
// "one stream descriptor per enabled family" contract generalized to
// Bybit's topic.SYMBOL naming.
func topics(symbol string, cfg model.StreamConfig) []string {
	sym := strings.ToUpper(symbol)
	var out []string

	if cfg.RawTrades {
		out = append(out, "publicTrade."+sym)
	}
	if cfg.OrderBook {
		out = append(out, "orderbook.50."+sym)
	}
	if cfg.Ticker || cfg.BookTicker || cfg.MarkPrice || cfg.FundingRate || cfg.OpenInterest {
		out = append(out, "tickers."+sym)
	}
	if cfg.Liquidation {
		out = append(out, "liquidation."+sym)
	}
	for _, interval := range cfg.KlineIntervals {
		out = append(out, "kline."+interval+"."+sym)
	}

	return out
}

// Connect dials the venue then sends the subscribe control frame. Bybit's
// tickers topic carries Ticker and BookTicker fields on every market, plus
// MarkPrice/FundingRate/OpenInterest on linear perpetuals; all are decoded
// from the single topic where present (see decodeTickerAndBookTicker).
func (c Connector) Connect(ctx context.Context, symbol string, market model.MarketType, cfg model.StreamConfig) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.baseURL(market), nil)
	if err != nil {
		return nil, err
	}

	subs := topics(symbol, cfg)
	if len(subs) == 0 {
		conn.Close()
		return nil, errNoTopics
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": subs}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
