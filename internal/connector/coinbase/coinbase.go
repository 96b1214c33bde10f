// Package coinbase implements the Coinbase connector.Connector. This
// deployment only reaches Coinbase for spot symbols — Coinbase exposes no
// perpetual/derivative products here, so MarketType is accepted for
// interface symmetry but only model.MarketSpot is meaningful.
//
// Grounded on other_examples' chidi150c-coinbase reference for the
// "type"-discriminated message shape; subscribe/channel naming follows
// Coinbase's Advanced Trade WebSocket feed ("ticker", "market_trades",
// "level2").
package coinbase

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ingestd/marketfeed/internal/model"
)

// Connector dials Coinbase's public WebSocket feed.
type Connector struct {
	WSURL string
}

// channels builds one subscribe channel name per enabled family, per
// spec.md §4.4's "one stream descriptor per enabled family" contract
// generalized to Coinbase's channel-name subscription model.
func channels(cfg model.StreamConfig) []string {
	var out []string
	if cfg.RawTrades {
		out = append(out, "market_trades")
	}
	if cfg.OrderBook {
		out = append(out, "level2")
	}
	if cfg.Ticker || cfg.BookTicker {
		out = append(out, "ticker")
	}
	return out
}

// Connect dials the venue and sends one subscribe frame per enabled
// channel, each naming the single requested product.
func (c Connector) Connect(ctx context.Context, symbol string, market model.MarketType, cfg model.StreamConfig) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.WSURL, nil)
	if err != nil {
		return nil, err
	}

	for _, ch := range channels(cfg) {
		msg := map[string]any{
			"type":        "subscribe",
			"product_ids": []string{symbol},
			"channel":     ch,
		}
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
