package coinbase

import (
	"testing"

	"github.com/ingestd/marketfeed/internal/model"
)

func TestDecodeTradesFrame(t *testing.T) {
	raw := []byte(`{"channel":"market_trades","events":[{"trades":[{"trade_id":"12345","price":"42000.50","size":"0.01","side":"BUY","time":"1700000000"}]}]}`)

	c := Connector{}
	events := c.Decode("COINBASE_SPOT_BTC-USD", raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	trade, ok := events[0].(model.Trade)
	if !ok {
		t.Fatalf("expected model.Trade, got %T", events[0])
	}
	if trade.TradeID != 12345 || trade.Side != model.SideBuy {
		t.Fatalf("unexpected trade: %+v", trade)
	}
}

func TestDecodeTickerSplitsIntoTickerAndBookTicker(t *testing.T) {
	raw := []byte(`{"channel":"ticker","events":[{"tickers":[{"price":"42000","volume_24_h":"123.4","high_24_h":"43000","low_24_h":"41000","price_percent_chg_24_h":"1.5","best_bid":"41999","best_bid_quantity":"1.5","best_ask":"42001","best_ask_quantity":"2.5"}]}]}`)

	c := Connector{}
	events := c.Decode("COINBASE_SPOT_BTC-USD", raw)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if _, ok := events[0].(model.Ticker); !ok {
		t.Fatalf("expected first event to be model.Ticker, got %T", events[0])
	}
	if _, ok := events[1].(model.BookTicker); !ok {
		t.Fatalf("expected second event to be model.BookTicker, got %T", events[1])
	}
}

// TestDecodeLevel2UsesReceivedChannelNameNotSubscribedChannelName documents a
// deliberate Coinbase Advanced Trade quirk: clients subscribe using the
// channel name "level2", but the server tags emitted frames with "l2_data".
// The decoder must match on the received name.
func TestDecodeLevel2UsesReceivedChannelNameNotSubscribedChannelName(t *testing.T) {
	raw := []byte(`{"channel":"l2_data","events":[{"updates":[{"side":"bid","price_level":"41999","new_quantity":"1.5"},{"side":"offer","price_level":"42001","new_quantity":"2.5"}]}]}`)

	c := Connector{}
	events := c.Decode("COINBASE_SPOT_BTC-USD", raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 order book event, got %d", len(events))
	}
	ob, ok := events[0].(model.OrderBook)
	if !ok {
		t.Fatalf("expected model.OrderBook, got %T", events[0])
	}
	if len(ob.Bids) != 1 || len(ob.Asks) != 1 {
		t.Fatalf("expected one bid and one ask level, got %+v", ob)
	}
}

func TestDecodeUnrecognizedChannelYieldsNoEvents(t *testing.T) {
	raw := []byte(`{"channel":"heartbeats","events":[]}`)

	c := Connector{}
	events := c.Decode("COINBASE_SPOT_BTC-USD", raw)
	if events != nil {
		t.Fatalf("expected nil for unrecognized channel, got %v", events)
	}
}

func TestChannelsRespectEnabledFamilies(t *testing.T) {
	cfg := model.StreamConfig{RawTrades: true}
	chs := channels(cfg)
	if len(chs) != 1 || chs[0] != "market_trades" {
		t.Fatalf("expected only market_trades channel, got %v", chs)
	}
}
