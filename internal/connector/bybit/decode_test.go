package bybit

import (
	"testing"

	"github.com/ingestd/marketfeed/internal/model"
)

func TestDecodeTradeFrame(t *testing.T) {
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","data":[{"i":"2290000000","p":"42000.5","v":"0.01","S":"Sell","T":1700000000123}]}`)

	c := Connector{}
	events := c.Decode("BYBIT_LINEAR_BTCUSDT", raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	trade, ok := events[0].(model.Trade)
	if !ok {
		t.Fatalf("expected model.Trade, got %T", events[0])
	}
	if trade.Side != model.SideSell {
		t.Fatalf("expected SideSell, got %v", trade.Side)
	}
	if trade.Price != 42000.5 || trade.Qty != 0.01 {
		t.Fatalf("unexpected price/qty: %+v", trade)
	}
	if trade.Topic != "BYBIT_LINEAR_BTCUSDT" {
		t.Fatalf("expected decoder to stamp the caller-supplied topic, got %q", trade.Topic)
	}
}

func TestDecodeTickersSplitsIntoTickerAndBookTicker(t *testing.T) {
	raw := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"lastPrice":"42000","price24hPcnt":"0.01","highPrice24h":"43000","lowPrice24h":"41000","volume24h":"123.4","turnover24h":"5000000","bid1Price":"41999","bid1Size":"1.5","ask1Price":"42001","ask1Size":"2.5"}}`)

	c := Connector{}
	events := c.Decode("BYBIT_LINEAR_BTCUSDT", raw)
	if len(events) != 2 {
		t.Fatalf("expected 2 events (ticker + book ticker), got %d", len(events))
	}
	if _, ok := events[0].(model.Ticker); !ok {
		t.Fatalf("expected first event to be model.Ticker, got %T", events[0])
	}
	bt, ok := events[1].(model.BookTicker)
	if !ok {
		t.Fatalf("expected second event to be model.BookTicker, got %T", events[1])
	}
	if bt.BestBid != 41999 || bt.BestAsk != 42001 {
		t.Fatalf("unexpected book ticker values: %+v", bt)
	}
}

func TestDecodeTickersIncludesFuturesOnlyFields(t *testing.T) {
	raw := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"lastPrice":"42000","price24hPcnt":"0.01","highPrice24h":"43000","lowPrice24h":"41000","volume24h":"123.4","turnover24h":"5000000","bid1Price":"41999","bid1Size":"1.5","ask1Price":"42001","ask1Size":"2.5","markPrice":"42005","indexPrice":"42003","fundingRate":"0.0001","openInterest":"98765.4","nextFundingTime":"1700004800000"}}`)

	c := Connector{}
	events := c.Decode("BYBIT_LINEAR_BTCUSDT", raw)
	if len(events) != 5 {
		t.Fatalf("expected 5 events (ticker, book ticker, mark price, funding rate, open interest), got %d: %+v", len(events), events)
	}
	mp, ok := events[2].(model.MarkPrice)
	if !ok || mp.Mark != 42005 || mp.Index != 42003 {
		t.Fatalf("unexpected mark price event: %+v (ok=%v)", events[2], ok)
	}
	fr, ok := events[3].(model.FundingRate)
	if !ok || fr.Rate != 0.0001 {
		t.Fatalf("unexpected funding rate event: %+v (ok=%v)", events[3], ok)
	}
	oi, ok := events[4].(model.OpenInterest)
	if !ok || oi.OI != 98765.4 {
		t.Fatalf("unexpected open interest event: %+v (ok=%v)", events[4], ok)
	}
}

func TestDecodeUnknownTopicYieldsNoEvents(t *testing.T) {
	raw := []byte(`{"topic":"unknown.BTCUSDT","type":"snapshot","data":{}}`)

	c := Connector{}
	events := c.Decode("BYBIT_LINEAR_BTCUSDT", raw)
	if events != nil {
		t.Fatalf("expected nil events for unrecognized topic prefix, got %v", events)
	}
}

func TestTopicsRespectEnabledFamilies(t *testing.T) {
	cfg := model.StreamConfig{RawTrades: true, OrderBook: true}
	subs := topics("BTCUSDT", cfg)

	wantHasTrade, wantHasBook := false, false
	for _, s := range subs {
		if s == "publicTrade.BTCUSDT" {
			wantHasTrade = true
		}
		if s == "orderbook.50.BTCUSDT" {
			wantHasBook = true
		}
		if s == "tickers.BTCUSDT" {
			t.Fatalf("tickers topic should not be subscribed when Ticker/BookTicker are disabled, got %v", subs)
		}
	}
	if !wantHasTrade || !wantHasBook {
		t.Fatalf("expected publicTrade and orderbook topics, got %v", subs)
	}
}

func TestTopicsSubscribesTickersForFuturesOnlyFamilies(t *testing.T) {
	cfg := model.StreamConfig{OpenInterest: true}
	subs := topics("BTCUSDT", cfg)
	if len(subs) != 1 || subs[0] != "tickers.BTCUSDT" {
		t.Fatalf("expected tickers topic alone when only OpenInterest is enabled, got %v", subs)
	}
}
