package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/broadcast"
	"github.com/ingestd/marketfeed/internal/connector"
	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *httptest.Server) {
	t.Helper()
	bus := broadcast.New(64, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	sup := connector.New(reg, map[model.Exchange]connector.Connector{}, time.Second, zerolog.Nop())
	mgr := NewManager(reg, bus, sup, nil, Config{}, zerolog.Nop())

	srv := httptest.NewServer(mgr)
	t.Cleanup(srv.Close)
	return mgr, reg, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev model.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return ev
}

func TestSubscribeDeliversSnapshotBurst(t *testing.T) {
	_, reg, srv := newTestManager(t)
	topic := model.Topic(model.ExchangeBinance, model.MarketSpot, "BTCUSDT")

	reg.WriteSlot(topic, model.OrderBook{Topic: topic, LastUpdateID: 100})
	reg.AppendBounded(topic, model.Trade{Topic: topic, TradeID: 9})
	reg.AppendBounded(topic, model.Trade{Topic: topic, TradeID: 10})

	conn := dial(t, srv)
	defer conn.Close()

	cmd := model.Command{Action: model.ActionSubscribe, Channel: "BTCUSDT"}
	raw, _ := json.Marshal(cmd)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write command: %v", err)
	}

	first := readEvent(t, conn)
	if first.Kind != model.KindOrderBook {
		t.Fatalf("expected OrderBook first, got %v", first.Kind)
	}
	ob := first.Data.(model.OrderBook)
	if ob.LastUpdateID != 100 {
		t.Fatalf("expected last_update_id=100, got %d", ob.LastUpdateID)
	}

	second := readEvent(t, conn)
	third := readEvent(t, conn)
	if second.Kind != model.KindTrade || third.Kind != model.KindTrade {
		t.Fatalf("expected two Trade frames, got %v then %v", second.Kind, third.Kind)
	}
	if second.Data.(model.Trade).TradeID != 9 || third.Data.(model.Trade).TradeID != 10 {
		t.Fatalf("expected trade ids 9 then 10 in FIFO order")
	}
}

func TestUnsubscribeStopsForwarding(t *testing.T) {
	_, reg, srv := newTestManager(t)
	topic := model.Topic(model.ExchangeBinance, model.MarketSpot, "ETHUSDT")

	conn := dial(t, srv)
	defer conn.Close()

	sub, _ := json.Marshal(model.Command{Action: model.ActionSubscribe, Channel: "ETHUSDT"})
	conn.WriteMessage(websocket.TextMessage, sub)

	unsub, _ := json.Marshal(model.Command{Action: model.ActionUnsubscribe, Channel: "ETHUSDT"})
	conn.WriteMessage(websocket.TextMessage, unsub)

	time.Sleep(100 * time.Millisecond)
	reg.AppendBounded(topic, model.Trade{Topic: topic, TradeID: 1})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected no frame after unsubscribe, got one")
	}
}

type fakeHistoryFetcher struct {
	candles []model.Candle
}

func (f fakeHistoryFetcher) FetchHistory(ctx context.Context, exchange model.Exchange, market model.MarketType, symbol, interval string, limit int) ([]model.Candle, error) {
	return f.candles, nil
}

func TestFetchHistoryRepliesDirectlyWithoutBroadcast(t *testing.T) {
	bus := broadcast.New(64, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	sup := connector.New(reg, map[model.Exchange]connector.Connector{}, time.Second, zerolog.Nop())
	fetcher := fakeHistoryFetcher{candles: []model.Candle{{Interval: "1m", StartTime: 100}}}
	mgr := NewManager(reg, bus, sup, fetcher, Config{}, zerolog.Nop())
	srv := httptest.NewServer(mgr)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	cmd, _ := json.Marshal(model.Command{Action: model.ActionFetchHistory, Channel: "BTCUSDT"})
	conn.WriteMessage(websocket.TextMessage, cmd)

	ev := readEvent(t, conn)
	if ev.Kind != model.KindHistoricalCandles {
		t.Fatalf("expected HistoricalCandles reply, got %v", ev.Kind)
	}
}
