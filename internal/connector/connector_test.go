package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/broadcast"
	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

type fakeConnector struct {
	connectErr error
}

func (f fakeConnector) Connect(ctx context.Context, symbol string, market model.MarketType, cfg model.StreamConfig) (*websocket.Conn, error) {
	return nil, f.connectErr
}

func (f fakeConnector) Decode(topic string, raw []byte) []any { return nil }

func newTestSupervisor() (*Supervisor, *registry.Registry) {
	bus := broadcast.New(16, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	sup := New(reg, map[model.Exchange]Connector{
		model.ExchangeBinance: fakeConnector{connectErr: errors.New("unreachable in test")},
	}, time.Second, zerolog.Nop())
	return sup, reg
}

func TestSpawnSkipsWhenNoFamiliesEnabled(t *testing.T) {
	sup, reg := newTestSupervisor()
	spawned := sup.Spawn(context.Background(), model.ExchangeBinance, model.MarketSpot, "BTCUSDT", model.StreamConfig{})
	if spawned {
		t.Fatal("expected Spawn to refuse an empty stream config")
	}
	if reg.IsIngesting(model.Topic(model.ExchangeBinance, model.MarketSpot, "BTCUSDT")) {
		t.Fatal("expected no ingestion to be marked active")
	}
}

func TestSpawnIsIdempotentPerTopic(t *testing.T) {
	sup, _ := newTestSupervisor()
	cfg := model.StreamConfig{RawTrades: true}

	first := sup.Spawn(context.Background(), model.ExchangeBinance, model.MarketSpot, "BTCUSDT", cfg)
	second := sup.Spawn(context.Background(), model.ExchangeBinance, model.MarketSpot, "BTCUSDT", cfg)

	if !first {
		t.Fatal("expected first spawn to succeed")
	}
	if second {
		t.Fatal("expected second spawn for the same topic to be refused (P2 single ingestor)")
	}
}

func TestSpawnStartsOpenInterestPollerForFuturesTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","openInterest":"555","time":1700000000000}`))
	}))
	defer srv.Close()

	bus := broadcast.New(16, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	poller := NewOpenInterestPoller(reg, map[model.Exchange]string{model.ExchangeBinance: srv.URL}, 5*time.Millisecond, zerolog.Nop())
	sup := New(reg, map[model.Exchange]Connector{
		model.ExchangeBinance: fakeConnector{connectErr: errors.New("unreachable in test")},
	}, time.Second, zerolog.Nop(), WithOpenInterestPoller(poller))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := model.StreamConfig{OpenInterest: true}
	if !sup.Spawn(ctx, model.ExchangeBinance, model.MarketLinearFuture, "BTCUSDT", cfg) {
		t.Fatal("expected Spawn to succeed")
	}

	topic := model.Topic(model.ExchangeBinance, model.MarketLinearFuture, "BTCUSDT")
	deadline := time.After(90 * time.Millisecond)
	for {
		if oi, ok := reg.SnapshotRead(topic, registry.FamilyOpenInterest).(model.OpenInterest); ok && oi.OI == 555 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected open interest poller to populate the registry for a futures topic")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSpawnSkipsOpenInterestPollerForSpotTopics(t *testing.T) {
	bus := broadcast.New(16, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	poller := NewOpenInterestPoller(reg, map[model.Exchange]string{model.ExchangeBinance: "http://unused.invalid"}, 5*time.Millisecond, zerolog.Nop())
	sup := New(reg, map[model.Exchange]Connector{
		model.ExchangeBinance: fakeConnector{connectErr: errors.New("unreachable in test")},
	}, time.Second, zerolog.Nop(), WithOpenInterestPoller(poller))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := model.StreamConfig{OpenInterest: true, RawTrades: true}
	sup.Spawn(ctx, model.ExchangeBinance, model.MarketSpot, "BTCUSDT", cfg)

	<-ctx.Done()
	topic := model.Topic(model.ExchangeBinance, model.MarketSpot, "BTCUSDT")
	if got := reg.SnapshotRead(topic, registry.FamilyOpenInterest); got != nil {
		t.Fatalf("expected no open interest poll for a spot topic, got %v", got)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	max := 8 * time.Second
	got := nextBackoff(6*time.Second, max)
	if got != max {
		t.Fatalf("expected backoff capped at %v, got %v", max, got)
	}
	got = nextBackoff(time.Second, max)
	if got != 2*time.Second {
		t.Fatalf("expected backoff to double, got %v", got)
	}
}
