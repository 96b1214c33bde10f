package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/broadcast"
	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

func TestPollWritesOpenInterestToRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","openInterest":"12345.6","time":1700000000000}`))
	}))
	defer srv.Close()

	bus := broadcast.New(16, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	poller := NewOpenInterestPoller(reg, map[model.Exchange]string{model.ExchangeBinance: srv.URL}, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	topic := "BINANCE_LINEAR_FUTURE_BTCUSDT"
	poller.Poll(ctx, model.ExchangeBinance, topic, "BTCUSDT")

	got := reg.SnapshotRead(topic, registry.FamilyOpenInterest)
	oi, ok := got.(model.OpenInterest)
	if !ok {
		t.Fatalf("expected model.OpenInterest in registry, got %T (%v)", got, got)
	}
	if oi.OI != 12345.6 {
		t.Fatalf("expected OI 12345.6, got %v", oi.OI)
	}
	if oi.Topic != topic {
		t.Fatalf("expected topic %q, got %q", topic, oi.Topic)
	}
}

func TestPollSkipsVenuesWithNoConfiguredEndpoint(t *testing.T) {
	bus := broadcast.New(16, zerolog.Nop())
	reg := registry.New(bus, 10, 10)
	poller := NewOpenInterestPoller(reg, map[model.Exchange]string{}, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	topic := "BYBIT_LINEAR_BTCUSDT"
	poller.Poll(ctx, model.ExchangeBybit, topic, "BTCUSDT")

	if got := reg.SnapshotRead(topic, registry.FamilyOpenInterest); got != nil {
		t.Fatalf("expected no registry entry for unconfigured venue, got %v", got)
	}
}
