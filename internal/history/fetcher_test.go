package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/model"
)

func TestFetchHistoryParsesTolerantNumericsAndForcesClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := [][]any{
			{100.0, "1.5", "2.0", "1.0", "1.8", "10.5", 160.0, "ignored"},
			{200.0, 2.0, 3.0, 1.5, 2.5, 20.0, 260.0, "ignored"},
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	f := New(map[model.Exchange]VenueEndpoint{
		model.ExchangeBinance: {BaseURL: srv.URL},
	}, 5*time.Second, 100, nil, zerolog.Nop())

	candles, err := f.FetchHistory(context.TODO(), model.ExchangeBinance, model.MarketSpot, "BTCUSDT", "1m", 10)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	for _, c := range candles {
		if !c.IsClosed {
			t.Fatal("expected is_closed forced true for historical candles")
		}
	}
	if candles[0].Open != 1.5 || candles[1].Open != 2.0 {
		t.Fatalf("expected tolerant parsing of both string and numeric fields, got %+v", candles)
	}
}

func TestFetchHistoryUnknownVenue(t *testing.T) {
	f := New(map[model.Exchange]VenueEndpoint{}, 5*time.Second, 100, nil, zerolog.Nop())
	_, err := f.FetchHistory(context.TODO(), model.ExchangeBybit, model.MarketSpot, "BTCUSDT", "1m", 10)
	if err == nil {
		t.Fatal("expected error for unconfigured venue")
	}
}
