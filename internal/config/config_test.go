package config

import "testing"

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BroadcastBufferSize != 1024 {
		t.Fatalf("expected default broadcast_buffer_size=1024, got %d", cfg.BroadcastBufferSize)
	}
	if cfg.ServerBindAddress != ":8080" {
		t.Fatalf("expected default server_bind_address=:8080, got %q", cfg.ServerBindAddress)
	}
	if cfg.BinanceRESTURL != "https://api.binance.com/api/v3/klines" {
		t.Fatalf("expected default binance_rest_url=https://api.binance.com/api/v3/klines, got %q", cfg.BinanceRESTURL)
	}
	if cfg.BybitRESTURL != "https://api.bybit.com/v5/market/kline" {
		t.Fatalf("expected default bybit_rest_url=https://api.bybit.com/v5/market/kline, got %q", cfg.BybitRESTURL)
	}
	if cfg.CoinbaseRESTURL != "https://api.exchange.coinbase.com/products/candles" {
		t.Fatalf("expected default coinbase_rest_url=https://api.exchange.coinbase.com/products/candles, got %q", cfg.CoinbaseRESTURL)
	}
}

func TestDefaultStreamConfigReflectsFlags(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sc := cfg.DefaultStreamConfig()
	if !sc.RawTrades || !sc.OrderBook {
		t.Fatalf("expected default raw_trades and order_book enabled, got %+v", sc)
	}
	if len(sc.KlineIntervals) != 1 || sc.KlineIntervals[0] != "1m" {
		t.Fatalf("expected default kline interval [1m], got %v", sc.KlineIntervals)
	}
}
