package model

import "testing"

func TestSanitizeSpotClearsDerivativeFamilies(t *testing.T) {
	cfg := StreamConfig{MarkPrice: true, Liquidation: true, Greeks: true, FundingRate: true}
	got := cfg.Sanitize(MarketSpot)

	if got.MarkPrice || got.Liquidation || got.Greeks || got.FundingRate {
		t.Fatalf("expected all derivative families cleared for SPOT, got %+v", got)
	}
}

func TestSanitizeLinearFutureOnlyClearsGreeks(t *testing.T) {
	cfg := StreamConfig{MarkPrice: true, Liquidation: true, Greeks: true, FundingRate: true}
	got := cfg.Sanitize(MarketLinearFuture)

	if !got.MarkPrice || !got.Liquidation || !got.FundingRate {
		t.Fatalf("expected non-greeks derivative families to survive LINEAR_FUTURE sanitization, got %+v", got)
	}
	if got.Greeks {
		t.Fatalf("expected greeks cleared for LINEAR_FUTURE, got %+v", got)
	}
}

func TestAnyEnabled(t *testing.T) {
	if (StreamConfig{}).AnyEnabled() {
		t.Fatal("expected empty config to report no enabled families")
	}
	if !(StreamConfig{RawTrades: true}).AnyEnabled() {
		t.Fatal("expected raw_trades to count as enabled")
	}
	if !(StreamConfig{KlineIntervals: []string{"1m"}}).AnyEnabled() {
		t.Fatal("expected a kline interval to count as enabled")
	}
}
