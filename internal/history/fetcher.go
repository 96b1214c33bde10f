// Package history implements the REST historical-candle fetcher (C8):
// fetch_history(symbol, market, interval, limit) → ([]Candle, error),
// paced by a per-venue rate limiter and protected by a per-venue circuit
// breaker.
//
// Grounded on 0xtitan6-polymarket-mm/internal/exchange/client.go's
// resty-with-retry pattern, sawpanic-cryptorun's golang.org/x/time/rate
// dependency, and sawpanic-cryptorun/infra/breakers/breakers.go's
// per-venue gobreaker wrapper.
package history

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ingestd/marketfeed/internal/model"
)

// VenueEndpoint describes one venue's historical-klines REST surface
// (spec.md §6.3): the full endpoint URL. The query-parameter names (symbol,
// interval, limit) are the same for every venue and fixed in fetchKlines.
type VenueEndpoint struct {
	BaseURL string
}

// Fetcher calls venue REST endpoints for bulk historical candles. One rate
// limiter and one circuit breaker are maintained per venue so a burst of
// fetchhistory commands cannot hammer a single down venue while leaving
// others unaffected.
type Fetcher struct {
	client    *resty.Client
	log       zerolog.Logger
	endpoints map[model.Exchange]VenueEndpoint
	cache     Cache

	mu       sync.Mutex
	limiters map[model.Exchange]*rate.Limiter
	breakers map[model.Exchange]*gobreaker.CircuitBreaker
	rps      float64
}

// Cache is the optional read-through history cache (C9). A nil Cache
// disables caching entirely — every call reaches the venue.
type Cache interface {
	Get(ctx context.Context, topic, interval string, endTime uint64) ([]model.Candle, bool)
	Put(ctx context.Context, topic, interval string, endTime uint64, candles []model.Candle)
}

// New constructs a Fetcher. cache may be nil.
func New(endpoints map[model.Exchange]VenueEndpoint, requestTimeout time.Duration, ratePerSec float64, cache Cache, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:    resty.New().SetTimeout(requestTimeout).SetRetryCount(2).SetRetryWaitTime(200 * time.Millisecond),
		log:       log.With().Str("component", "history_fetcher").Logger(),
		endpoints: endpoints,
		cache:     cache,
		limiters:  make(map[model.Exchange]*rate.Limiter),
		breakers:  make(map[model.Exchange]*gobreaker.CircuitBreaker),
		rps:       ratePerSec,
	}
}

func (f *Fetcher) limiterFor(venue model.Exchange) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[venue]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.rps), 1)
		f.limiters[venue] = l
	}
	return l
}

func (f *Fetcher) breakerFor(venue model.Exchange) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.breakers[venue]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(venue) + "-history",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures > 5 },
		})
		f.breakers[venue] = b
	}
	return b
}

// FetchHistory satisfies session.HistoryFetcher. It consults the cache
// first (if configured), then paces and breaker-protects the venue call.
func (f *Fetcher) FetchHistory(ctx context.Context, exchange model.Exchange, market model.MarketType, symbol, interval string, limit int) ([]model.Candle, error) {
	topic := model.Topic(exchange, market, symbol)
	endTime := uint64(time.Now().UnixMilli())

	if f.cache != nil {
		if cached, ok := f.cache.Get(ctx, topic, interval, endTime); ok {
			return cached, nil
		}
	}

	endpoint, ok := f.endpoints[exchange]
	if !ok {
		return nil, fmt.Errorf("history: no REST endpoint configured for venue %s", exchange)
	}

	if err := f.limiterFor(exchange).Wait(ctx); err != nil {
		return nil, err
	}

	result, err := f.breakerFor(exchange).Execute(func() (any, error) {
		return f.fetchKlines(ctx, endpoint, symbol, interval, limit)
	})
	if err != nil {
		return nil, err
	}
	candles := result.([]model.Candle)
	for i := range candles {
		candles[i].Topic = topic
		candles[i].Interval = interval
	}

	if f.cache != nil {
		f.cache.Put(ctx, topic, interval, endTime, candles)
	}
	return candles, nil
}

// fetchKlines calls a venue's historical-klines endpoint (spec.md §6.3):
// array of 7+-element arrays, numeric fields parsed tolerantly (string or
// number, zero on failure), is_closed forced true.
func (f *Fetcher) fetchKlines(ctx context.Context, endpoint VenueEndpoint, symbol, interval string, limit int) ([]model.Candle, error) {
	var raw [][]any
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw).
		Get(endpoint.BaseURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("history: venue returned status %d", resp.StatusCode())
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		candles = append(candles, model.Candle{
			StartTime: tolerantUint(row[0]),
			Open:      tolerantFloat(row[1]),
			High:      tolerantFloat(row[2]),
			Low:       tolerantFloat(row[3]),
			Close:     tolerantFloat(row[4]),
			Volume:    tolerantFloat(row[5]),
			CloseTime: tolerantUint(row[6]),
			IsClosed:  true,
		})
	}
	return candles, nil
}

func tolerantFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func tolerantUint(v any) uint64 {
	switch x := v.(type) {
	case float64:
		return uint64(x)
	case string:
		n, err := strconv.ParseUint(x, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
