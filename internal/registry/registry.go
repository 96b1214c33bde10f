// Package registry implements the per-symbol state registry (C2): a
// topic->state map with bounded ring-buffers and single-valued slots, guarded
// by fine-grained locks, plus the active-ingestion set used to dedupe
// connector spawns.
//
// Ported from the granular-locking design in
// original_source/ingestion_engine/src/core/engine.rs (SymbolState,
// get_or_create_symbol) to Go's sync.RWMutex, following the teacher's
// (ndrandal-feed-simulator) per-book-owns-its-lock convention.
package registry

import (
	"sort"
	"sync"

	"github.com/ingestd/marketfeed/internal/broadcast"
	"github.com/ingestd/marketfeed/internal/model"
)

// OccupancyRecorder is notified of a per-topic FIFO's length every time a
// bounded push touches it (C10 metrics).
type OccupancyRecorder interface {
	ObserveOccupancy(topic string, family Family, n int)
}

// Registry is the process-wide topic->state map plus the active-ingestion
// set. It is constructed once at boot and passed by shared handle to every
// task — there is no package-level mutable state.
type Registry struct {
	bus *broadcast.Bus

	tradeLimit  int
	candleLimit int

	mu     sync.RWMutex
	topics map[string]*topicState

	ingestMu sync.RWMutex
	active   map[string]struct{}

	occupancy OccupancyRecorder
}

// Option configures optional Registry behavior.
type Option func(*Registry)

// WithOccupancyRecorder installs a callback invoked after every bounded FIFO
// push with that FIFO's resulting length.
func WithOccupancyRecorder(r OccupancyRecorder) Option {
	return func(reg *Registry) { reg.occupancy = r }
}

// New constructs a Registry. tradeLimit bounds the Trade/AggTrade/Liquidation
// FIFOs; candleLimit bounds each interval's Candle FIFO.
func New(bus *broadcast.Bus, tradeLimit, candleLimit int, opts ...Option) *Registry {
	r := &Registry{
		bus:         bus,
		tradeLimit:  tradeLimit,
		candleLimit: candleLimit,
		topics:      make(map[string]*topicState),
		active:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) observeOccupancy(topic string, family Family, n int) {
	if r.occupancy != nil {
		r.occupancy.ObserveOccupancy(topic, family, n)
	}
}

// topicState holds all cached state for one topic. Each field has its own
// lock so that concurrent writes to different fields of the same topic do
// not contend (§5 locking discipline).
type topicState struct {
	orderBookMu sync.RWMutex
	orderBook   *model.OrderBook

	tickerMu sync.RWMutex
	ticker   *model.Ticker

	bookTickerMu sync.RWMutex
	bookTicker   *model.BookTicker

	markPriceMu sync.RWMutex
	markPrice   *model.MarkPrice

	fundingRateMu sync.RWMutex
	fundingRate   *model.FundingRate

	openInterestMu sync.RWMutex
	openInterest   *model.OpenInterest

	tradesMu sync.RWMutex
	trades   []model.Trade

	aggTradesMu sync.RWMutex
	aggTrades   []model.AggTrade

	liquidationsMu sync.RWMutex
	liquidations   []model.Liquidation

	candlesMu sync.RWMutex
	candles   map[string][]model.Candle // interval -> FIFO
}

func newTopicState() *topicState {
	return &topicState{candles: make(map[string][]model.Candle)}
}

// getOrCreate implements the two-phase get-or-create discipline required by
// §4.2: read-lock the outer map; on miss, upgrade to write-lock and
// insert-if-still-absent.
func (r *Registry) getOrCreate(topic string) *topicState {
	r.mu.RLock()
	if s, ok := r.topics[topic]; ok {
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.topics[topic]; ok {
		return s
	}
	s := newTopicState()
	r.topics[topic] = s
	return s
}

// get returns the topic's state without creating it, or nil if absent.
func (r *Registry) get(topic string) *topicState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics[topic]
}

func pushBounded[T any](buf []T, v T, limit int) []T {
	buf = append(buf, v)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}

// WriteSlot replaces a single-valued slot and broadcasts the event. Never
// fails — broadcasting is best-effort.
func (r *Registry) WriteSlot(topic string, payload any) {
	s := r.getOrCreate(topic)

	switch v := payload.(type) {
	case model.OrderBook:
		s.orderBookMu.Lock()
		s.orderBook = &v
		s.orderBookMu.Unlock()
	case model.Ticker:
		s.tickerMu.Lock()
		s.ticker = &v
		s.tickerMu.Unlock()
	case model.BookTicker:
		s.bookTickerMu.Lock()
		s.bookTicker = &v
		s.bookTickerMu.Unlock()
	case model.MarkPrice:
		s.markPriceMu.Lock()
		s.markPrice = &v
		s.markPriceMu.Unlock()
	case model.FundingRate:
		s.fundingRateMu.Lock()
		s.fundingRate = &v
		s.fundingRateMu.Unlock()
	case model.OpenInterest:
		s.openInterestMu.Lock()
		s.openInterest = &v
		s.openInterestMu.Unlock()
	default:
		return
	}

	r.bus.Publish(model.NewEvent(payload))
}

// AppendBounded pushes a Trade/AggTrade/Liquidation event to its FIFO,
// evicting the oldest entry on overflow, and broadcasts it.
func (r *Registry) AppendBounded(topic string, payload any) {
	s := r.getOrCreate(topic)

	switch v := payload.(type) {
	case model.Trade:
		s.tradesMu.Lock()
		s.trades = pushBounded(s.trades, v, r.tradeLimit)
		n := len(s.trades)
		s.tradesMu.Unlock()
		r.observeOccupancy(topic, FamilyTrades, n)
	case model.AggTrade:
		s.aggTradesMu.Lock()
		s.aggTrades = pushBounded(s.aggTrades, v, r.tradeLimit)
		n := len(s.aggTrades)
		s.aggTradesMu.Unlock()
		r.observeOccupancy(topic, FamilyAggTrades, n)
	case model.Liquidation:
		s.liquidationsMu.Lock()
		s.liquidations = pushBounded(s.liquidations, v, r.tradeLimit)
		n := len(s.liquidations)
		s.liquidationsMu.Unlock()
		r.observeOccupancy(topic, FamilyLiquidations, n)
	default:
		return
	}

	r.bus.Publish(model.NewEvent(payload))
}

// AppendCandle routes a Candle by interval, pushes it to that interval's
// FIFO (evicting the oldest on overflow), and broadcasts it.
func (r *Registry) AppendCandle(topic string, c model.Candle) {
	s := r.getOrCreate(topic)

	s.candlesMu.Lock()
	q := s.candles[c.Interval]
	q = pushBounded(q, c, r.candleLimit)
	s.candles[c.Interval] = q
	n := len(q)
	s.candlesMu.Unlock()

	r.observeOccupancy(topic, Family("candle:"+c.Interval), n)
	r.bus.Publish(model.NewEvent(c))
}

// LoadHistorical bulk-inserts candles for topic, trims each interval to
// capacity, and sorts each interval's FIFO by StartTime ascending. It never
// broadcasts — historical backfill is silent with respect to live
// subscribers (§4.3, §8 P4).
func (r *Registry) LoadHistorical(topic string, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	s := r.getOrCreate(topic)

	byInterval := make(map[string][]model.Candle)
	for _, c := range candles {
		byInterval[c.Interval] = append(byInterval[c.Interval], c)
	}

	s.candlesMu.Lock()
	defer s.candlesMu.Unlock()
	for interval, incoming := range byInterval {
		merged := append(append([]model.Candle{}, s.candles[interval]...), incoming...)
		sort.Slice(merged, func(i, j int) bool { return merged[i].StartTime < merged[j].StartTime })
		if len(merged) > r.candleLimit {
			merged = merged[len(merged)-r.candleLimit:]
		}
		s.candles[interval] = merged
	}
}

// Family identifies which per-topic slot or FIFO a snapshot read targets.
type Family string

const (
	FamilyOrderBook    Family = "order_book"
	FamilyTicker       Family = "ticker"
	FamilyBookTicker   Family = "book_ticker"
	FamilyMarkPrice    Family = "mark_price"
	FamilyFundingRate  Family = "funding_rate"
	FamilyOpenInterest Family = "open_interest"
	FamilyTrades       Family = "trades"
	FamilyAggTrades    Family = "agg_trades"
	FamilyLiquidations Family = "liquidations"
)

// SnapshotRead clones the current slot value or FIFO contents for topic and
// family. Returns nil (or an empty slice) if the topic or slot is absent.
func (r *Registry) SnapshotRead(topic string, family Family) any {
	s := r.get(topic)
	if s == nil {
		return nil
	}

	switch family {
	case FamilyOrderBook:
		s.orderBookMu.RLock()
		defer s.orderBookMu.RUnlock()
		if s.orderBook == nil {
			return nil
		}
		v := *s.orderBook
		return v
	case FamilyTicker:
		s.tickerMu.RLock()
		defer s.tickerMu.RUnlock()
		if s.ticker == nil {
			return nil
		}
		v := *s.ticker
		return v
	case FamilyBookTicker:
		s.bookTickerMu.RLock()
		defer s.bookTickerMu.RUnlock()
		if s.bookTicker == nil {
			return nil
		}
		v := *s.bookTicker
		return v
	case FamilyMarkPrice:
		s.markPriceMu.RLock()
		defer s.markPriceMu.RUnlock()
		if s.markPrice == nil {
			return nil
		}
		v := *s.markPrice
		return v
	case FamilyFundingRate:
		s.fundingRateMu.RLock()
		defer s.fundingRateMu.RUnlock()
		if s.fundingRate == nil {
			return nil
		}
		v := *s.fundingRate
		return v
	case FamilyOpenInterest:
		s.openInterestMu.RLock()
		defer s.openInterestMu.RUnlock()
		if s.openInterest == nil {
			return nil
		}
		v := *s.openInterest
		return v
	case FamilyTrades:
		s.tradesMu.RLock()
		defer s.tradesMu.RUnlock()
		out := make([]model.Trade, len(s.trades))
		copy(out, s.trades)
		return out
	case FamilyAggTrades:
		s.aggTradesMu.RLock()
		defer s.aggTradesMu.RUnlock()
		out := make([]model.AggTrade, len(s.aggTrades))
		copy(out, s.aggTrades)
		return out
	case FamilyLiquidations:
		s.liquidationsMu.RLock()
		defer s.liquidationsMu.RUnlock()
		out := make([]model.Liquidation, len(s.liquidations))
		copy(out, s.liquidations)
		return out
	default:
		return nil
	}
}

// RangeQuery returns, across all intervals for topic, candles with
// StartTime < endTime, sorted ascending, retaining only the last limit.
// Returns an empty slice if the topic is absent.
func (r *Registry) RangeQuery(topic string, endTime uint64, limit int) []model.Candle {
	s := r.get(topic)
	if s == nil {
		return nil
	}

	s.candlesMu.RLock()
	defer s.candlesMu.RUnlock()

	var out []model.Candle
	for _, q := range s.candles {
		for _, c := range q {
			if c.StartTime < endTime {
				out = append(out, c)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RequestIngestion set-inserts topic into the active-ingestion set. Returns
// true iff this call was the first insert (i.e. the caller should spawn a
// connector).
func (r *Registry) RequestIngestion(topic string) bool {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()
	if _, ok := r.active[topic]; ok {
		return false
	}
	r.active[topic] = struct{}{}
	return true
}

// IsIngesting reports whether topic currently has an active connector, per
// the in-process active_ingestions set.
func (r *Registry) IsIngesting(topic string) bool {
	r.ingestMu.RLock()
	defer r.ingestMu.RUnlock()
	_, ok := r.active[topic]
	return ok
}
