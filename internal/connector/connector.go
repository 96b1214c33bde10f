// Package connector implements the connect/reconnect supervisor (C4): it
// derives a topic, dedupes spawns through the registry's active-ingestion
// set, and drives each venue connection through the
// Connecting→Connected→Draining→Sleeping state machine with exponential
// backoff.
//
// Grounded on original_source/ingestion_engine/src/connectors/binance.rs's
// reconnect loop and the teacher's (ndrandal-feed-simulator)
// cmd/feedsim/main.go runner-per-symbol goroutine shape.
package connector

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

// Connector is implemented once per venue. Connect dials the venue (and, for
// venues that subscribe post-connect rather than via URL path, sends the
// subscription frames) and returns a ready connection. Decode turns one
// inbound text frame into zero or more normalized payloads — a single frame
// may fan out into more than one event (e.g. Binance's markPriceUpdate frame
// carries both MarkPrice and FundingRate).
type Connector interface {
	Connect(ctx context.Context, symbol string, market model.MarketType, cfg model.StreamConfig) (*websocket.Conn, error)
	Decode(topic string, raw []byte) []any
}

// State is the connector task's lifecycle state (spec.md §4.4).
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateDraining   State = "draining"
	StateSleeping   State = "sleeping"
)

// StateObserver is notified on every state transition; used by C10 metrics.
// Implementations must not block.
type StateObserver func(topic string, venue model.Exchange, state State)

// IngestionLock is the optional cross-process complement to the registry's
// in-process active-ingestion set (see distlock.go). A nil IngestionLock
// disables the distributed layer entirely; it never gates ingestion within
// one process.
type IngestionLock interface {
	TryAcquire(ctx context.Context, topic string) bool
	Release(ctx context.Context, topic string)
}

// Supervisor spawns and drives one goroutine per active topic.
type Supervisor struct {
	reg        *registry.Registry
	log        zerolog.Logger
	venues     map[model.Exchange]Connector
	lock       IngestionLock
	observer   StateObserver
	oiPoller   *OpenInterestPoller
	maxBackoff time.Duration
}

// Option configures optional Supervisor behavior.
type Option func(*Supervisor)

// WithIngestionLock installs an optional distributed ingestion lock.
func WithIngestionLock(l IngestionLock) Option {
	return func(s *Supervisor) { s.lock = l }
}

// WithStateObserver installs a callback invoked on every state transition.
func WithStateObserver(o StateObserver) Option {
	return func(s *Supervisor) { s.observer = o }
}

// WithOpenInterestPoller installs the side-channel REST poller described in
// SPEC_FULL.md §3: Spawn starts it alongside any futures topic whose
// sanitized config still has OpenInterest enabled, covering venues that do
// not push OpenInterest over a socket.
func WithOpenInterestPoller(p *OpenInterestPoller) Option {
	return func(s *Supervisor) { s.oiPoller = p }
}

// New constructs a Supervisor. venues maps each exchange this deployment
// supports to its Connector implementation. maxBackoff is the reconnect
// backoff ceiling (spec.md §6.2 binance_reconnect_delay, generalized to all
// venues).
func New(reg *registry.Registry, venues map[model.Exchange]Connector, maxBackoff time.Duration, log zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		reg:        reg,
		log:        log.With().Str("component", "connector").Logger(),
		venues:     venues,
		maxBackoff: maxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn derives the topic for (venue, market, symbol), sanitizes cfg, and —
// iff at least one family is enabled after sanitization, a Connector is
// registered for venue, and request_ingestion(topic) returns true — starts a
// connector goroutine. Returns true iff a new connector was spawned.
func (s *Supervisor) Spawn(ctx context.Context, venue model.Exchange, market model.MarketType, symbol string, cfg model.StreamConfig) bool {
	topic := model.Topic(venue, market, symbol)
	sanitized := cfg.Sanitize(market)

	if !sanitized.AnyEnabled() {
		s.log.Info().Str("topic", topic).Msg("no stream families enabled after sanitization, not opening a socket")
		return false
	}

	conn, ok := s.venues[venue]
	if !ok {
		s.log.Error().Str("topic", topic).Str("venue", string(venue)).Msg("no connector registered for venue")
		return false
	}

	if !s.reg.RequestIngestion(topic) {
		return false
	}

	go s.run(ctx, topic, venue, market, symbol, sanitized, conn)

	if s.oiPoller != nil && sanitized.OpenInterest && (market == model.MarketLinearFuture || market == model.MarketInverseFuture) {
		go s.oiPoller.Poll(ctx, venue, topic, symbol)
	}

	return true
}

func (s *Supervisor) setState(topic string, venue model.Exchange, st State) {
	if s.observer != nil {
		s.observer(topic, venue, st)
	}
}

// run drives the state machine for one topic until ctx is cancelled. It
// never returns on its own — the connector task lives for the process
// (spec.md §4.4, §5 Cancellation).
func (s *Supervisor) run(ctx context.Context, topic string, venue model.Exchange, market model.MarketType, symbol string, cfg model.StreamConfig, conn Connector) {
	log := s.log.With().Str("topic", topic).Str("venue", string(venue)).Logger()
	backoff := time.Second

	if s.lock != nil {
		if !s.lock.TryAcquire(ctx, topic) {
			log.Warn().Msg("distributed ingestion lock held elsewhere; proceeding with local ingestion only")
		} else {
			defer s.lock.Release(context.Background(), topic)
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(topic, venue, StateConnecting)
		ws, err := conn.Connect(ctx, symbol, market, cfg)
		if err != nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("handshake failed, sleeping before retry")
			s.setState(topic, venue, StateSleeping)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.maxBackoff)
			continue
		}

		backoff = time.Second
		s.setState(topic, venue, StateConnected)
		s.readLoop(ctx, log, topic, ws, conn)
		ws.Close()

		s.setState(topic, venue, StateDraining)
		s.setState(topic, venue, StateSleeping)
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.maxBackoff)
	}
}

// readLoop dispatches inbound frames to the registry until the connection
// errors or closes. Decode errors are logged and the frame dropped — never
// fatal to the connection (spec.md §4.4).
func (s *Supervisor) readLoop(ctx context.Context, log zerolog.Logger, topic string, ws *websocket.Conn, conn Connector) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("read loop ending")
			return
		}

		for _, payload := range conn.Decode(topic, raw) {
			s.dispatch(topic, payload)
		}
	}
}

// dispatch routes a decoded payload to the correct registry operation by
// type. Exhaustive over the closed event union (spec.md §9 polymorphism
// note). OpenInterest reaches the registry both through this dispatch
// (Bybit's tickers topic carries it on linear perpetuals) and through the
// REST poller calling registry.WriteSlot directly for venues that don't.
func (s *Supervisor) dispatch(topic string, payload any) {
	switch v := payload.(type) {
	case model.OrderBook:
		s.reg.WriteSlot(topic, v)
	case model.Ticker:
		s.reg.WriteSlot(topic, v)
	case model.BookTicker:
		s.reg.WriteSlot(topic, v)
	case model.MarkPrice:
		s.reg.WriteSlot(topic, v)
	case model.FundingRate:
		s.reg.WriteSlot(topic, v)
	case model.OpenInterest:
		s.reg.WriteSlot(topic, v)
	case model.Trade:
		s.reg.AppendBounded(topic, v)
	case model.AggTrade:
		s.reg.AppendBounded(topic, v)
	case model.Liquidation:
		s.reg.AppendBounded(topic, v)
	case model.Candle:
		s.reg.AppendCandle(topic, v)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleep waits for d or ctx cancellation, returning false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
