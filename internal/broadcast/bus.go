// Package broadcast implements the fixed-capacity, multi-consumer fan-out
// bus (C3): every registry write is pre-serialized once and pushed into a
// ring buffer; slow subscribers fall behind and are told so rather than
// blocking the publisher or being disconnected.
//
// Grounded on two sources: the teacher's (ndrandal-feed-simulator)
// per-client outbound channel with drop-on-full semantics in
// internal/session/client.go, and the Rust original's use of
// tokio::sync::broadcast (original_source/ingestion_engine/src/core/engine.rs),
// which this ring buffer + cursor design reproduces without an async runtime.
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/model"
)

// entry is one slot in the ring: the event alongside its serialized form,
// computed once at publish time so N subscribers never re-marshal the same
// event N times.
type entry struct {
	seq   uint64
	event model.Event
	raw   []byte
}

// LagRecorder is notified every time a subscriber's cursor jumps forward
// because it fell behind the ring's capacity (C10 metrics).
type LagRecorder interface {
	ObserveLag(n uint64)
}

// Bus is a fixed-capacity ring of the most recent events. Subscribers read
// through an independent cursor; a subscriber that falls more than the
// ring's capacity behind observes Lag() jump rather than blocking Publish.
type Bus struct {
	log zerolog.Logger

	mu      sync.RWMutex
	buf     []entry
	cap     int
	head    int // index of the oldest live entry
	size    int // number of live entries
	nextSeq uint64

	subMu sync.Mutex
	subs  map[*Subscriber]struct{}

	lagRecorder LagRecorder
}

// Option configures optional Bus behavior.
type Option func(*Bus)

// WithLagRecorder installs a callback invoked whenever a subscriber lags.
func WithLagRecorder(r LagRecorder) Option {
	return func(b *Bus) { b.lagRecorder = r }
}

// New constructs a Bus with the given ring capacity (spec §4.3's bounded
// fan-out buffer).
func New(capacity int, log zerolog.Logger, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Bus{
		log:  log.With().Str("component", "broadcast").Logger(),
		buf:  make([]entry, capacity),
		cap:  capacity,
		subs: make(map[*Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish serializes ev once and stores it in the ring, overwriting the
// oldest entry when full. HistoricalCandles payloads must never reach this
// method — callers route bulk history replies directly to the requesting
// client (see internal/session).
func (b *Bus) Publish(ev model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("failed to marshal event for broadcast")
		return
	}

	b.mu.Lock()
	seq := b.nextSeq
	b.nextSeq++

	idx := (b.head + b.size) % b.cap
	if b.size < b.cap {
		b.size++
	} else {
		b.head = (b.head + 1) % b.cap
	}
	b.buf[idx] = entry{seq: seq, event: ev, raw: raw}
	b.mu.Unlock()

	b.subMu.Lock()
	for s := range b.subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	b.subMu.Unlock()
}

// oldestSeq returns the sequence number of the oldest live entry, or the
// next sequence to be assigned if the ring is empty.
func (b *Bus) oldestSeq() uint64 {
	if b.size == 0 {
		return b.nextSeq
	}
	return b.buf[b.head].seq
}

// Subscriber is one consumer's read cursor into the bus.
type Subscriber struct {
	bus    *Bus
	cursor uint64 // seq of the next entry to read
	notify chan struct{}
}

// Subscribe registers a new Subscriber positioned just past the newest entry,
// i.e. it will only observe events published after this call returns.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.RLock()
	cursor := b.nextSeq
	b.mu.RUnlock()

	s := &Subscriber{bus: b, cursor: cursor, notify: make(chan struct{}, 1)}
	b.subMu.Lock()
	b.subs[s] = struct{}{}
	b.subMu.Unlock()
	return s
}

// Unsubscribe removes s from the bus. Safe to call more than once.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.subMu.Lock()
	delete(b.subs, s)
	b.subMu.Unlock()
}

// Wait blocks until the bus has published at least one event since the
// subscriber's last Next call, or done is closed.
func (s *Subscriber) Wait(done <-chan struct{}) {
	select {
	case <-s.notify:
	case <-done:
	}
}

// Next returns the next raw serialized event for s and advances its cursor.
// ok is false if the subscriber is caught up (no new entry available). If
// the subscriber has fallen behind the ring's capacity, lagged reports the
// number of entries it skipped and the cursor jumps to the new oldest entry
// — subscribers are never disconnected for lagging (spec §8 P6).
func (s *Subscriber) Next() (raw []byte, lagged uint64, ok bool) {
	b := s.bus
	b.mu.RLock()
	defer b.mu.RUnlock()

	oldest := b.oldestSeq()
	if s.cursor < oldest {
		lagged = oldest - s.cursor
		s.cursor = oldest
		if b.lagRecorder != nil {
			b.lagRecorder.ObserveLag(lagged)
		}
	}
	if s.cursor >= b.nextSeq {
		return nil, lagged, false
	}

	idx := (b.head + int(s.cursor-oldest)) % b.cap
	e := b.buf[idx]
	s.cursor++
	return e.raw, lagged, true
}
