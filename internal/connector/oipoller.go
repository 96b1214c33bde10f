package connector

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

// OpenInterestPoller is the side-channel REST poller described in
// SPEC_FULL.md §3: for venues that do not push OpenInterest over a socket,
// a low-frequency poller calls the venue's REST endpoint and writes the
// result exactly like a decoded push event would.
//
// Grounded on original_source/ingestion_engine/src/connectors/rest_dispatch.rs's
// pattern of dispatching REST calls alongside the WS connector.
type OpenInterestPoller struct {
	client   *resty.Client
	reg      *registry.Registry
	log      zerolog.Logger
	interval time.Duration
	urls     map[model.Exchange]string // venue -> open-interest REST endpoint template
}

// NewOpenInterestPoller constructs a poller. urls maps each venue to its
// open-interest REST base URL; a venue absent from the map is simply never
// polled (most venues in a given deployment may have no OI endpoint
// configured at all, which is fine — this is best-effort).
func NewOpenInterestPoller(reg *registry.Registry, urls map[model.Exchange]string, interval time.Duration, log zerolog.Logger) *OpenInterestPoller {
	return &OpenInterestPoller{
		client:   resty.New().SetTimeout(10 * time.Second),
		reg:      reg,
		log:      log.With().Str("component", "oi_poller").Logger(),
		interval: interval,
		urls:     urls,
	}
}

// Poll starts polling topic (a futures topic only — spot/options carry no
// open interest) on venue for symbol, until ctx is cancelled. Intended to be
// run in its own goroutine alongside the connector for the same topic.
func (p *OpenInterestPoller) Poll(ctx context.Context, venue model.Exchange, topic, symbol string) {
	base, ok := p.urls[venue]
	if !ok || base == "" {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			oi, err := p.fetch(ctx, base, symbol)
			if err != nil {
				p.log.Debug().Err(err).Str("topic", topic).Msg("open interest poll failed")
				continue
			}
			oi.Topic = topic
			oi.TsMs = uint64(time.Now().UnixMilli())
			p.reg.WriteSlot(topic, oi)
		}
	}
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

func (p *OpenInterestPoller) fetch(ctx context.Context, base, symbol string) (model.OpenInterest, error) {
	var body openInterestResponse
	_, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&body).
		Get(base)
	if err != nil {
		return model.OpenInterest{}, err
	}

	oi, _ := strconv.ParseFloat(body.OpenInterest, 64)
	return model.OpenInterest{OI: oi}, nil
}
