package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

// extractTopic decodes a pre-serialized broadcast frame in full to recover
// its topic, reusing model.Event's tagged-union decode so this stays
// in lockstep with the wire format rather than re-deriving it with ad hoc
// string scanning.
func extractTopic(raw []byte) string {
	var ev model.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ""
	}
	return model.TopicOf(ev)
}

// handleCommand decodes one client command frame and dispatches it.
// Malformed commands are silently dropped (spec.md §7's documented
// user-visible behavior) rather than reported back to the client.
func handleCommand(c *Client, raw []byte) {
	var cmd model.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.mgr.log.Debug().Str("client", c.id).Err(err).Msg("dropping malformed command frame")
		return
	}

	switch cmd.Action {
	case model.ActionSubscribe:
		handleSubscribe(c, cmd)
	case model.ActionUnsubscribe:
		handleUnsubscribe(c, cmd)
	case model.ActionFetchHistory:
		handleFetchHistory(c, cmd)
	default:
		c.mgr.log.Debug().Str("client", c.id).Str("action", string(cmd.Action)).Msg("dropping unrecognized command action")
	}
}

// handleSubscribe implements spec.md §4.5's Subscribe path: derive the
// topic, spawn a connector if this is the first subscriber, record the
// subscription, then emit the snapshot burst. The subscription is recorded
// before the burst is read so that no live frame is dropped between burst
// and live-effect (P7).
func handleSubscribe(c *Client, cmd model.Command) {
	exchange := model.ParseExchange(cmd.Exchange)
	market := model.ParseMarketType(cmd.MarketType)
	topic := model.Topic(exchange, market, cmd.Channel)

	cfg := c.mgr.defaultConfig
	if cmd.Config != nil {
		cfg = *cmd.Config
	}

	c.mgr.supervisor.Spawn(context.Background(), exchange, market, cmd.Channel, cfg)
	c.subscribeTopic(topic)

	emitSnapshotBurst(c, topic)
}

func handleUnsubscribe(c *Client, cmd model.Command) {
	exchange := model.ParseExchange(cmd.Exchange)
	market := model.ParseMarketType(cmd.MarketType)
	topic := model.Topic(exchange, market, cmd.Channel)
	c.unsubscribeTopic(topic)
}

// handleFetchHistory implements the documented intent for the truncated
// source path (spec.md §9 Open Question 2): load the result into the
// registry without broadcasting, then reply directly to this client only.
func handleFetchHistory(c *Client, cmd model.Command) {
	if c.mgr.history == nil {
		c.mgr.log.Debug().Str("client", c.id).Msg("fetchhistory requested but no history fetcher configured")
		return
	}

	exchange := model.ParseExchange(cmd.Exchange)
	market := model.ParseMarketType(cmd.MarketType)
	topic := model.Topic(exchange, market, cmd.Channel)

	interval := c.mgr.defaultInterval
	if cmd.Config != nil && len(cmd.Config.KlineIntervals) > 0 {
		interval = cmd.Config.KlineIntervals[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candles, err := c.mgr.history.FetchHistory(ctx, exchange, market, cmd.Channel, interval, c.mgr.historyFetchLimit)
	if err != nil {
		c.mgr.log.Warn().Str("client", c.id).Str("topic", topic).Err(err).Msg("fetchhistory request failed")
		return
	}

	for i := range candles {
		candles[i].Topic = topic
	}
	c.mgr.reg.LoadHistorical(topic, candles)

	sendEvent(c, model.HistoricalCandles{Topic: topic, Candles: candles})
}

// emitSnapshotBurst sends the current slot/FIFO contents for every
// applicable family, then a bounded historical candle range, per spec.md
// §4.5 and §9's resolved Open Question 3.
func emitSnapshotBurst(c *Client, topic string) {
	if ob, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyOrderBook).(model.OrderBook); ok {
		sendEvent(c, ob)
	}
	if trades, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyTrades).([]model.Trade); ok {
		for _, t := range trades {
			sendEvent(c, t)
		}
	}
	if aggTrades, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyAggTrades).([]model.AggTrade); ok {
		for _, t := range aggTrades {
			sendEvent(c, t)
		}
	}
	if ticker, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyTicker).(model.Ticker); ok {
		sendEvent(c, ticker)
	}
	if bt, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyBookTicker).(model.BookTicker); ok {
		sendEvent(c, bt)
	}
	if mp, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyMarkPrice).(model.MarkPrice); ok {
		sendEvent(c, mp)
	}
	if fr, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyFundingRate).(model.FundingRate); ok {
		sendEvent(c, fr)
	}
	if oi, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyOpenInterest).(model.OpenInterest); ok {
		sendEvent(c, oi)
	}
	if liqs, ok := c.mgr.reg.SnapshotRead(topic, registry.FamilyLiquidations).([]model.Liquidation); ok {
		for _, l := range liqs {
			sendEvent(c, l)
		}
	}

	candles := c.mgr.reg.RangeQuery(topic, uint64(time.Now().UnixMilli()), c.mgr.historyFetchLimit)
	if len(candles) > 0 {
		sendEvent(c, model.HistoricalCandles{Topic: topic, Candles: candles})
	}
}

func sendEvent(c *Client, payload any) {
	raw, err := json.Marshal(model.NewEvent(payload))
	if err != nil {
		c.mgr.log.Error().Err(err).Msg("failed to marshal snapshot event")
		return
	}
	c.enqueue(raw)
}
