package coinbase

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ingestd/marketfeed/internal/model"
)

// envelope is Coinbase Advanced Trade's channel-tagged event wrapper:
// {"channel":"market_trades","events":[{...}]}.
type envelope struct {
	Channel string          `json:"channel"`
	Events  json.RawMessage `json:"events"`
}

// Decode dispatches on the channel name, a cheap discriminator available
// without parsing the nested events array (spec.md §4.1).
func (c Connector) Decode(topic string, raw []byte) []any {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Channel == "" {
		return nil
	}

	switch env.Channel {
	case "market_trades":
		return decodeTrades(topic, env.Events)
	case "ticker":
		return decodeTickers(topic, env.Events)
	case "l2_data":
		return decodeLevel2(topic, env.Events)
	}
	return nil
}

type tradesEvent struct {
	Trades []wireTrade `json:"trades"`
}

type wireTrade struct {
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	TimeNanos string `json:"time"`
}

func decodeTrades(topic string, raw json.RawMessage) []any {
	var events []tradesEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil
	}
	var out []any
	for _, ev := range events {
		for _, w := range ev.Trades {
			id, _ := strconv.ParseUint(w.TradeID, 10, 64)
			side := model.SideBuy
			if strings.EqualFold(w.Side, "SELL") {
				side = model.SideSell
			}
			out = append(out, model.Trade{
				TradeID: id,
				Topic:   topic,
				Price:   parseFloat(w.Price),
				Qty:     parseFloat(w.Size),
				Side:    side,
			})
		}
	}
	return out
}

type tickersEvent struct {
	Tickers []wireTicker `json:"tickers"`
}

type wireTicker struct {
	Price       string `json:"price"`
	Volume24h   string `json:"volume_24_h"`
	High24h     string `json:"high_24_h"`
	Low24h      string `json:"low_24_h"`
	PriceChgPct string `json:"price_percent_chg_24_h"`
	BestBid     string `json:"best_bid"`
	BestBidQty  string `json:"best_bid_quantity"`
	BestAsk     string `json:"best_ask"`
	BestAskQty  string `json:"best_ask_quantity"`
}

func decodeTickers(topic string, raw json.RawMessage) []any {
	var events []tickersEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil
	}
	var out []any
	for _, ev := range events {
		for _, w := range ev.Tickers {
			out = append(out,
				model.Ticker{
					Topic:    topic,
					Last:     parseFloat(w.Price),
					Pct:      parseFloat(w.PriceChgPct),
					High:     parseFloat(w.High24h),
					Low:      parseFloat(w.Low24h),
					Vol:      parseFloat(w.Volume24h),
				},
				model.BookTicker{
					Topic:      topic,
					BestBid:    parseFloat(w.BestBid),
					BestBidQty: parseFloat(w.BestBidQty),
					BestAsk:    parseFloat(w.BestAsk),
					BestAskQty: parseFloat(w.BestAskQty),
				},
			)
		}
	}
	return out
}

type level2Event struct {
	Updates []wireLevelUpdate `json:"updates"`
}

type wireLevelUpdate struct {
	Side      string `json:"side"`
	PriceStr  string `json:"price_level"`
	QtyStr    string `json:"new_quantity"`
}

// decodeLevel2 folds a batch of level updates into a single OrderBook
// snapshot keyed by side. Coinbase's level2 channel streams incremental
// updates, but this deployment treats each batch as the latest absolute
// state per spec.md §1's non-goal of reconstructing depth from diffs —
// venues in scope are assumed to deliver usable absolute levels per update.
func decodeLevel2(topic string, raw json.RawMessage) []any {
	var events []level2Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil
	}
	ob := model.OrderBook{Topic: topic}
	for _, ev := range events {
		for _, u := range ev.Updates {
			lvl := model.PriceLevel{Price: parseFloat(u.PriceStr), Quantity: parseFloat(u.QtyStr)}
			if strings.EqualFold(u.Side, "bid") {
				ob.Bids = append(ob.Bids, lvl)
			} else {
				ob.Asks = append(ob.Asks, lvl)
			}
		}
	}
	if len(ob.Bids) == 0 && len(ob.Asks) == 0 {
		return nil
	}
	return []any{ob}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
