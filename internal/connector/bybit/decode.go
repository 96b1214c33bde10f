package bybit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ingestd/marketfeed/internal/model"
)

// envelope is Bybit v5's public-topic wrapper:
// {"topic":"publicTrade.BTCUSDT","type":"snapshot"|"delta","data":...}.
type envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Decode dispatches on the topic prefix, the cheap discriminator Bybit's v5
// wire format offers (spec.md §4.1).
func (c Connector) Decode(topic string, raw []byte) []any {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Topic == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "publicTrade."):
		return decodeTrades(topic, env.Data)
	case strings.HasPrefix(env.Topic, "orderbook."):
		if ob, ok := decodeOrderBook(topic, env.Data); ok {
			return []any{ob}
		}
	case strings.HasPrefix(env.Topic, "tickers."):
		return decodeTickerAndBookTicker(topic, env.Data)
	case strings.HasPrefix(env.Topic, "liquidation."):
		if liq, ok := decodeLiquidation(topic, env.Data); ok {
			return []any{liq}
		}
	case strings.HasPrefix(env.Topic, "kline."):
		return decodeKlines(topic, env.Data)
	}
	return nil
}

type wireTrade struct {
	TradeID string `json:"i"`
	Price   string `json:"p"`
	Qty     string `json:"v"`
	Side    string `json:"S"`
	TimeMs  int64  `json:"T"`
}

func decodeTrades(topic string, data json.RawMessage) []any {
	var trades []wireTrade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil
	}
	out := make([]any, 0, len(trades))
	for _, w := range trades {
		id, _ := strconv.ParseUint(w.TradeID, 10, 64)
		side := model.SideBuy
		if w.Side == "Sell" {
			side = model.SideSell
		}
		out = append(out, model.Trade{
			TradeID: id,
			Topic:   topic,
			Price:   parseFloat(w.Price),
			Qty:     parseFloat(w.Qty),
			TsMs:    uint64(w.TimeMs),
			Side:    side,
		})
	}
	return out
}

type wireLevel [2]string

type wireOrderBook struct {
	Bids         []wireLevel `json:"b"`
	Asks         []wireLevel `json:"a"`
	UpdateID     int64       `json:"u"`
}

func decodeOrderBook(topic string, data json.RawMessage) (model.OrderBook, bool) {
	var w wireOrderBook
	if err := json.Unmarshal(data, &w); err != nil {
		return model.OrderBook{}, false
	}
	ob := model.OrderBook{Topic: topic, LastUpdateID: uint64(w.UpdateID)}
	for _, b := range w.Bids {
		ob.Bids = append(ob.Bids, model.PriceLevel{Price: parseFloat(b[0]), Quantity: parseFloat(b[1])})
	}
	for _, a := range w.Asks {
		ob.Asks = append(ob.Asks, model.PriceLevel{Price: parseFloat(a[0]), Quantity: parseFloat(a[1])})
	}
	return ob, true
}

type wireTicker struct {
	LastPrice       string `json:"lastPrice"`
	PriceChg        string `json:"price24hPcnt"`
	HighPrice       string `json:"highPrice24h"`
	LowPrice        string `json:"lowPrice24h"`
	Volume          string `json:"volume24h"`
	Turnover        string `json:"turnover24h"`
	BestBid         string `json:"bid1Price"`
	BestBidQty      string `json:"bid1Size"`
	BestAsk         string `json:"ask1Price"`
	BestAskQty      string `json:"ask1Size"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	FundingRate     string `json:"fundingRate"`
	OpenInterest    string `json:"openInterest"`
	NextFundingTime string `json:"nextFundingTime"`
}

// decodeTickerAndBookTicker splits Bybit's merged linear-perpetual tickers
// topic into the logical families this deployment's data model keeps
// separate: the spot/futures Ticker and BookTicker always present, plus
// MarkPrice/FundingRate/OpenInterest when the wire frame carries them
// (futures-only fields, absent on spot).
func decodeTickerAndBookTicker(topic string, data json.RawMessage) []any {
	var w wireTicker
	if err := json.Unmarshal(data, &w); err != nil {
		return nil
	}
	events := []any{
		model.Ticker{
			Topic:    topic,
			Last:     parseFloat(w.LastPrice),
			Pct:      parseFloat(w.PriceChg),
			High:     parseFloat(w.HighPrice),
			Low:      parseFloat(w.LowPrice),
			Vol:      parseFloat(w.Volume),
			QuoteVol: parseFloat(w.Turnover),
		},
	}
	if w.BestBid != "" || w.BestAsk != "" {
		events = append(events, model.BookTicker{
			Topic:      topic,
			BestBid:    parseFloat(w.BestBid),
			BestBidQty: parseFloat(w.BestBidQty),
			BestAsk:    parseFloat(w.BestAsk),
			BestAskQty: parseFloat(w.BestAskQty),
		})
	}
	if w.MarkPrice != "" {
		nextFunding, _ := strconv.ParseInt(w.NextFundingTime, 10, 64)
		events = append(events, model.MarkPrice{
			Topic:             topic,
			Mark:              parseFloat(w.MarkPrice),
			Index:             parseFloat(w.IndexPrice),
			NextFundingTimeMs: uint64(nextFunding),
		})
	}
	if w.FundingRate != "" {
		events = append(events, model.FundingRate{Topic: topic, Rate: parseFloat(w.FundingRate)})
	}
	if w.OpenInterest != "" {
		events = append(events, model.OpenInterest{Topic: topic, OI: parseFloat(w.OpenInterest)})
	}
	return events
}

type wireLiquidation struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Qty   string `json:"size"`
}

func decodeLiquidation(topic string, data json.RawMessage) (model.Liquidation, bool) {
	var w wireLiquidation
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Liquidation{}, false
	}
	side := model.SideBuy
	if w.Side == "Sell" {
		side = model.SideSell
	}
	return model.Liquidation{Topic: topic, Price: parseFloat(w.Price), Qty: parseFloat(w.Qty), Side: side}, true
}

type wireKline struct {
	Interval  string `json:"interval"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	IsClosed  bool   `json:"confirm"`
}

func decodeKlines(topic string, data json.RawMessage) []any {
	var klines []wireKline
	if err := json.Unmarshal(data, &klines); err != nil {
		return nil
	}
	out := make([]any, 0, len(klines))
	for _, w := range klines {
		out = append(out, model.Candle{
			Topic:     topic,
			Interval:  w.Interval,
			Open:      parseFloat(w.Open),
			High:      parseFloat(w.High),
			Low:       parseFloat(w.Low),
			Close:     parseFloat(w.Close),
			Volume:    parseFloat(w.Volume),
			StartTime: uint64(w.Start),
			CloseTime: uint64(w.End),
			IsClosed:  w.IsClosed,
		})
	}
	return out
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.Trim(s, `"`), 64)
	if err != nil {
		return 0
	}
	return v
}
