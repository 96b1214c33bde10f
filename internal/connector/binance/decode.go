package binance

import (
	"encoding/json"

	"github.com/ingestd/marketfeed/internal/model"
)

type wireTrade struct {
	TradeID  int64  `json:"t"`
	Price    string `json:"p"`
	Qty      string `json:"q"`
	TimeMs   int64  `json:"T"`
	IsBuyerMaker bool `json:"m"`
}

func decodeTrade(topic string, raw []byte) (model.Trade, bool) {
	var w wireTrade
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Trade{}, false
	}
	return model.Trade{
		TradeID: uint64(w.TradeID),
		Topic:   topic,
		Price:   parseFloat(w.Price),
		Qty:     parseFloat(w.Qty),
		TsMs:    uint64(w.TimeMs),
		Side:    sideFromBuyerMaker(w.IsBuyerMaker),
	}, true
}

type wireAggTrade struct {
	AggID        int64  `json:"a"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TimeMs       int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func decodeAggTrade(topic string, raw []byte) (model.AggTrade, bool) {
	var w wireAggTrade
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.AggTrade{}, false
	}
	return model.AggTrade{
		AggID:        uint64(w.AggID),
		Topic:        topic,
		Price:        parseFloat(w.Price),
		Qty:          parseFloat(w.Qty),
		TsMs:         uint64(w.TimeMs),
		Side:         sideFromBuyerMaker(w.IsBuyerMaker),
		FirstTradeID: uint64(w.FirstTradeID),
		LastTradeID:  uint64(w.LastTradeID),
	}, true
}

// sideFromBuyerMaker maps Binance's is-buyer-maker flag to an aggressor
// side: when the buyer is the maker, the taker (aggressor) sold.
func sideFromBuyerMaker(isBuyerMaker bool) model.Side {
	if isBuyerMaker {
		return model.SideSell
	}
	return model.SideBuy
}

type wireLevel [2]string

func (l wireLevel) toPriceLevel() model.PriceLevel {
	return model.PriceLevel{Price: parseFloat(l[0]), Quantity: parseFloat(l[1])}
}

type wireDepth struct {
	Bids         []wireLevel `json:"b"`
	Asks         []wireLevel `json:"a"`
	LastUpdateID int64       `json:"u"`
}

// wireDepthSnapshot covers the REST/full-snapshot shape (bids/asks,
// lastUpdateId) some combined streams emit for spot order books.
type wireDepthSnapshot struct {
	Bids         []wireLevel `json:"bids"`
	Asks         []wireLevel `json:"asks"`
	LastUpdateID int64       `json:"lastUpdateId"`
}

func decodeOrderBook(topic string, raw []byte) (model.OrderBook, bool) {
	var w wireDepth
	if err := json.Unmarshal(raw, &w); err == nil && (len(w.Bids) > 0 || len(w.Asks) > 0 || w.LastUpdateID > 0) {
		return buildOrderBook(topic, w.Bids, w.Asks, w.LastUpdateID), true
	}

	var snap wireDepthSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.OrderBook{}, false
	}
	return buildOrderBook(topic, snap.Bids, snap.Asks, snap.LastUpdateID), true
}

func buildOrderBook(topic string, bids, asks []wireLevel, lastUpdateID int64) model.OrderBook {
	ob := model.OrderBook{Topic: topic, LastUpdateID: uint64(lastUpdateID)}
	for _, b := range bids {
		ob.Bids = append(ob.Bids, b.toPriceLevel())
	}
	for _, a := range asks {
		ob.Asks = append(ob.Asks, a.toPriceLevel())
	}
	return ob
}

type wireTicker struct {
	PriceChange string `json:"p"`
	PctChange   string `json:"P"`
	LastPrice   string `json:"c"`
	OpenPrice   string `json:"o"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	CloseTimeMs int64  `json:"C"`
}

func decodeTicker(topic string, raw []byte) (model.Ticker, bool) {
	var w wireTicker
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Ticker{}, false
	}
	return model.Ticker{
		Topic:       topic,
		PriceChange: parseFloat(w.PriceChange),
		Pct:         parseFloat(w.PctChange),
		Last:        parseFloat(w.LastPrice),
		Open:        parseFloat(w.OpenPrice),
		High:        parseFloat(w.HighPrice),
		Low:         parseFloat(w.LowPrice),
		Vol:         parseFloat(w.Volume),
		QuoteVol:    parseFloat(w.QuoteVolume),
		TsMs:        uint64(w.CloseTimeMs),
	}, true
}

type wireBookTicker struct {
	BestBid    string `json:"b"`
	BestBidQty string `json:"B"`
	BestAsk    string `json:"a"`
	BestAskQty string `json:"A"`
}

func decodeBookTicker(topic string, raw []byte) (model.BookTicker, bool) {
	var w wireBookTicker
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.BookTicker{}, false
	}
	return model.BookTicker{
		Topic:      topic,
		BestBid:    parseFloat(w.BestBid),
		BestBidQty: parseFloat(w.BestBidQty),
		BestAsk:    parseFloat(w.BestAsk),
		BestAskQty: parseFloat(w.BestAskQty),
	}, true
}

type wireMarkPrice struct {
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
	EventTimeMs     int64  `json:"E"`
}

// decodeMarkPriceAndFunding splits Binance's markPriceUpdate frame into its
// two logical events: a MarkPrice slot write and a FundingRate slot write
// (spec.md §3's elaboration of the two families sharing one wire frame).
func decodeMarkPriceAndFunding(topic string, raw []byte) []any {
	var w wireMarkPrice
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	return []any{
		model.MarkPrice{
			Topic:             topic,
			Mark:              parseFloat(w.MarkPrice),
			Index:             parseFloat(w.IndexPrice),
			NextFundingTimeMs: uint64(w.NextFundingTime),
		},
		model.FundingRate{
			Topic: topic,
			Rate:  parseFloat(w.FundingRate),
			TsMs:  uint64(w.EventTimeMs),
		},
	}
}

type wireLiquidation struct {
	Order struct {
		Side  string `json:"S"`
		Price string `json:"p"`
		Qty   string `json:"q"`
	} `json:"o"`
}

func decodeLiquidation(topic string, raw []byte) (model.Liquidation, bool) {
	var w wireLiquidation
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Liquidation{}, false
	}
	side := model.SideBuy
	if w.Order.Side == "SELL" {
		side = model.SideSell
	}
	return model.Liquidation{
		Topic: topic,
		Price: parseFloat(w.Order.Price),
		Qty:   parseFloat(w.Order.Qty),
		Side:  side,
	}, true
}

type wireKline struct {
	K struct {
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

func decodeCandle(topic string, raw []byte) (model.Candle, bool) {
	var w wireKline
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Candle{}, false
	}
	return model.Candle{
		Topic:     topic,
		Interval:  w.K.Interval,
		Open:      parseFloat(w.K.Open),
		High:      parseFloat(w.K.High),
		Low:       parseFloat(w.K.Low),
		Close:     parseFloat(w.K.Close),
		Volume:    parseFloat(w.K.Volume),
		StartTime: uint64(w.K.StartTime),
		CloseTime: uint64(w.K.CloseTime),
		IsClosed:  w.K.IsClosed,
	}, true
}
