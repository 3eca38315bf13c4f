package binance

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the value of the "e" discriminator on stream payloads.
type EventType string

const (
	EventTrade      EventType = "trade"
	EventMiniTicker EventType = "24hrMiniTicker"
	EventKline      EventType = "kline"
)

// Event is one decoded stream payload: *Trade, *MiniTicker or *Kline.
type Event interface {
	EventType() EventType
}

// Trade is a single executed trade.
type Trade struct {
	Symbol     string
	TradeID    int64
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	TradeTime  time.Time
	EventTime  time.Time
	BuyerMaker bool
}

func (*Trade) EventType() EventType { return EventTrade }

// MiniTicker is the rolling 24h statistics for a symbol.
type MiniTicker struct {
	Symbol      string
	Close       decimal.Decimal
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Volume      decimal.Decimal // base asset
	QuoteVolume decimal.Decimal
	EventTime   time.Time
}

func (*MiniTicker) EventType() EventType { return EventMiniTicker }

// Kline is one candlestick update; Closed marks the final update of a bar.
type Kline struct {
	Symbol    string
	Interval  KlineInterval
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	StartTime time.Time
	CloseTime time.Time
	Closed    bool
	EventTime time.Time
}

func (*Kline) EventType() EventType { return EventKline }
