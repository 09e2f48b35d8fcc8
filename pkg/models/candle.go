package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket for a (pair, interval). It is owned exclusively
// by the candle series that builds it; everything handed outward is a copy.
type Candle struct {
	Pair        PairID    `json:"pair"`
	Interval    Interval  `json:"interval"`
	BucketStart time.Time `json:"bucket_start"`
	Open        Price     `json:"open"`
	High        Price     `json:"high"`
	Low         Price     `json:"low"`
	Close       Price     `json:"close"`
	Volume      Volume    `json:"volume"`
	QuoteVolume Volume    `json:"quote_volume"`
	BuyVolume   Volume    `json:"buy_volume"`
	SellVolume  Volume    `json:"sell_volume"`
	TradeCount  int       `json:"trade_count"`
	Closed      bool      `json:"closed"`
}

// MarketSnapshot is the rolling window aggregate (24h by default) for a pair.
type MarketSnapshot struct {
	Pair        PairID    `json:"pair"`
	WindowStart time.Time `json:"window_start"`
	High        Price     `json:"high"`
	Low         Price     `json:"low"`
	FirstPrice  Price     `json:"first_price"`
	LastPrice   Price     `json:"last_price"`
	Volume      Volume    `json:"volume"`
	QuoteVolume Volume    `json:"quote_volume"`
	TradeCount  int       `json:"trade_count"`
}

// PriceChangePercent is the window-entry to window-exit move in percent.
func (s MarketSnapshot) PriceChangePercent() decimal.Decimal {
	first := s.FirstPrice.Decimal()
	if first.IsZero() {
		return decimal.Zero
	}
	return s.LastPrice.Decimal().Sub(first).Div(first).Mul(decimal.New(100, 0))
}

// ChangeKind classifies a change notification.
type ChangeKind int

const (
	CandleUpdated ChangeKind = iota
	CandleClosed
	SnapshotUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case CandleUpdated:
		return "candle_updated"
	case CandleClosed:
		return "candle_closed"
	case SnapshotUpdated:
		return "snapshot_updated"
	}
	return "unknown"
}

// ChangeNotification is produced per applied event and consumed immediately
// by the fan-out stage; it is never persisted. Exactly one of Candle and
// Snapshot is set, matching Kind.
type ChangeNotification struct {
	Kind     ChangeKind
	Candle   *Candle
	Snapshot *MarketSnapshot
}
