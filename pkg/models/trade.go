package models

import (
	"time"
)

// Side is the direction of a bonding-curve trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKey uniquely identifies a trade event for deduplication under
// at-least-once delivery.
type EventKey struct {
	TxHash   string
	Sequence uint64
}

// TradeEvent is one executed trade on a bonding curve. Timestamp is chain
// time, not wall clock. Sequence is the block number and log index packed
// into one value by the ingestion layer, so it is monotonic per pair.
type TradeEvent struct {
	Pair        PairID    `json:"pair"`
	Side        Side      `json:"side"`
	Price       Price     `json:"price"`
	Volume      Volume    `json:"volume"`
	QuoteVolume Volume    `json:"quote_volume"`
	Timestamp   time.Time `json:"timestamp"`
	Sequence    uint64    `json:"sequence"`
	TxHash      string    `json:"tx_hash"`
}

func (e TradeEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, Sequence: e.Sequence}
}

// Validate fails closed on anything the aggregation core cannot fold safely.
func (e TradeEvent) Validate() error {
	if e.Pair.IsZero() {
		return &ValidationError{Field: "pair", Reason: "missing"}
	}
	if e.Price.IsZero() {
		return &ValidationError{Field: "price", Reason: "trade price must be positive"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	if !isTxHash(e.TxHash) {
		return &ValidationError{Field: "tx_hash", Reason: "must be 0x followed by 64 hex characters"}
	}
	return nil
}

func isTxHash(s string) bool {
	if len(s) != 66 || s[0] != '0' || s[1] != 'x' {
		return false
	}
	for i := 2; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
