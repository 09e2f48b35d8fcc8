// Package cache is the key-value boundary the fan-out stage writes through.
// Keys and TTLs are the contract late subscribers read against, so they are
// fixed here rather than scattered through callers.
package cache

import (
	"fmt"
	"time"

	"curvefeed/pkg/models"
)

func CandleKey(pair models.PairID, interval models.Interval, bucketStart time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d", pair, interval, bucketStart.Unix())
}

func MarketKey(pair models.PairID) string {
	return fmt.Sprintf("market:%s", pair)
}

func LatestTradeKey(pair models.PairID) string {
	return fmt.Sprintf("trade:latest:%s", pair)
}
