// Package broadcast is the fire-and-forget publish boundary. Subscribers
// that need delivery guarantees read the cache instead; this channel is for
// low-latency push only.
package broadcast

import (
	"fmt"
	"strings"

	"curvefeed/pkg/models"
)

const subjectPrefix = "curve"

// Subject builders. Addresses are lowercased so subjects are stable
// regardless of checksum casing.
func SubjectCandle(pair models.PairID, interval models.Interval) string {
	return fmt.Sprintf("%s.candle.%d.%s.%s", subjectPrefix, pair.ChainID(), strings.ToLower(pair.Address()), interval)
}

func SubjectMarket(pair models.PairID) string {
	return fmt.Sprintf("%s.market.%d.%s", subjectPrefix, pair.ChainID(), strings.ToLower(pair.Address()))
}

func SubjectTrade(pair models.PairID) string {
	return fmt.Sprintf("%s.trade.%d.%s", subjectPrefix, pair.ChainID(), strings.ToLower(pair.Address()))
}

// Wildcard patterns for subscribers.
func SubjectPatternAllCandles() string {
	return subjectPrefix + ".candle.>"
}

func SubjectPatternAllMarkets() string {
	return subjectPrefix + ".market.>"
}
