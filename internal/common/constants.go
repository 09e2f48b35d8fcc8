package common

import "time"

const (
	DefaultConfigPath = "./configs/config.yml"

	DefaultChainID              = 8453
	DefaultPingIntervalSec      = 30
	DefaultReconnectIntervalSec = 5
	DefaultMaxReconnectDelaySec = 60

	DefaultSnapshotWindowHours = 24
	DefaultRetainBuckets       = 3
	DefaultLaneQueueSize       = 1024
	DefaultFanoutQueueSize     = 4096
	DefaultFlushIntervalSec    = 15
	DefaultIdlePairTimeoutSec  = 3600

	DefaultCacheWriteRetries = 3
	CacheWriteTimeout        = 5 * time.Second
	CacheRetryBaseDelay      = 100 * time.Millisecond
	CacheRetryMaxDelay       = 2 * time.Second

	// TTLs mirror what late subscribers can tolerate: the market snapshot is
	// refreshed on every trade, the latest-trade key is purely informational.
	MarketSnapshotTTL = time.Minute
	LatestTradeTTL    = 5 * time.Minute
	MinCandleTTL      = 5 * time.Minute
)
