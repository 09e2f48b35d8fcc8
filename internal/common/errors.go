package common

type ErrorCode string
type ErrorMessage string

const (
	ErrCodeConfigLoadFailed       ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeCacheConnectFailed     ErrorCode = "CACHE_CONNECT_FAILED"
	ErrCodeBroadcastConnectFailed ErrorCode = "BROADCAST_CONNECT_FAILED"
	ErrCodeChainConnectFailed     ErrorCode = "CHAIN_CONNECT_FAILED"
	ErrCodeChainSubscribeFailed   ErrorCode = "CHAIN_SUBSCRIBE_FAILED"
	ErrCodeChainReadFailed        ErrorCode = "CHAIN_READ_FAILED"
	ErrCodeChainPingFailed        ErrorCode = "CHAIN_PING_FAILED"
	ErrCodeEventDecodeFailed      ErrorCode = "EVENT_DECODE_FAILED"
	ErrCodeEventRejected          ErrorCode = "EVENT_REJECTED"
	ErrCodeStaleEvent             ErrorCode = "STALE_EVENT"
	ErrCodeLaneFull               ErrorCode = "LANE_FULL"
	ErrCodeQueueFull              ErrorCode = "QUEUE_FULL"
	ErrCodeCacheWriteFailed       ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeBroadcastPublishFailed ErrorCode = "BROADCAST_PUBLISH_FAILED"
)

const (
	ErrMsgConfigLoadFailed       ErrorMessage = "Failed to load configuration"
	ErrMsgCacheConnectFailed     ErrorMessage = "Failed to connect to cache store"
	ErrMsgBroadcastConnectFailed ErrorMessage = "Failed to connect to broadcast channel"
	ErrMsgChainConnectFailed     ErrorMessage = "Failed to connect to chain node"
	ErrMsgChainSubscribeFailed   ErrorMessage = "Failed to subscribe to trade stream"
	ErrMsgChainReadFailed        ErrorMessage = "Failed to read from chain stream"
	ErrMsgChainPingFailed        ErrorMessage = "Failed to ping chain node"
	ErrMsgEventDecodeFailed      ErrorMessage = "Failed to decode trade payload"
	ErrMsgEventRejected          ErrorMessage = "Trade event rejected by validation"
	ErrMsgStaleEvent             ErrorMessage = "Trade event outside retention horizon, dropped"
	ErrMsgLaneFull               ErrorMessage = "Pair lane queue is full, event dropped"
	ErrMsgQueueFull              ErrorMessage = "Notification queue is full, batch dropped"
	ErrMsgCacheWriteFailed       ErrorMessage = "Failed to write to cache store"
	ErrMsgBroadcastPublishFailed ErrorMessage = "Failed to publish notification"
)

func (e ErrorCode) String() string {
	return string(e)
}

func (m ErrorMessage) String() string {
	return string(m)
}
