package chain

import (
	"encoding/json"
	"time"

	"curvefeed/pkg/models"
)

// tradePayload is the raw trade message pushed by the curve event relay.
// Amounts and prices are integer wei strings.
type tradePayload struct {
	TokenAddress   string `json:"token_address"`
	CurveAddress   string `json:"curve_address"`
	UserAddress    string `json:"user_address"`
	IsBuy          bool   `json:"is_buy"`
	TokenAmount    string `json:"token_amount"`
	EthAmount      string `json:"eth_amount"`
	PriceAfter     string `json:"price_after"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp int64  `json:"block_timestamp"`
	LogIndex       uint64 `json:"log_index"`
	TxHash         string `json:"tx_hash"`
}

const logIndexBits = 20

// PackSequence folds block number and log index into one per-pair monotonic
// sequence. 2^20 logs per block is far beyond any real block.
func PackSequence(blockNumber, logIndex uint64) uint64 {
	return blockNumber<<logIndexBits | (logIndex & (1<<logIndexBits - 1))
}

// DecodeTrade turns a raw relay payload into a validated trade event.
func DecodeTrade(chainID uint64, data []byte) (models.TradeEvent, error) {
	var raw tradePayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.TradeEvent{}, &models.ValidationError{Field: "payload", Reason: "not valid JSON"}
	}

	pair, err := models.NewPairID(chainID, raw.TokenAddress)
	if err != nil {
		return models.TradeEvent{}, err
	}
	price, err := models.PriceFromWei(raw.PriceAfter)
	if err != nil {
		return models.TradeEvent{}, err
	}
	volume, err := models.VolumeFromWei(raw.TokenAmount)
	if err != nil {
		return models.TradeEvent{}, err
	}
	quote, err := models.VolumeFromWei(raw.EthAmount)
	if err != nil {
		return models.TradeEvent{}, err
	}

	side := models.SideSell
	if raw.IsBuy {
		side = models.SideBuy
	}

	ev := models.TradeEvent{
		Pair:        pair,
		Side:        side,
		Price:       price,
		Volume:      volume,
		QuoteVolume: quote,
		Timestamp:   time.Unix(raw.BlockTimestamp, 0).UTC(),
		Sequence:    PackSequence(raw.BlockNumber, raw.LogIndex),
		TxHash:      raw.TxHash,
	}
	if err := ev.Validate(); err != nil {
		return models.TradeEvent{}, err
	}
	return ev, nil
}
