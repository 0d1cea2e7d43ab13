package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contract event names
const (
	EventDonationReceived = "DonationReceived"
	EventFundsDisbursed   = "FundsDisbursed"
	EventCampaignUpdate   = "CampaignUpdate"
	EventCampaignCreated  = "CampaignCreated"
)

// RawEvent is a contract log with its ABI arguments decoded but not yet typed
type RawEvent struct {
	EventName   string                 `json:"event_name"`
	Address     common.Address         `json:"address"`
	BlockNumber uint64                 `json:"block_number"`
	BlockHash   string                 `json:"block_hash"`
	TxHash      string                 `json:"tx_hash"`
	TxIndex     uint                   `json:"tx_index"`
	LogIndex    uint                   `json:"log_index"`
	Removed     bool                   `json:"removed"`
	Args        map[string]interface{} `json:"args"`
}
