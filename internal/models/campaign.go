package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CampaignSnapshot is the contract's current view of a campaign
type CampaignSnapshot struct {
	CampaignID       *big.Int       `json:"campaign_id"`
	Owner            common.Address `json:"owner"`
	Goal             *big.Int       `json:"goal"`
	Raised           *big.Int       `json:"raised"`
	ContributorCount uint64         `json:"contributor_count"`
	FetchedAt        time.Time      `json:"fetched_at"`
}

// CampaignParams are the arguments of createCampaign, amounts in wei
type CampaignParams struct {
	MinContribution *big.Int `json:"min_contribution"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	ImageURL        string   `json:"image_url"`
	Target          *big.Int `json:"target"`
}

// TransactionReceipt summarizes a confirmed write
type TransactionReceipt struct {
	TxHash        string   `json:"tx_hash"`
	BlockNumber   uint64   `json:"block_number"`
	GasUsed       uint64   `json:"gas_used"`
	Confirmations int      `json:"confirmations"`
	Success       bool     `json:"success"`
	CampaignID    *big.Int `json:"campaign_id,omitempty"`
}
