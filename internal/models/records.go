package models

import (
	"math/big"
	"time"
)

// DonationRecord is one DonationReceived event
type DonationRecord struct {
	Donor       string    `json:"donor"`
	Amount      *big.Int  `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
}

// DisbursementRecord is one FundsDisbursed event
type DisbursementRecord struct {
	Recipient   string    `json:"recipient"`
	Amount      *big.Int  `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
}

// UpdateBody is the JSON document stored in the content store for an update
type UpdateBody struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// AuthoredAt returns the author-side timestamp of the update
func (b UpdateBody) AuthoredAt() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// UpdateRecord is one CampaignUpdate event with its resolved body
type UpdateRecord struct {
	Body        UpdateBody `json:"body"`
	OccurredAt  time.Time  `json:"occurred_at"`
	TxHash      string     `json:"tx_hash"`
	LogIndex    uint       `json:"log_index"`
	BlockNumber uint64     `json:"block_number"`
	ContentID   string     `json:"content_id"`
}

// DroppedUpdate records an update whose body could not be resolved
type DroppedUpdate struct {
	TxHash    string `json:"tx_hash"`
	LogIndex  uint   `json:"log_index"`
	ContentID string `json:"content_id"`
	Reason    string `json:"reason"`
}

// AuditKind tags an AuditEntry
type AuditKind string

const (
	AuditDonation     AuditKind = "donation"
	AuditDisbursement AuditKind = "disbursement"
)

// AuditEntry is a donation or disbursement in the merged audit log
type AuditEntry struct {
	Kind         AuditKind `json:"kind"`
	Counterparty string    `json:"counterparty"`
	Amount       *big.Int  `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
	TxHash       string    `json:"tx_hash"`
	LogIndex     uint      `json:"log_index"`
}
