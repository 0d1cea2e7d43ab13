package models

import (
	"math/big"
	"time"
)

// DashboardView is the read model rendered for one campaign. It is never
// mutated after construction; a reload produces a new value.
type DashboardView struct {
	CampaignID          *big.Int             `json:"campaign_id"`
	Snapshot            CampaignSnapshot     `json:"snapshot"`
	ProgressRatio       float64              `json:"progress_ratio"`
	RecentDonations     []DonationRecord     `json:"recent_donations"`
	RecentDisbursements []DisbursementRecord `json:"recent_disbursements"`
	AuditLog            []AuditEntry         `json:"audit_log"`
	Updates             []UpdateRecord       `json:"updates"`
	DroppedUpdates      []DroppedUpdate      `json:"dropped_updates,omitempty"`
	LoadedAt            time.Time            `json:"loaded_at"`
}

// ProgressPercent returns the progress ratio as a percentage
func (v *DashboardView) ProgressPercent() float64 {
	return v.ProgressRatio * 100
}
