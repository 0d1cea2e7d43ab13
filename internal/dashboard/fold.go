package dashboard

import (
	"math/big"
	"time"

	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/reader"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// DefaultRecentLimit is the length of the recent donation and disbursement lists
const DefaultRecentLimit = 5

// Fold builds a DashboardView from already-fetched data. Inputs must already
// be sorted newest first. Totals come from the snapshot only.
func Fold(
	campaignID *big.Int,
	snapshot models.CampaignSnapshot,
	donations []models.DonationRecord,
	disbursements []models.DisbursementRecord,
	updates *reader.UpdateBatch,
	recentLimit int,
) *models.DashboardView {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	view := &models.DashboardView{
		CampaignID:          new(big.Int).Set(campaignID),
		Snapshot:            snapshot,
		ProgressRatio:       utils.Ratio(snapshot.Raised, snapshot.Goal),
		RecentDonations:     append([]models.DonationRecord(nil), donations[:min(recentLimit, len(donations))]...),
		RecentDisbursements: append([]models.DisbursementRecord(nil), disbursements[:min(recentLimit, len(disbursements))]...),
		AuditLog:            MergeAudit(donations, disbursements),
		Updates:             []models.UpdateRecord{},
		LoadedAt:            time.Now().UTC(),
	}
	if updates != nil {
		view.Updates = append(view.Updates, updates.Updates...)
		view.DroppedUpdates = append(view.DroppedUpdates, updates.Dropped...)
	}
	return view
}

// MergeAudit merges two newest-first sequences into one newest-first audit
// log, ties broken by tx hash then log index
func MergeAudit(donations []models.DonationRecord, disbursements []models.DisbursementRecord) []models.AuditEntry {
	merged := make([]models.AuditEntry, 0, len(donations)+len(disbursements))

	i, j := 0, 0
	for i < len(donations) || j < len(disbursements) {
		takeDonation := j >= len(disbursements)
		if i < len(donations) && j < len(disbursements) {
			d, b := donations[i], disbursements[j]
			takeDonation = !reader.NewerFirst(b.OccurredAt, b.TxHash, b.LogIndex, d.OccurredAt, d.TxHash, d.LogIndex)
		}

		if takeDonation {
			d := donations[i]
			merged = append(merged, models.AuditEntry{
				Kind:         models.AuditDonation,
				Counterparty: d.Donor,
				Amount:       d.Amount,
				OccurredAt:   d.OccurredAt,
				TxHash:       d.TxHash,
				LogIndex:     d.LogIndex,
			})
			i++
			continue
		}

		b := disbursements[j]
		merged = append(merged, models.AuditEntry{
			Kind:         models.AuditDisbursement,
			Counterparty: b.Recipient,
			Amount:       b.Amount,
			OccurredAt:   b.OccurredAt,
			TxHash:       b.TxHash,
			LogIndex:     b.LogIndex,
		})
		j++
	}
	return merged
}
