package reader

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/etherfund-dashboard/internal/contentstore"
	"github.com/smartdevs17/etherfund-dashboard/internal/contract"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/telemetry"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// EventSource queries decoded contract events. contract.Gateway implements it.
type EventSource interface {
	QueryEvents(ctx context.Context, eventName string, campaignID *big.Int, fromBlock, toBlock *uint64) ([]*models.RawEvent, error)
}

// Reader turns contract events into ordered, typed records
type Reader struct {
	events      EventSource
	store       contentstore.Store
	concurrency int
	logger      *logrus.Entry

	metricsManager *metrics.Manager
}

// UpdateBatch is the result of LoadUpdates: the resolved updates plus the
// ones whose bodies could not be fetched
type UpdateBatch struct {
	Updates []models.UpdateRecord
	Dropped []models.DroppedUpdate
}

// New creates a reader. concurrency bounds parallel content lookups.
func New(events EventSource, store contentstore.Store, concurrency int, metricsManager *metrics.Manager) *Reader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reader{
		events:         events,
		store:          store,
		concurrency:    concurrency,
		logger:         utils.ComponentLogger("event_reader"),
		metricsManager: metricsManager,
	}
}

// LoadDonations returns the campaign's donations, newest first
func (r *Reader) LoadDonations(ctx context.Context, campaignID *big.Int) (_ []models.DonationRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reader.LoadDonations", attribute.String("campaign_id", campaignID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	events, err := r.query(ctx, models.EventDonationReceived, campaignID)
	if err != nil {
		return nil, err
	}

	records := make([]models.DonationRecord, 0, len(events))
	for _, event := range events {
		counterparty, amount, occurredAt, err := decodeTransfer(event, "donor")
		if err != nil {
			r.logDecodeFailure(event, err)
			continue
		}
		records = append(records, models.DonationRecord{
			Donor:       counterparty,
			Amount:      amount,
			OccurredAt:  occurredAt,
			TxHash:      event.TxHash,
			LogIndex:    event.LogIndex,
			BlockNumber: event.BlockNumber,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return NewerFirst(records[i].OccurredAt, records[i].TxHash, records[i].LogIndex,
			records[j].OccurredAt, records[j].TxHash, records[j].LogIndex)
	})
	return records, nil
}

// LoadDisbursements returns the campaign's disbursements, newest first
func (r *Reader) LoadDisbursements(ctx context.Context, campaignID *big.Int) (_ []models.DisbursementRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reader.LoadDisbursements", attribute.String("campaign_id", campaignID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	events, err := r.query(ctx, models.EventFundsDisbursed, campaignID)
	if err != nil {
		return nil, err
	}

	records := make([]models.DisbursementRecord, 0, len(events))
	for _, event := range events {
		counterparty, amount, occurredAt, err := decodeTransfer(event, "recipient")
		if err != nil {
			r.logDecodeFailure(event, err)
			continue
		}
		records = append(records, models.DisbursementRecord{
			Recipient:   counterparty,
			Amount:      amount,
			OccurredAt:  occurredAt,
			TxHash:      event.TxHash,
			LogIndex:    event.LogIndex,
			BlockNumber: event.BlockNumber,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return NewerFirst(records[i].OccurredAt, records[i].TxHash, records[i].LogIndex,
			records[j].OccurredAt, records[j].TxHash, records[j].LogIndex)
	})
	return records, nil
}

// LoadUpdates returns the campaign's updates with their bodies, newest first.
// A body that cannot be fetched or decoded drops that update only.
func (r *Reader) LoadUpdates(ctx context.Context, campaignID *big.Int) (_ *UpdateBatch, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reader.LoadUpdates", attribute.String("campaign_id", campaignID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	events, err := r.query(ctx, models.EventCampaignUpdate, campaignID)
	if err != nil {
		return nil, err
	}

	type slot struct {
		record  *models.UpdateRecord
		dropped *models.DroppedUpdate
	}
	slots := make([]slot, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, event := range events {
		g.Go(func() error {
			record, err := r.resolveUpdate(gctx, event)
			if err != nil {
				if ctx.Err() != nil {
					return utils.FromContext(ctx.Err(), "Update load aborted")
				}
				slots[i].dropped = r.dropUpdate(event, err)
				return nil
			}
			slots[i].record = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &UpdateBatch{Updates: make([]models.UpdateRecord, 0, len(events))}
	for _, s := range slots {
		switch {
		case s.record != nil:
			batch.Updates = append(batch.Updates, *s.record)
		case s.dropped != nil:
			batch.Dropped = append(batch.Dropped, *s.dropped)
		}
	}

	sort.SliceStable(batch.Updates, func(i, j int) bool {
		a, b := batch.Updates[i], batch.Updates[j]
		return NewerFirst(a.OccurredAt, a.TxHash, a.LogIndex, b.OccurredAt, b.TxHash, b.LogIndex)
	})
	return batch, nil
}

// resolveUpdate decodes one CampaignUpdate event and fetches its body
func (r *Reader) resolveUpdate(ctx context.Context, event *models.RawEvent) (*models.UpdateRecord, error) {
	contentID, err := contract.StringArg(event, "ipfsHash")
	if err != nil {
		return nil, err
	}
	timestamp, err := contract.BigArg(event, "timestamp")
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var body models.UpdateBody
	if err := contentstore.Decode(raw, &body); err != nil {
		return nil, err
	}

	return &models.UpdateRecord{
		Body:        body,
		OccurredAt:  unixTime(timestamp),
		TxHash:      event.TxHash,
		LogIndex:    event.LogIndex,
		BlockNumber: event.BlockNumber,
		ContentID:   contentID,
	}, nil
}

// query fetches events and removes reorged and duplicate logs
func (r *Reader) query(ctx context.Context, eventName string, campaignID *big.Int) ([]*models.RawEvent, error) {
	events, err := r.events.QueryEvents(ctx, eventName, campaignID, nil, nil)
	if err != nil {
		return nil, err
	}
	return dedupe(events), nil
}

// dedupe keeps the first log for each (tx hash, log index) and drops removed logs
func dedupe(events []*models.RawEvent) []*models.RawEvent {
	seen := make(map[string]bool, len(events))
	out := make([]*models.RawEvent, 0, len(events))
	for _, event := range events {
		if event == nil || event.Removed {
			continue
		}
		key := utils.CreateEventID(event.TxHash, event.LogIndex)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, event)
	}
	return out
}

func (r *Reader) dropUpdate(event *models.RawEvent, err error) *models.DroppedUpdate {
	contentID, _ := contract.StringArg(event, "ipfsHash")
	reason := utils.CodeOf(err)
	if reason == "" {
		reason = utils.ErrCodeInternal
	}

	r.logger.WithFields(logrus.Fields{
		"tx_hash":    event.TxHash,
		"log_index":  event.LogIndex,
		"content_id": contentID,
		"reason":     reason,
		"error":      err,
	}).Warn("Dropping campaign update")

	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordUpdateDropped(reason)
	}

	return &models.DroppedUpdate{
		TxHash:    event.TxHash,
		LogIndex:  event.LogIndex,
		ContentID: contentID,
		Reason:    reason,
	}
}

func (r *Reader) logDecodeFailure(event *models.RawEvent, err error) {
	r.logger.WithFields(logrus.Fields{
		"event":     event.EventName,
		"tx_hash":   event.TxHash,
		"log_index": event.LogIndex,
		"error":     err,
	}).Warn("Skipping malformed event")
}

// decodeTransfer reads the (counterparty, amount, timestamp) shape shared by
// DonationReceived and FundsDisbursed
func decodeTransfer(event *models.RawEvent, counterpartyArg string) (string, *big.Int, time.Time, error) {
	counterparty, err := contract.AddressArg(event, counterpartyArg)
	if err != nil {
		return "", nil, time.Time{}, err
	}
	amount, err := contract.BigArg(event, "amount")
	if err != nil {
		return "", nil, time.Time{}, err
	}
	timestamp, err := contract.BigArg(event, "timestamp")
	if err != nil {
		return "", nil, time.Time{}, err
	}
	return counterparty.Hex(), amount, unixTime(timestamp), nil
}

// unixTime converts an on-chain seconds timestamp
func unixTime(seconds *big.Int) time.Time {
	if !seconds.IsInt64() {
		return time.Time{}
	}
	return time.Unix(seconds.Int64(), 0).UTC()
}

// NewerFirst orders by time descending, then tx hash and log index ascending
func NewerFirst(at time.Time, tx string, idx uint, bt time.Time, btx string, bidx uint) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	if c := strings.Compare(strings.ToLower(tx), strings.ToLower(btx)); c != 0 {
		return c < 0
	}
	return idx < bidx
}
