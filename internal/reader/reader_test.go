package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/contentstore"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

type fakeEvents struct {
	byName map[string][]*models.RawEvent
	err    error
}

func (f *fakeEvents) QueryEvents(ctx context.Context, eventName string, campaignID *big.Int, fromBlock, toBlock *uint64) ([]*models.RawEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[eventName], nil
}

func donation(tx string, index uint, donor string, amount, ts int64) *models.RawEvent {
	return &models.RawEvent{
		EventName: models.EventDonationReceived,
		TxHash:    tx,
		LogIndex:  index,
		Args: map[string]interface{}{
			"campaignId": big.NewInt(1),
			"donor":      common.HexToAddress(donor),
			"amount":     big.NewInt(amount),
			"timestamp":  big.NewInt(ts),
		},
	}
}

func disbursement(tx string, index uint, recipient string, amount, ts int64) *models.RawEvent {
	return &models.RawEvent{
		EventName: models.EventFundsDisbursed,
		TxHash:    tx,
		LogIndex:  index,
		Args: map[string]interface{}{
			"campaignId": big.NewInt(1),
			"recipient":  common.HexToAddress(recipient),
			"amount":     big.NewInt(amount),
			"timestamp":  big.NewInt(ts),
		},
	}
}

func update(tx string, index uint, contentID string, ts int64) *models.RawEvent {
	return &models.RawEvent{
		EventName: models.EventCampaignUpdate,
		TxHash:    tx,
		LogIndex:  index,
		Args: map[string]interface{}{
			"campaignId": big.NewInt(1),
			"ipfsHash":   contentID,
			"timestamp":  big.NewInt(ts),
		},
	}
}

func TestLoadDonationsOrdersNewestFirst(t *testing.T) {
	events := &fakeEvents{byName: map[string][]*models.RawEvent{
		models.EventDonationReceived: {
			donation("0x02", 0, "0xaa", 10, 100),
			donation("0x01", 0, "0xbb", 20, 300),
			donation("0x03", 1, "0xcc", 30, 200),
			donation("0x03", 0, "0xdd", 40, 200),
		},
	}}

	r := New(events, contentstore.NewMemoryStore(), 2, nil)
	records, err := r.LoadDonations(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "0x01", records[0].TxHash)
	assert.Equal(t, "0x03", records[1].TxHash)
	assert.Equal(t, uint(0), records[1].LogIndex)
	assert.Equal(t, uint(1), records[2].LogIndex)
	assert.Equal(t, "0x02", records[3].TxHash)

	assert.Equal(t, common.HexToAddress("0xbb").Hex(), records[0].Donor)
	assert.Equal(t, "20", records[0].Amount.String())
	assert.Equal(t, time.Unix(300, 0).UTC(), records[0].OccurredAt)
}

func TestLoadDonationsDedupesAndDropsRemoved(t *testing.T) {
	removed := donation("0x09", 0, "0xaa", 5, 50)
	removed.Removed = true

	events := &fakeEvents{byName: map[string][]*models.RawEvent{
		models.EventDonationReceived: {
			donation("0x01", 0, "0xaa", 10, 100),
			donation("0x01", 0, "0xaa", 10, 100),
			donation("0x01", 1, "0xaa", 10, 100),
			removed,
		},
	}}

	r := New(events, contentstore.NewMemoryStore(), 1, nil)
	records, err := r.LoadDonations(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint(0), records[0].LogIndex)
	assert.Equal(t, uint(1), records[1].LogIndex)
}

func TestLoadDisbursementsSkipsMalformedEvents(t *testing.T) {
	bad := disbursement("0x05", 0, "0xaa", 1, 10)
	delete(bad.Args, "amount")

	events := &fakeEvents{byName: map[string][]*models.RawEvent{
		models.EventFundsDisbursed: {bad, disbursement("0x06", 0, "0xbb", 7, 20)},
	}}

	r := New(events, contentstore.NewMemoryStore(), 1, nil)
	records, err := r.LoadDisbursements(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, common.HexToAddress("0xbb").Hex(), records[0].Recipient)
}

func TestQueryFailurePropagates(t *testing.T) {
	rpcErr := utils.NewAppError(utils.ErrCodeRPC, "node down")
	r := New(&fakeEvents{err: rpcErr}, contentstore.NewMemoryStore(), 1, nil)

	_, err := r.LoadDonations(context.Background(), big.NewInt(1))
	assert.True(t, utils.IsCode(err, utils.ErrCodeRPC))
	_, err = r.LoadUpdates(context.Background(), big.NewInt(1))
	assert.True(t, utils.IsCode(err, utils.ErrCodeRPC))
}

func TestLoadUpdatesDropsUnresolvableBodies(t *testing.T) {
	store := contentstore.NewMemoryStore()
	ctx := context.Background()

	first, err := store.Put(ctx, models.UpdateBody{Content: "Kickoff", Timestamp: 1_000_000})
	require.NoError(t, err)
	second, err := store.Put(ctx, models.UpdateBody{Content: "Wells dug", Timestamp: 2_000_000})
	require.NoError(t, err)
	store.PutRaw("garbled", []byte("<html>"))

	events := &fakeEvents{byName: map[string][]*models.RawEvent{
		models.EventCampaignUpdate: {
			update("0x01", 0, first, 1000),
			update("0x02", 0, "missing", 1500),
			update("0x03", 0, second, 2000),
			update("0x04", 0, "garbled", 2500),
		},
	}}

	metricsManager := metrics.NewManagerWithRegistry(prometheus.NewRegistry())
	r := New(events, store, 2, metricsManager)
	batch, err := r.LoadUpdates(ctx, big.NewInt(1))
	require.NoError(t, err)

	require.Len(t, batch.Updates, 2)
	assert.Equal(t, "Wells dug", batch.Updates[0].Body.Content)
	assert.Equal(t, second, batch.Updates[0].ContentID)
	assert.Equal(t, "Kickoff", batch.Updates[1].Body.Content)
	assert.Equal(t, time.UnixMilli(1_000_000).UTC(), batch.Updates[1].Body.AuthoredAt())

	require.Len(t, batch.Dropped, 2)
	reasons := map[string]string{}
	for _, d := range batch.Dropped {
		reasons[d.ContentID] = d.Reason
	}
	assert.Equal(t, utils.ErrCodeNotFound, reasons["missing"])
	assert.Equal(t, utils.ErrCodeDecode, reasons["garbled"])

	dropped := metricsManager.GetPrometheusMetrics().UpdatesDroppedTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(dropped.WithLabelValues(utils.ErrCodeNotFound)))
}

// countingStore tracks how many Gets run at once
type countingStore struct {
	contentstore.Store
	inFlight int32
	peak     int32
	mu       sync.Mutex
}

func (c *countingStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	c.mu.Lock()
	if n > c.peak {
		c.peak = n
	}
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)
	return c.Store.Get(ctx, id)
}

func TestLoadUpdatesBoundsConcurrency(t *testing.T) {
	memory := contentstore.NewMemoryStore()
	var events []*models.RawEvent
	for i := 0; i < 12; i++ {
		id, err := memory.Put(context.Background(), models.UpdateBody{Content: fmt.Sprintf("update %d", i)})
		require.NoError(t, err)
		events = append(events, update(fmt.Sprintf("0x%02x", i), 0, id, int64(i)))
	}

	store := &countingStore{Store: memory}
	r := New(&fakeEvents{byName: map[string][]*models.RawEvent{models.EventCampaignUpdate: events}}, store, 3, nil)

	batch, err := r.LoadUpdates(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Len(t, batch.Updates, 12)
	assert.LessOrEqual(t, store.peak, int32(3))
	assert.Equal(t, "update 11", batch.Updates[0].Body.Content)
}

func TestLoadUpdatesCanceled(t *testing.T) {
	memory := contentstore.NewMemoryStore()
	id, err := memory.Put(context.Background(), models.UpdateBody{Content: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &cancelingStore{}
	r := New(&fakeEvents{byName: map[string][]*models.RawEvent{
		models.EventCampaignUpdate: {update("0x01", 0, id, 1)},
	}}, store, 1, nil)

	_, err = r.LoadUpdates(ctx, big.NewInt(1))
	assert.True(t, utils.IsCode(err, utils.ErrCodeCanceled))
}

type cancelingStore struct{}

func (cancelingStore) Put(ctx context.Context, v interface{}) (string, error) {
	return "", errors.New("unused")
}

func (cancelingStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, utils.FromContext(ctx.Err(), "canceled")
}
