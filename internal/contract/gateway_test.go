package contract

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeBackend is an in-memory node
type fakeBackend struct {
	mu sync.Mutex

	callResult []byte
	callErr    error
	logs       []types.Log
	head       uint64
	heads      []uint64
	queries    []ethereum.FilterQuery

	sent            []*types.Transaction
	sendErr         error
	receipt         *types.Receipt
	pendingReceipts int
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, f.callErr
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber < q.FromBlock.Uint64() || l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if l.Topics[0] != q.Topics[0][0] || l.Topics[1] != q.Topics[1][0] {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// BlockNumber answers from heads in order, then from head
func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heads) > 0 {
		head := f.heads[0]
		f.heads = f.heads[1:]
		return head, nil
	}
	return f.head, nil
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingReceipts > 0 {
		f.pendingReceipts--
		return nil, ethereum.NotFound
	}
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func testChainConfig() *config.ChainConfig {
	return &config.ChainConfig{
		ContractAddress: testContract.Hex(),
		ChainID:         31337,
		BlockBatchSize:  100,
		Confirmations:   1,
		RetryDelay:      time.Millisecond,
		ReceiptTimeout:  2 * time.Second,
	}
}

func mustABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := ParseABI(EtherFundABI)
	require.NoError(t, err)
	return parsed
}

func donationLog(t *testing.T, campaignID int64, donor common.Address, amount *big.Int, ts int64, block uint64, tx common.Hash, index uint) types.Log {
	t.Helper()
	event := mustABI(t).Events[models.EventDonationReceived]
	data, err := event.Inputs.NonIndexed().Pack(amount, big.NewInt(ts))
	require.NoError(t, err)
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(campaignID)), common.BytesToHash(donor.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
		Index:       index,
	}
}

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewKeySigner(common.Bytes2Hex(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return signer
}

func TestFetchSnapshot(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	out, err := mustABI(t).Methods[methodCampaigns].Outputs.Pack(owner, big.NewInt(1000), big.NewInt(250), big.NewInt(3))
	require.NoError(t, err)

	gateway, err := New(&fakeBackend{callResult: out}, testChainConfig(), nil, nil)
	require.NoError(t, err)

	snapshot, err := gateway.FetchSnapshot(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, owner, snapshot.Owner)
	assert.Equal(t, "1000", snapshot.Goal.String())
	assert.Equal(t, "250", snapshot.Raised.String())
	assert.Equal(t, uint64(3), snapshot.ContributorCount)
}

func TestFetchSnapshotNotFound(t *testing.T) {
	out, err := mustABI(t).Methods[methodCampaigns].Outputs.Pack(common.Address{}, big.NewInt(0), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)

	gateway, err := New(&fakeBackend{callResult: out}, testChainConfig(), nil, nil)
	require.NoError(t, err)

	_, err = gateway.FetchSnapshot(context.Background(), big.NewInt(42))
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	gateway, err = New(&fakeBackend{callErr: errors.New("execution reverted")}, testChainConfig(), nil, nil)
	require.NoError(t, err)
	_, err = gateway.FetchSnapshot(context.Background(), big.NewInt(42))
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestGatewayWithoutProvider(t *testing.T) {
	gateway, err := New(nil, testChainConfig(), nil, nil)
	require.NoError(t, err)

	_, err = gateway.FetchSnapshot(context.Background(), big.NewInt(1))
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnavailableProvider))

	_, err = gateway.QueryEvents(context.Background(), models.EventDonationReceived, big.NewInt(1), nil, nil)
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnavailableProvider))

	_, err = gateway.SubmitUpdate(context.Background(), big.NewInt(1), "Qm")
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnavailableProvider))
}

func TestQueryEventsDecodesAndChunks(t *testing.T) {
	donor := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	backend := &fakeBackend{
		head: 250,
		logs: []types.Log{
			donationLog(t, 1, donor, big.NewInt(5), 1000, 10, common.HexToHash("0x01"), 0),
			donationLog(t, 2, donor, big.NewInt(6), 1001, 20, common.HexToHash("0x02"), 0),
			donationLog(t, 1, donor, big.NewInt(7), 1002, 180, common.HexToHash("0x03"), 1),
		},
	}

	reg := prometheus.NewRegistry()
	metricsManager := metrics.NewManagerWithRegistry(reg)
	gateway, err := New(backend, testChainConfig(), nil, metricsManager)
	require.NoError(t, err)

	events, err := gateway.QueryEvents(context.Background(), models.EventDonationReceived, big.NewInt(1), nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Len(t, backend.queries, 3)
	assert.Equal(t, uint64(10), events[0].BlockNumber)
	assert.Equal(t, uint64(180), events[1].BlockNumber)

	amount, err := BigArg(events[1], "amount")
	require.NoError(t, err)
	assert.Equal(t, "7", amount.String())

	gotDonor, err := AddressArg(events[0], "donor")
	require.NoError(t, err)
	assert.Equal(t, donor, gotDonor)

	decoded := testutil.ToFloat64(metricsManager.GetPrometheusMetrics().EventsDecodedTotal.WithLabelValues(models.EventDonationReceived, "success"))
	assert.Equal(t, 2.0, decoded)
}

func TestSplitRange(t *testing.T) {
	ranges, err := SplitRange(0, 250, 100)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{0, 99}, {100, 199}, {200, 250}}, ranges)

	ranges, err = SplitRange(5, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{5, 5}}, ranges)

	_, err = SplitRange(10, 5, 100)
	assert.Error(t, err)
}

func TestSubmitUpdateWaitsForReceipt(t *testing.T) {
	backend := &fakeBackend{
		head:            12,
		pendingReceipts: 2,
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(12),
			GasUsed:     50_000,
		},
	}
	signer := newTestSigner(t)

	gateway, err := New(backend, testChainConfig(), signer, nil)
	require.NoError(t, err)

	receipt, err := gateway.SubmitUpdate(context.Background(), big.NewInt(1), "QmContent")
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(12), receipt.BlockNumber)
	assert.Equal(t, 1, receipt.Confirmations)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, testContract, *tx.To())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)

	args, err := mustABI(t).Methods[methodAddCampaignUpdate].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "QmContent", args[1])
}

func TestConfirmationsCountedFromObservedHead(t *testing.T) {
	// The second head comes from a backup node that is behind the receipt's block
	backend := &fakeBackend{
		heads: []uint64{14, 10},
		head:  10,
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(12),
		},
	}
	gateway, err := New(backend, testChainConfig(), newTestSigner(t), nil)
	require.NoError(t, err)

	receipt, err := gateway.SubmitUpdate(context.Background(), big.NewInt(1), "QmContent")
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Confirmations)
}

func TestSubmitUpdateRejectedBySigner(t *testing.T) {
	backend := &fakeBackend{head: 1}
	declining := NewApprovalSigner(newTestSigner(t), func(ctx context.Context, tx *types.Transaction) (bool, error) {
		return false, nil
	})

	reg := prometheus.NewRegistry()
	metricsManager := metrics.NewManagerWithRegistry(reg)
	gateway, err := New(backend, testChainConfig(), declining, metricsManager)
	require.NoError(t, err)

	_, err = gateway.SubmitUpdate(context.Background(), big.NewInt(1), "QmContent")
	assert.True(t, utils.IsCode(err, utils.ErrCodeUserRejected))
	assert.Empty(t, backend.sent)

	rejected := testutil.ToFloat64(metricsManager.GetPrometheusMetrics().TransactionsTotal.WithLabelValues(methodAddCampaignUpdate, "rejected"))
	assert.Equal(t, 1.0, rejected)
}

func TestSubmitUpdateBroadcastFailureIsNotRetried(t *testing.T) {
	backend := &fakeBackend{head: 1, sendErr: errors.New("connection refused")}
	gateway, err := New(backend, testChainConfig(), newTestSigner(t), nil)
	require.NoError(t, err)

	_, err = gateway.SubmitUpdate(context.Background(), big.NewInt(1), "QmContent")
	assert.True(t, utils.IsCode(err, utils.ErrCodeRPC))
	assert.Empty(t, backend.sent)
}

func TestCreateCampaignReturnsNewID(t *testing.T) {
	parsed := mustABI(t)
	created := parsed.Events[models.EventCampaignCreated]
	signer := newTestSigner(t)

	backend := &fakeBackend{
		head: 30,
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(30),
			Logs: []*types.Log{{
				Address: testContract,
				Topics: []common.Hash{
					created.ID,
					common.BigToHash(big.NewInt(9)),
					common.BytesToHash(signer.Address().Bytes()),
				},
				BlockNumber: 30,
			}},
		},
	}

	gateway, err := New(backend, testChainConfig(), signer, nil)
	require.NoError(t, err)

	receipt, err := gateway.CreateCampaign(context.Background(), models.CampaignParams{
		MinContribution: big.NewInt(100),
		Name:            "Clean water",
		Description:     "Wells",
		ImageURL:        "https://example.org/well.png",
		Target:          big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	require.NotNil(t, receipt.CampaignID)
	assert.Equal(t, "9", receipt.CampaignID.String())
}

func TestConfirmationTimeout(t *testing.T) {
	cfg := testChainConfig()
	cfg.ReceiptTimeout = 20 * time.Millisecond

	gateway, err := New(&fakeBackend{head: 1}, cfg, newTestSigner(t), nil)
	require.NoError(t, err)

	_, err = gateway.SubmitUpdate(context.Background(), big.NewInt(1), "QmContent")
	assert.True(t, utils.IsCode(err, utils.ErrCodeTimeout))
}
