package contract

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/telemetry"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Backend is the node handle the gateway talks through. connection.Manager implements it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Gateway exposes typed reads and writes against the crowdfunding contract
type Gateway struct {
	backend Backend
	signer  Signer
	config  *config.ChainConfig
	abi     *abi.ABI
	address common.Address
	parser  *EventParser
	logger  *logrus.Entry

	metricsManager *metrics.Manager
}

// New creates a gateway. backend may be nil, in which case every call fails
// with UNAVAILABLE_PROVIDER; signer may be nil, which disables writes.
func New(backend Backend, cfg *config.ChainConfig, signer Signer, metricsManager *metrics.Manager) (*Gateway, error) {
	if cfg == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Chain configuration is required", "")
	}
	if !utils.IsValidAddress(cfg.ContractAddress) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid contract address", cfg.ContractAddress)
	}

	contractABI, err := LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		backend:        backend,
		signer:         signer,
		config:         cfg,
		abi:            contractABI,
		address:        common.HexToAddress(cfg.ContractAddress),
		parser:         NewEventParser(contractABI),
		logger:         utils.ComponentLogger("contract_gateway"),
		metricsManager: metricsManager,
	}, nil
}

// Address returns the contract address
func (g *Gateway) Address() common.Address {
	return g.address
}

// HasSigner reports whether writes are possible
func (g *Gateway) HasSigner() bool {
	return g.signer != nil
}

// FetchSnapshot reads the campaign struct from the contract
func (g *Gateway) FetchSnapshot(ctx context.Context, campaignID *big.Int) (_ *models.CampaignSnapshot, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contract.FetchSnapshot", attribute.String("campaign_id", campaignID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	if g.backend == nil {
		return nil, utils.NewAppError(utils.ErrCodeUnavailableProvider, "No provider connected", "")
	}

	data, err := g.abi.Pack(methodCampaigns, campaignID)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeInternal, "Failed to pack campaigns call", err)
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.address, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Campaign not found", campaignID.String())
		}
		return nil, utils.FromContext(err, "Failed to read campaign")
	}

	values, err := g.abi.Unpack(methodCampaigns, out)
	if err != nil || len(values) < 4 {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Unexpected campaigns() result", campaignID.String())
	}

	owner, ok1 := values[0].(common.Address)
	goal, ok2 := values[1].(*big.Int)
	raised, ok3 := values[2].(*big.Int)
	contributors, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Unexpected campaigns() result types", campaignID.String())
	}
	if owner == (common.Address{}) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Campaign not found", campaignID.String())
	}

	return &models.CampaignSnapshot{
		CampaignID:       new(big.Int).Set(campaignID),
		Owner:            owner,
		Goal:             goal,
		Raised:           raised,
		ContributorCount: contributors.Uint64(),
		FetchedAt:        time.Now().UTC(),
	}, nil
}

// QueryEvents returns the decoded logs of one event for one campaign, in node
// order. A nil fromBlock starts at chain.start_block and a nil toBlock ends at
// the latest block. Failures are returned as-is; nothing is retried.
func (g *Gateway) QueryEvents(ctx context.Context, eventName string, campaignID *big.Int, fromBlock, toBlock *uint64) (_ []*models.RawEvent, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contract.QueryEvents",
		attribute.String("event", eventName),
		attribute.String("campaign_id", campaignID.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if g.backend == nil {
		return nil, utils.NewAppError(utils.ErrCodeUnavailableProvider, "No provider connected", "")
	}

	event, ok := g.abi.Events[eventName]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Unknown event", eventName)
	}

	from := g.config.StartBlock
	if fromBlock != nil {
		from = *fromBlock
	}
	var to uint64
	if toBlock != nil {
		to = *toBlock
	} else {
		to, err = g.backend.BlockNumber(ctx)
		if err != nil {
			return nil, utils.FromContext(err, "Failed to read latest block")
		}
	}
	if from > to {
		return nil, nil
	}

	ranges, err := SplitRange(from, to, g.config.BlockBatchSize)
	if err != nil {
		return nil, err
	}

	var events []*models.RawEvent
	for _, r := range ranges {
		logs, err := g.backend.FilterLogs(ctx, campaignQuery(g.address, event.ID, campaignID, r))
		if err != nil {
			return nil, utils.FromContext(err, "Failed to query "+eventName)
		}

		for _, log := range logs {
			raw, err := g.parser.ParseLog(log)
			if err != nil {
				g.recordDecoded(eventName, "error")
				g.logger.WithFields(logrus.Fields{
					"event":     eventName,
					"tx_hash":   log.TxHash.Hex(),
					"log_index": log.Index,
					"error":     err,
				}).Warn("Skipping undecodable log")
				continue
			}
			if raw.EventName != eventName {
				continue
			}
			g.recordDecoded(eventName, "success")
			events = append(events, raw)
		}
	}

	g.logger.WithFields(logrus.Fields{
		"event":       eventName,
		"campaign_id": campaignID.String(),
		"from_block":  from,
		"to_block":    to,
		"count":       len(events),
	}).Debug("Queried events")
	return events, nil
}

// SubmitUpdate records contentID as a new update of campaignID and waits for confirmation
func (g *Gateway) SubmitUpdate(ctx context.Context, campaignID *big.Int, contentID string) (_ *models.TransactionReceipt, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contract.SubmitUpdate", attribute.String("campaign_id", campaignID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	receipt, _, err := g.transact(ctx, methodAddCampaignUpdate, campaignID, contentID)
	return receipt, err
}

// CreateCampaign creates a campaign and returns its id when the contract reports it
func (g *Gateway) CreateCampaign(ctx context.Context, params models.CampaignParams) (_ *models.TransactionReceipt, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contract.CreateCampaign", attribute.String("name", params.Name))
	defer func() { telemetry.EndSpan(span, err) }()

	if params.MinContribution == nil || params.Target == nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Campaign amounts are required", "")
	}

	receipt, logs, err := g.transact(ctx, methodCreateCampaign,
		params.MinContribution, params.Name, params.Description, params.ImageURL, params.Target)
	if err != nil {
		return receipt, err
	}

	for _, log := range logs {
		if log.Address != g.address {
			continue
		}
		raw, perr := g.parser.ParseLog(*log)
		if perr != nil || raw.EventName != models.EventCampaignCreated {
			continue
		}
		if id, perr := BigArg(raw, "campaignId"); perr == nil {
			receipt.CampaignID = id
		}
		break
	}
	return receipt, nil
}

// transact packs, signs, broadcasts and confirms one contract write. The
// broadcast happens at most once.
func (g *Gateway) transact(ctx context.Context, method string, args ...interface{}) (*models.TransactionReceipt, []*types.Log, error) {
	receipt, logs, err := g.doTransact(ctx, method, args...)
	status := "success"
	switch {
	case utils.IsCode(err, utils.ErrCodeUserRejected):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	if g.metricsManager != nil {
		g.metricsManager.GetPrometheusMetrics().RecordTransaction(method, status)
	}
	return receipt, logs, err
}

func (g *Gateway) doTransact(ctx context.Context, method string, args ...interface{}) (*models.TransactionReceipt, []*types.Log, error) {
	if g.backend == nil || g.signer == nil {
		return nil, nil, utils.NewAppError(utils.ErrCodeUnavailableProvider, "No wallet connected", "")
	}

	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, nil, utils.WrapError(utils.ErrCodeValidation, "Invalid arguments for "+method, err)
	}

	from := g.signer.Address()
	chainID, err := g.chainID(ctx)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, nil, utils.FromContext(err, "Failed to read nonce")
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, utils.FromContext(err, "Failed to read gas price")
	}
	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &g.address, GasPrice: gasPrice, Data: data})
	if err != nil {
		return nil, nil, utils.FromContext(err, "Failed to estimate gas for "+method)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &g.address,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := g.signer.SignTx(ctx, tx, chainID)
	if err != nil {
		if errors.Is(err, ErrSignerDeclined) {
			return nil, nil, utils.WrapError(utils.ErrCodeUserRejected, "Transaction rejected by signer", err)
		}
		return nil, nil, utils.WrapError(utils.ErrCodeInternal, "Failed to sign transaction", err)
	}

	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, nil, utils.FromContext(err, "Failed to broadcast "+method)
	}

	log := g.logger.WithFields(logrus.Fields{"method": method, "tx_hash": signed.Hash().Hex()})
	log.Info("Transaction broadcast")

	receipt, confirmations, err := g.waitForConfirmations(ctx, signed.Hash())
	if err != nil {
		log.WithField("error", err).Warn("Transaction confirmation failed")
		return nil, nil, err
	}

	result := &models.TransactionReceipt{
		TxHash:        signed.Hash().Hex(),
		BlockNumber:   receipt.BlockNumber.Uint64(),
		GasUsed:       receipt.GasUsed,
		Confirmations: int(confirmations),
		Success:       receipt.Status == types.ReceiptStatusSuccessful,
	}
	if !result.Success {
		log.Warn("Transaction reverted")
		return result, nil, utils.NewAppError(utils.ErrCodeRPC, "Transaction reverted", result.TxHash)
	}

	log.WithField("block_number", result.BlockNumber).Info("Transaction confirmed")
	return result, receipt.Logs, nil
}

func (g *Gateway) chainID(ctx context.Context) (*big.Int, error) {
	if g.config.ChainID != 0 {
		return big.NewInt(g.config.ChainID), nil
	}
	id, err := g.backend.ChainID(ctx)
	if err != nil {
		return nil, utils.FromContext(err, "Failed to read chain id")
	}
	return id, nil
}

func (g *Gateway) recordDecoded(eventName, status string) {
	if g.metricsManager != nil {
		g.metricsManager.GetPrometheusMetrics().RecordEventDecoded(eventName, status)
	}
}

// isRevert reports whether a call failed because the contract reverted
func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}
