package contract

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// waitForConfirmations polls for the receipt of txHash until it has the
// configured number of confirmations. Only reads are repeated here.
func (g *Gateway) waitForConfirmations(ctx context.Context, txHash common.Hash) (*types.Receipt, uint64, error) {
	required := uint64(g.config.Confirmations)
	if required == 0 {
		required = 1
	}

	// The count is taken from the head that satisfied the check, so a lagging
	// node after failover cannot make it negative.
	poll := func() (confirmed, error) {
		receipt, err := g.backend.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return confirmed{}, errPending
		}
		if err != nil {
			return confirmed{}, backoff.Permanent(err)
		}

		head, err := g.backend.BlockNumber(ctx)
		if err != nil {
			return confirmed{}, backoff.Permanent(err)
		}
		if receipt.BlockNumber == nil || head+1 < receipt.BlockNumber.Uint64()+required {
			return confirmed{}, errPending
		}
		return confirmed{receipt: receipt, confirmations: head - receipt.BlockNumber.Uint64() + 1}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.pollInterval()
	expo.MaxInterval = 15 * time.Second

	result, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(g.receiptTimeout()),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.WithFields(logrus.Fields{
				"tx_hash": txHash.Hex(),
				"next":    next,
			}).Debug("Waiting for confirmation")
		}),
	)
	if err != nil {
		if errors.Is(err, errPending) {
			return nil, 0, utils.NewAppError(utils.ErrCodeTimeout, "Transaction not confirmed in time", txHash.Hex())
		}
		return nil, 0, utils.FromContext(err, "Failed to confirm transaction")
	}
	return result.receipt, result.confirmations, nil
}

type confirmed struct {
	receipt       *types.Receipt
	confirmations uint64
}

var errPending = errors.New("transaction pending")

func (g *Gateway) receiptTimeout() time.Duration {
	if g.config.ReceiptTimeout <= 0 {
		return 5 * time.Minute
	}
	return g.config.ReceiptTimeout
}

func (g *Gateway) pollInterval() time.Duration {
	if g.config.RetryDelay <= 0 {
		return 500 * time.Millisecond
	}
	return g.config.RetryDelay
}
