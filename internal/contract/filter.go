package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// BlockRange is an inclusive block range
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts [from, to] into consecutive chunks of at most size blocks
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	if from > to {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid block range",
			"from block is after to block")
	}
	if size == 0 {
		return []BlockRange{{From: from, To: to}}, nil
	}

	var ranges []BlockRange
	for start := from; ; start += size {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
	}
	return ranges, nil
}

// campaignQuery builds a log filter for one event of one campaign
func campaignQuery(contract common.Address, eventID common.Hash, campaignID *big.Int, r BlockRange) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{contract},
		Topics: [][]common.Hash{
			{eventID},
			{common.BigToHash(campaignID)},
		},
	}
}
