package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// EventParser decodes contract logs into RawEvents using the contract ABI.
// Argument values keep their go-ethereum types (*big.Int, common.Address, string).
type EventParser struct {
	abi    *abi.ABI
	logger *logrus.Entry
}

// NewEventParser creates a parser for the given ABI
func NewEventParser(contractABI *abi.ABI) *EventParser {
	return &EventParser{
		abi:    contractABI,
		logger: utils.ComponentLogger("event_parser"),
	}
}

// ParseLog decodes one log. Logs whose first topic matches no ABI event are rejected.
func (ep *EventParser) ParseLog(log types.Log) (*models.RawEvent, error) {
	if len(log.Topics) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Log has no topics", log.TxHash.Hex())
	}

	event, err := ep.findEventByTopic(log.Topics[0])
	if err != nil {
		return nil, err
	}

	args, err := ep.parseEventData(event, log)
	if err != nil {
		ep.logger.WithFields(logrus.Fields{
			"event":     event.Name,
			"tx_hash":   log.TxHash.Hex(),
			"log_index": log.Index,
			"error":     err,
		}).Warn("Failed to parse event data")
		return nil, utils.WrapError(utils.ErrCodeDecode, "Failed to decode event "+event.Name, err)
	}

	return &models.RawEvent{
		EventName:   event.Name,
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		Removed:     log.Removed,
		Args:        args,
	}, nil
}

// parseEventData decodes indexed topics and the non-indexed data section
func (ep *EventParser) parseEventData(event *abi.Event, log types.Log) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	topicIndex := 1
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIndex >= len(log.Topics) {
			return nil, fmt.Errorf("insufficient topics for indexed parameter %s", input.Name)
		}
		result[input.Name] = parseTopicValue(input.Type, log.Topics[topicIndex])
		topicIndex++
	}

	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return result, nil
	}

	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	for i, input := range nonIndexed {
		if i < len(values) {
			result[input.Name] = values[i]
		}
	}
	return result, nil
}

// findEventByTopic finds the ABI event whose id is topic
func (ep *EventParser) findEventByTopic(topic common.Hash) (*abi.Event, error) {
	event, err := ep.abi.EventByID(topic)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Unknown event topic", topic.Hex())
	}
	return event, nil
}

// parseTopicValue converts an indexed topic to its native value
func parseTopicValue(typ abi.Type, topic common.Hash) interface{} {
	switch typ.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.IntTy, abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Sign() != 0
	default:
		// dynamic indexed values only carry their hash
		return topic
	}
}

// BigArg reads a uint256 argument
func BigArg(event *models.RawEvent, name string) (*big.Int, error) {
	v, ok := event.Args[name]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Missing event argument", name)
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Event argument is not an integer", name)
	}
	return n, nil
}

// AddressArg reads an address argument
func AddressArg(event *models.RawEvent, name string) (common.Address, error) {
	v, ok := event.Args[name]
	if !ok {
		return common.Address{}, utils.NewAppError(utils.ErrCodeDecode, "Missing event argument", name)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, utils.NewAppError(utils.ErrCodeDecode, "Event argument is not an address", name)
	}
	return addr, nil
}

// StringArg reads a string argument
func StringArg(event *models.RawEvent, name string) (string, error) {
	v, ok := event.Args[name]
	if !ok {
		return "", utils.NewAppError(utils.ErrCodeDecode, "Missing event argument", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", utils.NewAppError(utils.ErrCodeDecode, "Event argument is not a string", name)
	}
	return s, nil
}
