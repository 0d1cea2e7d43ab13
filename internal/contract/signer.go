package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// ErrSignerDeclined is returned by a signer that refuses to sign
var ErrSignerDeclined = errors.New("signer declined the transaction")

// Signer signs contract writes on behalf of the user
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with a local private key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner parses a hex private key, with or without 0x prefix
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid signer private key", "")
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signing account
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID
func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// ApprovalFunc decides whether a transaction may be signed
type ApprovalFunc func(ctx context.Context, tx *types.Transaction) (bool, error)

// ApprovalSigner asks for approval before delegating to another signer
type ApprovalSigner struct {
	next    Signer
	approve ApprovalFunc
}

// NewApprovalSigner wraps next behind approve
func NewApprovalSigner(next Signer, approve ApprovalFunc) *ApprovalSigner {
	return &ApprovalSigner{next: next, approve: approve}
}

// Address returns the wrapped signer's account
func (s *ApprovalSigner) Address() common.Address {
	return s.next.Address()
}

// SignTx signs tx only if the approval callback accepts it
func (s *ApprovalSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	ok, err := s.approve(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignerDeclined
	}
	return s.next.SignTx(ctx, tx, chainID)
}
