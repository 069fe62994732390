// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbos

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrEmptyTransaction = errors.New("empty transaction")
	ErrUnknownTxType    = errors.New("unknown transaction type")
	ErrValueOverflow    = errors.New("transaction value exceeds 256 bits")
)

// TypedTransaction is a signed transaction taken from a sequencer feed message.
// It holds exactly one of *types.LegacyTx, *types.AccessListTx or
// *types.DynamicFeeTx together with the hash of the bytes it was decoded from.
type TypedTransaction struct {
	inner types.TxData
	value *uint256.Int
	hash  common.Hash
}

// TransactionInfo is the part of a TypedTransaction that does not depend on
// its type.
type TransactionInfo struct {
	To     *common.Address `json:"to"`
	Value  *hexutil.Big    `json:"value"`
	Data   hexutil.Bytes   `json:"data"`
	TxHash common.Hash     `json:"hash"`
}

// DecodeSignedTransaction decodes b as a legacy, EIP-2930 or EIP-1559
// transaction, selected by its first byte. The hash is the keccak256 of b
// exactly as given; bytes following the RLP list are ignored by the decoder
// but are part of the hash.
func DecodeSignedTransaction(b []byte) (*TypedTransaction, error) {
	if len(b) == 0 {
		return nil, ErrEmptyTransaction
	}
	hash := crypto.Keccak256Hash(b)

	var inner types.TxData
	var value *big.Int
	switch txType := b[0]; {
	case txType > 0x7f:
		var tx types.LegacyTx
		if err := decodeRLPList(b, &tx); err != nil {
			return nil, err
		}
		inner, value = &tx, tx.Value
	case txType == types.AccessListTxType:
		var tx types.AccessListTx
		if err := decodeRLPList(b[1:], &tx); err != nil {
			return nil, err
		}
		inner, value = &tx, tx.Value
	case txType == types.DynamicFeeTxType:
		var tx types.DynamicFeeTx
		if err := decodeRLPList(b[1:], &tx); err != nil {
			return nil, err
		}
		inner, value = &tx, tx.Value
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTxType, txType)
	}

	v := new(uint256.Int)
	if value != nil {
		var overflow bool
		v, overflow = uint256.FromBig(value)
		if overflow {
			return nil, ErrValueOverflow
		}
	}
	return &TypedTransaction{inner: inner, value: v, hash: hash}, nil
}

// ParseSignedTransaction is DecodeSignedTransaction without the reason:
// nil is returned for anything that does not decode.
func ParseSignedTransaction(b []byte) *TypedTransaction {
	tx, err := DecodeSignedTransaction(b)
	if err != nil {
		return nil
	}
	return tx
}

// decodeRLPList reads a single RLP value from b into val. Unlike
// rlp.DecodeBytes it does not reject input that continues past that value.
func decodeRLPList(b []byte, val interface{}) error {
	stream := rlp.NewStream(bytes.NewReader(b), uint64(len(b)))
	if err := stream.Decode(val); err != nil {
		return fmt.Errorf("rlp: %w", err)
	}
	return nil
}

// Type returns the EIP-2718 type of the transaction.
func (tx *TypedTransaction) Type() uint8 {
	switch tx.inner.(type) {
	case *types.AccessListTx:
		return types.AccessListTxType
	case *types.DynamicFeeTx:
		return types.DynamicFeeTxType
	default:
		return types.LegacyTxType
	}
}

func (tx *TypedTransaction) Hash() common.Hash {
	return tx.hash
}

// To returns the recipient, or nil for contract creation.
func (tx *TypedTransaction) To() *common.Address {
	var to *common.Address
	switch inner := tx.inner.(type) {
	case *types.LegacyTx:
		to = inner.To
	case *types.AccessListTx:
		to = inner.To
	case *types.DynamicFeeTx:
		to = inner.To
	}
	if to == nil {
		return nil
	}
	cpy := *to
	return &cpy
}

func (tx *TypedTransaction) Value() *uint256.Int {
	return new(uint256.Int).Set(tx.value)
}

func (tx *TypedTransaction) Data() []byte {
	switch inner := tx.inner.(type) {
	case *types.LegacyTx:
		return common.CopyBytes(inner.Data)
	case *types.AccessListTx:
		return common.CopyBytes(inner.Data)
	case *types.DynamicFeeTx:
		return common.CopyBytes(inner.Data)
	}
	return nil
}

func (tx *TypedTransaction) Nonce() uint64 {
	switch inner := tx.inner.(type) {
	case *types.LegacyTx:
		return inner.Nonce
	case *types.AccessListTx:
		return inner.Nonce
	case *types.DynamicFeeTx:
		return inner.Nonce
	}
	return 0
}

func (tx *TypedTransaction) Gas() uint64 {
	switch inner := tx.inner.(type) {
	case *types.LegacyTx:
		return inner.Gas
	case *types.AccessListTx:
		return inner.Gas
	case *types.DynamicFeeTx:
		return inner.Gas
	}
	return 0
}

// Legacy returns the legacy transaction body, if that is what tx holds.
func (tx *TypedTransaction) Legacy() (*types.LegacyTx, bool) {
	inner, ok := tx.inner.(*types.LegacyTx)
	return inner, ok
}

// AccessList returns the EIP-2930 transaction body, if that is what tx holds.
func (tx *TypedTransaction) AccessList() (*types.AccessListTx, bool) {
	inner, ok := tx.inner.(*types.AccessListTx)
	return inner, ok
}

// DynamicFee returns the EIP-1559 transaction body, if that is what tx holds.
func (tx *TypedTransaction) DynamicFee() (*types.DynamicFeeTx, bool) {
	inner, ok := tx.inner.(*types.DynamicFeeTx)
	return inner, ok
}

func (tx *TypedTransaction) Info() TransactionInfo {
	return TransactionInfo{
		To:     tx.To(),
		Value:  (*hexutil.Big)(tx.value.ToBig()),
		Data:   tx.Data(),
		TxHash: tx.hash,
	}
}
