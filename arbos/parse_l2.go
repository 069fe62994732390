// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbos

import (
	"errors"
	"fmt"

	"github.com/offchainlabs/feedreader/arbos/arbostypes"
	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/broadcaster/message"
)

const (
	L2MessageKind_UnsignedUserTx  = 0
	L2MessageKind_ContractTx      = 1
	L2MessageKind_NonmutatingCall = 2
	L2MessageKind_Batch           = 3
	L2MessageKind_SignedTx        = 4
	// 5 is reserved
	L2MessageKind_Heartbeat          = 6 // deprecated
	L2MessageKind_SignedCompressedTx = 7
	// 8 is reserved for BLS signed batch
)

var (
	ErrL2MessageTooLarge        = errors.New("L2 message too large")
	ErrNotL2Message             = errors.New("not an L2 message")
	ErrInvalidBase64            = errors.New("invalid base64 in L2 message")
	ErrEmptyL2Message           = errors.New("empty L2 message")
	ErrUnsupportedL2MessageKind = errors.New("unsupported L2 message kind")
)

// DecodeL2Message extracts the transactions carried by msg. Only signed
// transaction messages are understood; every other message yields an error
// describing why it was skipped.
func DecodeL2Message(msg *arbostypes.L1IncomingMessage) ([]*TypedTransaction, error) {
	if msg == nil {
		return nil, ErrNotL2Message
	}
	if size := msg.L2msgDecodedLen(); size > arbostypes.MaxL2MessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrL2MessageTooLarge, size)
	}
	if msg.Header == nil || msg.Header.Kind != arbostypes.L1MessageType_L2Message {
		return nil, ErrNotL2Message
	}
	data, err := msg.DecodeL2msg()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyL2Message
	}

	switch kind := data[0]; kind {
	case L2MessageKind_SignedTx:
		tx, err := DecodeSignedTransaction(data[1:])
		if err != nil {
			return nil, err
		}
		return []*TypedTransaction{tx}, nil
	default:
		// L2MessageKind_Batch is deliberately not decoded here.
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedL2MessageKind, kind)
	}
}

// ParseL2Transactions returns the transactions carried by msg, or nil when msg
// is oversized, not an L2 message, or not understood.
func ParseL2Transactions(msg *arbostypes.L1IncomingMessage) []*TypedTransaction {
	txes, err := DecodeL2Message(msg)
	if err != nil {
		return nil
	}
	return txes
}

type SequencedTransactions struct {
	SequenceNumber arbutil.MessageIndex
	Transactions   []*TypedTransaction
	// Source is the feed message the transactions were decoded from.
	Source *message.BroadcastFeedMessage
}

// DecodeBroadcastMessage decodes every feed message in bm, in order. Messages
// that carry no transactions are included with an empty Transactions slice so
// that callers can still follow the sequence numbers.
func DecodeBroadcastMessage(bm *message.BroadcastMessage) []SequencedTransactions {
	if bm == nil {
		return nil
	}
	decoded := make([]SequencedTransactions, 0, len(bm.Messages))
	for _, feedMsg := range bm.Messages {
		if feedMsg == nil {
			continue
		}
		decoded = append(decoded, SequencedTransactions{
			SequenceNumber: feedMsg.SequenceNumber,
			Transactions:   ParseL2Transactions(feedMsg.Message.Message),
			Source:         feedMsg,
		})
	}
	return decoded
}
