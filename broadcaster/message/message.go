// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package message

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/feedreader/arbos/arbostypes"
	"github.com/offchainlabs/feedreader/arbutil"
)

const V1 = 1

// BroadcastMessage is the root of every frame sent on the sequencer feed.
//
// Acts as a variant holding the message types. The type of the message is
// indicated by whichever of the fields is non-empty. The format is forwards
// compatible: fields received that are not in the Go struct are skipped by
// encoding/json.
type BroadcastMessage struct {
	Version int `json:"version"`
	// Messages are in feed order and must be processed in that order.
	Messages                       []*BroadcastFeedMessage         `json:"messages,omitempty"`
	ConfirmedSequenceNumberMessage *ConfirmedSequenceNumberMessage `json:"confirmedSequenceNumberMessage,omitempty"`
}

// BroadcastFeedMessage carries one sequenced message. Sequence numbers are
// expected to be contiguous on a healthy feed but nothing here enforces it.
type BroadcastFeedMessage struct {
	SequenceNumber arbutil.MessageIndex           `json:"sequenceNumber"`
	Message        arbostypes.MessageWithMetadata `json:"message"`
	BlockHash      *common.Hash                   `json:"blockHash,omitempty"`
	Signature      []byte                         `json:"signature,omitempty"`
}

// Size approximates the bytes this message occupies on the wire.
func (m *BroadcastFeedMessage) Size() uint64 {
	var l2msgLen int
	if m.Message.Message != nil {
		l2msgLen = len(m.Message.Message.L2msg)
	}
	// #nosec G115
	return uint64(len(m.Signature) + l2msgLen + 160)
}

type ConfirmedSequenceNumberMessage struct {
	SequenceNumber arbutil.MessageIndex `json:"sequenceNumber"`
}

// FirstSequenceNumber returns the sequence number of the first message, if any.
func (m *BroadcastMessage) FirstSequenceNumber() (arbutil.MessageIndex, bool) {
	if len(m.Messages) == 0 {
		return 0, false
	}
	return m.Messages[0].SequenceNumber, true
}
