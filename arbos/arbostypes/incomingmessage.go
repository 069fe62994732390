// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbostypes

import (
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	L1MessageType_L2Message             = 3
	L1MessageType_EndOfBlock            = 6
	L1MessageType_L2FundedByL1          = 7
	L1MessageType_RollupEvent           = 8
	L1MessageType_SubmitRetryable       = 9
	L1MessageType_BatchForGasEstimation = 10 // probably won't use this in practice
	L1MessageType_Initialize            = 11
	L1MessageType_EthDeposit            = 12
	L1MessageType_BatchPostingReport    = 13
	L1MessageType_Invalid               = 0xFF
)

// MaxL2MessageSize bounds the decoded size of an L2 message payload.
const MaxL2MessageSize = 256 * 1024

type L1IncomingMessageHeader struct {
	Kind        int64          `json:"kind"`
	Poster      common.Address `json:"sender"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   uint64         `json:"timestamp"`
	RequestId   *common.Hash   `json:"requestId"`
	L1BaseFee   *big.Int       `json:"baseFeeL1"`
}

// L1IncomingMessage is a message as it appears on the sequencer feed.
// L2msg is kept as the base64 text sent on the wire so that a payload which
// fails to decode only invalidates its own message and not the whole frame.
type L1IncomingMessage struct {
	Header *L1IncomingMessageHeader `json:"header"`
	L2msg  string                   `json:"l2Msg"`
}

// NewL1IncomingMessage encodes l2msg the way the feed does.
func NewL1IncomingMessage(header *L1IncomingMessageHeader, l2msg []byte) *L1IncomingMessage {
	return &L1IncomingMessage{
		Header: header,
		L2msg:  base64.StdEncoding.EncodeToString(l2msg),
	}
}

// L2msgDecodedLen returns the number of bytes L2msg decodes to, computed from the
// encoded text alone. The result is exact for well formed padded base64; for
// anything else it never exceeds what decoding would allocate.
func (msg *L1IncomingMessage) L2msgDecodedLen() int {
	n := base64.StdEncoding.DecodedLen(len(msg.L2msg))
	if len(msg.L2msg)%4 == 0 {
		if strings.HasSuffix(msg.L2msg, "==") {
			n -= 2
		} else if strings.HasSuffix(msg.L2msg, "=") {
			n--
		}
	}
	return n
}

var errLineBreakInL2msg = errors.New("line break in base64 L2 message")

// DecodeL2msg returns the raw L2 message bytes. The text must be canonical
// padded base64 with no line breaks.
func (msg *L1IncomingMessage) DecodeL2msg() ([]byte, error) {
	if strings.ContainsAny(msg.L2msg, "\r\n") {
		return nil, errLineBreakInL2msg
	}
	return base64.StdEncoding.Strict().DecodeString(msg.L2msg)
}

// Equals reports whether both messages carry the same header and payload.
// Nil messages are only equal to each other.
func (msg *L1IncomingMessage) Equals(other *L1IncomingMessage) bool {
	if msg == nil || other == nil {
		return msg == other
	}
	if msg.Header == nil || other.Header == nil {
		return msg.Header == other.Header && msg.L2msg == other.L2msg
	}
	return msg.Header.Equals(other.Header) && msg.L2msg == other.L2msg
}

func (h *L1IncomingMessageHeader) Equals(other *L1IncomingMessageHeader) bool {
	if h.Kind != other.Kind ||
		h.Poster != other.Poster ||
		h.BlockNumber != other.BlockNumber ||
		h.Timestamp != other.Timestamp {
		return false
	}
	if (h.RequestId == nil) != (other.RequestId == nil) {
		return false
	}
	if h.RequestId != nil && *h.RequestId != *other.RequestId {
		return false
	}
	if (h.L1BaseFee == nil) != (other.L1BaseFee == nil) {
		return false
	}
	return h.L1BaseFee == nil || h.L1BaseFee.Cmp(other.L1BaseFee) == 0
}
