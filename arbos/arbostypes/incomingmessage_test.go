// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbostypes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestL2msgDecodedLen(t *testing.T) {
	for size := 0; size < 20; size++ {
		msg := NewL1IncomingMessage(&L1IncomingMessageHeader{}, bytes.Repeat([]byte{0xab}, size))
		require.Equal(t, size, msg.L2msgDecodedLen(), "size %d", size)
		decoded, err := msg.DecodeL2msg()
		require.NoError(t, err)
		require.Len(t, decoded, size)
	}
}

func TestL2msgDecodedLenMaxSize(t *testing.T) {
	msg := NewL1IncomingMessage(nil, make([]byte, MaxL2MessageSize+1))
	require.Equal(t, MaxL2MessageSize+1, msg.L2msgDecodedLen())
}

func TestUnmarshalIncomingMessage(t *testing.T) {
	raw := `{
		"header": {
			"kind": 3,
			"sender": "0xa4b000000000000000000073657175656e636572",
			"blockNumber": 17580000,
			"timestamp": 1687900000,
			"requestId": null,
			"baseFeeL1": null,
			"someFutureField": true
		},
		"l2Msg": "BAE="
	}`
	var msg L1IncomingMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Equal(t, int64(L1MessageType_L2Message), msg.Header.Kind)
	require.Equal(t, common.HexToAddress("0xa4b000000000000000000073657175656e636572"), msg.Header.Poster)
	require.Equal(t, uint64(17580000), msg.Header.BlockNumber)
	require.Nil(t, msg.Header.RequestId)
	require.Nil(t, msg.Header.L1BaseFee)
	decoded, err := msg.DecodeL2msg()
	require.NoError(t, err)
	require.Equal(t, []byte{4, 1}, decoded)
}

func TestIncomingMessageEquals(t *testing.T) {
	requestId := common.HexToHash("0x01")
	a := NewL1IncomingMessage(&L1IncomingMessageHeader{Kind: 3, RequestId: &requestId, L1BaseFee: big.NewInt(7)}, []byte{4})
	otherRequestId := requestId
	b := NewL1IncomingMessage(&L1IncomingMessageHeader{Kind: 3, RequestId: &otherRequestId, L1BaseFee: big.NewInt(7)}, []byte{4})
	require.True(t, a.Equals(b))
	b.Header.L1BaseFee = big.NewInt(8)
	require.False(t, a.Equals(b))
	require.False(t, a.Equals(&EmptyTestIncomingMessage))
	var none *L1IncomingMessage
	require.False(t, a.Equals(none))
	require.True(t, none.Equals(nil))
}
