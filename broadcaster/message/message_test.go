// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/feedreader/arbos/arbostypes"
	"github.com/offchainlabs/feedreader/arbutil"
)

const sampleFrame = `{
	"version": 1,
	"messages": [
		{
			"sequenceNumber": 25757171,
			"message": {
				"message": {
					"header": {
						"kind": 3,
						"sender": "0xa4b000000000000000000073657175656e636572",
						"blockNumber": 16666666,
						"timestamp": 1677000000,
						"requestId": null,
						"baseFeeL1": null
					},
					"l2Msg": "BAE="
				},
				"delayedMessagesRead": 1189
			},
			"signature": null
		},
		{
			"sequenceNumber": 25757172,
			"message": {
				"message": {
					"header": {"kind": 6, "sender": "0x0000000000000000000000000000000000000000", "blockNumber": 0, "timestamp": 0, "requestId": null, "baseFeeL1": null},
					"l2Msg": ""
				},
				"delayedMessagesRead": 1189
			}
		}
	],
	"unknownTopLevel": {"a": 1}
}`

func TestUnmarshalBroadcastMessage(t *testing.T) {
	var msg BroadcastMessage
	require.NoError(t, json.Unmarshal([]byte(sampleFrame), &msg))
	require.Equal(t, V1, msg.Version)
	require.Len(t, msg.Messages, 2)
	require.Nil(t, msg.ConfirmedSequenceNumberMessage)

	first := msg.Messages[0]
	require.Equal(t, arbutil.MessageIndex(25757171), first.SequenceNumber)
	require.Equal(t, uint64(1189), first.Message.DelayedMessagesRead)
	require.Equal(t, int64(arbostypes.L1MessageType_L2Message), first.Message.Message.Header.Kind)
	require.Equal(t, "BAE=", first.Message.Message.L2msg)
	require.Equal(t, arbutil.MessageIndex(25757172), msg.Messages[1].SequenceNumber)

	seq, ok := msg.FirstSequenceNumber()
	require.True(t, ok)
	require.Equal(t, arbutil.MessageIndex(25757171), seq)
}

func TestUnmarshalConfirmedSequenceNumber(t *testing.T) {
	var msg BroadcastMessage
	require.NoError(t, json.Unmarshal([]byte(`{"version":1,"confirmedSequenceNumberMessage":{"sequenceNumber":99}}`), &msg))
	require.Empty(t, msg.Messages)
	require.NotNil(t, msg.ConfirmedSequenceNumberMessage)
	require.Equal(t, arbutil.MessageIndex(99), msg.ConfirmedSequenceNumberMessage.SequenceNumber)
	_, ok := msg.FirstSequenceNumber()
	require.False(t, ok)
}

func TestBroadcastFeedMessageSize(t *testing.T) {
	m := BroadcastFeedMessage{
		Message: arbostypes.MessageWithMetadata{Message: arbostypes.NewL1IncomingMessage(nil, []byte{1, 2, 3})},
	}
	require.Equal(t, uint64(4+160), m.Size())
	require.Equal(t, uint64(160), (&BroadcastFeedMessage{}).Size())
}
