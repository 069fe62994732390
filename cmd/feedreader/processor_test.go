// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/feedreader/arbos"
	"github.com/offchainlabs/feedreader/arbos/arbostypes"
	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/broadcaster/message"
	"github.com/offchainlabs/feedreader/txpublisher"
	"github.com/offchainlabs/feedreader/util/redisutil"
	"github.com/offchainlabs/feedreader/util/testhelpers"
)

func legacyFeedMessage(t *testing.T, seq arbutil.MessageIndex) *message.BroadcastFeedMessage {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	tx, err := types.SignNewTx(key, types.HomesteadSigner{}, &types.LegacyTx{
		Nonce:    uint64(seq),
		GasPrice: big.NewInt(1),
		Gas:      21_000,
		To:       &to,
		Value:    big.NewInt(1),
	})
	require.NoError(t, err)
	enc, err := tx.MarshalBinary()
	require.NoError(t, err)
	l2msg := append([]byte{arbos.L2MessageKind_SignedTx}, enc...)
	return &message.BroadcastFeedMessage{
		SequenceNumber: seq,
		Message: arbostypes.MessageWithMetadata{
			Message: arbostypes.NewL1IncomingMessage(&arbostypes.L1IncomingMessageHeader{Kind: arbostypes.L1MessageType_L2Message}, l2msg),
		},
	}
}

func TestProcessorCountsAndGaps(t *testing.T) {
	logHandler := testhelpers.InitTestLog(t, log.LevelTrace)
	processor := newFeedProcessor(nil, true)
	ctx := context.Background()

	bm := &message.BroadcastMessage{
		Version: message.V1,
		Messages: []*message.BroadcastFeedMessage{
			legacyFeedMessage(t, 10),
			{SequenceNumber: 11, Message: arbostypes.EmptyTestMessageWithMetadata},
		},
	}
	require.Equal(t, 1, processor.process(ctx, bm))
	require.Zero(t, processor.gaps)

	latest := legacyFeedMessage(t, 14)
	bm = &message.BroadcastMessage{
		Version:  message.V1,
		Messages: []*message.BroadcastFeedMessage{latest},
	}
	require.Equal(t, 1, processor.process(ctx, bm))
	require.Equal(t, uint64(1), processor.gaps)
	require.True(t, logHandler.WasLogged("gap in feed sequence numbers"))

	// the same message from a second feed is not a conflict
	processor.process(ctx, bm)
	require.Zero(t, processor.conflicts)
	require.Equal(t, uint64(1), processor.gaps)

	// a different message under the latest sequence number is
	processor.process(ctx, &message.BroadcastMessage{
		Version:  message.V1,
		Messages: []*message.BroadcastFeedMessage{legacyFeedMessage(t, 14)},
	})
	require.Equal(t, uint64(1), processor.conflicts)
	require.True(t, logHandler.WasLogged("conflicting messages for the same sequence number"))

	// a repeat from a second feed is not a gap and does not move the cursor back
	bm = &message.BroadcastMessage{
		Version:  message.V1,
		Messages: []*message.BroadcastFeedMessage{legacyFeedMessage(t, 12)},
	}
	processor.process(ctx, bm)
	require.Equal(t, uint64(1), processor.gaps)
	require.Equal(t, arbutil.MessageIndex(14), processor.lastSeq)

	require.Zero(t, processor.process(ctx, &message.BroadcastMessage{
		Version:                        message.V1,
		ConfirmedSequenceNumberMessage: &message.ConfirmedSequenceNumberMessage{SequenceNumber: 14},
	}))
}

func TestProcessorPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := txpublisher.DefaultConfig
	config.RedisUrl = redisutil.CreateTestRedis(ctx, t)
	publisher, err := txpublisher.NewPublisher(&config)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := redisutil.RedisClientFromURL(config.RedisUrl)
	require.NoError(t, err)
	defer subscriber.Close()
	sub := subscriber.Subscribe(ctx, config.Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	feedMsg := legacyFeedMessage(t, 3)
	processor := newFeedProcessor(publisher, false)
	require.Equal(t, 1, processor.process(ctx, &message.BroadcastMessage{
		Version:  message.V1,
		Messages: []*message.BroadcastFeedMessage{feedMsg},
	}))

	expected := arbos.ParseL2Transactions(feedMsg.Message.Message)
	require.Len(t, expected, 1)
	select {
	case msg := <-sub.Channel():
		var published txpublisher.PublishedTransaction
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
		require.EqualValues(t, 3, published.SequenceNumber)
		require.Equal(t, expected[0].Hash(), published.TxHash)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published transaction")
	}
}
