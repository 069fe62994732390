// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package txpublisher

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/feedreader/arbos"
	"github.com/offchainlabs/feedreader/util/redisutil"
)

func signedDynamicFeeTx(t *testing.T, nonce uint64, to *common.Address) *arbos.TypedTransaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainId := big.NewInt(42161)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainId), &types.DynamicFeeTx{
		ChainID:   chainId,
		Nonce:     nonce,
		GasTipCap: big.NewInt(0),
		GasFeeCap: big.NewInt(100_000_000),
		Gas:       100_000,
		To:        to,
		Value:     big.NewInt(int64(nonce) + 1),
		Data:      []byte{byte(nonce)},
	})
	require.NoError(t, err)
	enc, err := tx.MarshalBinary()
	require.NoError(t, err)
	decoded, err := arbos.DecodeSignedTransaction(enc)
	require.NoError(t, err)
	return decoded
}

func TestDisabledPublisher(t *testing.T) {
	config := DefaultConfig
	publisher, err := NewPublisher(&config)
	require.NoError(t, err)
	require.Nil(t, publisher)

	config.RedisUrl = "redis://localhost:6379/0"
	config.Channel = ""
	_, err = NewPublisher(&config)
	require.Error(t, err)
}

func TestPublishTransactions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := DefaultConfig
	config.RedisUrl = redisutil.CreateTestRedis(ctx, t)
	publisher, err := NewPublisher(&config)
	require.NoError(t, err)
	require.NotNil(t, publisher)
	defer publisher.Close()

	subscriber, err := redisutil.RedisClientFromURL(config.RedisUrl)
	require.NoError(t, err)
	defer subscriber.Close()
	sub := subscriber.Subscribe(ctx, config.Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	to := common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548")
	txs := []*arbos.TypedTransaction{
		signedDynamicFeeTx(t, 0, &to),
		signedDynamicFeeTx(t, 1, nil),
	}
	require.NoError(t, publisher.Publish(ctx, 77, txs))

	messages := sub.Channel()
	for i, tx := range txs {
		select {
		case msg := <-messages:
			var published PublishedTransaction
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
			require.EqualValues(t, 77, published.SequenceNumber)
			require.Equal(t, tx.Hash(), published.TxHash)
			require.Equal(t, int64(i+1), published.Value.ToInt().Int64())
			require.Equal(t, []byte{byte(i)}, []byte(published.Data))
			if i == 0 {
				require.Equal(t, to, *published.To)
			} else {
				require.Nil(t, published.To)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for published transaction", i)
		}
	}
}
