// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package broadcastclients

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/broadcastclient"
	"github.com/offchainlabs/feedreader/broadcaster/message"
)

// startFlakyFeed serves one frame per connection, numbered by connection,
// and then drops the connection.
func startFlakyFeed(t *testing.T, base arbutil.MessageIndex) (string, *atomic.Int64) {
	t.Helper()
	var connections atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		n := connections.Add(1)
		go func(conn net.Conn) {
			defer conn.Close()
			frame, err := json.Marshal(message.BroadcastMessage{
				Version: message.V1,
				ConfirmedSequenceNumberMessage: &message.ConfirmedSequenceNumberMessage{
					SequenceNumber: base + arbutil.MessageIndex(n),
				},
			})
			if err != nil {
				return
			}
			_ = wsutil.WriteServerMessage(conn, ws.OpText, frame)
			_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		}(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), &connections
}

func testConfig(urls ...string) broadcastclient.ConfigFetcher {
	config := broadcastclient.DefaultTestConfig
	config.URL = urls
	return func() *broadcastclient.Config { return &config }
}

func TestNoFeedConfigured(t *testing.T) {
	bcs, err := NewBroadcastClients(testConfig(""), nil)
	require.NoError(t, err)
	require.Nil(t, bcs)
}

func TestInvalidConfigRejected(t *testing.T) {
	config := broadcastclient.DefaultTestConfig
	config.URL = []string{"ws://127.0.0.1:1"}
	config.QueueSize = -1
	_, err := NewBroadcastClients(func() *broadcastclient.Config { return &config }, nil)
	require.Error(t, err)
}

func TestReconnectAfterLostFeed(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstUrl, firstConnections := startFlakyFeed(t, 0)
	secondUrl, secondConnections := startFlakyFeed(t, 1000)

	bcs, err := NewBroadcastClients(testConfig(firstUrl, secondUrl), nil)
	require.NoError(t, err)
	require.NotNil(t, bcs)
	bcs.Start(ctx)
	defer bcs.StopAndWait()

	seenFirst := map[arbutil.MessageIndex]bool{}
	seenSecond := map[arbutil.MessageIndex]bool{}
	deadline := time.After(10 * time.Second)
	for len(seenFirst) < 3 || len(seenSecond) < 3 {
		select {
		case msg := <-bcs.Messages():
			require.NotNil(t, msg.ConfirmedSequenceNumberMessage)
			seq := msg.ConfirmedSequenceNumberMessage.SequenceNumber
			if seq >= 1000 {
				seenSecond[seq] = true
			} else {
				seenFirst[seq] = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for reconnects", len(seenFirst), len(seenSecond))
		}
	}
	require.GreaterOrEqual(t, firstConnections.Load(), int64(3))
	require.GreaterOrEqual(t, secondConnections.Load(), int64(3))
	require.Positive(t, bcs.GetRetryCount())
}

func TestUnreachableFeedRetriesUntilStopped(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "ws://" + listener.Addr().String()
	require.NoError(t, listener.Close())

	bcs, err := NewBroadcastClients(testConfig(url), nil)
	require.NoError(t, err)
	bcs.Start(ctx)

	require.Eventually(t, func() bool {
		return bcs.GetRetryCount() >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(0), bcs.Connected())

	stopped := make(chan struct{})
	go func() {
		bcs.StopAndWait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}
