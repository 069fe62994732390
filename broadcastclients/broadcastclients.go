// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package broadcastclients

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/feedreader/broadcastclient"
	"github.com/offchainlabs/feedreader/broadcaster/message"
	"github.com/offchainlabs/feedreader/util/stopwaiter"
)

var (
	connectedGauge    = metrics.NewRegisteredGauge("arb/feed/clients/connected", nil)
	reconnectsCounter = metrics.NewRegisteredCounter("arb/feed/clients/reconnects", nil)
)

// BroadcastClients keeps one feed reader running per configured URL. Readers
// report a lost connection on a shared update channel and are re-dialed with
// a linear backoff. Every reader delivers into the same message channel.
type BroadcastClients struct {
	stopwaiter.StopWaiter

	config       broadcastclient.ConfigFetcher
	urls         []string
	messageChan  chan *message.BroadcastMessage
	updateChan   chan broadcastclient.ConnectionUpdate
	fatalErrChan chan<- error

	// Use atomic access
	connected  atomic.Int32
	retryCount atomic.Int64
}

// NewBroadcastClients returns nil when no feed URL is configured.
func NewBroadcastClients(configFetcher broadcastclient.ConfigFetcher, fatalErrChan chan<- error) (*BroadcastClients, error) {
	config := configFetcher()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var urls []string
	for _, url := range config.URL {
		if url != "" {
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 {
		return nil, nil
	}
	return &BroadcastClients{
		config:       configFetcher,
		urls:         urls,
		messageChan:  make(chan *message.BroadcastMessage, config.QueueSize),
		updateChan:   make(chan broadcastclient.ConnectionUpdate, len(urls)),
		fatalErrChan: fatalErrChan,
	}, nil
}

// Messages returns the channel every reader delivers parsed frames into.
func (bcs *BroadcastClients) Messages() <-chan *message.BroadcastMessage {
	return bcs.messageChan
}

func (bcs *BroadcastClients) Connected() int32 {
	return bcs.connected.Load()
}

func (bcs *BroadcastClients) GetRetryCount() int64 {
	return bcs.retryCount.Load()
}

func (bcs *BroadcastClients) adjustCount(delta int32) {
	connected := bcs.connected.Add(delta)
	connectedGauge.Update(int64(connected))
	if connected <= 0 {
		log.Error("no connected feed")
	}
}

func (bcs *BroadcastClients) Start(ctxIn context.Context) {
	bcs.StopWaiter.Start(ctxIn, bcs)
	for i := range bcs.urls {
		id := uint32(i)
		bcs.LaunchThread(func(ctx context.Context) {
			bcs.connectAndRun(ctx, id, false)
		})
	}
	bcs.LaunchThread(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-bcs.updateChan:
				log.Warn("feed stopped sending frames, reconnecting", "id", update.ClientId, "url", bcs.urls[update.ClientId], "parseFailures", update.ParseFailures, "retries", bcs.GetRetryCount(), "err", update.Err)
				reconnectsCounter.Inc(1)
				bcs.LaunchThread(func(ctx context.Context) {
					bcs.connectAndRun(ctx, update.ClientId, true)
				})
			}
		}
	})
}

// connectAndRun dials the feed with the given id until it succeeds and then
// reads from it until the connection is lost or ctx ends.
func (bcs *BroadcastClients) connectAndRun(ctx context.Context, id uint32, reconnecting bool) {
	client := bcs.retryConnect(ctx, id, reconnecting)
	if client == nil {
		return
	}
	bcs.adjustCount(1)
	err := client.Run(ctx)
	bcs.adjustCount(-1)
	if err == nil {
		return
	}
	log.Error("feed client failed", "id", client.Id(), "url", client.URL(), "err", err)
	if bcs.fatalErrChan != nil {
		select {
		case bcs.fatalErrChan <- err:
		default:
		}
	}
}

func (bcs *BroadcastClients) retryConnect(ctx context.Context, id uint32, waitFirst bool) *broadcastclient.BroadcastClient {
	url := bcs.urls[id]
	waitDuration := bcs.config().ReconnectInitialBackoff
	for {
		if waitFirst {
			timer := time.NewTimer(waitDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			bcs.retryCount.Add(1)
		}
		waitFirst = true

		client, err := broadcastclient.NewBroadcastClient(ctx, bcs.config, url, id, bcs.messageChan, bcs.updateChan)
		if err == nil {
			return client
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("failed connect to sequencer broadcast, waiting and retrying", "url", url, "id", id, "delay", waitDuration, "err", err)

		config := bcs.config()
		if waitDuration < config.ReconnectMaxBackoff {
			waitDuration += config.ReconnectInitialBackoff
		}
		if waitDuration > config.ReconnectMaxBackoff {
			waitDuration = config.ReconnectMaxBackoff
		}
	}
}
