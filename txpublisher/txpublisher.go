// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package txpublisher forwards decoded feed transactions to a Redis pub/sub
// channel as JSON.
package txpublisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/feedreader/arbos"
	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/util/redisutil"
)

var publishedCounter = metrics.NewRegisteredCounter("arb/feed/publisher/published", nil)

type Config struct {
	RedisUrl string `koanf:"redis-url"`
	Channel  string `koanf:"channel"`
}

func (c *Config) Enable() bool {
	return c.RedisUrl != ""
}

func (c *Config) Validate() error {
	if c.Enable() && c.Channel == "" {
		return errors.New("publisher channel must be set when a redis url is given")
	}
	return nil
}

var DefaultConfig = Config{
	RedisUrl: "",
	Channel:  "arbitrum-feed-transactions",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".redis-url", DefaultConfig.RedisUrl, "redis url to publish decoded transactions to (disabled if empty)")
	f.String(prefix+".channel", DefaultConfig.Channel, "redis pub/sub channel for decoded transactions")
}

// PublishedTransaction is the JSON payload of one pub/sub message.
type PublishedTransaction struct {
	SequenceNumber arbutil.MessageIndex `json:"sequenceNumber"`
	arbos.TransactionInfo
}

type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// NewPublisher returns nil when publishing is disabled.
func NewPublisher(config *Config) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.Enable() {
		return nil, nil
	}
	client, err := redisutil.RedisClientFromURL(config.RedisUrl)
	if err != nil {
		return nil, fmt.Errorf("error creating publisher redis client: %w", err)
	}
	return &Publisher{
		client:  client,
		channel: config.Channel,
	}, nil
}

// Publish sends one message per transaction, in order.
func (p *Publisher) Publish(ctx context.Context, seq arbutil.MessageIndex, txs []*arbos.TypedTransaction) error {
	for _, tx := range txs {
		payload, err := json.Marshal(PublishedTransaction{
			SequenceNumber:  seq,
			TransactionInfo: tx.Info(),
		})
		if err != nil {
			return err
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("error publishing transaction %v of message %d: %w", tx.Hash(), seq, err)
		}
		publishedCounter.Inc(1)
		log.Trace("published transaction", "seq", seq, "hash", tx.Hash())
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
