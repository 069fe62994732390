// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/feedreader/broadcastclient"
	"github.com/offchainlabs/feedreader/cmd/genericconf"
	"github.com/offchainlabs/feedreader/cmd/util/confighelpers"
	"github.com/offchainlabs/feedreader/txpublisher"
)

type FeedReaderConfig struct {
	Conf          genericconf.ConfConfig          `koanf:"conf"`
	LogLevel      string                          `koanf:"log-level"`
	LogType       string                          `koanf:"log-type"`
	FileLogging   genericconf.FileLoggingConfig   `koanf:"file-logging"`
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
	Feed          broadcastclient.Config          `koanf:"feed"`
	Publisher     txpublisher.Config              `koanf:"publisher"`
	LogTxs        bool                            `koanf:"log-txs"`
}

var FeedReaderConfigDefault = FeedReaderConfig{
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "INFO",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
	Feed:          broadcastclient.DefaultConfig,
	Publisher:     txpublisher.DefaultConfig,
	LogTxs:        true,
}

func FeedReaderConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", FeedReaderConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", FeedReaderConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	f.Bool("metrics", FeedReaderConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
	broadcastclient.ConfigAddOptions("feed", f)
	txpublisher.ConfigAddOptions("publisher", f)
	f.Bool("log-txs", FeedReaderConfigDefault.LogTxs, "log every decoded transaction at debug level")
}

func (c *FeedReaderConfig) Validate() error {
	if !c.Feed.Enable() {
		return errors.New("at least one --feed.url is required")
	}
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	return c.Publisher.Validate()
}

func ParseFeedReader(_ context.Context, args []string) (*FeedReaderConfig, error) {
	f := flag.NewFlagSet("", flag.ContinueOnError)

	FeedReaderConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var config FeedReaderConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}

	if config.Conf.Dump {
		if err := confighelpers.DumpConfig(k); err != nil {
			return nil, err
		}
		return &config, nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
