// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package util

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/offchainlabs/feedreader/cmd/genericconf"
)

type MetricsOpts struct {
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
}

// StartMetrics serves the registered metrics over http when enabled.
func StartMetrics(opts *MetricsOpts) error {
	if !opts.Metrics {
		return nil
	}
	if !metrics.Enabled {
		return fmt.Errorf("metrics must be enabled via command line by adding --metrics, json config has no effect")
	}
	go metrics.CollectProcessMetrics(opts.MetricsServer.UpdateInterval)
	exp.Setup(fmt.Sprintf("%v:%v", opts.MetricsServer.Addr, opts.MetricsServer.Port))
	return nil
}
