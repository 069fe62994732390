// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/feedreader/broadcastclient"
	"github.com/offchainlabs/feedreader/broadcastclients"
	"github.com/offchainlabs/feedreader/cmd/genericconf"
	"github.com/offchainlabs/feedreader/cmd/util"
	"github.com/offchainlabs/feedreader/cmd/util/confighelpers"
	"github.com/offchainlabs/feedreader/txpublisher"
)

func main() {
	os.Exit(mainImpl())
}

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --help \n", progname)
	fmt.Printf("                               %s --feed.url wss://arb1.arbitrum.io/feed\n", progname)
}

func mainImpl() int {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	config, err := ParseFeedReader(ctx, os.Args[1:])
	if err != nil {
		if errors.Is(err, confighelpers.ErrVersion) {
			fmt.Println("feedreader")
			return 0
		}
		printSampleUsage(os.Args[0])
		if !strings.Contains(err.Error(), "help requested") {
			fmt.Printf("%s\n", err.Error())
		}
		return 1
	}
	if config.Conf.Dump {
		return 0
	}

	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}

	if err := util.StartMetrics(&util.MetricsOpts{
		Metrics:       config.Metrics,
		MetricsServer: config.MetricsServer,
	}); err != nil {
		log.Error("error starting metrics", "err", err)
		return 1
	}

	publisher, err := txpublisher.NewPublisher(&config.Publisher)
	if err != nil {
		log.Error("error creating transaction publisher", "err", err)
		return 1
	}
	if publisher != nil {
		defer publisher.Close()
	}

	fatalErrChan := make(chan error, 10)
	feeds, err := broadcastclients.NewBroadcastClients(func() *broadcastclient.Config { return &config.Feed }, fatalErrChan)
	if err != nil {
		log.Error("error creating feed clients", "err", err)
		return 1
	}
	if feeds == nil {
		log.Error("no feed url configured")
		return 1
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	processor := newFeedProcessor(publisher, config.LogTxs)
	feeds.Start(ctx)
	defer feeds.StopAndWait()
	log.Info("reading sequencer feed", "urls", config.Feed.URL)

	for {
		select {
		case msg := <-feeds.Messages():
			processor.process(ctx, msg)
		case err := <-fatalErrChan:
			log.Error("shutting down due to fatal error", "err", err)
			return 1
		case <-sigint:
			log.Info("shutting down because of sigint")
			return 0
		}
	}
}
