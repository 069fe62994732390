// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/feedreader/arbos"
	"github.com/offchainlabs/feedreader/arbos/arbostypes"
	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/broadcaster/message"
	"github.com/offchainlabs/feedreader/txpublisher"
)

var (
	decodedTxsCounter   = metrics.NewRegisteredCounter("arb/feedreader/txs", nil)
	sequenceGapsCounter = metrics.NewRegisteredCounter("arb/feedreader/sequencegaps", nil)
	conflictsCounter    = metrics.NewRegisteredCounter("arb/feedreader/conflicts", nil)
	latestSequenceGauge = metrics.NewRegisteredGauge("arb/feedreader/sequence", nil)
)

type feedProcessor struct {
	publisher *txpublisher.Publisher
	logTxs    bool

	haveLast  bool
	lastSeq   arbutil.MessageIndex
	lastMsg   *arbostypes.L1IncomingMessage
	gaps      uint64
	conflicts uint64
}

func newFeedProcessor(publisher *txpublisher.Publisher, logTxs bool) *feedProcessor {
	return &feedProcessor{
		publisher: publisher,
		logTxs:    logTxs,
	}
}

// process decodes every message of bm and returns the number of
// transactions found. Publishing errors are logged, not returned.
func (p *feedProcessor) process(ctx context.Context, bm *message.BroadcastMessage) int {
	total := 0
	var size uint64
	decoded := arbos.DecodeBroadcastMessage(bm)
	for _, seqTxs := range decoded {
		size += seqTxs.Source.Size()
		p.trackSequence(seqTxs.SequenceNumber, seqTxs.Source.Message.Message)
		for _, tx := range seqTxs.Transactions {
			if p.logTxs {
				info := tx.Info()
				log.Debug("decoded transaction", "seq", seqTxs.SequenceNumber, "type", tx.Type(), "hash", info.TxHash, "to", info.To, "value", info.Value, "data", arbutil.TruncatedStringOrHex(info.Data, 64))
			}
		}
		total += len(seqTxs.Transactions)
		if p.publisher != nil && len(seqTxs.Transactions) > 0 {
			if err := p.publisher.Publish(ctx, seqTxs.SequenceNumber, seqTxs.Transactions); err != nil {
				log.Error("error publishing transactions", "seq", seqTxs.SequenceNumber, "err", err)
			}
		}
	}
	decodedTxsCounter.Inc(int64(total))
	if len(decoded) > 0 {
		log.Info("processed feed messages", "first", decoded[0].SequenceNumber, "last", decoded[len(decoded)-1].SequenceNumber, "messages", len(decoded), "txs", total, "bytes", size)
	} else if bm.ConfirmedSequenceNumberMessage != nil {
		log.Debug("confirmed sequence number", "seq", bm.ConfirmedSequenceNumberMessage.SequenceNumber)
	}
	return total
}

// trackSequence follows the highest sequence number seen. A second copy of
// the latest message, as sent by another feed, must match the first.
func (p *feedProcessor) trackSequence(seq arbutil.MessageIndex, msg *arbostypes.L1IncomingMessage) {
	if p.haveLast {
		expected := p.lastSeq.Next()
		if seq > expected {
			p.gaps++
			sequenceGapsCounter.Inc(1)
			log.Warn("gap in feed sequence numbers", "expected", expected, "got", seq, "missing", uint64(seq-expected))
		} else if seq == p.lastSeq {
			if !msg.Equals(p.lastMsg) {
				p.conflicts++
				conflictsCounter.Inc(1)
				log.Warn("conflicting messages for the same sequence number", "seq", seq)
			} else {
				log.Debug("feed message repeated", "seq", seq)
			}
			return
		} else if seq < expected {
			log.Debug("feed sequence number went backwards", "last", p.lastSeq, "got", seq)
			return
		}
	}
	p.haveLast = true
	p.lastSeq = seq
	p.lastMsg = msg
	// #nosec G115
	latestSequenceGauge.Update(int64(seq))
}
