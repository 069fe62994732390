// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package broadcastclient

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/gobwas/ws"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/feedreader/arbutil"
	"github.com/offchainlabs/feedreader/broadcaster/message"
)

var (
	framesCounter        = metrics.NewRegisteredCounter("arb/feed/client/frames", nil)
	parseFailuresCounter = metrics.NewRegisteredCounter("arb/feed/client/parsefailures", nil)
	disconnectsCounter   = metrics.NewRegisteredCounter("arb/feed/client/disconnects", nil)
)

const (
	HTTPHeaderFeedClientVersion       = "Arbitrum-Feed-Client-Version"
	HTTPHeaderRequestedSequenceNumber = "Arbitrum-Requested-Sequence-Number"
	FeedClientVersion                 = 2
)

type Config struct {
	URL                     []string      `koanf:"url"`
	Timeout                 time.Duration `koanf:"timeout" reload:"hot"`
	IdleTimeout             time.Duration `koanf:"idle-timeout" reload:"hot"`
	ParseFailureDelay       time.Duration `koanf:"parse-failure-delay" reload:"hot"`
	QueueSize               int           `koanf:"queue-size"`
	ReconnectInitialBackoff time.Duration `koanf:"reconnect-initial-backoff" reload:"hot"`
	ReconnectMaxBackoff     time.Duration `koanf:"reconnect-maximum-backoff" reload:"hot"`
}

func (c *Config) Enable() bool {
	return len(c.URL) > 0 && c.URL[0] != ""
}

func (c *Config) Validate() error {
	if c.QueueSize < 0 {
		return errors.New("feed queue size must not be negative")
	}
	if c.ReconnectMaxBackoff < c.ReconnectInitialBackoff {
		return errors.New("feed reconnect maximum backoff must not be less than the initial backoff")
	}
	return nil
}

type ConfigFetcher func() *Config

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.StringSlice(prefix+".url", DefaultConfig.URL, "URL of sequencer feed source")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "duration to wait before timing out connection to sequencer feed")
	f.Duration(prefix+".idle-timeout", DefaultConfig.IdleTimeout, "duration to wait for a frame before treating the feed connection as lost (0 waits forever)")
	f.Duration(prefix+".parse-failure-delay", DefaultConfig.ParseFailureDelay, "delay after a frame that fails to parse")
	f.Int(prefix+".queue-size", DefaultConfig.QueueSize, "number of feed messages buffered between the readers and the decoder")
	f.Duration(prefix+".reconnect-initial-backoff", DefaultConfig.ReconnectInitialBackoff, "initial and incremental backoff before re-dialing a lost feed")
	f.Duration(prefix+".reconnect-maximum-backoff", DefaultConfig.ReconnectMaxBackoff, "maximum backoff before re-dialing a lost feed")
}

var DefaultConfig = Config{
	URL:                     []string{""},
	Timeout:                 20 * time.Second,
	IdleTimeout:             0,
	ParseFailureDelay:       10 * time.Millisecond,
	QueueSize:               1024,
	ReconnectInitialBackoff: 500 * time.Millisecond,
	ReconnectMaxBackoff:     15 * time.Second,
}

var DefaultTestConfig = Config{
	URL:                     []string{""},
	Timeout:                 200 * time.Millisecond,
	IdleTimeout:             0,
	ParseFailureDelay:       time.Millisecond,
	QueueSize:               16,
	ReconnectInitialBackoff: 10 * time.Millisecond,
	ReconnectMaxBackoff:     50 * time.Millisecond,
}

type ConnectionUpdateKind uint8

const (
	// StoppedSendingFrames is reported once when the connection fails. The
	// reader exits afterwards and never reconnects on its own.
	StoppedSendingFrames ConnectionUpdateKind = iota
)

func (k ConnectionUpdateKind) String() string {
	switch k {
	case StoppedSendingFrames:
		return "StoppedSendingFrames"
	default:
		return "unknown"
	}
}

type ConnectionUpdate struct {
	Kind          ConnectionUpdateKind
	ClientId      uint32
	ParseFailures uint64
	Err           error
}

type BroadcastClient struct {
	config       ConfigFetcher
	websocketUrl string
	id           uint32

	conn           net.Conn
	earlyFrameData io.Reader
	closeOnce      sync.Once

	messageChan chan<- *message.BroadcastMessage
	updateChan  chan<- ConnectionUpdate

	parseFailures atomic.Uint64
}

// NewBroadcastClient opens a websocket connection to websocketUrl. The
// returned client owns the connection and releases it when Run returns.
func NewBroadcastClient(
	ctx context.Context,
	config ConfigFetcher,
	websocketUrl string,
	id uint32,
	messageChan chan<- *message.BroadcastMessage,
	updateChan chan<- ConnectionUpdate,
) (*BroadcastClient, error) {
	header := http.Header{}
	header.Set(HTTPHeaderFeedClientVersion, "2")
	header.Set(HTTPHeaderRequestedSequenceNumber, "0")
	timeoutDialer := ws.Dialer{
		Header:  ws.HandshakeHeaderHTTP(header),
		Timeout: config().Timeout,
	}

	log.Info("connecting to arbitrum inbox message broadcaster", "url", websocketUrl, "id", id)
	conn, br, _, err := timeoutDialer.Dial(ctx, websocketUrl)
	if err != nil {
		return nil, errors.Wrap(err, "broadcast client unable to connect")
	}

	var earlyFrameData io.Reader
	if br != nil {
		// Depending on how long the client takes to read the response, there may be
		// data after the WebSocket upgrade response in a single read from the socket,
		// ie WebSocket frames sent by the server. If this happens, Dial returns
		// a non-nil bufio.Reader so that data isn't lost. But beware, this buffered
		// reader is still hooked up to the socket; trying to read past what had already
		// been buffered will do a blocking read on the socket, so we have to wrap it
		// in a LimitedReader.
		earlyFrameData = io.LimitReader(br, int64(br.Buffered()))
	}
	log.Info("Connected", "url", websocketUrl, "id", id)

	return &BroadcastClient{
		config:         config,
		websocketUrl:   websocketUrl,
		id:             id,
		conn:           conn,
		earlyFrameData: earlyFrameData,
		messageChan:    messageChan,
		updateChan:     updateChan,
	}, nil
}

func (bc *BroadcastClient) Id() uint32 {
	return bc.id
}

func (bc *BroadcastClient) URL() string {
	return bc.websocketUrl
}

func (bc *BroadcastClient) ParseFailures() uint64 {
	return bc.parseFailures.Load()
}

func (bc *BroadcastClient) closeConn() {
	bc.closeOnce.Do(func() {
		_ = bc.conn.Close()
	})
}

// Run reads frames until the connection fails or ctx is cancelled. Every
// frame that parses is sent on the message channel in arrival order; frames
// that fail to parse are counted and skipped. A connection failure is
// reported once on the update channel before Run returns nil. An error is
// returned only when the update could not be delivered.
func (bc *BroadcastClient) Run(ctx context.Context) error {
	defer bc.closeConn()
	// unblocks a pending read when ctx ends
	stop := context.AfterFunc(ctx, bc.closeConn)
	defer stop()

	earlyFrameData := bc.earlyFrameData
	bc.earlyFrameData = nil
	for {
		if ctx.Err() != nil {
			return nil
		}
		config := bc.config()
		msg, op, err := readData(ctx, bc.conn, earlyFrameData, config.IdleTimeout, ws.StateClientSide)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			disconnectsCounter.Inc(1)
			if strings.Contains(err.Error(), "i/o timeout") {
				log.Error("Server connection timed out without receiving data", "url", bc.websocketUrl, "id", bc.id, "err", err)
			} else {
				log.Warn("feed connection lost", "url", bc.websocketUrl, "id", bc.id, "opcode", int(op), "err", err)
			}
			update := ConnectionUpdate{
				Kind:          StoppedSendingFrames,
				ClientId:      bc.id,
				ParseFailures: bc.ParseFailures(),
				Err:           err,
			}
			select {
			case bc.updateChan <- update:
				return nil
			case <-ctx.Done():
				return errors.Wrapf(err, "feed client %d could not report lost connection", bc.id)
			}
		}
		if msg == nil {
			continue
		}
		framesCounter.Inc(1)

		res := &message.BroadcastMessage{}
		if err := json.Unmarshal(msg, res); err != nil {
			failures := bc.parseFailures.Add(1)
			parseFailuresCounter.Inc(1)
			log.Warn("error unmarshalling feed frame", "url", bc.websocketUrl, "id", bc.id, "failures", failures, "msg", arbutil.TruncatedStringOrHex(msg, 256), "err", err)
			timer := time.NewTimer(config.ParseFailureDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}

		if seq, ok := res.FirstSequenceNumber(); ok {
			log.Trace("received batch item", "id", bc.id, "count", len(res.Messages), "first seq", seq)
		} else if res.ConfirmedSequenceNumberMessage != nil {
			log.Trace("confirmed sequence number", "id", bc.id, "seq", res.ConfirmedSequenceNumberMessage.SequenceNumber)
		}

		select {
		case bc.messageChan <- res:
		case <-ctx.Done():
			return nil
		}
	}
}
