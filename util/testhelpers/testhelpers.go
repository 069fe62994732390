// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/feedreader/util/colors"
)

// Fail a test should an error occur
func RequireImpl(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatal(colors.Red, printables, err, colors.Clear)
	}
}

func FailImpl(t *testing.T, printables ...interface{}) {
	t.Helper()
	t.Fatal(colors.Red, printables, colors.Clear)
}

func RandomizeSlice(slice []byte) []byte {
	_, err := rand.Read(slice)
	if err != nil {
		panic(err)
	}
	return slice
}

func RandomSlice(size uint64) []byte {
	return RandomizeSlice(make([]byte, size))
}

func RandomAddress() common.Address {
	var address common.Address
	RandomizeSlice(address[:])
	return address
}

// LogHandler records every message it sees while forwarding to a terminal handler.
type LogHandler struct {
	mutex   sync.Mutex
	t       *testing.T
	records []slog.Record
	handler slog.Handler
}

func (h *LogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.handler.Handle(ctx, record); err != nil {
		return err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *LogHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *LogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *LogHandler) WasLogged(pattern string) bool {
	re, err := regexp.Compile(pattern)
	RequireImpl(h.t, err)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, record := range h.records {
		if re.MatchString(record.Message) {
			return true
		}
	}
	return false
}

func newLogHandler(t *testing.T, output io.Writer) *LogHandler {
	return &LogHandler{
		t:       t,
		records: make([]slog.Record, 0),
		handler: log.NewTerminalHandler(output, false),
	}
}

// InitTestLog installs a capturing handler as the default logger. The previous
// default is restored when the test ends.
func InitTestLog(t *testing.T, level slog.Level) *LogHandler {
	handler := newLogHandler(t, os.Stderr)
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	previous := log.Root()
	log.SetDefault(log.NewLogger(glogger))
	t.Cleanup(func() { log.SetDefault(previous) })
	return handler
}
