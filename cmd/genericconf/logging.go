// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileLog is the rotating file the process-wide logger tees into, if any.
var fileLog *rotatingFileWriter

// rotatingFileWriter hands records to lumberjack. At most BufSize writes may
// be in flight; records beyond that are dropped so a slow disk never stalls
// the feed.
type rotatingFileWriter struct {
	mutex  sync.Mutex
	logger *lumberjack.Logger
	slots  chan struct{}
}

func newRotatingFileWriter(config *FileLoggingConfig) *rotatingFileWriter {
	return &rotatingFileWriter{
		logger: &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			LocalTime:  config.LocalTime,
			Compress:   config.Compress,
		},
		slots: make(chan struct{}, config.BufSize),
	}
}

func (w *rotatingFileWriter) Write(p []byte) (int, error) {
	select {
	case w.slots <- struct{}{}:
	default:
		return len(p), nil
	}
	defer func() { <-w.slots }()
	w.mutex.Lock()
	defer w.mutex.Unlock()
	_, _ = w.logger.Write(p)
	return len(p), nil
}

func (w *rotatingFileWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.logger.Close()
}

func closeFileLog() error {
	if fileLog == nil {
		return nil
	}
	err := fileLog.Close()
	fileLog = nil
	return err
}

// InitLog installs the process-wide logger writing to stderr, and to a
// rotating file when file logging is enabled. It is not threadsafe.
func InitLog(logType string, logLevel string, fileLoggingConfig *FileLoggingConfig) error {
	slogLevel, err := ToSlogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	if err := closeFileLog(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	var output io.Writer = os.Stderr
	if fileLoggingConfig.Enable {
		fileLog = newRotatingFileWriter(fileLoggingConfig)
		output = io.MultiWriter(os.Stderr, fileLog)
	}
	handler, err := HandlerFromLogType(logType, output)
	if err != nil {
		return fmt.Errorf("error parsing log type when creating handler: %w", err)
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(slogLevel)
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
