// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package stopwaiter

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const stopDelayWarningTimeout = 30 * time.Second

var errNotStarted = errors.New("not started")

// StopWaiterSafe owns a context and the threads launched under it, so that
// the owner can cancel all of them and wait for them to return.
type StopWaiterSafe struct {
	mutex   sync.Mutex // protects everything but threads
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	name    string
	done    chan struct{}

	threads sync.WaitGroup
}

func typeName(parent any) string {
	return strings.TrimPrefix(reflect.TypeOf(parent).String(), "*")
}

// Start may be called once. Starting after a stop cancels the context
// straight away.
func (s *StopWaiterSafe) Start(ctx context.Context, parent any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ctx != nil {
		return errors.New("start after start")
	}
	s.name = typeName(parent)
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.stopped {
		s.cancel()
	}
	return nil
}

// LaunchThread runs foo under the stop context. Once stopped, foo is
// silently dropped.
func (s *StopWaiterSafe) LaunchThread(foo func(context.Context)) error {
	s.mutex.Lock()
	if s.ctx == nil {
		s.mutex.Unlock()
		return errNotStarted
	}
	if s.stopped {
		s.mutex.Unlock()
		return nil
	}
	ctx := s.ctx
	s.threads.Add(1)
	s.mutex.Unlock()
	go func() {
		defer s.threads.Done()
		foo(ctx)
	}()
	return nil
}

// StopAndWait may be called multiple times, even before start. Only the
// first call after start waits.
func (s *StopWaiterSafe) StopAndWait() error {
	return s.stopAndWaitImpl(stopDelayWarningTimeout)
}

func (s *StopWaiterSafe) stopAndWaitImpl(warningTimeout time.Duration) error {
	s.mutex.Lock()
	wasStopped := s.stopped
	s.stopped = true
	if s.ctx == nil || wasStopped {
		s.mutex.Unlock()
		return nil
	}
	s.cancel()
	s.done = make(chan struct{})
	done := s.done
	s.mutex.Unlock()

	go func() {
		s.threads.Wait()
		close(done)
	}()
	timer := time.NewTimer(warningTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		log.Warn("taking too long to stop", "name", s.name, "delay", warningTimeout)
	}
	<-done
	return nil
}

// StopWaiter panics where StopWaiterSafe would return an error.
type StopWaiter struct {
	StopWaiterSafe
}

func (s *StopWaiter) Start(ctx context.Context, parent any) {
	if err := s.StopWaiterSafe.Start(ctx, parent); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) StopAndWait() {
	if err := s.StopWaiterSafe.StopAndWait(); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) LaunchThread(foo func(context.Context)) {
	if err := s.StopWaiterSafe.LaunchThread(foo); err != nil {
		panic(err)
	}
}
