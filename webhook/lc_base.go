package webhook

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/renderqueue/core/internal"
)

const (
	stopped = iota
	started
)

var (
	// ErrDoubleStarted is returned when Start is called on a Dispatcher
	// that has already been started.
	ErrDoubleStarted = errors.New("webhook: double start")

	// ErrDoubleStopped is returned when Stop is called on a Dispatcher
	// that is not currently running.
	ErrDoubleStopped = errors.New("webhook: double stop")

	// ErrStopTimeout is returned when a Dispatcher fails to shut down
	// within the provided timeout during Stop.
	ErrStopTimeout = errors.New("webhook: stop timeout")
)

type lcBase struct {
	state atomic.Int32
}

func (lb *lcBase) tryStart() error {
	if !lb.state.CompareAndSwap(stopped, started) {
		return ErrDoubleStarted
	}
	return nil
}

func (lb *lcBase) tryStop(timeout time.Duration, df internal.DoneFunc) error {
	if !lb.state.CompareAndSwap(started, stopped) {
		return ErrDoubleStopped
	}
	done := df()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}
