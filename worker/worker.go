// Package worker provides the device-driving workers paired with broker
// connections: the regular variant that keeps a device busy, and the
// configuration-only variant that parks it.
package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geoffjay/drover/broker"

	log "github.com/sirupsen/logrus"
)

// consecutiveFailureLimit is how many device commands may fail in a row
// before the worker gives up and stops itself.
const consecutiveFailureLimit = 3

// deviceWorker drives a single device through its communicator. It paces
// itself by the geofix sleeptime and stops on its own when the device stops
// answering.
type deviceWorker struct {
	origin       string
	communicator broker.Communicator

	sleeptime atomic.Int64 // seconds between command cycles

	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newDeviceWorker(origin string, communicator broker.Communicator, sleeptime time.Duration) *deviceWorker {
	w := &deviceWorker{
		origin:       origin,
		communicator: communicator,
		stopCh:       make(chan struct{}),
	}
	w.sleeptime.Store(int64(sleeptime / time.Second))
	return w
}

// Start runs the worker loop until Stop is called or the device goes away.
// It blocks; the broker runs it inside a task goroutine.
func (w *deviceWorker) Start() {
	logger := log.WithField("origin", w.origin)
	logger.Info("worker starting")

	failures := 0
	for {
		select {
		case <-w.stopCh:
			logger.Info("worker stopping")
			return
		case <-time.After(w.pace()):
		}

		response, err := w.communicator.SendCommand("ping")
		switch {
		case errors.Is(err, broker.ErrConnectionGone):
			logger.Warn("device connection gone, worker shutting down")
			w.Stop()
			return
		case err != nil:
			failures++
			logger.WithError(err).WithField("failures", failures).Warn("device command failed")
			if failures >= consecutiveFailureLimit {
				logger.Error("device unresponsive, worker shutting down")
				w.Stop()
				return
			}
		default:
			failures = 0
			logger.WithField("response", response).Debug("device answered")
		}
	}
}

// Stop requests termination; the loop exits at its next checkpoint.
func (w *deviceWorker) Stop() {
	w.stopping.Store(true)
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *deviceWorker) IsStopping() bool {
	return w.stopping.Load()
}

func (w *deviceWorker) Communicator() broker.Communicator {
	return w.communicator
}

// SetGeofixSleeptime adjusts the pause between command cycles.
func (w *deviceWorker) SetGeofixSleeptime(seconds int) bool {
	if seconds <= 0 {
		return false
	}
	w.sleeptime.Store(int64(seconds))
	return true
}

func (w *deviceWorker) pace() time.Duration {
	return time.Duration(w.sleeptime.Load()) * time.Second
}
