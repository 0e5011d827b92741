package worker

import (
	"sync"
	"sync/atomic"

	"github.com/geoffjay/drover/broker"

	log "github.com/sirupsen/logrus"
)

// configWorker holds a device connection open without driving it. Used when
// the broker runs in configmode or the device is paused.
type configWorker struct {
	origin       string
	communicator broker.Communicator

	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newConfigWorker(origin string, communicator broker.Communicator) *configWorker {
	return &configWorker{
		origin:       origin,
		communicator: communicator,
		stopCh:       make(chan struct{}),
	}
}

// Start parks until Stop. The device stays connected and reachable through
// the communicator but receives no commands.
func (w *configWorker) Start() {
	log.WithField("origin", w.origin).Info("configmode worker parked")
	<-w.stopCh
	log.WithField("origin", w.origin).Info("configmode worker stopping")
}

func (w *configWorker) Stop() {
	w.stopping.Store(true)
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *configWorker) IsStopping() bool {
	return w.stopping.Load()
}

func (w *configWorker) Communicator() broker.Communicator {
	return w.communicator
}

// SetGeofixSleeptime is unsupported in configmode.
func (w *configWorker) SetGeofixSleeptime(int) bool {
	return false
}
