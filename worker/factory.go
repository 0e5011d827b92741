package worker

import (
	"fmt"
	"time"

	"github.com/geoffjay/drover/broker"
)

// DefaultGeofixSleeptime is the initial pace of a device worker's command
// loop.
const DefaultGeofixSleeptime = 10 * time.Second

// Factory builds workers for admitted devices, choosing the variant from the
// requested mode and the catalogue record. It does not check whether a
// device is paused; the broker resolves that into configmode before it
// calls WorkerFor.
type Factory struct {
	catalogue broker.DeviceCatalogue
	sleeptime time.Duration
}

// NewFactory creates a worker factory backed by the device catalogue.
func NewFactory(catalogue broker.DeviceCatalogue) *Factory {
	return &Factory{
		catalogue: catalogue,
		sleeptime: DefaultGeofixSleeptime,
	}
}

// WorkerFor builds the worker variant for origin. Configmode admissions get
// the parked variant regardless of catalogue state; everything else
// requires a catalogue record.
func (f *Factory) WorkerFor(origin string, configMode bool, communicator broker.Communicator) (broker.Worker, error) {
	if configMode {
		return newConfigWorker(origin, communicator), nil
	}
	if _, exists := f.catalogue.Find(origin); !exists {
		return nil, fmt.Errorf("%w: %s", broker.ErrOriginUnknown, origin)
	}
	return newDeviceWorker(origin, communicator, f.sleeptime), nil
}
