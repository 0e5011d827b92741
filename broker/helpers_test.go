package broker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeMessage is one frame on a fake transport.
type fakeMessage struct {
	binary bool
	data   []byte
}

// fakeTransport is an in-memory Transport for tests.
type fakeTransport struct {
	remote  string
	inbound chan fakeMessage

	mu       sync.Mutex
	outbound []fakeMessage
	writeErr error

	open      atomic.Bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{
		remote:   "10.0.0.1:4321",
		inbound:  make(chan fakeMessage, 16),
		closedCh: make(chan struct{}),
	}
	t.open.Store(true)
	return t
}

func (t *fakeTransport) ReadMessage(timeout time.Duration) (bool, []byte, error) {
	select {
	case m := <-t.inbound:
		return m.binary, m.data, nil
	case <-t.closedCh:
		return false, nil, ErrConnectionGone
	case <-time.After(timeout):
		if !t.IsOpen() {
			return false, nil, ErrConnectionGone
		}
		return false, nil, ErrReadTimeout
	}
}

func (t *fakeTransport) WriteMessage(binary bool, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if !t.IsOpen() {
		return ErrConnectionGone
	}
	t.outbound = append(t.outbound, fakeMessage{binary: binary, data: data})
	return nil
}

func (t *fakeTransport) Close() error {
	t.open.Store(false)
	t.closeOnce.Do(func() { close(t.closedCh) })
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	return t.open.Load()
}

func (t *fakeTransport) RemoteAddr() string {
	return t.remote
}

// push delivers an inbound frame to whoever reads the transport.
func (t *fakeTransport) push(binary bool, data []byte) {
	t.inbound <- fakeMessage{binary: binary, data: data}
}

// writes returns a snapshot of everything written so far.
func (t *fakeTransport) writes() []fakeMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]fakeMessage(nil), t.outbound...)
}

// fakeWorker blocks in Start until stopped, like a real device driver.
type fakeWorker struct {
	communicator Communicator

	started   atomic.Bool
	stopping  atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	sleeptime atomic.Int64
}

func newFakeWorker(communicator Communicator) *fakeWorker {
	return &fakeWorker{
		communicator: communicator,
		stopCh:       make(chan struct{}),
	}
}

func (w *fakeWorker) Start() {
	w.started.Store(true)
	<-w.stopCh
}

func (w *fakeWorker) Stop() {
	w.stopping.Store(true)
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *fakeWorker) IsStopping() bool {
	return w.stopping.Load()
}

func (w *fakeWorker) Communicator() Communicator {
	return w.communicator
}

func (w *fakeWorker) SetGeofixSleeptime(seconds int) bool {
	if seconds <= 0 {
		return false
	}
	w.sleeptime.Store(int64(seconds))
	return true
}

// fakeFactory hands out fakeWorkers and records what it was asked for.
type fakeFactory struct {
	mu      sync.Mutex
	err     error
	decline bool
	builds  []string
	modes   []bool
	workers []*fakeWorker
}

func (f *fakeFactory) WorkerFor(origin string, configMode bool, communicator Communicator) (Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.decline {
		return nil, nil
	}
	w := newFakeWorker(communicator)
	f.builds = append(f.builds, origin)
	f.modes = append(f.modes, configMode)
	f.workers = append(f.workers, w)
	return w, nil
}

func (f *fakeFactory) lastWorker() *fakeWorker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.workers) == 0 {
		return nil
	}
	return f.workers[len(f.workers)-1]
}

func (f *fakeFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.builds)
}

// fakeInventory implements DeviceMapping and DeviceCatalogue for tests.
type fakeInventory struct {
	mu       sync.Mutex
	devices  []string
	auths    []Credential
	paused   map[string]bool
	settings map[string]map[string]interface{}
}

func newFakeInventory(devices ...string) *fakeInventory {
	return &fakeInventory{
		devices:  devices,
		paused:   make(map[string]bool),
		settings: make(map[string]map[string]interface{}),
	}
}

func (i *fakeInventory) KnownDevices() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.devices...)
}

func (i *fakeInventory) Auths() []Credential {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Credential(nil), i.auths...)
}

func (i *fakeInventory) SetDeviceSetting(origin, name string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.settings[origin] == nil {
		i.settings[origin] = make(map[string]interface{})
	}
	i.settings[origin][name] = value
}

func (i *fakeInventory) setting(origin, name string) interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.settings[origin] == nil {
		return nil
	}
	return i.settings[origin][name]
}

func (i *fakeInventory) Find(origin string) (DeviceRecord, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for index, device := range i.devices {
		if device == origin {
			return DeviceRecord{ID: index + 1, Origin: origin}, true
		}
	}
	return DeviceRecord{}, false
}

func (i *fakeInventory) IsActive(deviceID int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if deviceID <= 0 || deviceID > len(i.devices) {
		return false
	}
	return !i.paused[i.devices[deviceID-1]]
}

func (i *fakeInventory) pause(origin string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paused[origin] = true
}

// testConfig returns a broker configuration with timings tightened for
// tests.
func testConfig() *Config {
	config := DefaultConfig()
	config.ReadTimeout = 50 * time.Millisecond
	config.CommandTimeout = 500 * time.Millisecond
	config.JoinTimeout = 100 * time.Millisecond
	config.BackoffMin = 10 * time.Millisecond
	config.BackoffMax = 25 * time.Millisecond
	config.DrainTimeout = time.Second
	return config
}

// newTestServer wires a server around fakes and runs its reaper loop.
func newTestServer(config *Config, inventory *fakeInventory, factory *fakeFactory) *Server {
	server := NewServer(config, inventory, inventory, factory)
	go server.reaper.run()
	return server
}

// frameID extracts the message id of the most recent text frame written to
// a fake transport.
func frameID(t *fakeTransport) (uint64, error) {
	writes := t.writes()
	if len(writes) == 0 {
		return 0, fmt.Errorf("no frames written")
	}
	last := writes[len(writes)-1]
	frame, err := DecodeFrame(last.binary, last.data)
	if err != nil {
		return 0, err
	}
	return frame.ID, nil
}
