package broker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// response is what a pending slot eventually yields: the device payload or
// the error that cancelled the wait.
type response struct {
	payload []byte
	err     error
}

// ClientEntry is the authoritative per-device record. It spans transport
// lifetimes: a device that drops and reconnects keeps its entry, only the
// transport (and possibly the worker) inside it is replaced. All mutation of
// the pending table and the transport swap are serialized by the entry
// mutex.
type ClientEntry struct {
	origin string

	mu        sync.Mutex
	transport Transport
	worker    Worker
	task      *workerTask
	pending   map[uint64]chan response
	nextID    uint64
}

func newClientEntry(origin string) *ClientEntry {
	return &ClientEntry{
		origin:  origin,
		pending: make(map[uint64]chan response),
	}
}

// Origin returns the device identity this entry belongs to.
func (e *ClientEntry) Origin() string {
	return e.origin
}

// Transport returns the current transport, nil while disconnected.
func (e *ClientEntry) Transport() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport
}

// Worker returns the current worker, nil before the first build.
func (e *ClientEntry) Worker() Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worker
}

// ReplaceTransport installs a fresh transport. Every pending wait is
// cancelled with ErrConnectionGone first: responses in flight on the old
// transport can never fulfill slots created on the new one.
func (e *ClientEntry) ReplaceTransport(t Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelPendingLocked(ErrConnectionGone)
	e.transport = t
}

// setWorker swaps in a freshly built worker and task, returning the previous
// task so the caller can hand it to the reaper.
func (e *ClientEntry) setWorker(w Worker, task *workerTask) (previous *workerTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	previous = e.task
	e.worker = w
	e.task = task
	return previous
}

// workerState reports the live worker and task together so admission
// decisions see a consistent pair.
func (e *ClientEntry) workerState() (Worker, *workerTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worker, e.task
}

// startWorker launches the worker task unless it was already started; a
// task that has finished is not launched again.
func (e *ClientEntry) startWorker() {
	e.mu.Lock()
	task := e.task
	e.mu.Unlock()
	if task != nil {
		task.start()
	}
}

// SendRequest allocates a message id, writes the outbound frame and blocks
// until the receive loop delivers the matching response or the timeout
// elapses.
func (e *ClientEntry) SendRequest(payload []byte, isBinary bool, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	transport := e.transport
	if transport == nil || !transport.IsOpen() {
		e.mu.Unlock()
		return nil, ErrConnectionGone
	}
	e.nextID++
	id := e.nextID
	slot := make(chan response, 1)
	e.pending[id] = slot
	e.mu.Unlock()

	data := EncodeFrame(Frame{ID: id, Payload: payload, Binary: isBinary})
	if err := transport.WriteMessage(isBinary, data); err != nil {
		e.forget(id)
		return nil, err
	}

	return e.awaitResponse(id, slot, timeout)
}

// awaitResponse blocks on a registered slot. Exactly one of delivery,
// timeout or cancellation resolves it.
func (e *ClientEntry) awaitResponse(id uint64, slot chan response, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-slot:
		return r.payload, r.err
	case <-timer.C:
	}

	// The deadline raced with delivery: if the slot is already gone from the
	// pending table the response was published before we got here.
	e.mu.Lock()
	if _, waiting := e.pending[id]; waiting {
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, ErrResponseTimeout
	}
	e.mu.Unlock()

	r := <-slot
	return r.payload, r.err
}

// Deliver fulfills the pending slot matching id. Frames with no waiting slot
// are late responses and get dropped.
func (e *ClientEntry) Deliver(id uint64, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, waiting := e.pending[id]
	if !waiting {
		log.WithFields(log.Fields{
			"origin":  e.origin,
			"message": id,
		}).Debug("discarding late response")
		return
	}
	delete(e.pending, id)
	slot <- response{payload: payload}
}

// cancelPending fails every pending wait with err.
func (e *ClientEntry) cancelPending(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelPendingLocked(err)
}

func (e *ClientEntry) cancelPendingLocked(err error) {
	for id, slot := range e.pending {
		delete(e.pending, id)
		slot <- response{err: err}
	}
}

// forget drops a slot that can no longer be fulfilled, e.g. after a failed
// write.
func (e *ClientEntry) forget(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}
