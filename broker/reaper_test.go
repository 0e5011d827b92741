package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerTask(t *testing.T) {
	t.Run("not alive before start", func(t *testing.T) {
		task := newWorkerTask("dev1", newFakeWorker(nil))
		assert.False(t, task.alive())
	})

	t.Run("alive while running, dead after stop", func(t *testing.T) {
		worker := newFakeWorker(nil)
		task := newWorkerTask("dev1", worker)
		task.start()

		require.Eventually(t, func() bool {
			return worker.started.Load()
		}, time.Second, 5*time.Millisecond)
		assert.True(t, task.alive())

		worker.Stop()
		require.Eventually(t, func() bool {
			return !task.alive()
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("start is idempotent", func(t *testing.T) {
		worker := newFakeWorker(nil)
		task := newWorkerTask("dev1", worker)
		task.start()
		assert.NotPanics(t, func() { task.start() })
		worker.Stop()
	})

	t.Run("join on unstarted task succeeds immediately", func(t *testing.T) {
		task := newWorkerTask("dev1", newFakeWorker(nil))
		assert.True(t, task.join(time.Millisecond))
	})

	t.Run("join times out on a running worker", func(t *testing.T) {
		worker := newFakeWorker(nil)
		task := newWorkerTask("dev1", worker)
		task.start()
		assert.False(t, task.join(20*time.Millisecond))
		worker.Stop()
		assert.True(t, task.join(time.Second))
	})
}

func TestReaper(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping reaper timing test in short mode")
	}

	t.Run("joins a stopped worker and drains", func(t *testing.T) {
		r := newReaper(100 * time.Millisecond)
		go r.run()

		worker := newFakeWorker(nil)
		task := newWorkerTask("dev1", worker)
		task.start()
		worker.Stop()

		r.enqueue(task)
		r.stop()
		r.drain()
	})

	t.Run("drops tasks that never started", func(t *testing.T) {
		r := newReaper(100 * time.Millisecond)
		go r.run()

		r.enqueue(newWorkerTask("dev1", newFakeWorker(nil)))
		r.stop()
		r.drain()
	})

	t.Run("requeues a stuck worker until it stops", func(t *testing.T) {
		r := newReaper(30 * time.Millisecond)
		go r.run()

		worker := newFakeWorker(nil)
		task := newWorkerTask("dev1", worker)
		task.start()
		r.enqueue(task)

		// let at least one join attempt fail before releasing the worker
		time.Sleep(80 * time.Millisecond)
		worker.Stop()

		r.stop()
		r.drain()
		assert.False(t, task.alive())
	})
}
