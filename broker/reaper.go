package broker

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// reaper joins stopped workers asynchronously so the connection handler
// never blocks on worker teardown. Tasks that outlive a join attempt are
// requeued until they finish; tasks that never started are logged and
// dropped.
type reaper struct {
	queue       chan *workerTask
	joinTimeout time.Duration

	stopping    atomic.Bool
	outstanding sync.WaitGroup
	done        chan struct{}
}

func newReaper(joinTimeout time.Duration) *reaper {
	return &reaper{
		queue:       make(chan *workerTask, reaperQueueSize),
		joinTimeout: joinTimeout,
		done:        make(chan struct{}),
	}
}

// enqueue hands a worker task over for asynchronous joining.
func (r *reaper) enqueue(task *workerTask) {
	r.outstanding.Add(1)
	r.queue <- task
}

// run is the reaper loop. It exits only once stop was called and the queue
// is empty.
func (r *reaper) run() {
	defer close(r.done)
	for {
		select {
		case task := <-r.queue:
			r.reap(task)
		case <-time.After(reaperIdlePoll):
			if r.stopping.Load() && len(r.queue) == 0 {
				log.Info("worker join loop done")
				return
			}
		}
	}
}

func (r *reaper) reap(task *workerTask) {
	logger := log.WithField("origin", task.origin)

	if !task.started.Load() {
		logger.Warn("worker task never started, dropping from join queue")
		r.outstanding.Done()
		return
	}

	logger.Info("trying to join worker")
	if !task.join(r.joinTimeout) {
		logger.Debug("worker still running after join attempt, requeueing")
		r.queue <- task
		return
	}

	logger.Debug("done with worker")
	r.outstanding.Done()
}

// stop flags the loop for exit once its queue drains.
func (r *reaper) stop() {
	r.stopping.Store(true)
}

// drain blocks until every enqueued task was joined and the loop exited.
func (r *reaper) drain() {
	r.outstanding.Wait()
	<-r.done
}
