package signaling

import (
	"sync"

	"github.com/1ureka/rtcsignal/internal/util"
)

// worker runs negotiation operations one at a time, in submission order.
// The negotiation object's operations are asynchronous but must not overlap;
// an answer is only created once the offer it answers has been applied.
type worker struct {
	mu      sync.Mutex
	pending util.Queue[func()]
	stopped bool
	drain   bool // finish: run what is already queued before exiting

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWorker() *worker {
	w := &worker{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// submit queues op. Ops submitted after shutdown are discarded.
func (w *worker) submit(op func()) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.pending.Push(op)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// shutdown stops the worker. Ops not yet started are discarded; an op that
// is running finishes on its own. Idempotent.
func (w *worker) shutdown() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.pending.Drain()
	w.mu.Unlock()
	close(w.stop)
}

// finish stops accepting ops but runs every op already queued, then exits.
func (w *worker) finish() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.drain = true
	w.mu.Unlock()
	close(w.stop)
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
		case <-w.stop:
		}

		for {
			batch := w.take()
			if len(batch) == 0 {
				break
			}
			for _, op := range batch {
				if w.discarding() {
					return
				}
				op()
			}
		}
		if w.isStopped() {
			return
		}
	}
}

func (w *worker) take() []func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Drain()
}

func (w *worker) discarding() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped && !w.drain
}

func (w *worker) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}
