package signaling

import (
	"sync"
	"testing"
	"time"
)

func TestWorkerRunsOpsInSubmissionOrder(t *testing.T) {
	w := newWorker()
	defer w.shutdown()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		w.submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("op %d ran at position %d", v, i)
		}
	}
}

func TestWorkerDiscardsOpsAfterShutdown(t *testing.T) {
	w := newWorker()

	block := make(chan struct{})
	started := make(chan struct{})
	w.submit(func() {
		close(started)
		<-block
	})
	<-started

	ran := make(chan struct{}, 2)
	w.submit(func() { ran <- struct{}{} })
	w.shutdown()
	w.shutdown()
	w.submit(func() { ran <- struct{}{} })
	close(block)

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	select {
	case <-ran:
		t.Fatal("op ran after shutdown")
	default:
	}
}

func TestWorkerFinishRunsQueuedOps(t *testing.T) {
	w := newWorker()

	block := make(chan struct{})
	started := make(chan struct{})
	w.submit(func() {
		close(started)
		<-block
	})
	<-started

	var got []int
	w.submit(func() { got = append(got, 1) })
	w.submit(func() { got = append(got, 2) })
	w.finish()
	w.finish()
	w.submit(func() { got = append(got, 3) })
	close(block)

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("ops run after finish = %v, want [1 2]", got)
	}
}
