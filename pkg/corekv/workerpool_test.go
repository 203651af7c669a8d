package corekv

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	p := newWorkerPool(4, 16)
	defer p.shutdown()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete in time")
	}

	if n.Load() != 50 {
		t.Fatalf("ran %d tasks, want 50", n.Load())
	}
}

func TestWorkerPoolShutdownClosesTaskQueue(t *testing.T) {
	p := newWorkerPool(2, 4)
	p.shutdown()

	done := make(chan struct{})
	go func() {
		for range p.tasks {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closed task channel did not drain")
	}
}
