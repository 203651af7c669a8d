package corekv

// task is a unit of work submitted to the worker pool: a function pointer
// plus whatever it closes over, mirroring the original's function-pointer
// + opaque-argument task shape without needing an explicit argument field
// in Go.
type task func()

// workerPool is a fixed-size set of goroutines consuming from one bounded
// queue, generalized from the teacher's per-connection goroutine-per-socket
// model (pool.go's one-goroutine-per-partition dial loop) into a shared
// pool the batch engine submits per-node work to.
type workerPool struct {
	tasks chan task
	done  chan struct{}
}

func newWorkerPool(workers, queueDepth int) *workerPool {
	p := &workerPool{
		tasks: make(chan task, queueDepth),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	for t := range p.tasks {
		t()
	}
}

// submit blocks if the queue is full; the caller's own deadline (the batch
// policy's timeout) is responsible for not blocking forever.
func (p *workerPool) submit(t task) {
	p.tasks <- t
}

// shutdown closes the task queue. Go's closed-channel broadcast lets every
// worker's range loop exit on its own, which is what the original's
// "push one sentinel task per worker" dance exists to simulate in a
// language without that primitive.
func (p *workerPool) shutdown() {
	close(p.tasks)
}
