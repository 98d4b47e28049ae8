package solver

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum row count to use the worker pool.
// Below this, single-threaded is faster due to channel overhead.
const parallelThreshold = 32

// workChunk represents a range of rows for a worker to process.
type workChunk struct {
	start, end int
	fn         func(start, end int)
}

// Pool runs the rows of one stencil pass across persistent worker goroutines.
// Rows returns only after every chunk has completed, which is the barrier
// between consecutive passes. A nil *Pool runs everything inline.
// Pool is not safe for concurrent Rows calls.
type Pool struct {
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

// NewPool creates a pool with the given worker count (<= 0 uses GOMAXPROCS).
// Workers are started lazily on the first parallel pass.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: workers}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// start launches persistent worker goroutines.
func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Close signals all workers to exit and waits for them.
func (p *Pool) Close() {
	if p == nil || !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Rows calls fn over [first, last] split into contiguous chunks and waits
// for all of them. fn receives a half-open range [start, end).
func (p *Pool) Rows(first, last int, fn func(start, end int)) {
	n := last - first + 1
	if n <= 0 {
		return
	}
	if p == nil || p.numWorkers <= 1 || n < parallelThreshold {
		fn(first, last+1)
		return
	}

	if !p.running {
		p.start()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := first + w*chunkSize
		end := start + chunkSize
		if end > last+1 {
			end = last + 1
		}
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}
