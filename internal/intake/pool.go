package intake

import "sync"

// Pool bounds the number of concurrently processed async intakes.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit runs fn on a goroutine once a worker slot frees up.
func (p *Pool) Submit(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until all submitted work has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
