package triage

import (
	"runtime/debug"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Pool runs jobs on a fixed set of workers. Jobs with the same key always land
// on the same worker, so they run in submission order; different keys run in
// parallel. A panicking job is logged and the worker keeps going.
type Pool struct {
	queues []chan func()
	log    logrus.FieldLogger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines, each with a queue of depth pending jobs.
func NewPool(workers, depth int, log logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 64
	}
	p := &Pool{
		queues: make([]chan func(), workers),
		log:    log.WithField("component", "pool"),
	}
	for i := range p.queues {
		q := make(chan func(), depth)
		p.queues[i] = q
		p.wg.Add(1)
		go p.work(i, q)
	}
	return p
}

func (p *Pool) work(id int, q <-chan func()) {
	defer p.wg.Done()
	for job := range q {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("job panicked")
		}
	}()
	job()
}

// Submit queues job on the worker owning key. It blocks while that worker's
// queue is full and returns false once the pool is closed.
func (p *Pool) Submit(key string, job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.queues[xxhash.Sum64String(key)%uint64(len(p.queues))] <- job
	return true
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
