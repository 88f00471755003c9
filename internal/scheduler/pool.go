package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPoolClosed means the pool was stopped before a task was accepted
	ErrPoolClosed = errors.New("scheduler: worker pool is closed")
	// ErrPoolNotStarted means a task was submitted before Start
	ErrPoolNotStarted = errors.New("scheduler: worker pool not started")
)

// Pool is a fixed set of worker goroutines that run submitted tasks
type Pool struct {
	taskCh  chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
	workers int
	started bool
	stopped bool
	// mu is held for reading while a task is sent, so that Stop can
	// close taskCh once no sender is left
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewPool creates a pool whose task queue holds bufferSize tasks
func NewPool(bufferSize int) *Pool {
	return &Pool{
		taskCh: make(chan func(), bufferSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches workerCount workers
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("scheduler: pool already started")
	}
	if p.stopped {
		return ErrPoolClosed
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(id)
		}(i)
	}
	p.workers = workerCount
	p.started = true
	return nil
}

func (p *Pool) work(id int) {
	for task := range p.taskCh {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Default().With(slog.String("component", "scheduler")).Error("task panicked",
						slog.Int("worker", id), slog.Any("panic", r))
				}
			}()
			task()
		}()
	}
}

// Submit queues a task. It blocks while the queue is full.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}
	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// Stop stops accepting tasks and waits until queued tasks are done
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		// Unblocks senders waiting in Submit
		close(p.stopCh)
		p.mu.Lock()
		p.stopped = true
		close(p.taskCh)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workers
}

// Execute runs fn for every unit on the pool and waits for all of them.
// If a unit cannot be submitted, Execute waits for the units already
// submitted and returns the error.
func (p *Pool) Execute(ctx context.Context, units []Unit, fn func(Unit)) error {
	var wg sync.WaitGroup
	for _, u := range units {
		u := u
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			fn(u)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// GroupExecutor runs each unit in its own goroutine, at most Workers at
// a time
type GroupExecutor struct {
	Workers int
}

// Execute runs fn for every unit and waits for all of them
func (g GroupExecutor) Execute(ctx context.Context, units []Unit, fn func(Unit)) error {
	var eg errgroup.Group
	if g.Workers > 0 {
		eg.SetLimit(g.Workers)
	}
	for _, u := range units {
		u := u
		eg.Go(func() error {
			fn(u)
			return nil
		})
	}
	return eg.Wait()
}
