package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"iganalyzer/pkg/logger"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("worker pool is shutting down")
)

// Task is one unit of background work. Run receives the pool's context,
// which is cancelled by Stop.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Pool runs tasks on a fixed number of goroutines fed from a bounded queue
type Pool struct {
	numWorkers int
	queue      chan Task
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	logger     logger.Logger

	mu      sync.RWMutex
	started bool
	stopped bool

	active    atomic.Int32
	completed atomic.Int64
}

// NewPool creates a pool. A queueSize below 1 defaults to twice the
// worker count.
func NewPool(numWorkers, queueSize int, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 1 {
		queueSize = numWorkers * 2
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		numWorkers: numWorkers,
		queue:      make(chan Task, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		logger:     log,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	logger.LogComponentStart(p.logger, "worker-pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"queue_size":  cap(p.queue),
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels running tasks, drops queued ones and waits for the workers
// to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	logger.LogComponentStop(p.logger, "worker-pool", "stopped")
}

// Submit queues a task without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- task:
		p.logger.DebugWithFields("Task submitted to queue", map[string]interface{}{
			"task":       task.Name,
			"queue_size": len(p.queue),
		})
		return nil
	default:
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, cap(p.queue))
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.queue {
		if p.ctx.Err() != nil {
			p.logger.DebugWithFields("Dropping queued task on shutdown", map[string]interface{}{
				"worker_id": id,
				"task":      task.Name,
			})
			continue
		}
		p.run(id, task)
	}
}

func (p *Pool) run(workerID int, task Task) {
	start := time.Now()
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.logger.ErrorWithFields("Task panicked", map[string]interface{}{
				"worker_id": workerID,
				"task":      task.Name,
				"panic":     fmt.Sprint(r),
			})
			return
		}
		p.logger.DebugWithFields("Task finished", map[string]interface{}{
			"worker_id": workerID,
			"task":      task.Name,
			"duration":  time.Since(start),
		})
	}()

	task.Run(p.ctx)
}

// QueueSize returns the number of tasks waiting for a worker
func (p *Pool) QueueSize() int {
	return len(p.queue)
}

// ActiveWorkers returns how many workers are running a task right now
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

// Workers returns the configured worker count
func (p *Pool) Workers() int {
	return p.numWorkers
}

// Completed returns how many tasks have finished, including panicked ones
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}
