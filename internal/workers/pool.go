// Package workers provides a bounded goroutine pool for fanning out
// independent units of work with per-task timeouts and panic recovery.
// bundlestore is the sole caller: it submits one copy task per file a
// bundle restore or publish touches and waits for every copy to finish
// or fail before returning, so a partial bundle is never observed.
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed.
type Task interface {
	Execute() error
}

// TaskFunc is a function that can be used as a Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Pool manages a pool of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	workers   []*worker
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	metrics *PoolMetrics
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name            string        // pool name for logging
	NumWorkers      int           // number of worker goroutines
	QueueSize       int           // size of the task queue
	TaskTimeout     time.Duration // timeout for individual tasks
	ShutdownTimeout time.Duration // timeout for graceful shutdown
	PanicRecovery   bool          // recover panics inside tasks
}

// DefaultPoolConfig sizes a pool for the small, I/O-bound file copies a
// bundle restore/publish does: enough workers to saturate disk I/O
// without spawning one goroutine per file in a large bundle.
func DefaultPoolConfig(name string) *PoolConfig {
	numCPU := runtime.NumCPU()
	return &PoolConfig{
		Name:            name,
		NumWorkers:      numCPU * 2,
		QueueSize:       4096,
		TaskTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		PanicRecovery:   true,
	}
}

// PoolMetrics tracks pool-level task counts, readable through
// Pool.Metrics; the ops surface does not report them.
type PoolMetrics struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksTimeout   int64
	PanicRecovered int64
}

// NewPoolMetrics creates a new metrics tracker.
func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{}
}

// Stats returns a point-in-time snapshot of the pool's task counters.
func (m *PoolMetrics) Stats() PoolStats {
	return PoolStats{
		TasksSubmitted: atomic.LoadInt64(&m.TasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&m.TasksCompleted),
		TasksFailed:    atomic.LoadInt64(&m.TasksFailed),
		TasksTimeout:   atomic.LoadInt64(&m.TasksTimeout),
		PanicRecovered: atomic.LoadInt64(&m.PanicRecovered),
	}
}

// PoolStats is a snapshot of PoolMetrics' counters.
type PoolStats struct {
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	TasksTimeout   int64 `json:"tasks_timeout"`
	PanicRecovered int64 `json:"panic_recovered"`
}

// worker represents a single worker goroutine.
type worker struct {
	id     int
	pool   *Pool
	logger *zap.Logger
}

// NewPool creates a new worker pool.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		workers:   make([]*worker, config.NumWorkers),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   NewPoolMetrics(),
	}
}

// Start initializes and starts all workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return // already running
	}

	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queue_size", p.config.QueueSize),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		w := &worker{
			id:     i,
			pool:   p,
			logger: p.logger.With(zap.Int("worker_id", i)),
		}
		p.workers[i] = w
		p.wg.Add(1)
		go w.run()
	}
}

// run is the worker's main loop.
func (w *worker) run() {
	defer w.pool.wg.Done()

	for {
		select {
		case <-w.pool.ctx.Done():
			return

		case task, ok := <-w.pool.taskQueue:
			if !ok {
				return // queue closed
			}
			w.executeTask(task)
		}
	}
}

// executeTask executes a single task with timeout and panic recovery. A
// copy that hangs on a stalled filesystem counts as a timeout rather than
// blocking the pool indefinitely.
func (w *worker) executeTask(task Task) {
	ctx, cancel := context.WithTimeout(w.pool.ctx, w.pool.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		var err error

		if w.pool.config.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&w.pool.metrics.PanicRecovered, 1)
					w.logger.Error("worker recovered from panic", zap.Any("panic", r))
					err = &PanicError{Recovered: r}
				}
				done <- err
			}()
		}

		err = task.Execute()
		if !w.pool.config.PanicRecovery {
			done <- err
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			atomic.AddInt64(&w.pool.metrics.TasksFailed, 1)
			w.logger.Debug("task failed", zap.Error(err))
		} else {
			atomic.AddInt64(&w.pool.metrics.TasksCompleted, 1)
		}

	case <-ctx.Done():
		atomic.AddInt64(&w.pool.metrics.TasksTimeout, 1)
		w.logger.Warn("task timed out", zap.Duration("timeout", w.pool.config.TaskTimeout))
	}
}

// Submit adds a task to the queue without waiting for it to run.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		atomic.AddInt64(&p.metrics.TasksSubmitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait submits a task and blocks until it completes, used by
// bundlestore so a restore/publish only reports success once every file
// in the bundle has actually landed.
func (p *Pool) SubmitWait(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	done := make(chan error, 1)
	wrapper := TaskFunc(func() error {
		err := task.Execute()
		done <- err
		return err
	})

	if err := p.Submit(wrapper); err != nil {
		return err
	}

	return <-done
}

// Stop gracefully shuts down the pool, waiting up to ShutdownTimeout for
// in-flight copies to finish.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil // already stopped
	}

	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", zap.String("name", p.config.Name))
		return nil

	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

// Metrics returns the pool's live task counters.
func (p *Pool) Metrics() *PoolMetrics {
	return p.metrics
}

// Errors
var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError represents a pool error.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// PanicError represents a recovered panic.
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return "panic recovered"
}
