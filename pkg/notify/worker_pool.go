package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bitechdev/EndpointKit/pkg/logger"
)

// message is one encoded event waiting to be published
type message struct {
	id        string
	eventType string
	payload   []byte
}

// workerPool publishes queued messages off the emitting goroutine
type workerPool struct {
	workerCount int
	bufferSize  int
	queue       chan *message
	closed      bool
	processor   func(context.Context, *message) error

	activeWorkers atomic.Int32
	isRunning     atomic.Bool
	mu            sync.RWMutex
	wg            sync.WaitGroup
}

func newWorkerPool(workerCount, bufferSize int, processor func(context.Context, *message) error) *workerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &workerPool{
		workerCount: workerCount,
		bufferSize:  bufferSize,
		queue:       make(chan *message, bufferSize),
		processor:   processor,
	}
}

// Start starts the workers. A stopped pool gets a fresh queue.
func (wp *workerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.isRunning.Load() {
		return
	}
	if wp.closed {
		wp.queue = make(chan *message, wp.bufferSize)
		wp.closed = false
	}
	wp.isRunning.Store(true)

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i, wp.queue)
	}
	logger.Debug("Notify worker pool started with %d workers", wp.workerCount)
}

// Stop drains the queue and waits for the workers
func (wp *workerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.isRunning.Load() {
		wp.mu.Unlock()
		return nil
	}
	wp.isRunning.Store(false)
	close(wp.queue)
	wp.closed = true
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Notify worker pool stop timed out, some events may be lost")
		return ctx.Err()
	}
}

// Submit queues a message without blocking
func (wp *workerPool) Submit(msg *message) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.isRunning.Load() {
		return ErrStopped
	}

	select {
	case wp.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *workerPool) worker(id int, queue <-chan *message) {
	defer wp.wg.Done()

	for msg := range queue {
		wp.activeWorkers.Add(1)
		wp.process(id, msg)
		wp.activeWorkers.Add(-1)
	}
}

func (wp *workerPool) process(id int, msg *message) {
	defer logger.CatchPanic("notify.worker")

	// Detached from the emitting request
	if err := wp.processor(context.Background(), msg); err != nil {
		logger.Error("Notify worker %d failed to publish event %s: %v", id, msg.id, err)
	}
}

// QueueSize returns the number of queued messages
func (wp *workerPool) QueueSize() int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return len(wp.queue)
}
