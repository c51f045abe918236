package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/parley-ai/chat-platform/pkg/logger"
)

// Local is an in-process dispatcher: a bounded channel drained by a
// fixed goroutine pool. Used in mock mode, single-process deployments
// and tests.
type Local struct {
	jobs    chan Job
	handler Handler
	logger  *logger.Logger

	wg sync.WaitGroup

	// mu excludes Close from a concurrent Enqueue: the jobs channel is
	// only closed once no sender can be blocked on it.
	mu     sync.RWMutex
	closed bool
}

// NewLocal creates a local dispatcher with the given queue depth and
// worker concurrency and starts its workers.
func NewLocal(depth, concurrency int, handler Handler, log *logger.Logger) *Local {
	if depth <= 0 {
		depth = 64
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	l := &Local{
		jobs:    make(chan Job, depth),
		handler: handler,
		logger:  log,
	}

	l.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go l.work()
	}

	return l
}

func (l *Local) work() {
	defer l.wg.Done()
	for job := range l.jobs {
		l.handler(context.Background(), job)
	}
}

// Enqueue hands a job to the pool, blocking while the queue is full.
func (l *Local) Enqueue(ctx context.Context, job Job) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return errors.New("dispatcher is closed")
	}

	select {
	case l.jobs <- job:
		l.logger.Debug("job enqueued",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("conversation_id", job.ConversationID),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
// Enqueues already blocked on a full queue complete normally first.
func (l *Local) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.jobs)
	}
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}
