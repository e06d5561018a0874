package deferred

import (
	"context"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const DefaultQueueSize = 256

var ErrQueueClosed = dispatchInternal("deferred: queue is closed", nil)

// MemoryQueue is a bounded in-process go-job queue. Enqueue never blocks: a
// full queue is reported as a dispatch failure. Once Drain is called new
// messages are refused while accepted ones keep flowing to the workers.
type MemoryQueue struct {
	// OnDeadLetter is called for every message that will not be retried.
	OnDeadLetter func(DeadLetter)

	mu          sync.Mutex
	items       chan *job.ExecutionMessage
	draining    bool
	closed      bool
	pending     int
	drained     chan struct{}
	deadLetters []DeadLetter
	timers      sync.WaitGroup
	attempts    map[string]int
}

// DeadLetter records a message that will not be retried.
type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
	At      time.Time
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MemoryQueue{
		items:    make(chan *job.ExecutionMessage, size),
		attempts: map[string]int{},
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if msg == nil {
		return queue.EnqueueReceipt{}, dispatchInternal("deferred: execution message is required", nil)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.draining || q.closed {
		return queue.EnqueueReceipt{}, ErrQueueClosed
	}
	select {
	case q.items <- msg:
		q.pending++
		return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey, EnqueuedAt: time.Now().UTC()}, nil
	default:
		return queue.EnqueueReceipt{}, dispatchFailed("deferred: queue is full", nil, map[string]any{
			"capacity": cap(q.items),
			"task_id":  msg.IdempotencyKey,
		})
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-q.items:
		if !ok {
			return nil, ErrQueueClosed
		}
		q.mu.Lock()
		q.attempts[msg.IdempotencyKey]++
		attempt := q.attempts[msg.IdempotencyKey]
		q.mu.Unlock()
		return &memoryDelivery{queue: q, msg: msg, attempt: attempt}, nil
	}
}

// Len reports the number of queued messages.
func (q *MemoryQueue) Len() int {
	return len(q.items)
}

// Pending reports accepted messages that have not been settled yet,
// including the ones a worker is running.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// Drain refuses new messages and blocks until every accepted message has
// been acked, dead-lettered or failed, or ctx ends.
func (q *MemoryQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	q.draining = true
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.drained == nil {
		q.drained = make(chan struct{})
	}
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages and waits for delayed requeues to settle.
// Messages still buffered are dropped.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.draining = true
	q.mu.Unlock()

	q.timers.Wait()

	q.mu.Lock()
	close(q.items)
	q.mu.Unlock()
}

func (q *MemoryQueue) settle(msg *job.ExecutionMessage) {
	q.mu.Lock()
	delete(q.attempts, msg.IdempotencyKey)
	q.release()
	q.mu.Unlock()
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage, reason string) {
	letter := DeadLetter{Message: msg, Reason: reason, At: time.Now().UTC()}
	q.mu.Lock()
	delete(q.attempts, msg.IdempotencyKey)
	q.deadLetters = append(q.deadLetters, letter)
	q.release()
	notify := q.OnDeadLetter
	q.mu.Unlock()
	if notify != nil {
		notify(letter)
	}
}

// release must be called with q.mu held.
func (q *MemoryQueue) release() {
	if q.pending > 0 {
		q.pending--
	}
	if q.pending == 0 && q.drained != nil {
		close(q.drained)
		q.drained = nil
	}
}

// requeue puts an accepted message back. Requeues bypass the drain gate so
// retries of accepted work still run during shutdown.
func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	if delay <= 0 {
		q.push(msg)
		return
	}
	q.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer q.timers.Done()
		q.push(msg)
	})
}

func (q *MemoryQueue) push(msg *job.ExecutionMessage) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.deadLetter(msg, "deferred: queue is closed")
		return
	}
	select {
	case q.items <- msg:
		q.mu.Unlock()
	default:
		q.mu.Unlock()
		q.deadLetter(msg, "deferred: queue is full")
	}
}

type memoryDelivery struct {
	queue   *MemoryQueue
	msg     *job.ExecutionMessage
	attempt int

	once sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

// Attempts reports how many times this message has been dequeued.
func (d *memoryDelivery) Attempts() int {
	return d.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() {
		d.queue.settle(d.msg)
	})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() {
		switch opts.Disposition {
		case queue.NackDispositionRetry:
			d.queue.requeue(d.msg, opts.Delay)
		case queue.NackDispositionDeadLetter:
			d.queue.deadLetter(d.msg, opts.Reason)
		default:
			d.queue.settle(d.msg)
		}
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
