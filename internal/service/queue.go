package service

import (
	"context"
	"sync"
)

// ConversationQueue runs submitted work one job at a time per key. Each key
// gets its own lane goroutine that lives only while the key has pending jobs,
// so unrelated conversations never wait on each other.
type ConversationQueue struct {
	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

type lane struct {
	jobs []job
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

func NewConversationQueue() *ConversationQueue {
	return &ConversationQueue{lanes: make(map[string]*lane)}
}

// Do runs fn on the lane for key and waits for its result. A job whose
// context is already done when its turn comes is skipped.
func (q *ConversationQueue) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	q.submit(key, job{ctx: ctx, fn: fn, done: done})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues fn on the lane for key without waiting.
func (q *ConversationQueue) Go(ctx context.Context, key string, fn func(context.Context)) {
	q.submit(key, job{ctx: ctx, fn: func(ctx context.Context) error {
		fn(ctx)
		return nil
	}})
}

// Wait blocks until every lane has drained.
func (q *ConversationQueue) Wait() {
	q.wg.Wait()
}

func (q *ConversationQueue) submit(key string, j job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l
		q.wg.Add(1)
		go q.run(key, l)
	}
	l.jobs = append(l.jobs, j)
}

func (q *ConversationQueue) run(key string, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.jobs) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		}
		j := l.jobs[0]
		l.jobs[0] = job{}
		l.jobs = l.jobs[1:]
		q.mu.Unlock()

		err := j.ctx.Err()
		if err == nil {
			err = j.fn(j.ctx)
		}
		if j.done != nil {
			j.done <- err
		}
	}
}
