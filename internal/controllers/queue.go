package controllers

import "sync"

// linkQueue serializes work per link: tasks for the same link run in
// submission order on one goroutine chain, tasks for different links run
// concurrently. Engine callbacks only ever enqueue, so they return promptly
// no matter how slow the database is.
type linkQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
	wg    sync.WaitGroup
}

func newLinkQueue() *linkQueue {
	return &linkQueue{tails: make(map[string]chan struct{})}
}

// Submit enqueues task behind any task already pending for the same link
func (q *linkQueue) Submit(link string, task func()) {
	q.mu.Lock()
	prev := q.tails[link]
	done := make(chan struct{})
	q.tails[link] = done
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		if prev != nil {
			<-prev
		}
		defer close(done)
		task()

		q.mu.Lock()
		if q.tails[link] == done {
			delete(q.tails, link)
		}
		q.mu.Unlock()
	}()
}

// Wait blocks until every submitted task has finished
func (q *linkQueue) Wait() {
	q.wg.Wait()
}
