package proxy

import "sync"

// channelQueue runs jobs one at a time per channel, in submission order.
// Channels are drained by their own goroutine, which exits once the channel's
// queue is empty.
type channelQueue struct {
	mu     sync.Mutex
	queues map[int64][]func()
	closed bool
	wg     sync.WaitGroup
}

// submit enqueues job behind the channel's pending work. It reports false once
// the queue is closed.
func (q *channelQueue) submit(channelID int64, job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.queues == nil {
		q.queues = make(map[int64][]func())
	}
	pending, draining := q.queues[channelID]
	q.queues[channelID] = append(pending, job)
	if !draining {
		q.wg.Add(1)
		go q.drain(channelID)
	}
	return true
}

func (q *channelQueue) drain(channelID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.queues[channelID]
		if len(jobs) == 0 {
			delete(q.queues, channelID)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		jobs[0] = nil
		q.queues[channelID] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// active returns the number of channels with queued or running work.
func (q *channelQueue) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}

// close rejects new work and waits for queued jobs to finish.
func (q *channelQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
