// Package sync schedules reconciliation between open documents and
// the backing store.
package sync

import (
	"sync"
	"time"
)

// retryEntry tracks the backoff state of one failing record id.
type retryEntry struct {
	attempts int
	nextAt   int64
	lastErr  string
}

// RetryQueue parks record ids whose store commit failed. Each id backs
// off exponentially; an id past its max retries stays parked until a
// force-sync resets it.
type RetryQueue struct {
	mu         sync.Mutex
	entries    map[string]*retryEntry
	maxRetries int
}

// NewRetryQueue creates a RetryQueue with the given retry cap.
func NewRetryQueue(maxRetries int) *RetryQueue {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryQueue{
		entries:    make(map[string]*retryEntry),
		maxRetries: maxRetries,
	}
}

// Ready reports whether an id may be attempted at time now. Ids with
// no failure history are always ready.
func (q *RetryQueue) Ready(id string, now int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return true
	}
	if e.attempts >= q.maxRetries {
		return false
	}
	return e.nextAt <= now
}

// Failed records a failed attempt and schedules the next one with
// exponential backoff. Returns false once the id has exhausted its
// retries.
func (q *RetryQueue) Failed(id string, now int64, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		e = &retryEntry{}
		q.entries[id] = e
	}
	e.attempts++
	if err != nil {
		e.lastErr = err.Error()
	}
	e.nextAt = now + backoffSeconds(e.attempts)

	return e.attempts < q.maxRetries
}

// backoffSeconds is 2^attempts seconds, capped at five minutes.
func backoffSeconds(attempts int) int64 {
	backoff := int64(1) << uint(attempts)
	const maxBackoff = int64(5 * time.Minute / time.Second)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// Complete clears an id after a successful commit.
func (q *RetryQueue) Complete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
}

// Reset clears all backoff state. A force-sync calls this so an
// explicit user action always gets a fresh attempt.
func (q *RetryQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*retryEntry)
}

// Attempts returns the failure count for an id.
func (q *RetryQueue) Attempts(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		return e.attempts
	}
	return 0
}

// Len returns the number of parked ids.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
