package notify

import "sync"

// Queue is the single cross-thread structure in the host: the listener
// goroutine appends, the frame loop swap-drains once per frame. Both
// critical sections are O(1).
type Queue struct {
	mu    sync.Mutex
	items []Notification
}

// Push appends one notification in listener-observed order.
func (q *Queue) Push(n Notification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
}

// Drain swaps out the entire pending list and returns it. The returned
// slice is owned by the caller; order is preserved.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len reports the number of pending notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
