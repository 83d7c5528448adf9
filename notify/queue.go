// Package notify buffers transient user-facing alerts. Toasts render in
// strict insertion order and auto-dismiss when their TTL elapses, unless
// dismissed manually first.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a toast for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Toast is one transient alert.
type Toast struct {
	ID       string
	Message  string
	Severity Severity
	TTL      time.Duration
	Created  time.Time
}

type entry struct {
	toast Toast
	// timer is the scheduled auto-dismiss task. Stopped on manual
	// dismissal so a dead timer can never mutate the queue afterwards.
	timer *time.Timer
}

// Queue is an ordered toast buffer. The zero value is not usable; call
// NewQueue.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
}

// NewQueue creates an empty toast queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a toast and returns its id. A ttl of zero means the
// toast stays until explicitly dismissed.
func (q *Queue) Enqueue(message string, severity Severity, ttl time.Duration) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &entry{
		toast: Toast{
			ID:       uuid.NewString(),
			Message:  message,
			Severity: severity,
			TTL:      ttl,
			Created:  time.Now(),
		},
	}
	if ttl > 0 {
		id := e.toast.ID
		e.timer = time.AfterFunc(ttl, func() {
			q.Dismiss(id)
		})
	}

	q.entries = append(q.entries, e)

	return e.toast.ID
}

// Dismiss removes a toast by id and cancels its auto-dismiss task.
// Dismissing an unknown or already dismissed id is a no-op.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.toast.ID != id {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return
	}
}

// Active returns the live toasts in insertion order.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Toast, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.toast)
	}

	return out
}

// Close cancels every pending auto-dismiss task and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
}
