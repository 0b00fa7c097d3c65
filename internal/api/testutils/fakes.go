package testutils

import (
	"context"
	"sync"
	"time"
)

// RecordingNotifier counts emails instead of sending them
type RecordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *RecordingNotifier) SendEmail(ctx context.Context, to, subject, body string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return true
}

// Subjects returns the subjects sent so far
func (n *RecordingNotifier) Subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.subjects...)
}

// Clock is the time source handed to the jobs
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
