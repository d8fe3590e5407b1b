package clock

import (
	"sync"
	"time"
)

// Clock выдает строго возрастающие отметки времени.
// Это гибрид физических часов и часов Лампорта: время берется из системных часов,
// но никогда не повторяется и не идет назад, даже если системные часы откатились.
type Clock struct {
	last       time.Time        // последняя выданная отметка
	now        func() time.Time // источник физического времени
	resolution time.Duration    // шаг, на который сдвигается отметка при совпадении
	mu         sync.Mutex
}

// New creates a clock with the given resolution (millisecond if zero).
func New(resolution time.Duration) *Clock {
	if resolution <= 0 {
		resolution = time.Millisecond
	}
	return &Clock{
		now:        time.Now,
		resolution: resolution,
	}
}

// NewWithSource creates a clock driven by a custom time source. Used in tests.
func NewWithSource(resolution time.Duration, now func() time.Time) *Clock {
	c := New(resolution)
	c.now = now
	return c
}

// Now returns the next timestamp. Every call returns a value strictly after the previous one.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.resolution)
	if !t.After(c.last) {
		t = c.last.Add(c.resolution)
	}
	c.last = t
	return t
}

// Observe moves the clock past a remote timestamp.
// Согласно алгоритму Лампорта: last = max(last, remote), следующий Now() будет больше.
func (c *Clock) Observe(remote time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote = remote.UTC().Truncate(c.resolution)
	if remote.After(c.last) {
		c.last = remote
	}
}

// Last returns the most recent timestamp without advancing the clock.
func (c *Clock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Restore sets the last issued timestamp, e.g. after restart.
func (c *Clock) Restore(last time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = last.UTC()
}
