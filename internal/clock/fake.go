package clock

import (
	"sync"
	"time"
)

// FakeClock delivers timer signals on demand. Fire wakes every goroutine
// currently blocked in After; a Fire with no waiters is remembered and
// satisfies the next After call immediately, so tests need not race the
// component loop to its select statement.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []chan time.Time
	banked  int
}

// NewFakeClock constructs a fake clock anchored at the Unix epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

// Now returns the fake clock's fixed reference time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a waiter that is released by the next Fire. The duration
// is ignored; scheduling is entirely under test control.
func (f *FakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	f.mu.Lock()
	if f.banked > 0 {
		f.banked--
		ch <- f.now
		f.mu.Unlock()
		return ch
	}
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	return ch
}

// Fire delivers one timer event to all current waiters, or banks the event
// for the next After call when nobody is waiting.
func (f *FakeClock) Fire() {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	if len(waiters) == 0 {
		f.banked++
	}
	now := f.now
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- now
	}
}
