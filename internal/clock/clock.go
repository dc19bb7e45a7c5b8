// Package clock abstracts the stage clock so that time based decisions (partition buckets, lateness,
// idle and age rotation) can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real reads the system clock
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a Clock which only moves when told to
type Manual struct {
	mut sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.now
}

func (m *Manual) Set(now time.Time) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.now = now
}

// Advance moves the clock forward by d and returns the new time
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
