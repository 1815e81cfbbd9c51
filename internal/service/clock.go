package service

import (
	"sync"
	"time"
)

// stamper hands out mutation timestamps.
//
// Stores keep millisecond precision (BSON datetimes), so two mutations inside
// the same millisecond would otherwise share an updatedAt. Each stamp is
// truncated to the millisecond and forced to be at least 1ms after the
// previous one, which keeps updatedAt strictly increasing for every write
// this process makes.
type stamper struct {
	mu    sync.Mutex
	clock func() time.Time
	last  time.Time
}

func newStamper(clock func() time.Time) *stamper {
	if clock == nil {
		clock = time.Now
	}
	return &stamper{clock: clock}
}

func (s *stamper) next() time.Time {
	now := s.clock().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.After(s.last) {
		now = s.last.Add(time.Millisecond)
	}
	s.last = now
	return now
}
