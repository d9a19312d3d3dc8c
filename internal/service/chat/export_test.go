package chat

import "time"

// SetClock overrides the store clock in tests.
func SetClock(s *MemoryStore, now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
