package memory

import "time"

// SetClock replaces the repository clock in tests
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
