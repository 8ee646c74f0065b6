package pipeline

import (
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// WindowLocks admits one run per day partition at a time.
type WindowLocks struct {
	mu   sync.Mutex
	held map[civil.Date]struct{}
}

// NewWindowLocks returns an empty lock set.
func NewWindowLocks() *WindowLocks {
	return &WindowLocks{held: make(map[civil.Date]struct{})}
}

// TryLock locks every day of w, or none of them if any is already held.
func (l *WindowLocks) TryLock(w domain.Window) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	days := w.Dates()
	for _, d := range days {
		if _, ok := l.held[d]; ok {
			return false
		}
	}
	for _, d := range days {
		l.held[d] = struct{}{}
	}
	return true
}

// Unlock releases the days of w.
func (l *WindowLocks) Unlock(w domain.Window) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range w.Dates() {
		delete(l.held, d)
	}
}
