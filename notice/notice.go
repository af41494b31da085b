// Package notice holds the short-lived messages views show after an
// operation, the equivalent of a toast.
package notice

import (
	"sync"
	"time"
)

type Kind string

const (
	Info    Kind = "info"
	Success Kind = "success"
	Warning Kind = "warning"
	Error   Kind = "error"
)

// Notice is one message. It stops being shown at ExpiresAt.
type Notice struct {
	Kind      Kind
	Message   string
	ExpiresAt time.Time
}

// Board collects the notices of one view. The zero value is not usable,
// use NewBoard.
type Board struct {
	ttl     time.Duration
	nowTime func() time.Time

	mu      sync.Mutex
	notices []Notice
}

func NewBoard(ttl time.Duration) *Board {
	return &Board{ttl: ttl, nowTime: time.Now}
}

// WithClock replaces the board's clock (primarily for testing).
func (b *Board) WithClock(now func() time.Time) *Board {
	b.nowTime = now
	return b
}

// Post adds a notice that expires after the board's ttl.
func (b *Board) Post(kind Kind, message string) Notice {
	n := Notice{Kind: kind, Message: message, ExpiresAt: b.nowTime().Add(b.ttl)}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	return n
}

// Active returns the notices that have not expired, oldest first, and
// forgets the rest.
func (b *Board) Active() []Notice {
	now := b.nowTime()
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	b.notices = kept
	return append([]Notice(nil), kept...)
}

// Last returns the most recent unexpired notice.
func (b *Board) Last() (Notice, bool) {
	active := b.Active()
	if len(active) == 0 {
		return Notice{}, false
	}
	return active[len(active)-1], true
}

// Dismiss drops every notice.
func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = nil
}
