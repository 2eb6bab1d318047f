package inject

import (
	"crypto/sha256"
	"errors"
	"sync"
	"time"
)

var (
	// ErrInFlight means a fill is already running in this tab. The new
	// payload is dropped, not queued.
	ErrInFlight = errors.New("inject: a send is already in flight")

	// ErrDuplicate means the payload is byte-identical to the most recently
	// executed one and arrived within the dedupe window.
	ErrDuplicate = errors.New("inject: duplicate payload within dedupe window")
)

// Guard is the per-tab execution guard: at most one fill in flight, and a
// repeat of the last payload within the dedupe window is suppressed. State
// lives only as long as the tab; it is never persisted.
type Guard struct {
	window   time.Duration
	cooldown time.Duration

	mu       sync.Mutex
	filling  bool
	pending  [sha256.Size]byte
	lastHash [sha256.Size]byte
	lastAt   time.Time
}

// NewGuard returns a guard with the given dedupe window and re-arm
// cool-down. The cool-down should exceed the send-trigger delay so the
// guard outlives the click it protects.
func NewGuard(window, cooldown time.Duration) *Guard {
	return &Guard{window: window, cooldown: cooldown}
}

// Begin claims the guard for a payload. It fails with ErrInFlight while a
// fill is running and with ErrDuplicate when the same payload was sent
// within the dedupe window.
func (g *Guard) Begin(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.filling {
		return ErrInFlight
	}

	h := sha256.Sum256([]byte(text))
	if h == g.lastHash && !g.lastAt.IsZero() && time.Since(g.lastAt) < g.window {
		return ErrDuplicate
	}

	g.filling = true
	g.pending = h
	return nil
}

// Finish schedules the guard to re-arm after the cool-down. Only a sent
// payload arms the dedupe window; a failed attempt may be retried
// immediately after the cool-down.
func (g *Guard) Finish(sent bool) {
	g.mu.Lock()
	if sent {
		g.lastHash = g.pending
		g.lastAt = time.Now()
	}
	g.mu.Unlock()

	time.AfterFunc(g.cooldown, func() {
		g.mu.Lock()
		g.filling = false
		g.mu.Unlock()
	})
}
