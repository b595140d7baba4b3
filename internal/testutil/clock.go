package testutil

import (
	"strconv"
	"sync"
	"time"

	"darkdrop/internal/drop"
)

// FixedTime is where every FixedClock starts.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a drop.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ drop.Clock = (*StubClock)(nil)

// FixedClock returns a StubClock at FixedTime.
func FixedClock() *StubClock {
	return &StubClock{now: FixedTime}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Session expiry tests rely on it.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out "id-1", "id-2", ... so record IDs are predictable.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ drop.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "id-" + strconv.Itoa(g.next)
}
