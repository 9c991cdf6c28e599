package testutil

import "sync"

// PacketClock hands out packet creation times for fixtures.
//
// Times start at Base and advance by Step on every call, so packets created
// in order sort in order. The clock can be reset so the same fixture builds
// the same repository twice.
//
// Thread-safety: All methods are safe for concurrent use.
type PacketClock struct {
	mu   sync.Mutex
	base float64
	step float64
	seq  int64
}

// NewPacketClock creates a clock whose first time is base+step.
func NewPacketClock(base, step float64) *PacketClock {
	if step <= 0 {
		step = 1
	}
	return &PacketClock{base: base, step: step}
}

// Next advances the clock and returns the new time in seconds.
func (c *PacketClock) Next() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.base + float64(c.seq)*c.step
}

// Current returns the last time handed out, or the base if none was.
func (c *PacketClock) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + float64(c.seq)*c.step
}

// Reset rewinds the clock to its base.
func (c *PacketClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
