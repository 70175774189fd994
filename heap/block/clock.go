package block

// Clock is the per-instance mutation counter. Every block mutation and
// log append consumes one tick, so ordering is total within an epoch.
// The zero value is ready to use.
type Clock struct {
	now uint32
}

// Tick returns the current counter value and advances it.
func (c *Clock) Tick() uint32 {
	t := c.now
	c.now++
	return t
}

// Now returns the next value Tick would hand out, without advancing.
func (c *Clock) Now() uint32 {
	return c.now
}

// Reset rewinds the clock to zero. Called on init/reset, which starts a
// new epoch.
func (c *Clock) Reset() {
	c.now = 0
}
