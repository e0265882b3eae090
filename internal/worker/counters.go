package worker

import "sync"

// Counters are the worker's process-lifetime statistics. They reset only
// on process restart and are read by the periodic reporter and the admin
// /counters endpoint.
type Counters struct {
	mu             sync.Mutex
	consumed       uint64
	delivered      uint64
	skippedBounces uint64
	retried        uint64
	malformed      uint64
	failed         uint64
	deadLettered   uint64
}

func (c *Counters) incConsumed() {
	c.mu.Lock()
	c.consumed++
	c.mu.Unlock()
}

func (c *Counters) incDelivered() {
	c.mu.Lock()
	c.delivered++
	c.mu.Unlock()
}

func (c *Counters) incSkippedBounce() {
	c.mu.Lock()
	c.skippedBounces++
	c.mu.Unlock()
}

func (c *Counters) addRetried(n uint64) {
	c.mu.Lock()
	c.retried += n
	c.mu.Unlock()
}

func (c *Counters) incMalformed() {
	c.mu.Lock()
	c.malformed++
	c.mu.Unlock()
}

func (c *Counters) incFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

func (c *Counters) incDeadLettered() {
	c.mu.Lock()
	c.deadLettered++
	c.mu.Unlock()
}

// Snapshot returns a copy of the counters for reporting.
func (c *Counters) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]uint64{
		"consumed":        c.consumed,
		"delivered":       c.delivered,
		"skipped_bounces": c.skippedBounces,
		"retried":         c.retried,
		"malformed":       c.malformed,
		"failed":          c.failed,
		"dead_lettered":   c.deadLettered,
	}
}
