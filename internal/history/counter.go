package history

import (
	"fmt"
	"sync"

	"miyako-bot/internal/apperr"
)

// Counter limits chat turns per user for the lifetime of the process
type Counter struct {
	mu      sync.Mutex
	ceiling int
	counts  map[string]int
}

// NewCounter creates a counter. A ceiling <= 0 disables the limit.
func NewCounter(ceiling int) *Counter {
	return &Counter{
		ceiling: ceiling,
		counts:  make(map[string]int),
	}
}

// Acquire takes one turn for the user or fails with a SessionLimit error
// once the ceiling is reached
func (c *Counter) Acquire(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ceiling > 0 && c.counts[userID] >= c.ceiling {
		return apperr.New(apperr.SessionLimit, fmt.Sprintf("已達到本工作階段對話次數上限 (%d 次)", c.ceiling))
	}
	c.counts[userID]++
	return nil
}

// Count returns the turns the user has taken
func (c *Counter) Count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID]
}

// Ceiling returns the configured limit
func (c *Counter) Ceiling() int {
	return c.ceiling
}

func (c *Counter) Reset(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, userID)
}

func (c *Counter) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}
