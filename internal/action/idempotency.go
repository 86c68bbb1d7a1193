package action

import "sync"

// idemCache remembers terminal results by idempotency key so a retried
// Request never re-applies a side effect downstream: the second execution
// returns the first result. Exhausted results are intentionally NOT cached —
// they produced no side effect, and a whole-unit retry should get a fresh
// chance at delivery.
type idemCache struct {
	mu      sync.Mutex
	results map[string]Result
}

func newIdemCache() *idemCache {
	return &idemCache{results: make(map[string]Result)}
}

func (c *idemCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.results[key]
	return r, ok
}

func (c *idemCache) Put(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = r
}
