package location

import (
	"context"
	"sync"
)

// CodeLengthCache memoizes the maximum code length per location type.
// Code lengths are aggregated from the store once per type and reused for
// the process lifetime; call Reset after changing location codes.
type CodeLengthCache struct {
	repo Repository

	mu      sync.Mutex
	lengths map[string]int
}

// NewCodeLengthCache creates an empty cache backed by repo.
func NewCodeLengthCache(repo Repository) *CodeLengthCache {
	return &CodeLengthCache{
		repo:    repo,
		lengths: make(map[string]int),
	}
}

// Lookup returns the maximum code length for locationType, computing and
// caching it on first use. Only successful lookups are cached.
func (c *CodeLengthCache) Lookup(ctx context.Context, locationType string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if length, ok := c.lengths[locationType]; ok {
		return length, nil
	}

	length, err := c.repo.MaxCodeLength(ctx, locationType)
	if err != nil {
		return 0, err
	}

	c.lengths[locationType] = length
	return length, nil
}

// Reset drops all cached lengths. Use after location codes change.
func (c *CodeLengthCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lengths = make(map[string]int)
}
