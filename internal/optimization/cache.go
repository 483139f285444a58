package optimization

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/mafu-labs/growthsim/internal/registry"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

type cacheKey struct {
	fingerprint string
	budget      float64
}

type cacheEntry struct {
	res *Result
	err error
}

// CachingSolver memoizes solves by registry fingerprint and budget. Solves
// are deterministic, so a repeated budget always yields the same answer;
// decision trees repeat budgets heavily (every 0% edge solves budget 0).
//
// Failures are cached too, except for context errors.
// CachingSolver is safe for concurrent use.
type CachingSolver struct {
	next       Solver
	maxEntries int

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	hits    int64
	misses  int64
}

// NewCachingSolver wraps next. maxEntries <= 0 means unlimited; when the
// limit is reached the cache is reset.
func NewCachingSolver(next Solver, maxEntries int) *CachingSolver {
	return &CachingSolver{
		next:       next,
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]cacheEntry),
	}
}

// Solve implements Solver.
func (c *CachingSolver) Solve(ctx context.Context, reg *registry.Registry, budget float64) (*Result, error) {
	key := cacheKey{fingerprint: reg.Fingerprint(), budget: budget}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return e.res.clone(), e.err
	}
	c.misses++
	c.mu.Unlock()

	res, err := c.next.Solve(ctx, reg, budget)
	if err != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}

	c.mu.Lock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.entries = make(map[cacheKey]cacheEntry)
	}
	c.entries[key] = cacheEntry{res: res.clone(), err: err}
	c.mu.Unlock()

	return res, err
}

// Stats returns a snapshot of the cache counters.
func (c *CachingSolver) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Allocations = append([]Allocation(nil), r.Allocations...)
	return &out
}
