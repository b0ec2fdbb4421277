// Package query is the process-wide data synchronization layer. Every read of
// remote data goes through one Client, which caches results by Key, shares
// in-flight fetches between concurrent callers, serves stale data while it
// revalidates in the background, and applies one refetch policy for mounts and
// window focus.
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"moneta/internal/cache"
	"moneta/internal/log"
)

// Fetcher loads the value for a key from the backend.
type Fetcher[T any] func(ctx context.Context) (T, error)

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key   Key
	parts []string

	data           any
	hasData        bool
	err            error
	updatedAt      time.Time
	errorUpdatedAt time.Time
	invalidated    bool
	fetching       bool
	observers      int

	// gen is the sequence number of the latest fetch or direct write. Only
	// that fetch may store its result.
	gen uint64

	// fetch is the most recent fetcher seen for the key, used for
	// refetches that have no caller (invalidation, window focus).
	fetch fetchFunc
}

// Client owns the cache. Create one at startup and share it.
type Client struct {
	opts    Options
	logger  *log.Logger
	mu      sync.Mutex
	entries *cache.LRUCache[*entry]
	seq     uint64
	sf      singleflight.Group
	stats   counters
}

// NewClient builds a client with the given policy.
func NewClient(opts Options, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	opts = opts.withDefaults()
	c := &Client{
		opts:   opts,
		logger: logger.WithComponent(log.ComponentQuery),
	}
	// Entries in use are pinned; the rest expire GCTime after their last use.
	c.entries = cache.NewLRUCache[*entry](opts.MaxEntries, opts.GCTime,
		cache.WithClock[*entry](opts.Clock),
		cache.WithPin(func(_ string, e *entry) bool {
			return e.observers > 0 || e.fetching
		}),
		cache.WithEvictCallback(func(hash string, _ *entry) {
			atomic.AddInt64(&c.stats.evictions, 1)
		}),
	)
	return c
}

// Options returns the client's policy.
func (c *Client) Options() Options {
	return c.opts
}

func (c *Client) now() time.Time {
	return c.opts.Clock()
}

// lookup returns the entry for key, creating it when create is set. Caller holds c.mu.
func (c *Client) lookup(key Key, create bool) *entry {
	hash := key.Hash()
	if e, ok := c.entries.Get(hash); ok {
		return e
	}
	if !create {
		return nil
	}
	e := &entry{key: key, parts: key.parts()}
	c.entries.Set(hash, e)
	return e
}

// isStale reports whether e needs revalidation. Caller holds c.mu.
func (c *Client) isStale(e *entry) bool {
	if e.invalidated || !e.hasData {
		return true
	}
	return c.now().Sub(e.updatedAt) >= c.opts.StaleTime
}

func (c *Client) snap(e *entry) snapshot {
	return snapshot{
		data:           e.data,
		hasData:        e.hasData,
		err:            e.err,
		updatedAt:      e.updatedAt,
		errorUpdatedAt: e.errorUpdatedAt,
		fetching:       e.fetching,
		invalidated:    e.invalidated,
		stale:          c.isStale(e),
		observers:      e.observers,
	}
}

// run starts or joins the fetch for key. The fetch is detached from the
// caller's cancellation: a caller that stops waiting does not abort a fetch
// other callers may share, and the result is cached either way.
func (c *Client) run(ctx context.Context, key Key, fn fetchFunc) <-chan singleflight.Result {
	hash := key.Hash()
	fetchCtx := context.WithoutCancel(ctx)

	// Counted after the call is registered with the group.
	defer atomic.AddInt64(&c.stats.requests, 1)
	return c.sf.DoChan(hash, func() (any, error) {
		atomic.AddInt64(&c.stats.fetches, 1)

		c.mu.Lock()
		e := c.lookup(key, true)
		e.fetching = true
		e.fetch = fn
		c.seq++
		e.gen = c.seq
		gen := e.gen
		c.mu.Unlock()

		fctx, cancel := context.WithTimeout(fetchCtx, c.opts.FetchTimeout)
		defer cancel()

		start := c.now()
		v, err := call(fctx, fn)
		c.complete(key, gen, v, err)

		if err != nil {
			atomic.AddInt64(&c.stats.errors, 1)
			c.logger.WarnContext(ctx, "Query fetch failed",
				log.FieldQueryKey, hash,
				log.FieldError, err,
				log.FieldDuration, c.now().Sub(start).Milliseconds())
		} else {
			c.logger.DebugContext(ctx, "Query fetched",
				log.FieldQueryKey, hash,
				log.FieldDuration, c.now().Sub(start).Milliseconds())
		}
		return v, err
	})
}

// call invokes fn, turning a panic into an error.
func call(ctx context.Context, fn fetchFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetcher panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// complete stores the outcome of fetch number gen. A zero gen is a direct
// write that supersedes any fetch in flight. The outcome of a fetch whose
// entry was removed, or that a later fetch superseded, is not stored.
func (c *Client) complete(key Key, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key, gen == 0)
	switch {
	case e == nil:
		return
	case gen == 0:
		c.seq++
		e.gen = c.seq
	case gen != e.gen:
		return
	}
	now := c.now()
	e.fetching = false
	if err != nil {
		e.err = err
		e.errorUpdatedAt = now
		return
	}
	e.data = v
	e.hasData = true
	e.err = nil
	e.updatedAt = now
	e.invalidated = false
}

// background starts a refetch without waiting for it.
func (c *Client) background(ctx context.Context, key Key, fn fetchFunc) {
	atomic.AddInt64(&c.stats.background, 1)
	_ = c.run(ctx, key, fn)
}

// refresh starts a new fetch for key, never joining one already in flight,
// and waits for it or for ctx.
func (c *Client) refresh(ctx context.Context, key Key, fn fetchFunc) error {
	c.sf.Forget(key.Hash())
	_, err := c.await(ctx, key, fn)
	return err
}

// await starts or joins the fetch for key and waits for it or for ctx. It
// returns the fetch's own result, which callers fall back to when the entry
// no longer holds it.
func (c *Client) await(ctx context.Context, key Key, fn fetchFunc) (any, error) {
	select {
	case r := <-c.run(ctx, key, fn):
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func erase[T any](fn Fetcher[T]) fetchFunc {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// read takes a snapshot of key, optionally recording a use.
func (c *Client) read(key Key, touch bool) (snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var e *entry
	if touch {
		e = c.lookup(key, false)
	} else if v, ok := c.entries.Peek(key.Hash()); ok {
		e = v
	}
	if e == nil {
		return snapshot{}, false
	}
	return c.snap(e), true
}

// Fetch returns data for key. Fresh data is returned from the cache. Stale
// data is returned immediately while one background refetch runs. Without
// data the call starts or joins the fetch and waits for it.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn Fetcher[T]) (T, error) {
	var zero T
	s, ok := c.read(key, true)
	if ok && s.hasData {
		st := stateOf[T](key, s)
		if st.HasData {
			if s.stale {
				atomic.AddInt64(&c.stats.staleHits, 1)
				c.background(ctx, key, erase(fn))
			} else {
				atomic.AddInt64(&c.stats.hits, 1)
			}
			return st.Data, nil
		}
	}

	atomic.AddInt64(&c.stats.misses, 1)
	v, err := c.await(ctx, key, erase(fn))
	if err != nil {
		return zero, err
	}
	s, _ = c.read(key, false)
	st := stateOf[T](key, s)
	if !st.HasData && v != nil {
		st = fetched[T](key, v, c.now())
	}
	if !st.HasData {
		if st.Err != nil {
			return zero, st.Err
		}
		return zero, fmt.Errorf("query: no data for key %s", key)
	}
	return st.Data, nil
}

// Get returns the cached state for key without fetching.
func Get[T any](c *Client, key Key) (State[T], bool) {
	s, ok := c.read(key, false)
	if !ok {
		return State[T]{}, false
	}
	return stateOf[T](key, s), true
}

// SetData stores v for key as freshly fetched data.
func SetData[T any](c *Client, key Key, v T) {
	c.complete(key, 0, v, nil)
}

// Invalidate marks every entry under prefix stale. Entries with observers
// refetch in the background; the rest refetch on their next read or mount.
// It returns the number of matched entries.
func (c *Client) Invalidate(ctx context.Context, prefix Key) int {
	pp := prefix.parts()
	type job struct {
		key Key
		fn  fetchFunc
	}
	var jobs []job
	matched := 0

	c.mu.Lock()
	c.entries.Range(func(_ string, e *entry) bool {
		if !hasPrefix(e.parts, pp) {
			return true
		}
		matched++
		e.invalidated = true
		if e.observers > 0 && e.fetch != nil {
			jobs = append(jobs, job{key: e.key, fn: e.fetch})
		}
		return true
	})
	c.mu.Unlock()

	for _, j := range jobs {
		c.background(ctx, j.key, j.fn)
	}
	if matched > 0 {
		c.logger.DebugContext(ctx, "Queries invalidated",
			log.FieldQueryKey, prefix.Hash(),
			"matched", matched,
			"refetched", len(jobs))
	}
	return matched
}

// Remove evicts every entry under prefix and returns how many were removed.
// Fetches in flight for those keys are no longer joined by later callers and
// their results are not stored.
func (c *Client) Remove(prefix Key) int {
	pp := prefix.parts()
	var removed []string
	c.mu.Lock()
	c.entries.DeleteFunc(func(hash string, e *entry) bool {
		if !hasPrefix(e.parts, pp) {
			return false
		}
		removed = append(removed, hash)
		return true
	})
	c.mu.Unlock()

	for _, hash := range removed {
		c.sf.Forget(hash)
	}
	return len(removed)
}

// Refetch fetches every entry under prefix that has been read before and
// waits for all of them. Fetches already in flight are not joined, since they
// may have started before a write; their results are discarded. Writes use
// it to make the next render see their effect. It returns the first fetch error.
func (c *Client) Refetch(ctx context.Context, prefix Key) error {
	pp := prefix.parts()
	type job struct {
		key Key
		fn  fetchFunc
	}
	var jobs []job

	c.mu.Lock()
	c.entries.Range(func(_ string, e *entry) bool {
		if e.fetch != nil && hasPrefix(e.parts, pp) {
			jobs = append(jobs, job{key: e.key, fn: e.fetch})
		}
		return true
	})
	c.mu.Unlock()

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			return c.refresh(ctx, j.key, j.fn)
		})
	}
	return g.Wait()
}

// WindowFocused applies the window-focus policy to observed entries and
// returns the number of refetches it started. Under RefetchNever it does nothing.
func (c *Client) WindowFocused(ctx context.Context) int {
	mode := c.opts.RefetchOnWindowFocus
	if mode == RefetchNever {
		return 0
	}
	type job struct {
		key Key
		fn  fetchFunc
	}
	var jobs []job

	c.mu.Lock()
	c.entries.Range(func(_ string, e *entry) bool {
		if e.observers == 0 || e.fetch == nil {
			return true
		}
		if mode == RefetchAlways || c.isStale(e) {
			jobs = append(jobs, job{key: e.key, fn: e.fetch})
		}
		return true
	})
	c.mu.Unlock()

	for _, j := range jobs {
		c.background(ctx, j.key, j.fn)
	}
	return len(jobs)
}

// CleanExpired drops entries that have had no observers and no fetch for
// longer than GCTime. It implements cache.Cleaner.
func (c *Client) CleanExpired() int {
	c.mu.Lock()
	n := c.entries.CleanExpired()
	c.mu.Unlock()
	atomic.AddInt64(&c.stats.collected, int64(n))
	return n
}

// fetched is the state of a successful fetch whose value the cache did not
// keep, because the entry was removed or a later fetch superseded it.
func fetched[T any](key Key, v any, at time.Time) State[T] {
	return stateOf[T](key, snapshot{data: v, hasData: true, updatedAt: at})
}

var _ cache.Cleaner = (*Client)(nil)

// Len returns the number of cached keys.
func (c *Client) Len() int {
	return c.entries.Size()
}
