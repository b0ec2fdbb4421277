package query

import (
	"context"
	"sync"
)

// Observer marks a key as in use by a mounted view. Entries with observers
// are never garbage collected and are refetched on invalidation.
type Observer struct {
	c    *Client
	key  Key
	e    *entry
	once sync.Once
}

// Key returns the observed key.
func (o *Observer) Key() Key {
	return o.key
}

// Unmount releases the observation. Further calls have no effect.
func (o *Observer) Unmount() {
	o.once.Do(func() {
		o.c.mu.Lock()
		defer o.c.mu.Unlock()
		// Touch the entry while it is still pinned so its idle time starts now.
		o.c.lookup(o.key, false)
		if o.e.observers > 0 {
			o.e.observers--
		}
	})
}

// Mount registers an observer for key and applies the mount refetch policy.
// When the key already has data the returned state carries it and any
// refetch runs in the background. Otherwise Mount waits for the fetch (or for
// ctx) and returns whatever it produced, including a retained error.
func Mount[T any](ctx context.Context, c *Client, key Key, fn Fetcher[T]) (*Observer, State[T]) {
	f := erase(fn)

	c.mu.Lock()
	e := c.lookup(key, true)
	e.observers++
	e.fetch = f
	hasData := e.hasData
	stale := c.isStale(e)
	c.mu.Unlock()

	obs := &Observer{c: c, key: key, e: e}

	if hasData {
		switch c.opts.RefetchOnMount {
		case RefetchAlways:
			c.background(ctx, key, f)
		case RefetchIfStale:
			if stale {
				c.background(ctx, key, f)
			}
		}
		s, _ := c.read(key, false)
		return obs, stateOf[T](key, s)
	}

	v, waitErr := c.await(ctx, key, f)
	s, _ := c.read(key, false)
	st := stateOf[T](key, s)
	switch {
	case waitErr != nil && st.Err == nil:
		st.Err = waitErr
		st.Status = StatusError
	case waitErr == nil && !st.HasData && v != nil:
		st = fetched[T](key, v, c.now())
	}
	return obs, st
}

// Use mounts key for the duration of fn, the common shape for a request
// handler that renders one view.
func Use[T any](ctx context.Context, c *Client, key Key, fn Fetcher[T], render func(State[T]) error) error {
	obs, st := Mount(ctx, c, key, fn)
	defer obs.Unmount()
	return render(st)
}
