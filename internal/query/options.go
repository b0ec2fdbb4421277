package query

import "time"

// RefetchMode decides whether a trigger (mount, window focus) refetches an entry.
type RefetchMode int

const (
	// RefetchNever ignores the trigger.
	RefetchNever RefetchMode = iota
	// RefetchIfStale refetches only entries past their stale time or invalidated.
	RefetchIfStale
	// RefetchAlways refetches regardless of freshness.
	RefetchAlways
)

func (m RefetchMode) String() string {
	switch m {
	case RefetchNever:
		return "never"
	case RefetchIfStale:
		return "if_stale"
	case RefetchAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Options is the process-wide synchronization policy.
type Options struct {
	// StaleTime is how long fetched data counts as fresh.
	StaleTime time.Duration
	// GCTime is how long an entry with no observers is retained after its last use.
	GCTime time.Duration
	// MaxEntries bounds the number of cached keys.
	MaxEntries int
	// FetchTimeout bounds a single fetch, independent of the caller's context.
	FetchTimeout time.Duration

	RefetchOnMount       RefetchMode
	RefetchOnWindowFocus RefetchMode

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the application policy: data is fresh for five minutes,
// regaining window focus never refetches, and every mount refetches.
func DefaultOptions() Options {
	return Options{
		StaleTime:            5 * time.Minute,
		GCTime:               30 * time.Minute,
		MaxEntries:           500,
		FetchTimeout:         10 * time.Second,
		RefetchOnMount:       RefetchAlways,
		RefetchOnWindowFocus: RefetchNever,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StaleTime < 0 {
		o.StaleTime = 0
	}
	if o.GCTime <= 0 {
		o.GCTime = d.GCTime
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = d.MaxEntries
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
