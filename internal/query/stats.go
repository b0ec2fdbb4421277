package query

import "sync/atomic"

type counters struct {
	requests   int64
	fetches    int64
	hits       int64
	staleHits  int64
	misses     int64
	errors     int64
	background int64
	evictions  int64
	collected  int64
}

// Stats is a point-in-time view of client activity.
type Stats struct {
	Entries int
	// Requests counts every call that asked for a fetch; Fetches counts
	// fetcher invocations. The difference was served by a shared in-flight fetch.
	Requests     int64
	Fetches      int64
	Deduplicated int64
	Hits         int64
	StaleHits    int64
	Misses       int64
	Errors       int64
	Background   int64
	Evictions    int64
	Collected    int64
}

// HitRate returns fresh and stale hits as a fraction of reads.
func (s Stats) HitRate() float64 {
	reads := s.Hits + s.StaleHits + s.Misses
	if reads == 0 {
		return 0
	}
	return float64(s.Hits+s.StaleHits) / float64(reads)
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Entries:    c.Len(),
		Requests:   atomic.LoadInt64(&c.stats.requests),
		Fetches:    atomic.LoadInt64(&c.stats.fetches),
		Hits:       atomic.LoadInt64(&c.stats.hits),
		StaleHits:  atomic.LoadInt64(&c.stats.staleHits),
		Misses:     atomic.LoadInt64(&c.stats.misses),
		Errors:     atomic.LoadInt64(&c.stats.errors),
		Background: atomic.LoadInt64(&c.stats.background),
		Evictions:  atomic.LoadInt64(&c.stats.evictions),
		Collected:  atomic.LoadInt64(&c.stats.collected),
	}
	s.Deduplicated = s.Requests - s.Fetches
	return s
}
