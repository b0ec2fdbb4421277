package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "moneta"

// metricsCollector exposes the counters the server's components already
// keep, read at scrape time.
type metricsCollector struct {
	s *Server

	queryEntries      *prometheus.Desc
	queryRequests     *prometheus.Desc
	queryFetches      *prometheus.Desc
	queryDeduplicated *prometheus.Desc
	queryHits         *prometheus.Desc
	queryMisses       *prometheus.Desc
	queryErrors       *prometheus.Desc
	queryBackground   *prometheus.Desc
	queryEvictions    *prometheus.Desc
	queryCollected    *prometheus.Desc

	httpRequests     *prometheus.Desc
	httpServerErrors *prometheus.Desc
	suspicious       *prometheus.Desc
	rateLimited      *prometheus.Desc
	rateLimitClients *prometheus.Desc
	uptime           *prometheus.Desc
}

func newMetricsCollector(s *Server) *metricsCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, subsystem, name), help, labels, nil)
	}
	return &metricsCollector{
		s: s,

		queryEntries:      desc("query", "entries", "Cached query keys."),
		queryRequests:     desc("query", "requests_total", "Fetch requests, including ones served by a shared in-flight fetch."),
		queryFetches:      desc("query", "fetches_total", "Fetcher invocations."),
		queryDeduplicated: desc("query", "deduplicated_total", "Fetch requests that joined an in-flight fetch."),
		queryHits:         desc("query", "hits_total", "Reads served from the cache.", "freshness"),
		queryMisses:       desc("query", "misses_total", "Reads that had to wait for a fetch."),
		queryErrors:       desc("query", "errors_total", "Failed fetches."),
		queryBackground:   desc("query", "background_refetches_total", "Refetches started without a waiting caller."),
		queryEvictions:    desc("query", "evictions_total", "Entries evicted by the size bound."),
		queryCollected:    desc("query", "collected_total", "Unused entries garbage collected."),

		httpRequests:     desc("http", "requests_total", "HTTP requests handled."),
		httpServerErrors: desc("http", "server_errors_total", "HTTP responses with a 5xx status."),
		suspicious:       desc("security", "suspicious_requests_total", "Requests rejected as suspicious."),
		rateLimited:      desc("rate_limit", "rejected_total", "Requests rejected by the rate limiter."),
		rateLimitClients: desc("rate_limit", "clients", "Clients currently tracked by the rate limiter."),
		uptime:           desc("", "uptime_seconds", "Seconds since the server started."),
	}
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.queryEntries, c.queryRequests, c.queryFetches, c.queryDeduplicated,
		c.queryHits, c.queryMisses, c.queryErrors, c.queryBackground,
		c.queryEvictions, c.queryCollected,
		c.httpRequests, c.httpServerErrors, c.suspicious,
		c.rateLimited, c.rateLimitClients, c.uptime,
	} {
		ch <- d
	}
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	q := c.s.queries.Stats()
	gauge(c.queryEntries, float64(q.Entries))
	counter(c.queryRequests, q.Requests)
	counter(c.queryFetches, q.Fetches)
	counter(c.queryDeduplicated, max(q.Deduplicated, 0))
	counter(c.queryHits, q.Hits, "fresh")
	counter(c.queryHits, q.StaleHits, "stale")
	counter(c.queryMisses, q.Misses)
	counter(c.queryErrors, q.Errors)
	counter(c.queryBackground, q.Background)
	counter(c.queryEvictions, q.Evictions)
	counter(c.queryCollected, q.Collected)

	t := c.s.trace.GetMetrics()
	counter(c.httpRequests, t.TotalRequests)
	counter(c.httpServerErrors, t.ServerErrors)
	counter(c.suspicious, c.s.detector.GetMetrics().SuspiciousRequests)

	rl := c.s.limiter.GetMetrics()
	counter(c.rateLimited, rl.TotalHits)
	gauge(c.rateLimitClients, float64(rl.ClientCount))
	gauge(c.uptime, time.Since(c.s.started).Seconds())
}
