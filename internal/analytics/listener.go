// Package analytics emits a page-view event for every completed navigation.
// Emission is best-effort: it never blocks the caller, never surfaces an
// error and never retries.
package analytics

import (
	"context"
	"sync"
	"time"

	"moneta/internal/log"
)

// Tracker receives page views. identifier is the path followed by "?" and
// the query string when one is present.
type Tracker interface {
	TrackPageView(ctx context.Context, identifier string) error
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(ctx context.Context, identifier string) error

func (f TrackerFunc) TrackPageView(ctx context.Context, identifier string) error {
	return f(ctx, identifier)
}

// Nop discards every page view.
type Nop struct{}

func (Nop) TrackPageView(context.Context, string) error { return nil }

// Navigation is the current location reported by the router.
type Navigation struct {
	Path  string
	Query string
}

// Identifier is the page-view identifier for n.
func (n Navigation) Identifier() string {
	if n.Query == "" {
		return n.Path
	}
	return n.Path + "?" + n.Query
}

const defaultTimeout = 5 * time.Second

// Listener forwards navigations to a Tracker.
type Listener struct {
	tracker Tracker
	timeout time.Duration
	logger  *log.Logger
	wg      sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithTimeout bounds each emission.
func WithTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewListener returns a listener that emits to tracker. A nil tracker is Nop.
func NewListener(tracker Tracker, logger *log.Logger, opts ...ListenerOption) *Listener {
	if tracker == nil {
		tracker = Nop{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	l := &Listener{
		tracker: tracker,
		timeout: defaultTimeout,
		logger:  logger.WithComponent(log.ComponentAnalytics),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Navigated emits one page view for nav and returns immediately.
func (l *Listener) Navigated(nav Navigation) {
	id := nav.Identifier()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.emit(id)
	}()
}

// emit runs one tracker call. Its error is the caller's to discard.
func (l *Listener) emit(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nil
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.tracker.TrackPageView(ctx, id)
}

// Wait blocks until in-flight emissions finish or ctx is done.
func (l *Listener) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Debug("Stopped waiting for page-view emissions", log.FieldError, ctx.Err())
		return ctx.Err()
	}
}
