package analytics

import (
	"net/http"
	"strings"
)

var skipPrefixes = []string{"/static/", "/healthz", "/readyz", "/metrics", "/favicon.ico"}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// IsNavigation reports whether r is a full page navigation: a GET for a page
// that is not an asset, a probe, or an htmx partial swap. Boosted htmx
// requests replace the page and count as navigations.
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return false
		}
	}
	if r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-Boosted") != "true" {
		return false
	}
	return true
}

// Middleware reports every completed navigation to l once the handler has
// rendered a 2xx page.
func Middleware(l *Listener) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsNavigation(r) {
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if rec.status >= 200 && rec.status < 300 {
				l.Navigated(Navigation{Path: r.URL.Path, Query: r.URL.RawQuery})
			}
		})
	}
}
