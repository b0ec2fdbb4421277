package query

import (
	"context"
	"net/http"
)

type contextKey struct{}

// Provide returns a context carrying c.
func Provide(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the client installed by Provide, or nil.
func FromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(contextKey{}).(*Client)
	return c
}

// MustFromContext is FromContext for code that cannot run without a client.
func MustFromContext(ctx context.Context) *Client {
	c := FromContext(ctx)
	if c == nil {
		panic("query: no client in context; wrap the handler with Provider")
	}
	return c
}

// Provider makes c available to every request handled by next.
func Provider(c *Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(Provide(r.Context(), c)))
		})
	}
}
