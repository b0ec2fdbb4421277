// Package backend is the single handle to the remote data and auth service.
//
// A Client is built once at startup from SERVICE_URL and SERVICE_ANON_KEY and
// shared read-only by every request. Data operations go through the REST
// endpoint under /rest/v1 and authentication through /auth/v1; both carry the
// anon key, and data calls add the signed-in user's access token.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moneta/internal/log"
)

const (
	restPath = "/rest/v1"
	authPath = "/auth/v1"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

// Client is immutable after New and safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	anonKey    string
	httpClient *http.Client
	logger     *log.Logger
	devMode    bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDevMode makes New log the validated service URL and whether a key is set.
func WithDevMode(dev bool) Option {
	return func(c *Client) { c.devMode = dev }
}

// New validates the credentials and returns a client. Missing values yield
// ErrMissingURL or ErrMissingKey; callers treat any error as fatal.
func New(rawURL, anonKey string, opts ...Option) (*Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	anonKey = strings.TrimSpace(anonKey)

	c := &Client{
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentBackend)

	if rawURL == "" {
		return nil, ErrMissingURL
	}
	if anonKey == "" {
		return nil, ErrMissingKey
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	c.baseURL = u

	if c.devMode {
		c.logger.Info("Backend client configuration",
			log.FieldServiceURL, c.URL(),
			log.FieldHasKey, anonKey != "")
	}
	return c, nil
}

// URL returns the service base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

type request struct {
	method string
	path   string
	query  url.Values
	token  string
	body   any
	header http.Header
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends r and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "Backend request",
		log.FieldMethod, r.method,
		log.FieldPath, r.path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return eb.apiError(resp.StatusCode)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return nil
}

// Ping checks that the service answers with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: authPath + "/health"}, nil)
}
