package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// defaultBodyLimit caps ReadBody when the caller passes no limit.
const defaultBodyLimit = 16 << 20

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions describes one outbound request. Body may be []byte, a
// string, an io.Reader or any JSON-encodable value.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams url.Values
	Body        interface{}
}

// Client is an http.Client with default headers and an optional cookie
// store that can be wiped while requests are in flight.
type Client struct {
	http     *http.Client
	defaults http.Header
	cookies  *swappableJar
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		defaults: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cookies != nil {
		c.http.Jar = c.cookies
	}
	return c
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = timeout }
}

// WithCookieJar keeps cookies between requests.
func WithCookieJar() ClientOption {
	return func(c *Client) { c.cookies = newSwappableJar() }
}

// WithHeaders sets headers sent on every request; per-request headers win.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaults.Set(k, v)
		}
	}
}

// SendRequest builds and sends the request. Non-2xx responses are not
// errors; the caller owns the response body.
func (c *Client) SendRequest(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	target := opts.URL
	if len(opts.QueryParams) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.QueryParams.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header = c.defaults.Clone()
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", opts.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

func encodeBody(v interface{}) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(raw), "application/json", nil
}

// ReadBody drains and closes the response body, reading at most limit
// bytes.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// ResetCookies drops every stored cookie.
func (c *Client) ResetCookies() {
	if c.cookies != nil {
		c.cookies.swap()
	}
}

// Cookies returns the cookies that would be sent to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	if c.cookies == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.cookies.Cookies(u)
}

func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

type swappableJar struct {
	mu  sync.RWMutex
	cur *cookiejar.Jar
}

func newSwappableJar() *swappableJar {
	j := &swappableJar{}
	j.swap()
	return j
}

func (j *swappableJar) swap() {
	fresh, _ := cookiejar.New(nil) // fails only on a bad PublicSuffixList
	j.mu.Lock()
	j.cur = fresh
	j.mu.Unlock()
}

func (j *swappableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	cur := j.cur
	j.mu.RUnlock()
	cur.SetCookies(u, cookies)
}

func (j *swappableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	cur := j.cur
	j.mu.RUnlock()
	return cur.Cookies(u)
}
