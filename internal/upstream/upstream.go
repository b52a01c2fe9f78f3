// Package upstream fetches resources from the origin server.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
)

// ErrNetwork wraps every failure to obtain a response from the origin.
// A response with a non-2xx status is not a network failure.
var ErrNetwork = errors.New("network request failed")

// Request is an outbound request relative to the origin.
type Request struct {
	Method string
	// Target is the origin-relative path and raw query, e.g. "/api/leads?page=2".
	Target string
	Header http.Header
	Body   io.Reader
}

// FromHTTP converts an intercepted request. The body is passed through unread.
func FromHTTP(r *http.Request) *Request {
	return &Request{
		Method: r.Method,
		Target: r.URL.RequestURI(),
		Header: r.Header,
		Body:   r.Body,
	}
}

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*storage.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*storage.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*storage.Response, error) {
	return f(ctx, req)
}

// Hop-by-hop headers are never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher forwards requests to a fixed origin.
type HTTPFetcher struct {
	origin *url.URL
	client *http.Client
}

// NewHTTPFetcher returns a fetcher for origin, e.g. "http://frontend:3000".
func NewHTTPFetcher(origin string, client *http.Client) (*HTTPFetcher, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", origin)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{origin: u, client: client}, nil
}

// Origin returns the configured origin.
func (f *HTTPFetcher) Origin() *url.URL {
	return f.origin
}

// Fetch issues req against the origin and buffers the full body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*storage.Response, error) {
	target, err := f.resolve(req.Target)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	outReq, err := http.NewRequestWithContext(ctx, method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	copyHeaders(outReq.Header, req.Header)
	// Let the transport negotiate compression so stored bodies are decoded.
	outReq.Header.Del("Accept-Encoding")

	resp, err := f.client.Do(outReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, req.Target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %w", ErrNetwork, req.Target, err)
	}

	header := make(http.Header, len(resp.Header))
	copyHeaders(header, resp.Header)
	header.Del("Content-Length")

	return &storage.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

func (f *HTTPFetcher) resolve(target string) (string, error) {
	if target == "" {
		target = "/"
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("target %q must be origin-relative", target)
	}

	u := *f.origin
	u.Path = strings.TrimSuffix(f.origin.Path, "/") + ref.Path
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = strings.TrimSuffix(f.origin.EscapedPath(), "/") + ref.RawPath
	}
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// copyHeaders copies headers from src to dst, skipping hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
