// Package route classifies intercepted requests into caching routes.
package route

import (
	"net/http"
	"strings"
)

// Route selects the caching policy for a request.
type Route string

const (
	// API requests use network-first.
	API Route = "api"
	// Image requests use stale-while-revalidate.
	Image Route = "image"
	// Static requests use cache-first.
	Static Route = "static"
	// Bypass marks requests that skip the policies. Classify never returns it.
	Bypass Route = "bypass"
)

// DefaultAPIPrefix marks backend API calls.
const DefaultAPIPrefix = "/api/"

// HeaderFetchDest is the request header carrying the fetch destination.
const HeaderFetchDest = "Sec-Fetch-Dest"

// Classify is a pure function of the request path and destination. The API
// prefix takes precedence over an image destination.
func Classify(r *http.Request, apiPrefix string) Route {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}

	switch {
	case strings.HasPrefix(r.URL.Path, apiPrefix):
		return API
	case strings.EqualFold(r.Header.Get(HeaderFetchDest), "image"):
		return Image
	default:
		return Static
	}
}

// Cacheable reports whether r may be served from or written to a partition.
// Only plain GETs qualify; a ranged GET would store or serve a partial body
// under the identity of the whole resource.
func Cacheable(r *http.Request) bool {
	return r.Method == http.MethodGet && r.Header.Get("Range") == ""
}
