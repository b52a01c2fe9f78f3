package resourcecache

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
	"github.com/pquerna/cachecontrol"
	"github.com/pquerna/cachecontrol/cacheobject"
)

// Reasons a response is kept out of the partitions, on top of the
// cachecontrol reasons.
const (
	reasonNotOK          = "status_not_ok"
	reasonPartial        = "partial_content"
	reasonCacheControl   = "cache_control"
	reasonVary           = "vary"
	reasonSessionRequest = "session_request"
	reasonUnparsable     = "unparsable_cache_control"
)

// storeDecision reports whether resp to req may be written to a partition
// that every client reads from. Responses marked private or no-store,
// responses to requests carrying Authorization, and partial responses are
// never stored. On the API route a request carrying Cookie is scoped to one
// session, so its response is stored only when marked public.
func storeDecision(rt route.Route, req *upstream.Request, resp *storage.Response) (bool, string) {
	if !resp.OK() {
		return false, reasonNotOK
	}
	if resp.StatusCode == http.StatusPartialContent {
		return false, reasonPartial
	}

	header := req.Header
	if header == nil {
		header = http.Header{}
	}
	target, err := url.ParseRequestURI(req.Target)
	if err != nil {
		target = &url.URL{Path: req.Target}
	}
	httpReq := &http.Request{Method: http.MethodGet, URL: target, Header: header}
	httpResp := &http.Response{StatusCode: resp.StatusCode, Header: resp.Header, Request: httpReq}

	reasons, _, err := cachecontrol.CachableResponse(httpReq, httpResp, cachecontrol.Options{})
	if err != nil {
		return false, reasonUnparsable
	}
	if len(reasons) > 0 {
		return false, reasonCacheControl
	}

	if variesPerClient(resp.Header) {
		return false, reasonVary
	}

	if rt == route.API && header.Get("Cookie") != "" && !markedPublic(resp.Header) {
		return false, reasonSessionRequest
	}
	return true, ""
}

// storedCopy is the stamped copy written to a partition. Cookies set by the
// origin belong to the client that triggered the fetch.
func storedCopy(resp *storage.Response, at time.Time) *storage.Response {
	c := resp.Stamp(at)
	c.Header.Del("Set-Cookie")
	return c
}

func markedPublic(h http.Header) bool {
	dir, err := cacheobject.ParseResponseCacheControl(h.Get("Cache-Control"))
	return err == nil && dir.Public
}

// variesPerClient is true when the origin varies on a header that differs
// between clients. Identities ignore request headers.
func variesPerClient(h http.Header) bool {
	for _, value := range h.Values("Vary") {
		for _, field := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(field)) {
			case "*", "cookie", "authorization":
				return true
			}
		}
	}
	return false
}
