// Package cachekey derives the request identity used as a partition key.
package cachekey

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Tracking parameters stripped from identities. Only names that are never
// meaningful to the origin belong here; a generic name such as "ref" can
// select a different resource on an API call.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
}

// Identity returns the origin-relative identity of r: the escaped path plus
// the normalized query.
func Identity(r *http.Request) string {
	return FromURL(r.URL)
}

// FromURL is Identity for a bare URL. Scheme, host and fragment are dropped.
func FromURL(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	query := NormalizeQuery(u.Query())
	if query == "" {
		return path
	}
	return path + "?" + query
}

// Parse resolves a configured path such as "/index.html" or a full URL to its identity.
func Parse(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return FromURL(u), nil
}

// NormalizeQuery sorts parameters by key, keeping value order, and drops
// tracking parameters.
func NormalizeQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if isTracking(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTracking(param string) bool {
	return trackingParams[param] || strings.HasPrefix(param, "utm_")
}
