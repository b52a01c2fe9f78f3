package storage

import (
	"net/http"
	"strconv"
	"time"
)

// HeaderCachedAt carries the capture time of a stored copy in unix milliseconds.
const HeaderCachedAt = "X-Cached-At"

// Response is an immutable snapshot of an HTTP response. Callers must not
// modify a Response after handing it to a Partition; use Clone instead.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &Response{StatusCode: r.StatusCode, Header: header, Body: body}
}

// Stamp returns a copy carrying capture time t. The receiver is left untouched.
func (r *Response) Stamp(t time.Time) *Response {
	c := r.Clone()
	c.Header.Set(HeaderCachedAt, strconv.FormatInt(t.UnixMilli(), 10))
	return c
}

// CapturedAt parses the capture stamp. ok is false when it is missing or malformed.
func (r *Response) CapturedAt() (time.Time, bool) {
	raw := r.Header.Get(HeaderCachedAt)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Write sends the response to w.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, values := range r.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}
