package libhttp

import (
	"strings"
	"time"

	"github.com/go-analyze/bulk"
)

// Header is a single response header as received.
type Header struct {
	// Name preserves original casing (surrounding whitespace trimmed)
	Name string `json:"name"`

	// Value is the header value with leading/trailing whitespace trimmed
	Value string `json:"value"`
}

// Headers is an ordered header list with case-insensitive access.
type Headers []Header

// Get returns the first header value with the given name (case-insensitive).
// Returns empty string if not found.
func (h *Headers) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the first header value with the given name and whether it was present.
func (h *Headers) Lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Set sets or replaces the first header with the given name (case-insensitive).
// If not found, appends a new header.
func (h *Headers) Set(name, value string) {
	for i, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Remove removes all headers with the given name (case-insensitive).
func (h *Headers) Remove(name string) {
	*h = bulk.SliceFilterInPlace(func(hdr Header) bool {
		return !strings.EqualFold(hdr.Name, name)
	}, *h)
}

// Framing is how the end of a response body is determined.
type Framing int

const (
	FramingNone Framing = iota
	FramingLength
	FramingChunked
	FramingClose
)

func (f Framing) String() string {
	switch f {
	case FramingLength:
		return "content-length"
	case FramingChunked:
		return "chunked"
	case FramingClose:
		return "connection-close"
	default:
		return "none"
	}
}

// Response is the result of one request/response exchange.
type Response struct {
	// RawHeaders is the header block as received: status line plus header
	// lines, CRLF separated, without the terminating blank line.
	RawHeaders string

	Version    string // "HTTP/1.1", "HTTP/1.0", "HTTP/2.0"
	StatusCode int
	StatusText string
	Headers    Headers

	Body    []byte
	Framing Framing

	// Truncated is set when the peer sent more bytes than Content-Length declared.
	Truncated bool
}

// Header returns the value of the named header and whether it was present.
func (r *Response) Header(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	return r.Headers.Lookup(name)
}

// Hop is an immutable record of one exchange in a redirect chain.
type Hop struct {
	URL        string
	Method     string
	StatusCode int
	Location   string
	RawHeaders string
	BodyLength int
	Duration   time.Duration
	Err        error
}
