package libhttp

import (
	"bytes"
	"strconv"
	"strings"
)

var (
	crlf       = []byte("\r\n")
	headersEnd = []byte("\r\n\r\n")
)

type parseState int

const (
	stateHeaders parseState = iota
	stateBody
	stateComplete
	stateRedirect
)

// responseParser accumulates raw response bytes and tracks the header and
// chunk boundaries with cursors, so each feed only scans newly received data.
type responseParser struct {
	maxSize int

	// request context that changes body expectations
	headRequest    bool
	connectRequest bool
	followLocation bool
	drainRedirect  bool // read a framed redirect body so the connection can carry the next hop

	buf       []byte
	scanFrom  int // header terminator search resumes here
	bodyStart int
	cursor    int // chunked: offset of the next chunk-size line
	remaining int64

	state parseState
	resp  *Response
	body  []byte
}

func newResponseParser(maxSize int) *responseParser {
	return &responseParser{maxSize: maxSize}
}

func (p *responseParser) done() bool {
	return p.state == stateComplete || p.state == stateRedirect
}

// headersSeen reports whether the header/body boundary has been observed.
func (p *responseParser) headersSeen() bool {
	return p.state != stateHeaders
}

// feed appends received bytes and advances the state machine as far as the data allows.
func (p *responseParser) feed(data []byte) error {
	if p.done() {
		return nil
	} else if len(p.buf)+len(data) > p.maxSize {
		return errorf(CodeResponseTooLarge, "response exceeds %d bytes", p.maxSize)
	}
	p.buf = append(p.buf, data...)

	if p.state == stateHeaders {
		start := p.scanFrom - (len(headersEnd) - 1)
		if start < 0 {
			start = 0
		}
		idx := bytes.Index(p.buf[start:], headersEnd)
		if idx < 0 {
			p.scanFrom = len(p.buf)
			return nil
		}
		end := start + idx
		p.resp = parseHeaderBlock(p.buf[:end])
		p.bodyStart = end + len(headersEnd)
		p.cursor = p.bodyStart

		if p.followLocation {
			if _, ok := p.resp.Headers.Lookup("Location"); ok {
				if !p.drainRedirect {
					p.state = stateRedirect
					return nil
				}
				p.decideFraming()
				if p.resp.Framing == FramingClose {
					// an unframed body on a kept connection only ends at close
					p.state = stateRedirect
					return nil
				}
				return p.advanceBody()
			}
		}
		p.decideFraming()
	}

	return p.advanceBody()
}

func (p *responseParser) decideFraming() {
	code := p.resp.StatusCode
	if p.headRequest || (code >= 100 && code < 200) || code == 204 || code == 304 ||
		(p.connectRequest && code >= 200 && code < 300) {
		p.resp.Framing = FramingNone
		p.state = stateComplete
		return
	}

	p.state = stateBody
	if cl, ok := p.resp.Headers.Lookup("Content-Length"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil && n >= 0 {
			p.resp.Framing = FramingLength
			p.remaining = n
			return
		}
	}
	if te := p.resp.Headers.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		p.resp.Framing = FramingChunked
		return
	}
	p.resp.Framing = FramingClose
}

func (p *responseParser) advanceBody() error {
	if p.state != stateBody {
		return nil
	}

	switch p.resp.Framing {
	case FramingLength:
		available := int64(len(p.buf) - p.bodyStart)
		if available < p.remaining {
			return nil
		}
		end := p.bodyStart + int(p.remaining)
		p.body = p.buf[p.bodyStart:end]
		p.resp.Truncated = available > p.remaining
		p.state = stateComplete
	case FramingChunked:
		for {
			lineEnd := bytes.Index(p.buf[p.cursor:], crlf)
			if lineEnd < 0 {
				return nil // size line incomplete
			}
			size := parseChunkSize(p.buf[p.cursor : p.cursor+lineEnd])
			if size == 0 {
				p.state = stateComplete
				return nil
			} else if size > int64(p.maxSize) {
				return errorf(CodeResponseTooLarge, "chunk of %d bytes exceeds %d byte limit", size, p.maxSize)
			}
			dataStart := p.cursor + lineEnd + len(crlf)
			dataEnd := dataStart + int(size)
			if dataEnd+len(crlf) > len(p.buf) {
				return nil // chunk data incomplete
			}
			p.body = append(p.body, p.buf[dataStart:dataEnd]...)
			p.cursor = dataEnd + len(crlf)
		}
	}
	return nil
}

// finish handles the peer closing the connection.
// Only connection-close framing treats the close as the end of a valid response.
func (p *responseParser) finish() error {
	if p.done() {
		return nil
	} else if p.state == stateBody && p.resp.Framing == FramingClose {
		p.body = p.buf[p.bodyStart:]
		p.state = stateComplete
		return nil
	}
	return newError(CodeConnectionReset, "connection closed by peer", nil)
}

// response returns the parsed response, or nil if no header block was received.
// For incomplete responses the body holds whatever was decoded so far.
func (p *responseParser) response() *Response {
	if p.resp == nil {
		return nil
	}
	switch {
	case p.state == stateBody && p.resp.Framing == FramingLength:
		p.resp.Body = cloneBytes(p.buf[p.bodyStart:])
	case p.state == stateBody && p.resp.Framing == FramingClose:
		p.resp.Body = cloneBytes(p.buf[p.bodyStart:])
	default:
		p.resp.Body = cloneBytes(p.body)
	}
	if p.resp.Body == nil {
		p.resp.Body = []byte{}
	}
	return p.resp
}

// excess returns the number of bytes received past the declared Content-Length.
func (p *responseParser) excess() int {
	if p.resp == nil || p.resp.Framing != FramingLength || !p.resp.Truncated {
		return 0
	}
	return len(p.buf) - p.bodyStart - int(p.remaining)
}

// parseChunkSize reads the leading hex digits of a chunk-size line, ignoring
// extensions. A line without hex digits yields zero.
func parseChunkSize(line []byte) int64 {
	line = bytes.TrimLeft(line, " \t")
	var size int64
	for _, c := range line {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return size
		}
		if size > (1<<62)>>4 {
			return 1 << 62
		}
		size = size<<4 | int64(v)
	}
	return size
}

// parseHeaderBlock parses a status line and header lines. Malformed lines are tolerated.
func parseHeaderBlock(block []byte) *Response {
	raw := string(block)
	lines := strings.Split(raw, "\r\n")

	resp := &Response{RawHeaders: raw}
	resp.Version, resp.StatusCode, resp.StatusText = parseStatusLine(lines[0])
	for _, line := range lines[1:] {
		if line == "" {
			continue
		} else if (line[0] == ' ' || line[0] == '\t') && len(resp.Headers) > 0 {
			// obs-fold continuation
			last := &resp.Headers[len(resp.Headers)-1]
			last.Value = strings.TrimSpace(last.Value + " " + strings.TrimSpace(line))
			continue
		}
		resp.Headers = append(resp.Headers, parseHeaderLine(line))
	}
	return resp
}

// parseStatusLine extracts version, status code and reason from "HTTP/x.x NNN reason".
// An unrecognized line yields a zero status code.
func parseStatusLine(line string) (version string, code int, text string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return "", 0, ""
	}
	version = parts[0]
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return version, 0, ""
	}
	if len(parts) == 3 {
		text = parts[2]
	}
	return version, code, text
}

func parseHeaderLine(line string) Header {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return Header{Name: strings.TrimSpace(line)}
	}
	return Header{
		Name:  strings.TrimSpace(line[:idx]),
		Value: strings.TrimSpace(line[idx+1:]),
	}
}
