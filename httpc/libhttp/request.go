package libhttp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// h2SettingsPayload is the base64url SETTINGS payload sent with h2c upgrade requests.
const h2SettingsPayload = "AAMAAABkAAQCAAAAAAIAAAAA"

// BuildRequest renders the request line, header block and active method body for target.
// When HTTP/2 is requested but h2InUse is false the HTTP/1.1 upgrade form is produced.
// The returned headerLen marks where the header block ends within the request.
func BuildRequest(opts *Options, target URL, h2InUse bool) (req []byte, headerLen int, err error) {
	upgrade := opts.HTTPVersion == HTTP2 && !h2InUse
	version := opts.HTTPVersion.String()
	if upgrade {
		version = HTTP11.String()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/%s\r\n", opts.Method, target.RequestTarget(), version)

	body := opts.Body()
	switch {
	case opts.Headers != "":
		writeRawHeaders(&buf, opts.Headers)
	case upgrade:
		writeUpgradeHeaders(&buf, opts, target, body)
	default:
		writeDefaultHeaders(&buf, opts, target, body)
	}
	buf.WriteString("\r\n")

	limit := opts.maxRequestSize()
	if buf.Len() > limit {
		return nil, 0, errorf(CodeRequestTooLarge, "request headers of %d bytes exceed %d byte limit", buf.Len(), limit)
	} else if len(body) > limit {
		return nil, 0, errorf(CodeRequestTooLarge, "request body of %d bytes exceeds %d byte limit", len(body), limit)
	}

	headerLen = buf.Len()
	buf.Write(body)
	return buf.Bytes(), headerLen, nil
}

func writeDefaultHeaders(buf *bytes.Buffer, opts *Options, target URL, body []byte) {
	writeHeader(buf, "Host", target.HostPort())
	writeHeader(buf, "User-Agent", userAgent(opts))
	writeHeader(buf, "Accept", "*/*")
	writeIncludeHeaders(buf, opts.IncludeHeaders)
	if opts.Cookies != "" {
		writeHeader(buf, "Cookies", opts.Cookies)
	}
	if opts.Connection != "" {
		writeHeader(buf, "Connection", opts.Connection)
	} else {
		writeHeader(buf, "Connection", "close")
	}
	writeBodyHeaders(buf, opts, body)
}

func writeUpgradeHeaders(buf *bytes.Buffer, opts *Options, target URL, body []byte) {
	writeHeader(buf, "Host", target.HostPort())
	writeHeader(buf, "User-Agent", userAgent(opts))
	writeHeader(buf, "Connection", "Upgrade, HTTP2-Settings")
	if target.Secure {
		writeHeader(buf, "Upgrade", "h2")
	} else {
		writeHeader(buf, "Upgrade", "h2c")
	}
	writeHeader(buf, "HTTP2-Settings", h2SettingsPayload)
	writeHeader(buf, "accept", "*/*")
	writeIncludeHeaders(buf, opts.IncludeHeaders)
	if opts.Cookies != "" {
		writeHeader(buf, "Cookies", opts.Cookies)
	}
	writeBodyHeaders(buf, opts, body)
}

func writeBodyHeaders(buf *bytes.Buffer, opts *Options, body []byte) {
	if !opts.Method.HasBody() {
		return
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType(opts.Method)
	}
	writeHeader(buf, "Content-Type", contentType)
	writeHeader(buf, "Content-Length", strconv.Itoa(len(body)))
}

func defaultContentType(m Method) string {
	if m == MethodPost {
		return "application/x-www-form-urlencoded"
	}
	return "text/html"
}

func userAgent(opts *Options) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return DefaultUserAgent
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// writeIncludeHeaders appends a caller supplied header block, one header per line, with CRLF endings.
func writeIncludeHeaders(buf *bytes.Buffer, block string) {
	for _, line := range strings.Split(block, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			buf.WriteString(line)
			buf.WriteString("\r\n")
		}
	}
}

// writeRawHeaders writes an override block verbatim, only ensuring it ends with a line terminator.
func writeRawHeaders(buf *bytes.Buffer, block string) {
	buf.WriteString(block)
	if !strings.HasSuffix(block, "\r\n") {
		buf.WriteString("\r\n")
	}
}

// BuildConnectRequest renders the CONNECT request asking a proxy for a tunnel to target.
func BuildConnectRequest(opts *Options, target URL) (req []byte, err error) {
	version := opts.HTTPVersion.String()
	if opts.HTTPVersion == HTTP2 {
		version = HTTP11.String() // the tunnel itself is negotiated over HTTP/1.x
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "CONNECT %s HTTP/%s\r\n", target.HostPort(), version)
	if opts.Headers != "" {
		writeRawHeaders(&buf, opts.Headers)
	} else {
		writeHeader(&buf, "Host", target.HostPort())
		writeHeader(&buf, "User-Agent", userAgent(opts))
		if opts.Cookies != "" {
			writeHeader(&buf, "Cookies", opts.Cookies)
		}
		writeHeader(&buf, "Connection", "keep-alive")
	}
	buf.WriteString("\r\n")

	if limit := opts.maxRequestSize(); buf.Len() > limit {
		return nil, errorf(CodeRequestTooLarge, "connect request of %d bytes exceeds %d byte limit", buf.Len(), limit)
	}
	return buf.Bytes(), nil
}
