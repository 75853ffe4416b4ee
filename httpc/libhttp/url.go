package libhttp

import (
	"path"
	"strconv"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	defaultHTTPPort  = "80"
	defaultHTTPSPort = "443"
)

// URL is a decomposed request target.
// Path is stored without its leading slash, Port as the literal string from the URL.
type URL struct {
	Raw    string
	Secure bool
	Host   string
	Port   string
	Path   string
	Query  string
}

// Scheme returns "https" for secure targets and "http" otherwise.
func (u URL) Scheme() string {
	if u.Secure {
		return schemeHTTPS
	}
	return schemeHTTP
}

// HostPort returns the "host:port" form used for dialing and the Host header.
func (u URL) HostPort() string {
	return u.Host + ":" + u.Port
}

// RequestTarget returns the origin-form target sent in the request line.
func (u URL) RequestTarget() string {
	target := "/" + u.Path
	if u.Query != "" {
		target += "?" + u.Query
	}
	return target
}

// String renders the URL back into absolute form.
func (u URL) String() string {
	return u.Scheme() + "://" + u.HostPort() + u.RequestTarget()
}

// IsZero reports whether no target has been parsed.
func (u URL) IsZero() bool {
	return u.Host == "" && u.Port == ""
}

// ParseURL splits an http:// or https:// URL into host, port, path and query.
// The scheme prefix match is case-sensitive. The fragment is dropped.
func ParseURL(raw string) (URL, error) {
	u := URL{Raw: raw}

	var rest string
	switch {
	case strings.HasPrefix(raw, "https://"):
		u.Secure = true
		rest = raw[len("https://"):]
	case strings.HasPrefix(raw, "http://"):
		rest = raw[len("http://"):]
	default:
		return URL{}, newError(CodeInvalidURL, "invalid url: no scheme detected", nil)
	}

	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		rest = rest[:idx]
	}

	hostEnd := strings.IndexAny(rest, ":/?")
	if hostEnd < 0 {
		hostEnd = len(rest)
	}
	u.Host = rest[:hostEnd]
	rest = rest[hostEnd:]
	if u.Host == "" {
		return URL{}, newError(CodeInvalidURL, "invalid url: missing host", nil)
	}

	if u.Secure {
		u.Port = defaultHTTPSPort
	} else {
		u.Port = defaultHTTPPort
	}
	if strings.HasPrefix(rest, ":") {
		rest = rest[1:]
		portEnd := strings.IndexAny(rest, "/?")
		if portEnd < 0 {
			portEnd = len(rest)
		}
		u.Port = rest[:portEnd]
		rest = rest[portEnd:]
		if n, err := strconv.Atoi(u.Port); err != nil || n <= 0 || n > 65535 {
			return URL{}, newError(CodeInvalidURL, "invalid url: bad port "+strconv.Quote(u.Port), nil)
		}
	}

	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		u.Query = rest[idx+1:]
		rest = rest[:idx]
	}
	u.Path = strings.TrimPrefix(rest, "/")

	return u, nil
}

// ParseProxyURL parses a proxy URL, keeping only its scheme, host and port.
func ParseProxyURL(raw string) (URL, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return URL{}, err
	}
	u.Path = ""
	u.Query = ""
	return u, nil
}

// ResolveReference resolves a Location header value against the URL that produced it.
// Absolute, protocol-relative, absolute-path and relative references are supported.
func ResolveReference(base URL, location string) (URL, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return URL{}, newError(CodeInvalidURL, "invalid url: empty location", nil)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return ParseURL(location)
	case strings.HasPrefix(location, "//"):
		return ParseURL(base.Scheme() + ":" + location)
	case hasScheme(location):
		return URL{}, errorf(CodeInvalidURL, "invalid url: unsupported scheme in location %q", location)
	}

	resolved := base
	if idx := strings.IndexByte(location, '#'); idx >= 0 {
		location = location[:idx]
	}
	var query string
	if idx := strings.IndexByte(location, '?'); idx >= 0 {
		query = location[idx+1:]
		location = location[:idx]
	}

	if !strings.HasPrefix(location, "/") {
		baseDir := path.Dir("/" + base.Path)
		if strings.HasSuffix(base.Path, "/") {
			baseDir = "/" + base.Path
		}
		trailing := strings.HasSuffix(location, "/")
		location = path.Join(baseDir, location)
		if trailing && !strings.HasSuffix(location, "/") {
			location += "/"
		}
	}

	resolved.Path = strings.TrimPrefix(location, "/")
	resolved.Query = query
	resolved.Raw = resolved.String()
	return resolved, nil
}

// hasScheme reports whether ref starts with "scheme://".
func hasScheme(ref string) bool {
	idx := strings.Index(ref, "://")
	if idx <= 0 {
		return false
	}
	for i, c := range ref[:idx] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
