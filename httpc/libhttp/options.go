package libhttp

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is the library version advertised in the default User-Agent.
const Version = "1.2.0"

const (
	DefaultUserAgent       = "libhttp/" + Version
	DefaultResponseTimeout = 6 * time.Second
	DefaultMaxRedirects    = 10
	DefaultMaxResponseSize = 98567
	DefaultMaxRequestSize  = 4097
)

// Method is an HTTP request method supported by the request builder.
type Method int

const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
	MethodPatch
	MethodHead
	MethodOptions
	MethodDelete
	MethodTrace
)

var methodNames = []string{"", "GET", "POST", "PUT", "PATCH", "HEAD", "OPTIONS", "DELETE", "TRACE"}

// Methods lists the method names accepted by ParseMethod.
func Methods() []string {
	return append([]string(nil), methodNames[1:]...)
}

func (m Method) String() string {
	if m < MethodGet || m > MethodTrace {
		return methodNames[MethodGet]
	}
	return methodNames[m]
}

// HasBody reports whether the method sends one of the configured request bodies.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// ParseMethod maps a method name (case-insensitive) to a Method.
func ParseMethod(s string) (Method, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i := 1; i < len(methodNames); i++ {
		if methodNames[i] == upper {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported method: %s", s)
}

// HTTPVersion selects the protocol version written in the request line.
type HTTPVersion int

const (
	HTTP10 HTTPVersion = iota + 1
	HTTP11
	HTTP2
)

func (v HTTPVersion) String() string {
	switch v {
	case HTTP10:
		return "1.0"
	case HTTP2:
		return "2"
	default:
		return "1.1"
	}
}

// ParseHTTPVersion accepts "1.0", "1.1", "2" and "2.0", with or without an "HTTP/" prefix.
func ParseHTTPVersion(s string) (HTTPVersion, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "HTTP/") {
	case "1.0":
		return HTTP10, nil
	case "1.1":
		return HTTP11, nil
	case "2", "2.0":
		return HTTP2, nil
	}
	return 0, fmt.Errorf("unsupported http version: %s", s)
}

// TLSVersion pins the TLS protocol version. TLSDefault negotiates the latest supported.
type TLSVersion int

const (
	TLSDefault TLSVersion = iota
	TLS10
	TLS11
	TLS12
	TLS13
)

func (v TLSVersion) String() string {
	switch v {
	case TLS10:
		return "TLSv1"
	case TLS11:
		return "TLSv1.1"
	case TLS12:
		return "TLSv1.2"
	case TLS13:
		return "TLSv1.3"
	default:
		return ""
	}
}

// ParseTLSVersion accepts "1.0".."1.3" as well as the "TLSv1.x" spellings.
func ParseTLSVersion(s string) (TLSVersion, error) {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tlsv")
	switch v {
	case "":
		return TLSDefault, nil
	case "1", "1.0":
		return TLS10, nil
	case "1.1":
		return TLS11, nil
	case "1.2":
		return TLS12, nil
	case "1.3":
		return TLS13, nil
	}
	return 0, fmt.Errorf("unsupported tls version: %s", s)
}

// RedirectPolicy controls whether Location headers are followed.
type RedirectPolicy int

const (
	RedirectsAllow RedirectPolicy = iota
	RedirectsDisallow
)

// Options is the per-request configuration of a Session.
type Options struct {
	URL      URL
	ProxyURL URL

	Method      Method
	HTTPVersion HTTPVersion
	TLSVersion  TLSVersion

	// Headers replaces the whole default header block when non-empty.
	Headers string
	// IncludeHeaders is appended to the default header block.
	IncludeHeaders string
	UserAgent      string
	Connection     string
	ContentType    string
	Cookies        string

	PostBody  []byte
	PutBody   []byte
	PatchBody []byte

	Redirects       RedirectPolicy
	MaxRedirects    int
	ResponseTimeout time.Duration

	Verbose       bool
	VerboseWriter io.Writer
	LogWriter     io.Writer

	MaxResponseSize int
	MaxRequestSize  int
}

// DefaultOptions returns the configuration a new session starts with.
func DefaultOptions() Options {
	return Options{
		Method:          MethodGet,
		HTTPVersion:     HTTP11,
		Redirects:       RedirectsAllow,
		MaxRedirects:    DefaultMaxRedirects,
		ResponseTimeout: DefaultResponseTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
		MaxRequestSize:  DefaultMaxRequestSize,
	}
}

// Body returns the body configured for the active method, or nil for methods without one.
func (o *Options) Body() []byte {
	switch o.Method {
	case MethodPost:
		return o.PostBody
	case MethodPut:
		return o.PutBody
	case MethodPatch:
		return o.PatchBody
	default:
		return nil
	}
}

func (o *Options) responseTimeout() time.Duration {
	if o.ResponseTimeout <= 0 {
		return DefaultResponseTimeout
	}
	return o.ResponseTimeout
}

func (o *Options) maxResponseSize() int {
	if o.MaxResponseSize <= 0 {
		return DefaultMaxResponseSize
	}
	return o.MaxResponseSize
}

func (o *Options) maxRequestSize() int {
	if o.MaxRequestSize <= 0 {
		return DefaultMaxRequestSize
	}
	return o.MaxRequestSize
}

func (o *Options) followRedirects() bool {
	return o.Redirects == RedirectsAllow && o.MaxRedirects > 0
}

// Option names a configurable session setting for SetOption.
type Option int

const (
	OptURL Option = iota + 1
	OptRequestMethod
	OptHTTPVersion
	OptTLSVersion
	OptHeaders
	OptHeadersInclude
	OptUserAgent
	OptConnection
	OptContentType
	OptPostBody
	OptPutBody
	OptPatchBody
	OptPostBodyFile
	OptPutBodyFile
	OptPatchBodyFile
	OptCookies
	OptCookiesFile
	OptProxyURL
	OptRedirects
	OptMaxRedirect
	OptResponseTimeout
	OptVerbosity
	OptVerboseWriter
	OptLogWriter
	OptMaxResponseSize
	OptMaxRequestSize
)

// SetOption applies a single named option. URL options run the URL parser
// and fail with InvalidURL when the scheme is not recognized.
// A failure is also recorded as the session error.
func (s *Session) SetOption(opt Option, value any) error {
	if err := s.opts.set(opt, value); err != nil {
		return s.fail(err)
	}
	return nil
}

func (o *Options) set(opt Option, value any) error {
	switch opt {
	case OptURL:
		str, err := stringValue(opt, value)
		if err != nil {
			return err
		}
		u, err := ParseURL(str)
		if err != nil {
			return err
		}
		o.URL = u
	case OptProxyURL:
		str, err := stringValue(opt, value)
		if err != nil {
			return err
		}
		u, err := ParseProxyURL(str)
		if err != nil {
			return err
		}
		o.ProxyURL = u
	case OptRequestMethod:
		switch v := value.(type) {
		case Method:
			o.Method = v
		case string:
			m, err := ParseMethod(v)
			if err != nil {
				return err
			}
			o.Method = m
		default:
			return optionTypeError(opt, value)
		}
	case OptHTTPVersion:
		switch v := value.(type) {
		case HTTPVersion:
			o.HTTPVersion = v
		case string:
			hv, err := ParseHTTPVersion(v)
			if err != nil {
				return err
			}
			o.HTTPVersion = hv
		default:
			return optionTypeError(opt, value)
		}
	case OptTLSVersion:
		switch v := value.(type) {
		case TLSVersion:
			o.TLSVersion = v
		case string:
			tv, err := ParseTLSVersion(v)
			if err != nil {
				return err
			}
			o.TLSVersion = tv
		default:
			return optionTypeError(opt, value)
		}
	case OptHeaders, OptHeadersInclude, OptUserAgent, OptConnection, OptContentType, OptCookies:
		str, err := stringValue(opt, value)
		if err != nil {
			return err
		}
		switch opt {
		case OptHeaders:
			o.Headers = str
		case OptHeadersInclude:
			o.IncludeHeaders = str
		case OptUserAgent:
			o.UserAgent = str
		case OptConnection:
			o.Connection = str
		case OptContentType:
			o.ContentType = str
		default:
			o.Cookies = str
		}
	case OptPostBody, OptPutBody, OptPatchBody:
		var body []byte
		switch v := value.(type) {
		case []byte:
			body = v
		case string:
			body = []byte(v)
		default:
			return optionTypeError(opt, value)
		}
		o.setBody(opt, body)
	case OptPostBodyFile, OptPutBodyFile, OptPatchBodyFile:
		p, err := stringValue(opt, value)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return newError(CodeSystemError, "read body file", err)
		}
		o.setBody(opt, data)
	case OptCookiesFile:
		p, err := stringValue(opt, value)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return newError(CodeSystemError, "read cookie file", err)
		}
		o.Cookies = joinCookieLines(string(data))
	case OptRedirects:
		switch v := value.(type) {
		case RedirectPolicy:
			o.Redirects = v
		case bool:
			if v {
				o.Redirects = RedirectsAllow
			} else {
				o.Redirects = RedirectsDisallow
			}
		default:
			return optionTypeError(opt, value)
		}
	case OptMaxRedirect, OptMaxResponseSize, OptMaxRequestSize:
		n, ok := value.(int)
		if !ok {
			return optionTypeError(opt, value)
		}
		switch opt {
		case OptMaxRedirect:
			o.MaxRedirects = n
		case OptMaxResponseSize:
			o.MaxResponseSize = n
		default:
			o.MaxRequestSize = n
		}
	case OptResponseTimeout:
		switch v := value.(type) {
		case time.Duration:
			o.ResponseTimeout = v
		case int:
			o.ResponseTimeout = time.Duration(v) * time.Second
		case float64:
			o.ResponseTimeout = time.Duration(v * float64(time.Second))
		default:
			return optionTypeError(opt, value)
		}
	case OptVerbosity:
		v, ok := value.(bool)
		if !ok {
			return optionTypeError(opt, value)
		}
		o.Verbose = v
	case OptVerboseWriter, OptLogWriter:
		var w io.Writer
		if value != nil {
			var ok bool
			if w, ok = value.(io.Writer); !ok {
				return optionTypeError(opt, value)
			}
		}
		if opt == OptVerboseWriter {
			o.VerboseWriter = w
		} else {
			o.LogWriter = w
		}
	default:
		return fmt.Errorf("unknown option %d", int(opt))
	}
	return nil
}

func (o *Options) setBody(opt Option, body []byte) {
	switch opt {
	case OptPostBody, OptPostBodyFile:
		o.PostBody = body
	case OptPutBody, OptPutBodyFile:
		o.PutBody = body
	default:
		o.PatchBody = body
	}
}

// joinCookieLines folds a cookie file (one cookie per line) into a single header value.
func joinCookieLines(data string) string {
	var parts []string
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}

func stringValue(opt Option, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", optionTypeError(opt, value)
}

func optionTypeError(opt Option, value any) error {
	return fmt.Errorf("option %d: unsupported value type %T", int(opt), value)
}

// CopyOptions copies the configuration of src into dst, leaving connections and results untouched.
func CopyOptions(dst, src *Session) {
	dst.opts = src.opts
	dst.opts.PostBody = cloneBytes(src.opts.PostBody)
	dst.opts.PutBody = cloneBytes(src.opts.PutBody)
	dst.opts.PatchBody = cloneBytes(src.opts.PatchBody)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
}
