package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/go-appsec/httpc/httpc/cli"
	"github.com/go-appsec/httpc/httpc/config"
	"github.com/go-appsec/httpc/httpc/libhttp"
)

// requestFlags holds the parsed command line of a request invocation.
type requestFlags struct {
	method      string
	headers     []string
	headersRaw  string
	userAgent   string
	data        string
	dataFile    string
	contentType string
	cookie      string
	cookieFile  string
	proxy       string

	output     string
	dumpHeader string
	include    bool
	head       bool
	verbose    bool
	logFile    string
	traceOut   string
	showTrace  bool
	fail       bool
	compressed bool

	location     bool
	noLocation   bool
	maxRedirects int
	timeout      time.Duration
	maxTime      float64

	http10, http11, http2      bool
	tls10, tls11, tls12, tls13 bool

	maxResponseSize int
	maxRequestLen   int
	configPath      string
}

// ErrHTTPStatus is returned with --fail when the final status is 400 or above.
var ErrHTTPStatus = errors.New("server returned error status")

func parseRequest(args []string) error {
	fs := pflag.NewFlagSet("httpc", pflag.ContinueOnError)
	fs.SetInterspersed(true)
	var rf requestFlags

	fs.StringVarP(&rf.method, "request", "X", "", "request method (GET, POST, PUT, PATCH, HEAD, OPTIONS, DELETE, TRACE)")
	fs.StringArrayVarP(&rf.headers, "header", "H", nil, "extra request header, repeatable")
	fs.StringVar(&rf.headersRaw, "headers-raw", "", "replace the whole default header block")
	fs.StringVarP(&rf.userAgent, "user-agent", "A", "", "User-Agent header value")
	fs.StringVarP(&rf.data, "data", "d", "", "request body (implies POST unless -X is given)")
	fs.StringVar(&rf.dataFile, "data-file", "", "read request body from file")
	fs.StringVar(&rf.contentType, "content-type", "", "Content-Type for the request body")
	fs.StringVarP(&rf.cookie, "cookie", "b", "", "cookie string sent in the Cookies header")
	fs.StringVar(&rf.cookieFile, "cookie-file", "", "read cookies from file, one per line")
	fs.StringVarP(&rf.proxy, "proxy", "x", "", "tunnel through an HTTP CONNECT proxy")

	fs.StringVarP(&rf.output, "output", "o", "", "write body to file instead of stdout")
	fs.StringVarP(&rf.dumpHeader, "dump-header", "D", "", "write response headers to file")
	fs.BoolVarP(&rf.include, "include", "i", false, "include response headers in the output")
	fs.BoolVarP(&rf.head, "head", "I", false, "send HEAD and print headers only")
	fs.BoolVarP(&rf.verbose, "verbose", "v", false, "trace the connection and exchange on stderr")
	fs.StringVar(&rf.logFile, "log-file", "", "also write the verbose trace to file")
	fs.StringVar(&rf.traceOut, "trace-out", "", "save the hop trace to file (view with httpc trace)")
	fs.BoolVar(&rf.showTrace, "trace", false, "print the hop table on stderr")
	fs.BoolVarP(&rf.fail, "fail", "f", false, "exit with an error on HTTP status 400 or above")
	fs.BoolVar(&rf.compressed, "compressed", false, "request and decode gzip, deflate and zstd bodies")

	fs.BoolVarP(&rf.location, "location", "L", false, "follow redirects")
	fs.BoolVar(&rf.noLocation, "no-location", false, "do not follow redirects")
	fs.IntVar(&rf.maxRedirects, "max-redirs", 0, "maximum redirects to follow (default from config, 10)")
	fs.DurationVar(&rf.timeout, "timeout", 0, "per-read response timeout (default from config, 6s)")
	fs.Float64VarP(&rf.maxTime, "max-time", "m", 0, "maximum seconds for the whole operation")

	fs.BoolVar(&rf.http10, "http1.0", false, "use HTTP/1.0")
	fs.BoolVar(&rf.http11, "http1.1", false, "use HTTP/1.1")
	fs.BoolVar(&rf.http2, "http2", false, "offer HTTP/2 (ALPN on https, upgrade headers on http)")
	fs.BoolVar(&rf.tls10, "tlsv1.0", false, "pin TLS 1.0")
	fs.BoolVar(&rf.tls11, "tlsv1.1", false, "pin TLS 1.1")
	fs.BoolVar(&rf.tls12, "tlsv1.2", false, "pin TLS 1.2")
	fs.BoolVar(&rf.tls13, "tlsv1.3", false, "pin TLS 1.3")
	fs.IntVar(&rf.maxResponseSize, "max-filesize", 0, "maximum response size in bytes")
	fs.IntVar(&rf.maxRequestLen, "max-request-size", 0, "maximum request header or body size in bytes")
	fs.StringVar(&rf.configPath, "config", "", "config file (default ~/.config/httpc/config.json)")

	fs.Usage = func() {
		_, _ = fmt.Fprint(os.Stderr, "Usage: httpc [options] <url>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) != 1 {
		fs.Usage()
		return errors.New("exactly one url required")
	}

	cfg, err := loadConfig(rf.configPath)
	if err != nil {
		return err
	}

	s := libhttp.NewSession()
	defer func() { _ = s.Close() }()

	closeLog, err := rf.apply(s, fs, cfg, remaining[0])
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if rf.maxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(rf.maxTime*float64(time.Second)))
		defer cancel()
	}

	return execute(ctx, s, &rf)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			log.Printf("config: no user config dir: %v", err)
			return config.DefaultConfig(config.Version), nil
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// apply translates flags and config defaults into session options.
// The returned func closes the log file, if one was opened.
func (rf *requestFlags) apply(s *libhttp.Session, fs *pflag.FlagSet, cfg *config.Config, rawURL string) (func(), error) {
	closeLog := func() {}
	set := func(opt libhttp.Option, value any) error {
		return s.SetOption(opt, value)
	}

	if err := set(libhttp.OptURL, rawURL); err != nil {
		return closeLog, err
	}

	method := rf.method
	switch {
	case method != "":
	case rf.head:
		method = "HEAD"
	case rf.data != "" || rf.dataFile != "":
		method = "POST"
	default:
		method = "GET"
	}
	m, err := libhttp.ParseMethod(method)
	if err != nil {
		return closeLog, cli.UnknownMethodError(method, libhttp.Methods())
	}
	_ = set(libhttp.OptRequestMethod, m)

	if rf.data != "" {
		if err := set(bodyOption(m, false), rf.data); err != nil {
			return closeLog, err
		}
	} else if rf.dataFile != "" {
		if err := set(bodyOption(m, true), rf.dataFile); err != nil {
			return closeLog, err
		}
	}

	ua := cfg.UserAgent
	if fs.Changed("user-agent") {
		ua = rf.userAgent
	}
	include := append([]string(nil), rf.headers...)
	if rf.compressed {
		include = append(include, "Accept-Encoding: "+libhttp.AcceptEncoding)
	}

	var opts []optionValue
	opts = append(opts,
		optionValue{libhttp.OptUserAgent, ua},
		optionValue{libhttp.OptHeadersInclude, strings.Join(include, "\r\n")},
		optionValue{libhttp.OptHeaders, rf.headersRaw},
		optionValue{libhttp.OptContentType, rf.contentType},
		optionValue{libhttp.OptCookies, rf.cookie},
	)
	if rf.cookieFile != "" {
		opts = append(opts, optionValue{libhttp.OptCookiesFile, rf.cookieFile})
	}

	proxy := cfg.Proxy
	if fs.Changed("proxy") {
		proxy = rf.proxy
	}
	if proxy != "" {
		opts = append(opts, optionValue{libhttp.OptProxyURL, proxy})
	}

	follow := cfg.Follow()
	if rf.location {
		follow = true
	} else if rf.noLocation {
		follow = false
	}
	maxRedirects := cfg.MaxRedirects
	if fs.Changed("max-redirs") {
		maxRedirects = rf.maxRedirects
	}
	timeout := time.Duration(cfg.Timeout)
	if fs.Changed("timeout") {
		timeout = rf.timeout
	}
	opts = append(opts,
		optionValue{libhttp.OptRedirects, follow},
		optionValue{libhttp.OptMaxRedirect, maxRedirects},
		optionValue{libhttp.OptResponseTimeout, timeout},
	)

	httpVersion := cfg.HTTPVersion
	switch {
	case rf.http10:
		httpVersion = "1.0"
	case rf.http11:
		httpVersion = "1.1"
	case rf.http2:
		httpVersion = "2"
	}
	if httpVersion != "" {
		opts = append(opts, optionValue{libhttp.OptHTTPVersion, httpVersion})
	}

	tlsVersion := cfg.TLSVersion
	switch {
	case rf.tls10:
		tlsVersion = "1.0"
	case rf.tls11:
		tlsVersion = "1.1"
	case rf.tls12:
		tlsVersion = "1.2"
	case rf.tls13:
		tlsVersion = "1.3"
	}
	opts = append(opts, optionValue{libhttp.OptTLSVersion, tlsVersion})

	if rf.maxResponseSize > 0 {
		opts = append(opts, optionValue{libhttp.OptMaxResponseSize, rf.maxResponseSize})
	}
	if rf.maxRequestLen > 0 {
		opts = append(opts, optionValue{libhttp.OptMaxRequestSize, rf.maxRequestLen})
	}

	for _, o := range opts {
		if err := set(o.opt, o.value); err != nil {
			return closeLog, err
		}
	}

	if rf.verbose {
		_ = set(libhttp.OptVerbosity, true)
		_ = set(libhttp.OptVerboseWriter, io.Writer(os.Stderr))
		if rf.logFile != "" {
			f, err := os.OpenFile(rf.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return closeLog, fmt.Errorf("opening log file: %w", err)
			}
			closeLog = func() { _ = f.Close() }
			_ = set(libhttp.OptLogWriter, io.Writer(f))
		}
	}
	return closeLog, nil
}

type optionValue struct {
	opt   libhttp.Option
	value any
}

// bodyOption picks the body slot matching the method; methods without a body use the POST slot.
func bodyOption(m libhttp.Method, file bool) libhttp.Option {
	switch m {
	case libhttp.MethodPut:
		if file {
			return libhttp.OptPutBodyFile
		}
		return libhttp.OptPutBody
	case libhttp.MethodPatch:
		if file {
			return libhttp.OptPatchBodyFile
		}
		return libhttp.OptPatchBody
	default:
		if file {
			return libhttp.OptPostBodyFile
		}
		return libhttp.OptPostBody
	}
}

// execute performs the request, directly or through the proxy, and renders the result.
func execute(ctx context.Context, s *libhttp.Session, rf *requestFlags) error {
	var err error
	if s.Options().ProxyURL.IsZero() {
		err = s.Perform(ctx)
	} else {
		err = s.ProxyDo(ctx)
	}

	if rf.traceOut != "" {
		if terr := saveTrace(s, rf.traceOut); terr != nil {
			log.Printf("trace: failed to save %s: %v", rf.traceOut, terr)
		}
	}
	if rf.showTrace {
		printHopTable(os.Stderr, s.Hops())
	}
	if err != nil {
		return err
	}

	if err := writeOutput(s, rf); err != nil {
		return err
	}
	if rf.fail && s.StatusCode() >= 400 {
		return fmt.Errorf("%w: %d", ErrHTTPStatus, s.StatusCode())
	}
	return nil
}
