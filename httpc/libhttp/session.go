package libhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Session holds the configuration, connections and latest result of one logical request.
// A Session is not safe for concurrent use.
type Session struct {
	opts Options

	conn   *Conn // primary connection
	proxy  *Conn // connection to the proxy
	tunnel *Conn // stream to the target inside the proxy tunnel, may equal proxy

	resp      *Response
	hops      []Hop
	effective URL
	err       *Error
}

// NewSession returns a session with default options and no connections.
func NewSession() *Session {
	return &Session{opts: DefaultOptions()}
}

// Options exposes the session configuration for direct modification.
func (s *Session) Options() *Options {
	return &s.opts
}

// ResetOptions restores the default configuration.
func (s *Session) ResetOptions() {
	s.opts = DefaultOptions()
}

// fail records err as the session error and returns it as *Error.
func (s *Session) fail(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = newError(CodeSystemError, "system error", err)
	}
	s.err = e
	return e
}

// Err returns the most recent failure, or nil if no operation has failed.
func (s *Session) Err() *Error {
	return s.err
}

// ErrorCode returns the code of the most recent failure, CodeSuccess if none.
func (s *Session) ErrorCode() Code {
	if s.err == nil {
		return CodeSuccess
	}
	return s.err.Code
}

// ErrorMessage returns the message of the most recent failure, "Success" if none.
func (s *Session) ErrorMessage() string {
	if s.err == nil {
		return "Success"
	}
	return s.err.Error()
}

// Connected reports whether the primary connection is established.
func (s *Session) Connected() bool {
	return s.conn != nil
}

// Conn returns the primary connection, nil when not connected.
func (s *Session) Conn() *Conn {
	return s.conn
}

// Connect establishes the primary connection to the configured URL,
// replacing any existing one.
func (s *Session) Connect(ctx context.Context) error {
	if s.opts.URL.IsZero() {
		return s.fail(newError(CodeNoURL, "no target url", nil))
	}
	s.Disconnect()

	c, err := s.dial(ctx, s.opts.URL, s.opts.HTTPVersion == HTTP2)
	if err != nil {
		return s.fail(err)
	}
	s.conn = c
	return nil
}

// Start sends the configured request over the primary connection and reads
// the response, following redirects by reconnecting to each new location.
func (s *Session) Start(ctx context.Context) error {
	if s.conn == nil {
		return s.fail(newError(CodeNotConnected, "sockets ends not connected", nil))
	}
	return s.run(ctx, s.conn, false, func(ctx context.Context, next URL) (*Conn, error) {
		s.Disconnect()
		c, err := s.dial(ctx, next, s.opts.HTTPVersion == HTTP2)
		if err != nil {
			return nil, err
		}
		s.conn = c
		return c, nil
	})
}

// Perform connects and starts the request.
func (s *Session) Perform(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

// Disconnect closes the primary connection. It is safe to call when not connected.
func (s *Session) Disconnect() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases every connection held by the session.
func (s *Session) Close() error {
	s.Disconnect()
	s.ProxyDisconnect()
	return nil
}

// reconnectFunc returns the connection the next redirect hop is sent on.
type reconnectFunc func(ctx context.Context, next URL) (*Conn, error)

// run drives the redirect loop. Each hop gets a fresh response and a Hop record.
// At most MaxRedirects locations are followed; the response after that is final.
// Any response carrying Location is followed while the policy allows it.
// When reuse is set the connection outlives a redirect: framed redirect bodies
// are drained before the next hop, and requests ask for keep-alive unless a
// Connection value is configured.
func (s *Session) run(ctx context.Context, c *Conn, reuse bool, reconnect reconnectFunc) error {
	s.resp = nil
	s.hops = nil

	target := s.opts.URL
	hopOpts := s.opts
	if reuse && hopOpts.followRedirects() && hopOpts.Connection == "" {
		hopOpts.Connection = "keep-alive"
	}
	for hop := 0; ; hop++ {
		s.effective = target
		start := time.Now()

		req, headerLen, err := BuildRequest(&hopOpts, target, c.H2())
		if err != nil {
			return s.fail(err)
		}
		resp, err := s.exchange(ctx, c, exchangeOptions{
			request:        req,
			headerLen:      headerLen,
			headRequest:    hopOpts.Method == MethodHead,
			followLocation: hopOpts.followRedirects() && hop < hopOpts.MaxRedirects,
			drainRedirect:  reuse,
		})
		s.resp = resp
		s.hops = append(s.hops, newHop(target, hopOpts.Method, resp, time.Since(start), err))
		if err != nil {
			return s.fail(err)
		}

		location, ok := resp.Header("Location")
		if !ok || !hopOpts.followRedirects() || hop >= hopOpts.MaxRedirects {
			return nil
		}

		next, err := ResolveReference(target, location)
		if err != nil {
			return s.fail(err)
		}
		s.hops[len(s.hops)-1].Location = next.String()
		s.logf("** Following %s ...", next)

		hopOpts.Method = redirectMethod(resp.StatusCode, hopOpts.Method)
		if c, err = reconnect(ctx, next); err != nil {
			return s.fail(err)
		}
		target = next
	}
}

// redirectMethod returns the method for the request following a redirect.
// 307 and 308 preserve the method and body; other redirects continue with GET.
func redirectMethod(status int, method Method) Method {
	if status == 307 || status == 308 || method == MethodHead {
		return method
	}
	return MethodGet
}

func newHop(target URL, method Method, resp *Response, d time.Duration, err error) Hop {
	h := Hop{
		URL:      target.String(),
		Method:   method.String(),
		Duration: d,
		Err:      err,
	}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.RawHeaders = resp.RawHeaders
		h.BodyLength = len(resp.Body)
		h.Location, _ = resp.Header("Location")
	}
	return h
}

// Response returns the final response of the last Start, or nil.
func (s *Session) Response() *Response {
	return s.resp
}

// Hops returns the exchanges of the last request, one per redirect hop.
func (s *Session) Hops() []Hop {
	return append([]Hop(nil), s.hops...)
}

// EffectiveURL returns the URL of the last exchange, after redirects.
func (s *Session) EffectiveURL() URL {
	return s.effective
}

// StatusCode returns the numeric status of the final response, 0 when none was parsed.
func (s *Session) StatusCode() int {
	if s.resp == nil {
		return 0
	}
	return s.resp.StatusCode
}

// Headers returns the raw header block of the final response.
func (s *Session) Headers() string {
	if s.resp == nil {
		return ""
	}
	return s.resp.RawHeaders
}

// Header returns the value of a response header and whether it was present.
// Names match case-insensitively.
func (s *Session) Header(name string) (string, bool) {
	return s.resp.Header(name)
}

// Body returns the final response body.
func (s *Session) Body() []byte {
	if s.resp == nil {
		return nil
	}
	return s.resp.Body
}

// DecodedBody returns the body with its Content-Encoding removed.
// The decoded size is bounded by the response size limit.
func (s *Session) DecodedBody() ([]byte, error) {
	if s.resp == nil {
		return nil, nil
	}
	return DecodeBody(s.resp.Body, s.resp.Headers.Get("Content-Encoding"), s.opts.maxResponseSize())
}

// CertificateSubject returns the peer certificate subject of the TLS connection the response came from.
func (s *Session) CertificateSubject() string {
	if c := s.activeConn(); c != nil {
		return c.CertSubject
	}
	return ""
}

// CertificateIssuer returns the peer certificate issuer of the TLS connection the response came from.
func (s *Session) CertificateIssuer() string {
	if c := s.activeConn(); c != nil {
		return c.CertIssuer
	}
	return ""
}

// NegotiatedProtocol returns the ALPN protocol of the active connection.
func (s *Session) NegotiatedProtocol() string {
	if c := s.activeConn(); c != nil {
		return c.Protocol
	}
	return ""
}

func (s *Session) activeConn() *Conn {
	switch {
	case s.conn != nil:
		return s.conn
	case s.tunnel != nil:
		return s.tunnel
	default:
		return s.proxy
	}
}

func (s *Session) verboseWriter() io.Writer {
	if s.opts.VerboseWriter != nil {
		return s.opts.VerboseWriter
	}
	return os.Stdout
}

// logf writes a diagnostic line to the verbose sink and the log sink when verbose.
func (s *Session) logf(format string, args ...any) {
	if !s.opts.Verbose {
		return
	}
	line := fmt.Sprintf(format, args...) + "\n"
	_, _ = io.WriteString(s.verboseWriter(), line)
	if s.opts.LogWriter != nil {
		_, _ = io.WriteString(s.opts.LogWriter, line)
	}
}

// echoLines writes each CRLF separated line of block with prefix when verbose.
func (s *Session) echoLines(prefix string, block []byte) {
	if !s.opts.Verbose {
		return
	}
	for _, line := range bytes.Split(bytes.TrimRight(block, "\r\n"), crlf) {
		s.logf("%s%s", prefix, line)
	}
}
