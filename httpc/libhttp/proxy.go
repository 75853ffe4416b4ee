package libhttp

import (
	"context"
	"strings"
)

// ProxyConn returns the connection to the proxy, nil when not connected.
func (s *Session) ProxyConn() *Conn {
	return s.proxy
}

// ProxyConnect establishes the connection to the configured proxy. An https
// proxy is TLS-handshaked with the same version selection as direct targets.
func (s *Session) ProxyConnect(ctx context.Context) error {
	if s.opts.ProxyURL.IsZero() {
		return s.fail(newError(CodeNoURL, "proxy error: no proxy url", nil))
	}
	s.ProxyDisconnect()

	c, err := s.dial(ctx, s.opts.ProxyURL, false)
	if err != nil {
		return s.fail(err)
	}
	s.proxy = c
	return nil
}

// ProxySendConnect asks the proxy for a tunnel to the configured URL and
// reads its reply. Any non-2xx reply fails with CodeProxyError.
func (s *Session) ProxySendConnect(ctx context.Context) error {
	if s.proxy == nil {
		return s.fail(newError(CodeNotConnected, "sockets ends not connected", nil))
	} else if s.opts.URL.IsZero() {
		return s.fail(newError(CodeProxyNoURL, "proxy error: no target url", nil))
	}

	req, err := BuildConnectRequest(&s.opts, s.opts.URL)
	if err != nil {
		return s.fail(err)
	}
	resp, err := s.exchange(ctx, s.proxy, exchangeOptions{
		request:        req,
		headerLen:      len(req),
		connectRequest: true,
	})
	s.resp = resp
	if err != nil {
		return s.fail(err)
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusLine, _, _ := strings.Cut(resp.RawHeaders, "\r\n")
		return s.fail(errorf(CodeProxyError, "proxy refused tunnel to %s: %s", s.opts.URL.HostPort(), statusLine))
	}

	s.logf("** Proxy tunnel established to %s", s.opts.URL.HostPort())
	s.tunnel = s.proxy
	return nil
}

// ProxyStart sends the configured request through an established tunnel and
// reads the response. A secure target is TLS-handshaked inside the tunnel first.
// Redirects re-send the request on the same tunnel without a new CONNECT.
func (s *Session) ProxyStart(ctx context.Context) error {
	if s.proxy == nil || s.tunnel == nil {
		return s.fail(newError(CodeNotConnected, "sockets ends not connected", nil))
	} else if s.opts.URL.IsZero() {
		return s.fail(newError(CodeProxyNoURL, "proxy error: no target url", nil))
	}

	if s.opts.URL.Secure && s.tunnel == s.proxy {
		inner := &Conn{Target: s.opts.URL, Addr: s.proxy.Addr, tcp: s.proxy.conn, conn: s.proxy.conn}
		if err := s.secure(ctx, inner, s.opts.URL, s.opts.HTTPVersion == HTTP2); err != nil {
			return s.fail(err)
		}
		s.tunnel = inner
	}

	tunnel := s.tunnel
	return s.run(ctx, tunnel, true, func(_ context.Context, next URL) (*Conn, error) {
		s.logf("** Re-using tunnel for %s", next.HostPort())
		return tunnel, nil
	})
}

// ProxyPerform connects to the proxy and establishes the tunnel.
func (s *Session) ProxyPerform(ctx context.Context) error {
	if err := s.ProxyConnect(ctx); err != nil {
		return err
	}
	return s.ProxySendConnect(ctx)
}

// ProxyDo runs the whole proxied request: connect, CONNECT, then the request itself.
func (s *Session) ProxyDo(ctx context.Context) error {
	if err := s.ProxyPerform(ctx); err != nil {
		return err
	}
	return s.ProxyStart(ctx)
}

// ProxyDisconnect closes the tunnel and the proxy connection.
func (s *Session) ProxyDisconnect() {
	if s.tunnel != nil && s.tunnel != s.proxy {
		_ = s.tunnel.Close()
	}
	s.tunnel = nil
	if s.proxy != nil {
		_ = s.proxy.Close()
		s.proxy = nil
	}
}
