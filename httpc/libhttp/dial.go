package libhttp

import (
	"context"
	"errors"
	"net"
	"time"
)

const defaultDialTimeout = 30 * time.Second

// Conn is an established connection to a target or proxy, plain or TLS.
type Conn struct {
	Target URL
	// Addr is the resolved address that accepted the connection.
	Addr string

	// TLS details, empty for plain connections.
	TLSVersion  string
	Protocol    string // negotiated ALPN protocol
	CertSubject string
	CertIssuer  string
	VerifyErr   error

	tcp  net.Conn
	conn net.Conn // tcp, or the TLS stream layered on it
}

// NetConn returns the stream requests are written to.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// Secure reports whether the connection carries TLS.
func (c *Conn) Secure() bool {
	return c.conn != c.tcp
}

// H2 reports whether ALPN negotiated HTTP/2 and the client preface was exchanged.
func (c *Conn) H2() bool {
	return c.Protocol == alpnH2
}

// Close shuts down the stream and the underlying socket.
func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	if c.tcp != c.conn {
		_ = c.tcp.Close()
	}
	return err
}

// dial resolves the target host and connects to each address in resolver
// order until one accepts. Secure targets are then TLS-handshaked.
func (s *Session) dial(ctx context.Context, target URL, offerH2 bool) (*Conn, error) {
	if target.IsZero() {
		return nil, newError(CodeNoURL, "no target url", nil)
	}

	s.logf("** Trying %s:%s..", target.Host, target.Port)
	addrs, err := net.DefaultResolver.LookupHost(ctx, target.Host)
	if err != nil {
		return nil, newError(CodeSystemError, "resolve "+target.Host, err)
	}

	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	var errs []error
	for _, addr := range addrs {
		hostPort := net.JoinHostPort(addr, target.Port)
		tcp, err := dialer.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		s.logf("** Connected to %s (%s) port (%s)", target.Host, addr, target.Port)
		c := &Conn{Target: target, Addr: hostPort, tcp: tcp, conn: tcp}
		if target.Secure {
			if err := s.secure(ctx, c, target, offerH2); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
		return c, nil
	}

	return nil, newError(CodeSystemError, "connect to "+target.HostPort(), errors.Join(errs...))
}
