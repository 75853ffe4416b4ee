package libhttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/net/http2"
)

const (
	alpnH2    = "h2"
	alpnHTTP1 = "http/1.1"

	defaultHandshakeTimeout = 10 * time.Second
)

// ErrInvalidTLSVersion indicates a TLSVersion value outside the supported range.
var ErrInvalidTLSVersion = errors.New("invalid TLS version")

// ConfigureTLSVersion pins the config to a single TLS version.
// TLSDefault leaves the maximum open so the latest version is negotiated.
func ConfigureTLSVersion(config *tls.Config, version TLSVersion) error {
	switch version {
	case TLS10:
		config.MinVersion, config.MaxVersion = tls.VersionTLS10, tls.VersionTLS10
	case TLS11:
		config.MinVersion, config.MaxVersion = tls.VersionTLS11, tls.VersionTLS11
	case TLS12:
		config.MinVersion, config.MaxVersion = tls.VersionTLS12, tls.VersionTLS12
	case TLS13:
		config.MinVersion, config.MaxVersion = tls.VersionTLS13, tls.VersionTLS13
	case TLSDefault:
		config.MinVersion, config.MaxVersion = tls.VersionTLS10, 0
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTLSVersion, int(version))
	}
	return nil
}

func (s *Session) tlsConfig(target URL, offerH2 bool) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         target.Host,
		InsecureSkipVerify: true, // verified after the handshake, reported but not enforced
	}
	if err := ConfigureTLSVersion(cfg, s.opts.TLSVersion); err != nil {
		return nil, newError(CodeSSLError, "configure tls", err)
	}
	if offerH2 {
		cfg.NextProtos = []string{alpnH2, alpnHTTP1}
	}
	return cfg, nil
}

// secure performs the TLS client handshake over raw and records the peer details on c.
// When h2 is negotiated the client preface is exchanged before returning.
func (s *Session) secure(ctx context.Context, c *Conn, target URL, offerH2 bool) error {
	cfg, err := s.tlsConfig(target, offerH2)
	if err != nil {
		return err
	}

	tlsConn := tls.Client(c.conn, cfg)
	hctx, cancel := context.WithTimeout(ctx, defaultHandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return newError(CodeSSLConnectionFailed, "ssl handshake with "+target.HostPort(), err)
	}
	c.conn = tlsConn

	state := tlsConn.ConnectionState()
	c.TLSVersion = tls.VersionName(state.Version)
	c.Protocol = state.NegotiatedProtocol
	s.logf("** SSL connection using %s / %s", c.TLSVersion, tls.CipherSuiteName(state.CipherSuite))
	s.inspectCertificates(c, target, state)

	if offerH2 {
		if c.Protocol != alpnH2 {
			s.logf("** ALPN: server did not accept h2, continuing with http/1.1")
			return nil
		}
		s.logf("** ALPN: server accepted to use h2")
		if tcp, ok := c.tcp.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		if err := s.exchangeH2Preface(c.conn); err != nil {
			return err
		}
	}
	return nil
}

// inspectCertificates captures the leaf subject and issuer and verifies the
// chain against the system roots. Failures are recorded, never enforced.
func (s *Session) inspectCertificates(c *Conn, target URL, state tls.ConnectionState) {
	if len(state.PeerCertificates) == 0 {
		s.logf("** no peer certificate presented")
		return
	}
	leaf := state.PeerCertificates[0]
	c.CertSubject = leaf.Subject.String()
	c.CertIssuer = leaf.Issuer.String()
	s.logf("** certificate subject: %s", c.CertSubject)
	s.logf("** certificate issuer: %s", c.CertIssuer)

	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       target.Host,
		Intermediates: intermediates,
	}); err != nil {
		c.VerifyErr = newError(CodeCertVerifyFailed, "certificate verification failed", err)
		s.logf("** certificate verification failed: %v", err)
		return
	}
	s.logf("** certificate verification successful")
}

// exchangeH2Preface sends the client connection preface and an empty SETTINGS
// frame, then waits for the first frame of the server preface.
func (s *Session) exchangeH2Preface(conn net.Conn) error {
	timeout := s.opts.responseTimeout()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if _, err := io.WriteString(conn, http2.ClientPreface); err != nil {
		return newError(CodeH2HandshakeFailed, "write client preface", err)
	}
	framer := http2.NewFramer(conn, conn)
	if err := framer.WriteSettings(); err != nil {
		return newError(CodeH2HandshakeFailed, "write settings", err)
	}

	frame, err := framer.ReadFrame()
	if err != nil {
		return newError(CodeH2HandshakeFailed, "no server preface", err)
	}
	s.logf("** Server preface: %s", frame.Header())

	switch f := frame.(type) {
	case *http2.SettingsFrame:
		_ = f.ForeachSetting(func(st http2.Setting) error {
			s.logf("**   %s", st)
			return nil
		})
		if !f.IsAck() {
			if err := framer.WriteSettingsAck(); err != nil {
				return newError(CodeH2HandshakeFailed, "send SETTINGS ACK", err)
			}
		}
	case *http2.GoAwayFrame:
		return errorf(CodeH2HandshakeFailed, "server sent GOAWAY: %s", f.ErrCode)
	}
	return nil
}
