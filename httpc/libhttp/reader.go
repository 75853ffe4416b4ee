package libhttp

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

const readChunkSize = 16 * 1024

// exchangeOptions describes one request/response round trip on a connection.
type exchangeOptions struct {
	request        []byte
	headerLen      int // length of the header block within request, for echoing
	headRequest    bool
	connectRequest bool
	followLocation bool
	drainRedirect  bool
}

// exchange writes a rendered request and reads the response through the framing state machine.
// The returned response may be non-nil alongside an error when a partial response was received.
func (s *Session) exchange(ctx context.Context, c *Conn, eo exchangeOptions) (*Response, error) {
	s.echoLines("<| ", eo.request[:eo.headerLen])

	if err := s.writeRequest(c.conn, eo.request); err != nil {
		return nil, err
	}

	p := newResponseParser(s.opts.maxResponseSize())
	p.headRequest = eo.headRequest
	p.connectRequest = eo.connectRequest
	p.followLocation = eo.followLocation
	p.drainRedirect = eo.drainRedirect

	err := s.readResponse(ctx, c.conn, p)
	resp := p.response()
	if resp != nil {
		s.echoLines("|> ", []byte(resp.RawHeaders))
		if n := p.excess(); n > 0 {
			s.logf("** discarded %d bytes beyond Content-Length", n)
		}
	}
	return resp, err
}

func (s *Session) writeRequest(conn net.Conn, req []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.responseTimeout()))
	defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()

	n, err := conn.Write(req)
	if err != nil {
		return newError(CodeConnectionReset, "send request", err)
	} else if n <= 0 {
		return newError(CodeConnectionReset, "send request: no bytes written", nil)
	}
	return nil
}

// readResponse feeds the parser until it completes, waiting at most the
// response timeout for each read.
func (s *Session) readResponse(ctx context.Context, conn net.Conn, p *responseParser) error {
	timeout := s.opts.responseTimeout()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, readChunkSize)
	for !p.done() {
		if err := ctx.Err(); err != nil {
			return newError(CodeConnectionReset, "request canceled", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))

		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := p.feed(buf[:n]); ferr != nil {
				return ferr
			} else if p.done() {
				return nil
			}
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case ctx.Err() != nil:
			return newError(CodeConnectionReset, "request canceled", ctx.Err())
		case errors.As(err, &netErr) && netErr.Timeout():
			return errorf(CodeResponseTimeout, "response timed out after %s", formatSeconds(timeout))
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return p.finish()
		default:
			if p.headersSeen() && p.resp.Framing == FramingClose {
				// a reset after a close-delimited body still ends it
				_ = p.finish()
			}
			return newError(CodeConnectionReset, "connection closed by peer", err)
		}
	}
	return nil
}
