package libhttp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRequest is a request as seen by a test server.
type rawRequest struct {
	Head string // request line and headers including the blank line
	Body []byte
}

func (r rawRequest) RequestLine() string {
	line, _, _ := strings.Cut(r.Head, "\r\n")
	return line
}

// readRawRequest reads one request head and, when Content-Length is present, its body.
func readRawRequest(br *bufio.Reader) (rawRequest, error) {
	var head strings.Builder
	contentLength := 0
	for {
		line, err := br.ReadString('\n')
		head.WriteString(line)
		if err != nil {
			return rawRequest{Head: head.String()}, err
		} else if line == "\r\n" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}

	req := rawRequest{Head: head.String()}
	if contentLength > 0 {
		req.Body = make([]byte, contentLength)
		if _, err := io.ReadFull(br, req.Body); err != nil {
			return req, err
		}
	}
	return req, nil
}

// rawServer is a TCP server handing each connection to a handler and recording requests.
type rawServer struct {
	listener net.Listener
	addr     string

	mu       sync.Mutex
	requests []rawRequest
}

func newRawServer(t *testing.T) *rawServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return &rawServer{listener: l, addr: l.Addr().String()}
}

// URL returns an http URL for path on this server.
func (s *rawServer) URL(path string) string {
	return "http://" + s.addr + path
}

func (s *rawServer) record(req rawRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

func (s *rawServer) Requests() []rawRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rawRequest(nil), s.requests...)
}

// serve answers each request on a connection with respond until respond returns
// an empty reply or the connection closes.
func (s *rawServer) serve(respond func(req rawRequest) string) {
	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				br := bufio.NewReader(conn)
				for {
					req, err := readRawRequest(br)
					if err != nil {
						return
					}
					s.record(req)
					reply := respond(req)
					if reply == "" {
						return
					} else if _, err := io.WriteString(conn, reply); err != nil {
						return
					}
				}
			}()
		}
	}()
}

// serveConn hands each accepted connection to handle.
func (s *rawServer) serveConn(handle func(conn net.Conn)) {
	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				handle(conn)
			}()
		}
	}()
}

func newTestSession(t *testing.T, rawURL string) *Session {
	t.Helper()

	s := NewSession()
	require.NoError(t, s.SetOption(OptURL, rawURL))
	s.Options().ResponseTimeout = 2 * time.Second
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionPerform(t *testing.T) {
	t.Parallel()

	t.Run("get_content_length", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			return "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
		})

		s := newTestSession(t, srv.URL("/foo?x=1"))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 200, s.StatusCode())
		assert.Equal(t, []byte("hello"), s.Body())
		assert.Equal(t, CodeSuccess, s.ErrorCode())
		assert.Equal(t, "Success", s.ErrorMessage())

		reqs := srv.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "GET /foo?x=1 HTTP/1.1", reqs[0].RequestLine())
		assert.Contains(t, reqs[0].Head, "\r\nHost: "+srv.addr+"\r\n")
		assert.Len(t, s.Hops(), 1)
	})

	t.Run("post_body_sent", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			return "HTTP/1.1 201 Created\r\nContent-Length: " + strconv.Itoa(len(req.Body)) + "\r\n\r\n" + string(req.Body)
		})

		s := newTestSession(t, srv.URL("/submit"))
		require.NoError(t, s.SetOption(OptRequestMethod, "post"))
		require.NoError(t, s.SetOption(OptPostBody, "name=value"))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 201, s.StatusCode())
		assert.Equal(t, "name=value", string(s.Body()))
		reqs := srv.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "POST /submit HTTP/1.1", reqs[0].RequestLine())
		assert.Contains(t, reqs[0].Head, "Content-Length: 10\r\n")
	})

	t.Run("chunked_response", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
			for _, part := range []string{"4\r\nWiki\r\n", "5\r\npedia\r\n", "E\r\n in\r\n\r\nchunks.\r\n", "0\r\n\r\n"} {
				_, _ = io.WriteString(conn, part)
				time.Sleep(5 * time.Millisecond)
			}
			// hold the connection open; completion must come from the zero chunk
			time.Sleep(time.Second)
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, "Wikipedia in\r\n\r\nchunks.", string(s.Body()))
		assert.Equal(t, FramingChunked, s.Response().Framing)
	})

	t.Run("connection_close_body", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			_, _ = io.WriteString(conn, "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nuntil ")
			time.Sleep(10 * time.Millisecond)
			_, _ = io.WriteString(conn, "close")
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, "until close", string(s.Body()))
		assert.Equal(t, FramingClose, s.Response().Framing)
	})

	t.Run("head_request", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 1000\r\n\r\n")
			time.Sleep(time.Second)
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.SetOption(OptRequestMethod, MethodHead))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 200, s.StatusCode())
		assert.Empty(t, s.Body())
		value, ok := s.Header("content-length")
		assert.True(t, ok)
		assert.Equal(t, "1000", value)
	})
}

func TestSessionHeaderLookup(t *testing.T) {
	t.Parallel()

	srv := newRawServer(t)
	srv.serve(func(req rawRequest) string {
		return "HTTP/1.1 200 OK\r\nx-custom-HEADER:  some value; with=parts\r\nContent-Length: 0\r\n\r\n"
	})

	s := newTestSession(t, srv.URL("/"))
	require.NoError(t, s.Perform(t.Context()))

	value, ok := s.Header("X-Custom-Header")
	assert.True(t, ok)
	assert.Equal(t, "some value; with=parts", value)

	value, ok = s.Header(" x-custom-header ")
	assert.True(t, ok)
	assert.Equal(t, "some value; with=parts", value)

	value, ok = s.Header("X-Absent")
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSessionRedirects(t *testing.T) {
	t.Parallel()

	t.Run("single_hop", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			if strings.HasPrefix(req.RequestLine(), "GET /foo") {
				return "HTTP/1.1 302 Found\r\nLocation: " + srv.URL("/bar") + "\r\n\r\n"
			}
			return "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
		})

		s := newTestSession(t, srv.URL("/foo?x=1"))
		require.NoError(t, s.SetOption(OptRedirects, RedirectsAllow))
		require.NoError(t, s.SetOption(OptMaxRedirect, 1))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 200, s.StatusCode())
		assert.Equal(t, "ok", string(s.Body()))
		assert.Equal(t, "/bar", s.EffectiveURL().RequestTarget())

		hops := s.Hops()
		require.Len(t, hops, 2)
		assert.Equal(t, 302, hops[0].StatusCode)
		assert.Equal(t, srv.URL("/bar"), hops[0].Location)
		assert.Equal(t, 200, hops[1].StatusCode)

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "GET /foo?x=1 HTTP/1.1", reqs[0].RequestLine())
		assert.Equal(t, "GET /bar HTTP/1.1", reqs[1].RequestLine())
	})

	t.Run("location_without_redirect_status", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			if strings.HasPrefix(req.RequestLine(), "POST /items") {
				return "HTTP/1.1 201 Created\r\nLocation: /items/7\r\nContent-Length: 0\r\n\r\n"
			}
			return "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nitem"
		})

		s := newTestSession(t, srv.URL("/items"))
		require.NoError(t, s.SetOption(OptRequestMethod, MethodPost))
		require.NoError(t, s.SetOption(OptPostBody, "name=x"))
		require.NoError(t, s.SetOption(OptMaxRedirect, 1))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 200, s.StatusCode())
		assert.Equal(t, "item", string(s.Body()))
		hops := s.Hops()
		require.Len(t, hops, 2)
		assert.Equal(t, 201, hops[0].StatusCode)

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "GET /items/7 HTTP/1.1", reqs[1].RequestLine())
	})

	t.Run("bounded_by_max", func(t *testing.T) {
		srv := newRawServer(t)
		var count int
		var mu sync.Mutex
		srv.serve(func(req rawRequest) string {
			mu.Lock()
			defer mu.Unlock()
			count++
			return "HTTP/1.1 301 Moved Permanently\r\nLocation: /loop" + strconv.Itoa(count) +
				"\r\nContent-Length: 4\r\n\r\nmove"
		})

		const maxRedirects = 3
		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.SetOption(OptMaxRedirect, maxRedirects))
		require.NoError(t, s.Perform(t.Context()))

		assert.Len(t, srv.Requests(), maxRedirects+1)
		assert.Len(t, s.Hops(), maxRedirects+1)
		assert.Equal(t, 301, s.StatusCode())
		assert.Equal(t, "move", string(s.Body()))
		assert.Equal(t, "/loop3", s.EffectiveURL().RequestTarget())
	})

	t.Run("disallowed", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			return "HTTP/1.1 302 Found\r\nLocation: /elsewhere\r\nContent-Length: 0\r\n\r\n"
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.SetOption(OptRedirects, false))
		require.NoError(t, s.Perform(t.Context()))

		assert.Equal(t, 302, s.StatusCode())
		assert.Len(t, srv.Requests(), 1)
	})

	t.Run("post_becomes_get", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			if strings.HasPrefix(req.RequestLine(), "POST") {
				return "HTTP/1.1 303 See Other\r\nLocation: /done\r\nContent-Length: 0\r\n\r\n"
			}
			return "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\ndone"
		})

		s := newTestSession(t, srv.URL("/form"))
		require.NoError(t, s.SetOption(OptRequestMethod, MethodPost))
		require.NoError(t, s.SetOption(OptPostBody, "a=b"))
		require.NoError(t, s.Perform(t.Context()))

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "GET /done HTTP/1.1", reqs[1].RequestLine())
		assert.NotContains(t, reqs[1].Head, "Content-Length")
		assert.Equal(t, "done", string(s.Body()))
	})

	t.Run("temporary_redirect_keeps_method", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serve(func(req rawRequest) string {
			if strings.Contains(req.RequestLine(), "/old") {
				return "HTTP/1.1 307 Temporary Redirect\r\nLocation: /new\r\nContent-Length: 0\r\n\r\n"
			}
			return "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(req.Body)) + "\r\n\r\n" + string(req.Body)
		})

		s := newTestSession(t, srv.URL("/old"))
		require.NoError(t, s.SetOption(OptRequestMethod, MethodPut))
		require.NoError(t, s.SetOption(OptPutBody, []byte("payload")))
		require.NoError(t, s.Perform(t.Context()))

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "PUT /new HTTP/1.1", reqs[1].RequestLine())
		assert.Equal(t, "payload", string(s.Body()))
	})

	t.Run("failing_hop_error_surfaces", func(t *testing.T) {
		srv := newRawServer(t)
		closed, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		deadAddr := closed.Addr().String()
		require.NoError(t, closed.Close())

		srv.serve(func(req rawRequest) string {
			return "HTTP/1.1 302 Found\r\nLocation: http://" + deadAddr + "/gone\r\n\r\n"
		})

		s := newTestSession(t, srv.URL("/"))
		err = s.Perform(t.Context())
		require.Error(t, err)

		assert.Equal(t, CodeSystemError, s.ErrorCode())
		assert.Contains(t, s.ErrorMessage(), deadAddr)
		assert.Len(t, s.Hops(), 1)
	})
}

func TestSessionErrors(t *testing.T) {
	t.Parallel()

	t.Run("no_url", func(t *testing.T) {
		s := NewSession()
		err := s.Perform(t.Context())

		require.ErrorIs(t, err, ErrNoURL)
		assert.Equal(t, CodeNoURL, s.ErrorCode())
	})

	t.Run("invalid_url", func(t *testing.T) {
		s := NewSession()
		err := s.SetOption(OptURL, "example.test/foo")

		require.ErrorIs(t, err, ErrInvalidURL)
		assert.Equal(t, CodeInvalidURL, s.ErrorCode())
	})

	t.Run("start_without_connect", func(t *testing.T) {
		s := newTestSession(t, "http://127.0.0.1:1/")
		err := s.Start(t.Context())

		require.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, CodeNotConnected, s.ErrorCode())
	})

	t.Run("connection_refused", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())

		s := newTestSession(t, "http://"+addr+"/")
		err = s.Connect(t.Context())

		require.ErrorIs(t, err, ErrSystem)
		assert.False(t, s.Connected())
	})

	t.Run("response_timeout", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			time.Sleep(2 * time.Second)
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.SetOption(OptResponseTimeout, 150*time.Millisecond))
		start := time.Now()
		err := s.Perform(t.Context())

		require.ErrorIs(t, err, ErrResponseTimeout)
		assert.Equal(t, "response timed out after 0.15s", s.ErrorMessage())
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("reset_before_headers", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-")
		})

		s := newTestSession(t, srv.URL("/"))
		err := s.Perform(t.Context())

		require.ErrorIs(t, err, ErrConnectionReset)
		assert.Nil(t, s.Response())
	})

	t.Run("response_too_large", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 4096\r\n\r\n")
			_, _ = conn.Write(bytes.Repeat([]byte("x"), 4096))
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.SetOption(OptMaxResponseSize, 1024))
		err := s.Perform(t.Context())

		require.ErrorIs(t, err, ErrResponseTooLarge)
		assert.Equal(t, CodeResponseTooLarge, s.ErrorCode())
	})

	t.Run("latest_error_overwrites", func(t *testing.T) {
		s := NewSession()
		require.Error(t, s.Start(t.Context()))
		assert.Equal(t, CodeNotConnected, s.ErrorCode())

		require.Error(t, s.SetOption(OptURL, "nope"))
		assert.Equal(t, CodeInvalidURL, s.ErrorCode())
	})

	t.Run("canceled_context", func(t *testing.T) {
		srv := newRawServer(t)
		srv.serveConn(func(conn net.Conn) {
			_, _ = readRawRequest(bufio.NewReader(conn))
			time.Sleep(2 * time.Second)
		})

		s := newTestSession(t, srv.URL("/"))
		require.NoError(t, s.Connect(t.Context()))

		ctx, cancel := context.WithCancel(t.Context())
		time.AfterFunc(50*time.Millisecond, cancel)
		err := s.Start(ctx)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, CodeConnectionReset, s.ErrorCode())
	})
}

func TestSessionVerbose(t *testing.T) {
	t.Parallel()

	srv := newRawServer(t)
	srv.serve(func(req rawRequest) string {
		return "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	})

	var verbose, logged bytes.Buffer
	s := newTestSession(t, srv.URL("/v"))
	require.NoError(t, s.SetOption(OptVerbosity, true))
	require.NoError(t, s.SetOption(OptVerboseWriter, &verbose))
	require.NoError(t, s.SetOption(OptLogWriter, &logged))
	require.NoError(t, s.Perform(t.Context()))

	out := verbose.String()
	assert.Contains(t, out, "** Trying 127.0.0.1:")
	assert.Contains(t, out, "** Connected to 127.0.0.1 (127.0.0.1) port (")
	assert.Contains(t, out, "<| GET /v HTTP/1.1\n")
	assert.Contains(t, out, "<| Connection: close\n")
	assert.Contains(t, out, "|> HTTP/1.1 200 OK\n")
	assert.Equal(t, out, logged.String())
}

func TestCopyOptions(t *testing.T) {
	t.Parallel()

	src := NewSession()
	require.NoError(t, src.SetOption(OptURL, "https://example.test/a"))
	require.NoError(t, src.SetOption(OptPostBody, "body"))
	require.NoError(t, src.SetOption(OptUserAgent, "agent"))

	dst := NewSession()
	CopyOptions(dst, src)
	src.Options().PostBody[0] = 'X'

	assert.Equal(t, "example.test", dst.Options().URL.Host)
	assert.Equal(t, "agent", dst.Options().UserAgent)
	assert.Equal(t, []byte("body"), dst.Options().PostBody)

	dst.ResetOptions()
	assert.True(t, dst.Options().URL.IsZero())
	assert.Equal(t, DefaultMaxRedirects, dst.Options().MaxRedirects)
}
