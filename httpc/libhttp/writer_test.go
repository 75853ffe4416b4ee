package libhttp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionWithResponse(raw string) *Session {
	p := newResponseParser(DefaultMaxResponseSize)
	_ = p.feed([]byte(raw))
	s := NewSession()
	s.resp = p.response()
	return s
}

func TestWriteResponse(t *testing.T) {
	t.Parallel()

	const raw = "HTTP/1.1 200 OK\r\nContent-Length: 4\r\nX-A: b\r\n\r\nbody"

	t.Run("raw", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sessionWithResponse(raw).WriteResponse(&buf))
		assert.Equal(t, raw, buf.String())
	})

	t.Run("headers_only", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sessionWithResponse(raw).WriteHeaders(&buf))
		assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 4\r\nX-A: b\r\n\r\n", buf.String())
	})

	t.Run("friendly", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sessionWithResponse(raw).FriendlyWriteResponse(&buf))
		assert.Equal(t, "|> HTTP/1.1 200 OK\n|> Content-Length: 4\n|> X-A: b\n\nbody", buf.String())
	})

	t.Run("no_response", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewSession()
		require.NoError(t, s.WriteResponse(&buf))
		require.NoError(t, s.FriendlyWriteHeaders(&buf))
		assert.Zero(t, buf.Len())
	})
}
