package libhttp

import (
	"bufio"
	"io"
	"strings"
)

const friendlyPrefix = "|> "

// WriteHeaders writes the raw header block of the final response followed by a blank line.
func (s *Session) WriteHeaders(w io.Writer) error {
	if s.resp == nil {
		return nil
	}
	_, err := io.WriteString(w, s.resp.RawHeaders+"\r\n\r\n")
	return err
}

// WriteBody writes the final response body.
func (s *Session) WriteBody(w io.Writer) error {
	if s.resp == nil {
		return nil
	}
	_, err := w.Write(s.resp.Body)
	return err
}

// WriteResponse writes the header block and body as received.
func (s *Session) WriteResponse(w io.Writer) error {
	if err := s.WriteHeaders(w); err != nil {
		return err
	}
	return s.WriteBody(w)
}

// FriendlyWriteHeaders writes each header line prefixed with "|> " and newline terminated.
func (s *Session) FriendlyWriteHeaders(w io.Writer) error {
	if s.resp == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	for _, line := range strings.Split(s.resp.RawHeaders, "\r\n") {
		_, _ = bw.WriteString(friendlyPrefix)
		_, _ = bw.WriteString(line)
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

// FriendlyWriteResponse writes the friendly header block, a blank line and the body.
func (s *Session) FriendlyWriteResponse(w io.Writer) error {
	if err := s.FriendlyWriteHeaders(w); err != nil {
		return err
	} else if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return s.WriteBody(w)
}
