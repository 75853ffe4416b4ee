package libhttp

import (
	"fmt"
)

// Code identifies the class of the most recent session failure.
type Code int

const (
	CodeSuccess             Code = 0x01
	CodeInvalidURL          Code = 0x02
	CodeConnectionReset     Code = 0x03
	CodeNoURL               Code = 0x04
	CodeSSLError            Code = 0x05
	CodeSSLConnectionFailed Code = 0x06
	CodeResponseTimeout     Code = 0x07
	CodeNotConnected        Code = 0x08
	CodeProxyNoURL          Code = 0x09
	CodeCertVerifyFailed    Code = 0x10
	CodeResponseTooLarge    Code = 0x11
	CodeRequestTooLarge     Code = 0x12
	CodeH2HandshakeFailed   Code = 0x13
	CodeSystemError         Code = 0x14
	CodeProxyError          Code = 0x15
)

var codeNames = map[Code]string{
	CodeSuccess:             "Success",
	CodeInvalidURL:          "InvalidURL",
	CodeConnectionReset:     "ConnectionReset",
	CodeNoURL:               "NoURL",
	CodeSSLError:            "SSLError",
	CodeSSLConnectionFailed: "SSLConnectionFailed",
	CodeResponseTimeout:     "ResponseTimeout",
	CodeNotConnected:        "SocketsNotConnected",
	CodeProxyNoURL:          "ProxyNoURL",
	CodeCertVerifyFailed:    "CertVerifyFailed",
	CodeResponseTooLarge:    "ResponseTooLarge",
	CodeRequestTooLarge:     "RequestTooLarge",
	CodeH2HandshakeFailed:   "H2HandshakeFailed",
	CodeSystemError:         "SystemError",
	CodeProxyError:          "ProxyError",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(0x%02x)", int(c))
}

// Error is the (code, message) pair recorded on a session by the last failed operation.
type Error struct {
	Code    Code
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks against session failures.
var (
	ErrInvalidURL          = &Error{Code: CodeInvalidURL, Message: "invalid url"}
	ErrConnectionReset     = &Error{Code: CodeConnectionReset, Message: "connection closed by peer"}
	ErrNoURL               = &Error{Code: CodeNoURL, Message: "no target url"}
	ErrSSL                 = &Error{Code: CodeSSLError, Message: "ssl error"}
	ErrSSLConnectionFailed = &Error{Code: CodeSSLConnectionFailed, Message: "ssl connection failed"}
	ErrResponseTimeout     = &Error{Code: CodeResponseTimeout, Message: "response timed out"}
	ErrNotConnected        = &Error{Code: CodeNotConnected, Message: "sockets ends not connected"}
	ErrProxyNoURL          = &Error{Code: CodeProxyNoURL, Message: "proxy error: no target url"}
	ErrResponseTooLarge    = &Error{Code: CodeResponseTooLarge, Message: "response too large"}
	ErrRequestTooLarge     = &Error{Code: CodeRequestTooLarge, Message: "request too large"}
	ErrH2HandshakeFailed   = &Error{Code: CodeH2HandshakeFailed, Message: "http/2 handshake failed"}
	ErrSystem              = &Error{Code: CodeSystemError, Message: "system error"}
	ErrProxy               = &Error{Code: CodeProxyError, Message: "proxy error"}
)

func newError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

func errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
