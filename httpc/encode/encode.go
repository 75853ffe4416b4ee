package encode

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const upperHex = "0123456789ABCDEF"

func run(input string, decode, raw bool, fn func(string, bool) (string, error)) error {
	result, err := fn(input, decode)
	if err != nil {
		return err
	}
	if raw {
		fmt.Print(result)
	} else {
		fmt.Println(result)
	}
	return nil
}

// EscapeURL percent-encodes every byte that is not an ASCII letter or digit.
func EscapeURL(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func encodeURL(input string, decode bool) (string, error) {
	if !decode {
		return EscapeURL(input), nil
	}
	decoded, err := url.QueryUnescape(input)
	if err != nil {
		return "", fmt.Errorf("url decode error: %w", err)
	}
	return decoded, nil
}

func encodeBase64(input string, decode bool) (string, error) {
	if !decode {
		return base64.StdEncoding.EncodeToString([]byte(input)), nil
	}
	trimmed := strings.TrimSpace(input)
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		// accept unpadded and URL-safe input
		if decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(trimmed, "=")); err != nil {
			return "", fmt.Errorf("base64 decode error: %w", err)
		}
	}
	return string(decoded), nil
}
