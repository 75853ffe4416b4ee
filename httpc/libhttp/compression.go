package libhttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression encoding constants
const (
	encodingGzip     = "gzip"
	encodingDeflate  = "deflate"
	encodingZstd     = "zstd"
	encodingIdentity = "identity"
)

// AcceptEncoding lists the content codings DecodeBody can remove.
const AcceptEncoding = "gzip, deflate, zstd"

// ErrUnsupportedEncoding is returned for content codings DecodeBody cannot remove.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// NormalizeEncoding normalizes a single Content-Encoding token.
// Returns the canonical name and whether it is supported.
func NormalizeEncoding(encoding string) (string, bool) {
	encoding = strings.TrimSpace(strings.ToLower(encoding))
	switch encoding {
	case encodingGzip, "x-gzip":
		return encodingGzip, true
	case encodingDeflate:
		return encodingDeflate, true
	case encodingZstd:
		return encodingZstd, true
	case encodingIdentity, "":
		return encodingIdentity, true
	default:
		return encoding, false
	}
}

// DecodeBody removes the codings listed in a Content-Encoding header value,
// last applied first. An empty header returns data unchanged. Each decoding
// step may produce at most maxSize bytes (DefaultMaxResponseSize when not positive).
func DecodeBody(data []byte, contentEncoding string, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxResponseSize
	}
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		normalized, ok := NormalizeEncoding(codings[i])
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, normalized)
		}

		var err error
		switch normalized {
		case encodingGzip:
			data, err = decompressGzip(data, maxSize)
		case encodingDeflate:
			// deflate can be raw DEFLATE or zlib-wrapped - try zlib first
			if decoded, zerr := decompressZlib(data, maxSize); zerr == nil {
				data = decoded
			} else if errors.Is(zerr, ErrResponseTooLarge) {
				err = zerr
			} else {
				data, err = decompressRawDeflate(data, maxSize)
			}
		case encodingZstd:
			data, err = decompressZstd(data, maxSize)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", normalized, err)
		}
	}
	return data, nil
}

// readLimited reads r to the end, failing once more than maxSize bytes are produced.
func readLimited(r io.Reader, maxSize int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, err
	} else if len(data) > maxSize {
		return nil, errorf(CodeResponseTooLarge, "decoded body exceeds %d byte limit", maxSize)
	}
	return data, nil
}

func decompressGzip(data []byte, maxSize int) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gr.Close() }()
	return readLimited(gr, maxSize)
}

func decompressRawDeflate(data []byte, maxSize int) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = fr.Close() }()
	return readLimited(fr, maxSize)
}

func decompressZlib(data []byte, maxSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return readLimited(zr, maxSize)
}

func decompressZstd(data []byte, maxSize int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return readLimited(dec, maxSize)
}
