package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/go-appsec/httpc/httpc/libhttp"
)

// traceFormat is bumped when the on-disk layout changes incompatibly.
const traceFormat = 1

var ErrTraceFormat = errors.New("unsupported trace format")

// Trace records every hop of one request, including redirects.
type Trace struct {
	Format    int         `msgpack:"f"`
	ID        string      `msgpack:"id"`
	URL       string      `msgpack:"u"`
	Method    string      `msgpack:"m"`
	Proxy     string      `msgpack:"px,omitempty"`
	CreatedAt time.Time   `msgpack:"ca"`
	Hops      []HopRecord `msgpack:"h"`
	Error     string      `msgpack:"e,omitempty"`
	ErrorCode int         `msgpack:"ec,omitempty"`
}

// HopRecord is the persisted form of a libhttp.Hop.
type HopRecord struct {
	URL        string        `msgpack:"u"`
	Method     string        `msgpack:"m"`
	StatusCode int           `msgpack:"s"`
	Location   string        `msgpack:"l,omitempty"`
	Headers    string        `msgpack:"hd"`
	BodyLength int           `msgpack:"bl"`
	Duration   time.Duration `msgpack:"d"`
	Error      string        `msgpack:"e,omitempty"`
}

// NewTrace snapshots the hops and final error of a session.
func NewTrace(s *libhttp.Session) *Trace {
	opts := s.Options()
	t := &Trace{
		Format:    traceFormat,
		ID:        uuid.NewString(),
		URL:       opts.URL.String(),
		Method:    opts.Method.String(),
		CreatedAt: time.Now().UTC(),
	}
	if !opts.ProxyURL.IsZero() {
		t.Proxy = opts.ProxyURL.String()
	}
	for _, h := range s.Hops() {
		t.Hops = append(t.Hops, newHopRecord(h))
	}
	if err := s.Err(); err != nil {
		t.Error = err.Error()
		t.ErrorCode = int(err.Code)
	}
	return t
}

func newHopRecord(h libhttp.Hop) HopRecord {
	rec := HopRecord{
		URL:        h.URL,
		Method:     h.Method,
		StatusCode: h.StatusCode,
		Location:   h.Location,
		Headers:    h.RawHeaders,
		BodyLength: h.BodyLength,
		Duration:   h.Duration,
	}
	if h.Err != nil {
		rec.Error = h.Err.Error()
	}
	return rec
}

// Serialize encodes v with msgpack.
func Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Deserialize decodes msgpack data into v.
func Deserialize(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// WriteFile saves the trace to path atomically.
func (t *Trace) WriteFile(path string) error {
	data, err := Serialize(t)
	if err != nil {
		return fmt.Errorf("serialize trace: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	} else if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadFile loads a trace written by WriteFile.
func ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Trace
	if err := Deserialize(data, &t); err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", path, err)
	} else if t.Format != traceFormat {
		return nil, fmt.Errorf("%w: %d", ErrTraceFormat, t.Format)
	}
	// msgpack timestamps lose timezone info; normalize to UTC
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// FinalStatus returns the status of the last hop, 0 when no response was read.
func (t *Trace) FinalStatus() int {
	if len(t.Hops) == 0 {
		return 0
	}
	return t.Hops[len(t.Hops)-1].StatusCode
}
