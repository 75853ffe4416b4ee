package encode

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		raw     bool
		fn      func(string, bool) (string, error)
		expect  string
		wantErr error
	}{
		{
			name: "prints_with_newline",
			fn: func(input string, _ bool) (string, error) {
				return input + "-out", nil
			},
			expect: "value-out\n",
		},
		{
			name: "prints_raw",
			raw:  true,
			fn: func(input string, _ bool) (string, error) {
				return "raw-" + input, nil
			},
			expect: "raw-value",
		},
		{
			name: "propagates_error",
			fn: func(_ string, _ bool) (string, error) {
				return "", errors.New("fail")
			},
			wantErr: errors.New("fail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r, w *os.File
			if tt.wantErr == nil {
				var err error
				r, w, err = os.Pipe()
				require.NoError(t, err)
				originalStdout := os.Stdout
				os.Stdout = w
				t.Cleanup(func() {
					os.Stdout = originalStdout
					_ = r.Close()
				})
			}

			err := run("value", false, tt.raw, tt.fn)
			if tt.wantErr != nil {
				assert.EqualError(t, err, tt.wantErr.Error())
				return
			}

			require.NoError(t, err)
			require.NoError(t, w.Close())

			output, readErr := io.ReadAll(r)
			require.NoError(t, readErr)
			assert.Equal(t, tt.expect, string(output))
		})
	}
}

func TestEncodeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		decode  bool
		expect  string
		wantErr string
	}{
		{name: "alnum_untouched", input: "abcXYZ019", expect: "abcXYZ019"},
		{name: "space_and_symbols", input: "a b&c", expect: "a%20b%26c"},
		{name: "unreserved_encoded", input: "-._~", expect: "%2D%2E%5F%7E"},
		{name: "utf8_bytes", input: "é", expect: "%C3%A9"},
		{name: "decode", input: "a%20b%26c", decode: true, expect: "a b&c"},
		{name: "decode_plus", input: "a+b", decode: true, expect: "a b"},
		{name: "decode_error", input: "%zz", decode: true, wantErr: "url decode error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := encodeURL(tt.input, tt.decode)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, result)
		})
	}
}

func TestEncodeBase64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		decode  bool
		expect  string
		wantErr string
	}{
		{name: "encode", input: "data", expect: "ZGF0YQ=="},
		{name: "decode", input: "ZGF0YQ==", decode: true, expect: "data"},
		{name: "decode_unpadded", input: "ZGF0YQ", decode: true, expect: "data"},
		{name: "decode_trailing_newline", input: "ZGF0YQ==\n", decode: true, expect: "data"},
		{name: "decode_error", input: "@@@", decode: true, wantErr: "base64 decode error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := encodeBase64(tt.input, tt.decode)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, result)
		})
	}
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	t.Run("args_joined", func(t *testing.T) {
		input, err := readInput("", []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, "a b", input)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := readInput("", nil)
		assert.Error(t, err)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.txt")
		require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))

		input, err := readInput(path, []string{"ignored"})
		require.NoError(t, err)
		assert.Equal(t, "from file", input)
	})

	t.Run("unknown_subcommand", func(t *testing.T) {
		assert.ErrorContains(t, Parse([]string{"bas64"}), `did you mean "base64"?`)
	})
}
