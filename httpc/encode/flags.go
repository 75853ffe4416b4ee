package encode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/go-appsec/httpc/httpc/cli"
)

var encodeSubcommands = []string{"url", "base64", "help"}

func Parse(args []string) error {
	if len(args) < 1 {
		printUsage()
		return errors.New("encoding type required")
	}

	switch args[0] {
	case "url":
		return parseAndRun("url", args[1:], encodeURL)
	case "base64":
		return parseAndRun("base64", args[1:], encodeBase64)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		return cli.UnknownSubcommandError("encode", args[0], encodeSubcommands)
	}
}

func printUsage() {
	_, _ = io.WriteString(os.Stderr, `Usage: httpc encode <type> [options] <string | -f PATH>

Encoding helpers for building request targets, bodies and headers.

---

encode url [options] <string>

  Percent-encodes every byte except ASCII letters and digits.

  Examples:
    httpc encode url "a b&c"                   # a%20b%26c
    httpc encode url -d "a%20b%26c"            # a b&c

---

encode base64 [options] <string>

  Base64 for Authorization headers and binary bodies.

  Examples:
    httpc encode base64 "user:pass"            # dXNlcjpwYXNz
    httpc encode base64 -d "dXNlcjpwYXNz"      # user:pass
    httpc encode base64 -f body.bin            # encode file contents

---

Common Options (all types):
  -d, --decode      decode instead of encode
  -f, --file PATH   read input from file (- for stdin)
  --raw             output without trailing newline
`)
}

func parseAndRun(name string, args []string, fn func(string, bool) (string, error)) error {
	fs := pflag.NewFlagSet("encode "+name, pflag.ContinueOnError)
	fs.SetInterspersed(true)
	var decode, raw bool
	var file string

	fs.BoolVarP(&decode, "decode", "d", false, "decode instead of encode")
	fs.StringVarP(&file, "file", "f", "", "read input from file (- for stdin)")
	fs.BoolVar(&raw, "raw", false, "output without trailing newline")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: httpc encode %s [options] <string>\n\nOptions:\n", name)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	input, err := readInput(file, fs.Args())
	if err != nil {
		return err
	}
	return run(input, decode, raw, fn)
}

func readInput(file string, remaining []string) (string, error) {
	if file == "" {
		if len(remaining) == 0 {
			return "", errors.New("input required: provide string argument or use -f")
		}
		return strings.Join(remaining, " "), nil
	}

	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}
