package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/go-appsec/httpc/httpc/cli"
	"github.com/go-appsec/httpc/httpc/cliutil"
	"github.com/go-appsec/httpc/httpc/config"
	"github.com/go-appsec/httpc/httpc/encode"
	"github.com/go-appsec/httpc/httpc/libhttp"
	"github.com/go-appsec/httpc/httpc/store"
)

var commands = []string{"trace", "encode", "config", "version", "help"}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printRootUsage()
		return 1
	}

	var err error
	switch args[0] {
	case "trace":
		err = parseTrace(args[1:])
	case "encode":
		err = encode.Parse(args[1:])
	case "config":
		err = parseConfig(args[1:])
	case "version", "--version", "-V":
		fmt.Printf("httpc version %s (libhttp %s)\n", config.Version, libhttp.Version)
		return 0
	case "help", "--help", "-h":
		printRootUsage()
		return 0
	default:
		if strings.HasPrefix(args[0], "-") || strings.Contains(args[0], "://") {
			err = parseRequest(args)
		} else {
			err = cli.UnknownCommandError(args[0], commands)
		}
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps engine failures to their error code so scripts can tell them apart.
func exitCode(err error) int {
	var e *libhttp.Error
	if errors.As(err, &e) {
		return int(e.Code)
	} else if errors.Is(err, ErrHTTPStatus) {
		return 22
	}
	return 1
}

func printRootUsage() {
	fmt.Fprint(os.Stderr, `Usage: httpc [options] <url>
       httpc <command> [options]

Performs one HTTP/1.0, HTTP/1.1 or HTTP/2 request over a raw connection
and prints the response body.

Commands:
  trace      Show a hop trace saved with --trace-out
  encode     Encoding helpers (url, base64)
  config     Create or show the config file
  version    Print the version

Common Options:
  -X, --request METHOD     request method (default GET, POST with -d)
  -H, --header LINE        extra request header, repeatable
  -d, --data BODY          request body
  -x, --proxy URL          tunnel through an HTTP CONNECT proxy
  -L, --location           follow redirects (--max-redirs N, default 10)
  -i, --include            include response headers in the output
  -v, --verbose            trace the connection and exchange on stderr
  --http2                  offer HTTP/2

Exit status is the libhttp error code on engine failures, 22 with --fail.

Use "httpc --help" for every request option.
`)
}

func parseTrace(args []string) error {
	fs := pflag.NewFlagSet("trace", pflag.ContinueOnError)
	var headers, failed bool
	fs.BoolVar(&headers, "headers", false, "print each hop's response headers")
	fs.BoolVar(&failed, "failed", false, "only show hops that errored or returned 4xx/5xx")
	fs.Usage = func() {
		_, _ = fmt.Fprint(os.Stderr, "Usage: httpc trace [options] <file>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("trace file required")
	}

	t, err := store.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("%s %s %s\n", cliutil.Bold("Trace"), cliutil.ID(t.ID), t.CreatedAt.Format("2006-01-02 15:04:05Z"))
	fmt.Printf("Request: %s %s\n", t.Method, t.URL)
	if t.Proxy != "" {
		fmt.Printf("Proxy: %s\n", t.Proxy)
	}
	if t.Error != "" {
		fmt.Printf("Error: %s (%s)\n", cliutil.Error(t.Error), libhttp.Code(t.ErrorCode))
	}
	fmt.Println()

	if headers {
		printTraceHeaders(os.Stdout, t)
		return nil
	}
	rows := hopRowsFromTrace(t)
	if failed {
		rows = failedRows(rows)
	}
	renderHopRows(os.Stdout, rows)
	return nil
}

var configSubcommands = []string{"init", "show", "path", "help"}

func parseConfig(args []string) error {
	if len(args) < 1 {
		printConfigUsage()
		return errors.New("config subcommand required")
	}

	switch args[0] {
	case "init":
		return configInit(args[1:])
	case "show":
		return configShow(args[1:])
	case "path":
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "help", "--help", "-h":
		printConfigUsage()
		return nil
	default:
		return cli.UnknownSubcommandError("config", args[0], configSubcommands)
	}
}

func printConfigUsage() {
	_, _ = fmt.Fprint(os.Stderr, `Usage: httpc config <init|show|path> [options]

  init [--force] [--config PATH]   write a config file with default values
  show [--config PATH]             print the effective configuration
  path                             print the default config location

Request flags override config values.
`)
}

func configInit(args []string) error {
	fs := pflag.NewFlagSet("config init", pflag.ContinueOnError)
	var path string
	var force bool
	fs.StringVar(&path, "config", "", "config file (default ~/.config/httpc/config.json)")
	fs.BoolVar(&force, "force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig(config.Version).Save(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("%s %s\n", cliutil.Success("Wrote"), path)
	return nil
}

func configShow(args []string) error {
	fs := pflag.NewFlagSet("config show", pflag.ContinueOnError)
	var path string
	fs.StringVar(&path, "config", "", "config file (default ~/.config/httpc/config.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = libhttp.DefaultUserAgent
	}
	fmt.Printf("user_agent:       %s\n", userAgent)
	fmt.Printf("timeout:          %s\n", cfg.Timeout)
	fmt.Printf("max_redirects:    %d\n", cfg.MaxRedirects)
	fmt.Printf("follow_redirects: %t\n", cfg.Follow())
	fmt.Printf("proxy:            %s\n", valueOrNone(cfg.Proxy))
	fmt.Printf("tls_version:      %s\n", valueOrNone(cfg.TLSVersion))
	fmt.Printf("http_version:     %s\n", valueOrNone(cfg.HTTPVersion))
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return cliutil.Hint("(default)")
	}
	return s
}
