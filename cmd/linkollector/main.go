// linkollector sends single activity-tagged messages to a server that
// acknowledges and reports them.
//
//	linkollector -r [--config FILE] [--metrics-addr ADDR] [--inline]
//	linkollector -s HOST ACTIVITY MESSAGE
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/danmuck/linkollector/internal/client"
	"github.com/danmuck/linkollector/internal/config"
	"github.com/danmuck/linkollector/internal/logging"
	"github.com/danmuck/linkollector/internal/observability"
	"github.com/danmuck/linkollector/internal/server"
)

const exitInterrupted = 130

var errUsage = errors.New("usage")

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
func (e exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "linkollector: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

type options struct {
	receive     bool
	send        bool
	configPath  string
	metricsAddr string
	inline      bool
	initConfig  string
	help        bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("linkollector", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVarP(&opts.receive, "receive", "r", false, "run the server and report received messages")
	fs.BoolVarP(&opts.send, "send", "s", false, "send HOST ACTIVITY MESSAGE and wait for the acknowledgement")
	fs.StringVar(&opts.configPath, "config", "", "TOML config file")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (receive mode)")
	fs.BoolVar(&opts.inline, "inline", false, "serve on a single goroutine (receive mode)")
	fs.StringVar(&opts.initConfig, "init-config", "", "write a default config file to this path and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "show help")
	return fs
}

func run(args []string, stdout io.Writer) error {
	var opts options
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, fs)
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if opts.help {
		printHelp(stdout, fs)
		return nil
	}
	if opts.initConfig != "" {
		if err := config.WriteTemplate(opts.initConfig, false); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", opts.initConfig)
		return nil
	}

	switch {
	case opts.receive && opts.send:
		return fmt.Errorf("%w: --receive and --send are exclusive", errUsage)
	case !opts.receive && !opts.send:
		return fmt.Errorf("%w: one of --receive or --send is required", errUsage)
	}

	cfg, err := loadConfig(opts, fs)
	if err != nil {
		return err
	}

	if opts.send {
		rest := fs.Args()
		if len(rest) != 3 {
			return fmt.Errorf("%w: --send takes HOST ACTIVITY MESSAGE, got %d arguments", errUsage, len(rest))
		}
		req := client.Request{Host: rest[0], Activity: rest[1], Message: rest[2]}
		if _, err := req.Validate(); err != nil {
			return err
		}
		return send(cfg, req)
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("%w: --receive takes no arguments, got %q", errUsage, fs.Args())
	}
	return receive(cfg)
}

func loadConfig(opts options, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if fs.Changed("inline") {
		cfg.Inline = opts.inline
	}
	return cfg, nil
}

func receive(cfg config.Config) error {
	logging.ConfigureRuntime()
	logger := log.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsErr := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		ln, err := observability.Listen(ctx, cfg.MetricsAddr)
		if err != nil {
			return err
		}
		go func() { metricsErr <- observability.Serve(ctx, ln, logger) }()
	}

	svc := server.NewServiceWithConfig(cfg.Service(logger))
	runErr := svc.Run(context.Background())
	cancel()
	if cfg.MetricsAddr != "" {
		if err := <-metricsErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func send(cfg config.Config, req client.Request) error {
	logging.ConfigureRuntime()
	err := client.New(cfg.Client(log.Logger)).Send(context.Background(), req)
	if errors.Is(err, client.ErrCancelled) {
		return exitError{code: exitInterrupted, err: err}
	}
	return err
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "usage:\n  linkollector -r [--config FILE] [--metrics-addr ADDR] [--inline]\n  linkollector -s HOST ACTIVITY MESSAGE\n\nACTIVITY is URL or TEXT (any case).\n\nflags:\n%s", fs.FlagUsages())
}
