package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
)

var version = "1.1.0"

// Config holds all command-line configuration
type Config struct {
	// Source
	Addr    string
	Port    int
	AddrSet bool
	PortSet bool
	RecvBuf int

	// Measurement
	BufSize    int
	Iterations int
	Pass       bool

	// Output
	Format      string
	Interval    time.Duration
	MetricsAddr string
	LogLevel    string
	Quiet       bool

	// Misc
	Help    bool
	Version bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitUsage)
	}

	if cfg.Version {
		fmt.Printf("throughput %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("throughput", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.StringVarP(&cfg.Addr, "addr", "l", defaultAddress, "IP address to listen on (requires --port)")
	fs.IntVarP(&cfg.Port, "port", "p", 0, "Port to listen on; reads from stdin when neither --addr nor --port is given")
	fs.IntVarP(&cfg.BufSize, "bufsize", "b", defaultBufSize, "Size of the read buffer in bytes")
	fs.IntVarP(&cfg.Iterations, "iterations", "i", defaultIterations, "Buffer fills per measurement")
	fs.BoolVar(&cfg.Pass, "pass", false, "Copy input to stdout and report on stderr")
	fs.StringVarP(&cfg.Format, "format", "f", formatAuto, "Report format: auto, line, json, interactive")
	fs.DurationVar(&cfg.Interval, "interval", time.Second, "Minimum time between interactive redraws (0=every sample)")
	fs.IntVar(&cfg.RecvBuf, "rcvbuf", 0, "Socket receive buffer in bytes (0=OS default)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9100)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", false, "Only log errors")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")
	fs.BoolVarP(&cfg.Version, "version", "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "throughput - measure the throughput of stdin or a socket")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage: throughput [flags]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  head -c 1G /dev/zero | throughput")
		fmt.Fprintln(stderr, "  throughput --port 5001 --bufsize 65536 --iterations 16")
		fmt.Fprintln(stderr, "  tar cf - dir | throughput --pass | ssh host 'tar xf -'")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "If a port/address is not specified, throughput will read from stdin.")
		fmt.Fprintln(stderr, "A blocked read on stdin may need a second interrupt to exit.")
	}

	if err := fs.Parse(args); err != nil {
		return nil, configError("%v", err)
	}

	if cfg.Help {
		fs.Usage()
		return cfg, flag.ErrHelp
	}
	if cfg.Version {
		return cfg, nil
	}

	if fs.NArg() > 0 {
		return nil, configError("unexpected argument: %s", fs.Arg(0))
	}

	cfg.AddrSet = fs.Changed("addr")
	cfg.PortSet = fs.Changed("port")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks values pflag cannot check on its own.
func (c *Config) validate() error {
	if c.AddrSet && !c.PortSet {
		return configError("a port must be specified alongside an address")
	}
	if c.PortSet && (c.Port < 0 || c.Port > 65535) {
		return configError("port must be a valid number from 0 to 65535")
	}
	if c.BufSize <= 0 {
		return configError("buffer size must be a positive number")
	}
	if c.BufSize > maxBufSize {
		return configError("buffer size must be at most %d", maxBufSize)
	}
	if c.Iterations <= 0 {
		return configError("iterations must be a positive number")
	}
	if c.Interval < 0 {
		return configError("invalid --interval: %v", c.Interval)
	}
	if c.RecvBuf < 0 {
		return configError("invalid --rcvbuf: %d", c.RecvBuf)
	}
	switch c.Format {
	case formatAuto, formatLine, formatJSON, formatInteractive:
	default:
		return configError("unknown format: %s", c.Format)
	}
	return nil
}

func run(cfg *Config) int {
	log, err := newLogger(os.Stderr, cfg.LogLevel, cfg.Quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go watchSignals(ctx, sigCh, cancel, log, os.Exit)

	err = measure(ctx, cfg, os.Stdout, os.Stderr, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("kind", kindOf(err).String()).Msg("throughput failed")
	}
	return exitCode(err)
}

// watchSignals cancels the run on the first signal and calls exit on the
// second, since a read on stdin cannot always be interrupted.
func watchSignals(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc, log zerolog.Logger, exit func(int)) {
	select {
	case sig := <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("interrupted, interrupt again to exit")
		cancel()
	case <-ctx.Done():
		return
	}
	<-sigCh
	exit(exitInterrupted)
}

// measure runs one session: select the source, run the meter, report.
func measure(ctx context.Context, cfg *Config, stdout, stderr io.Writer, log zerolog.Logger) (err error) {
	out := stdout
	var pass io.Writer
	if cfg.Pass {
		out = stderr
		pass = stdout
	}

	reporter, err := newReporter(cfg.Format, out, cfg.Interval)
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		m := NewMetrics()
		if err := m.Serve(cfg.MetricsAddr, log); err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, m.Shutdown()) }()
		reporter = multiReporter{reporter, m}
	}

	stream, err := selectSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, stream.Close()) }()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	meter := NewMeter(MeterConfig{
		BufSize:    cfg.BufSize,
		Iterations: cfg.Iterations,
		Pass:       pass,
	})
	totals := &Totals{}
	err = meter.Run(stream, func(s Sample) error {
		totals.Add(s)
		log.Debug().Int("seq", s.Seq).Int64("bytes", s.Bytes).Dur("elapsed", s.Elapsed).Msg("sample")
		if err := reporter.Report(s, totals); err != nil {
			return writeError("error while printing output", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if err := reporter.Finish(totals); err != nil {
		return writeError("error while printing output", err)
	}
	log.Debug().Str("source", stream.Desc).Int64("bytes", totals.Bytes).Msg("stream ended")
	return nil
}
