// feed writes a synthetic byte stream to stdout or a TCP address, optionally
// paced to a fixed bandwidth. It pairs with throughput for manual testing.
//
// Usage:
//
//	feed --count 10MB --rate 8mbit | throughput
//	feed --connect 127.0.0.1:5001 --profile 3g
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
)

const defaultChunkSize = 4096

// Config holds all command-line configuration
type Config struct {
	Count        int64 // bytes to write (0 = until interrupted)
	Rate         int64 // bytes per second (0 = unlimited)
	ChunkSize    int
	SerialMode   bool
	Connect      string
	Random       bool
	Seed         int64
	Help         bool
	ListProfiles bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ListProfiles {
		printProfiles(os.Stdout)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := run(ctx, cfg, os.Stdout)
	fmt.Fprintf(os.Stderr, "feed: wrote %s\n", humanize.IBytes(uint64(n)))
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = false

	count := fs.StringP("count", "n", "", "Bytes to write, e.g. 4096, 10MB, 1GiB (empty=unbounded)")
	rateStr := fs.StringP("rate", "r", "", "Bandwidth limit (e.g., 56kbit, 1mbit, 100KB)")
	profileName := fs.StringP("profile", "p", "", "Link profile (see --list-profiles)")
	fs.IntVarP(&cfg.ChunkSize, "chunk", "c", defaultChunkSize, "Bytes per write")
	fs.StringVar(&cfg.Connect, "connect", "", "Dial host:port instead of writing to stdout")
	fs.BoolVar(&cfg.Random, "random", false, "Write pseudo-random bytes instead of zeros")
	fs.Int64Var(&cfg.Seed, "seed", 1, "Seed for --random")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")
	fs.BoolVarP(&cfg.ListProfiles, "list-profiles", "L", false, "List available profiles")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Help {
		fs.PrintDefaults()
		return cfg, flag.ErrHelp
	}

	if *profileName != "" {
		p, ok := profiles[*profileName]
		if !ok {
			return nil, fmt.Errorf("unknown profile: %s", *profileName)
		}
		cfg.Rate = p.Rate
		cfg.SerialMode = p.SerialMode
	}
	if *rateStr != "" {
		r, err := parseBandwidth(*rateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --rate: %w", err)
		}
		cfg.Rate = r
	}
	if *count != "" {
		n, err := humanize.ParseBytes(*count)
		if err != nil {
			return nil, fmt.Errorf("invalid --count: %w", err)
		}
		cfg.Count = int64(n)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid --chunk: %d", cfg.ChunkSize)
	}
	return cfg, nil
}

// run writes the configured stream to stdout or to cfg.Connect and returns
// the number of bytes written.
func run(ctx context.Context, cfg *Config, stdout io.Writer) (n int64, err error) {
	dst := stdout
	if cfg.Connect != "" {
		var d net.Dialer
		conn, derr := d.DialContext(ctx, "tcp", cfg.Connect)
		if derr != nil {
			return 0, derr
		}
		defer func() { err = multierr.Append(err, conn.Close()) }()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()
		dst = conn
	}

	pacer := NewPacer(ctx, dst, PacerConfig{
		Rate:       cfg.Rate,
		ChunkSize:  cfg.ChunkSize,
		SerialMode: cfg.SerialMode,
	})
	return copyN(ctx, pacer, newSource(cfg), cfg.Count, cfg.ChunkSize)
}

// newSource returns an endless reader of zeros or seeded random bytes.
func newSource(cfg *Config) io.Reader {
	if cfg.Random {
		return rand.New(rand.NewSource(cfg.Seed))
	}
	return zeros{}
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// copyN copies count bytes (0 = until ctx is done) from src to dst in
// chunk-sized writes.
func copyN(ctx context.Context, dst io.Writer, src io.Reader, count int64, chunk int) (int64, error) {
	buf := make([]byte, chunk)
	var written int64
	for count == 0 || written < count {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		want := int64(len(buf))
		if count > 0 && count-written < want {
			want = count - written
		}
		nr, err := src.Read(buf[:want])
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// parseBandwidth returns bytes per second for a rate such as "56kbit",
// "1.5m" (bits) or "100KB", "2MiB/s" (bytes). Bare numbers are bits.
func parseBandwidth(s string) (int64, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "/s")
	if s == "" {
		return 0, nil
	}
	bits := !strings.HasSuffix(s, "b")
	if bits {
		s = strings.TrimSuffix(s, "bit")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}
	if bits {
		n /= 8
	}
	return int64(n), nil
}

func printProfiles(w io.Writer) {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := profiles[name]
		mode := ""
		if p.SerialMode {
			mode = " (serial)"
		}
		fmt.Fprintf(w, "  %-16s %s/s%s\n", name, humanize.Bytes(uint64(p.Rate)), mode)
	}
}
