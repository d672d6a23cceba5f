package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const defaultAddress = "127.0.0.1"

// Stream is the byte stream handed to the meter.
type Stream struct {
	io.Reader
	Desc string // "stdin" or the remote address

	closeOnce sync.Once
	closers   []io.Closer
	closeErr  error
}

// Close releases everything the stream holds. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		for _, c := range s.closers {
			s.closeErr = multierr.Append(s.closeErr, c.Close())
		}
	})
	return s.closeErr
}

// listening reports whether cfg selects a TCP socket rather than stdin.
func (c *Config) listening() bool {
	return c.AddrSet || c.PortSet
}

// selectSource returns stdin, or blocks until one TCP client connects on
// cfg.Addr:cfg.Port and returns that connection.
func selectSource(ctx context.Context, cfg *Config, log zerolog.Logger) (*Stream, error) {
	if !cfg.listening() {
		log.Debug().Msg("reading from stdin")
		return &Stream{Reader: os.Stdin, Desc: "stdin"}, nil
	}

	ln, err := listen(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return acceptStream(ctx, ln, log)
}

// listen binds the TCP listener described by cfg.
func listen(ctx context.Context, cfg *Config) (net.Listener, error) {
	ip := net.ParseIP(cfg.Addr)
	if ip == nil {
		return nil, bindError(fmt.Sprintf("bad IP address %s", cfg.Addr), nil)
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(cfg.Port))

	lc := net.ListenConfig{Control: socketControl(cfg.RecvBuf)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, bindError(fmt.Sprintf("there was an error binding to %s", addr), err)
	}
	return ln, nil
}

// acceptStream takes the first connection from ln, closes ln and returns
// the connection as a Stream.
func acceptStream(ctx context.Context, ln net.Listener, log zerolog.Logger) (*Stream, error) {
	conn, err := accept(ctx, ln)
	if cerr := ln.Close(); cerr != nil && err == nil {
		log.Debug().Err(cerr).Msg("closing listener")
	}
	if err != nil {
		return nil, bindError("there was an error accepting a connection", err)
	}
	log.Info().Str("peer", conn.RemoteAddr().String()).Msg("reading incoming data")

	return &Stream{
		Reader:  conn,
		Desc:    conn.RemoteAddr().String(),
		closers: []io.Closer{conn},
	}, nil
}

// accept waits for one connection, giving up when ctx is done.
func accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}
