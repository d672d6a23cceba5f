package main

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Burst limits
const (
	maxBurstSize = 65536 // cap burst at 64KB to prevent huge initial bursts
)

// PacerConfig describes how fast a Pacer lets bytes through.
type PacerConfig struct {
	Rate       int64 // bytes per second (0 = unlimited)
	Burst      int   // token bucket burst size (0 = auto-calculate)
	ChunkSize  int   // max bytes per write (0 = unlimited)
	SerialMode bool  // smooth byte-by-byte timing instead of bursty token bucket
}

// Pacer is an io.Writer that forwards to dst no faster than the configured rate.
//
// Two modes are supported:
//   - Token bucket (default): bursty output, feels like packet networks
//   - Wire serialization (SerialMode): one byte at a time, feels like serial links
type Pacer struct {
	ctx        context.Context
	dst        io.Writer
	config     PacerConfig
	limiter    *rate.Limiter // token bucket mode
	wireFreeAt time.Time     // serial mode: when the wire becomes free
	mu         sync.Mutex
}

// NewPacer returns a Pacer writing to dst. Waits are abandoned when ctx is done.
func NewPacer(ctx context.Context, dst io.Writer, cfg PacerConfig) *Pacer {
	var limiter *rate.Limiter
	if cfg.Rate > 0 && !cfg.SerialMode {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burstFor(cfg))
	}
	return &Pacer{
		ctx:        ctx,
		dst:        dst,
		config:     cfg,
		limiter:    limiter,
		wireFreeAt: time.Now(),
	}
}

// burstFor is at least one chunk, or 100ms of data, capped at maxBurstSize.
func burstFor(cfg PacerConfig) int {
	if cfg.Burst > 0 {
		return cfg.Burst
	}
	burst := int(cfg.Rate / 10)
	if cfg.ChunkSize > 0 && cfg.ChunkSize > burst {
		burst = cfg.ChunkSize
	}
	if burst < 1 {
		burst = 1
	}
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return burst
}

// Write sends p to the destination in pieces no larger than ChunkSize,
// waiting as needed to respect the rate.
func (p *Pacer) Write(data []byte) (int, error) {
	written := 0
	for _, piece := range p.splitChunks(data) {
		n, err := p.writePiece(piece)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// splitChunks splits data into chunks of at most ChunkSize bytes.
// If ChunkSize is 0, returns the data as a single chunk.
func (p *Pacer) splitChunks(data []byte) [][]byte {
	if p.config.ChunkSize <= 0 || len(data) <= p.config.ChunkSize {
		return [][]byte{data}
	}
	var chunks [][]byte
	for len(data) > 0 {
		end := min(p.config.ChunkSize, len(data))
		chunks = append(chunks, data[:end])
		data = data[end:]
	}
	return chunks
}

func (p *Pacer) writePiece(data []byte) (int, error) {
	switch {
	case p.config.Rate == 0:
		return p.dst.Write(data)
	case p.config.SerialMode:
		return p.writeWithWireSerialization(data)
	default:
		return p.writeWithTokenBucket(data)
	}
}

// writeWithWireSerialization gives each byte a fixed slot on the wire,
// producing smooth, character-by-character output.
func (p *Pacer) writeWithWireSerialization(data []byte) (int, error) {
	byteTime := time.Duration(float64(time.Second) / float64(p.config.Rate))
	for i := range data {
		p.mu.Lock()
		now := time.Now()
		if now.After(p.wireFreeAt) {
			p.wireFreeAt = now
		}
		p.wireFreeAt = p.wireFreeAt.Add(byteTime)
		transmitAt := p.wireFreeAt
		p.mu.Unlock()

		if wait := time.Until(transmitAt); wait > 0 {
			select {
			case <-p.ctx.Done():
				return i, p.ctx.Err()
			case <-time.After(wait):
			}
		}
		if _, err := p.dst.Write(data[i : i+1]); err != nil {
			return i, err
		}
	}
	return len(data), nil
}

// writeWithTokenBucket writes in bursts as tokens become available.
func (p *Pacer) writeWithTokenBucket(data []byte) (int, error) {
	burst := p.limiter.Burst()
	written := 0
	for len(data) > 0 {
		toWrite := min(len(data), burst)
		if err := p.limiter.WaitN(p.ctx, toWrite); err != nil {
			return written, err
		}
		n, err := p.dst.Write(data[:toWrite])
		written += n
		if err != nil {
			return written, err
		}
		data = data[toWrite:]
	}
	return written, nil
}
