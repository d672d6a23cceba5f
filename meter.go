package main

import (
	"errors"
	"io"
	"iter"
	"time"

	"github.com/benbjohnson/clock"
)

// Buffer defaults
const (
	defaultBufSize     = 4096
	defaultIterations  = 1
	maxBufSize         = 1 << 30
	maxConsecutiveNils = 100 // (0, nil) reads tolerated before giving up, as bufio does
)

// Sample is one measured batch: the bytes read by Iterations buffer fills and
// the wall-clock time it took.
type Sample struct {
	Seq     int
	Bytes   int64
	Elapsed time.Duration
	Start   time.Time
	End     time.Time
	Final   bool // stream ended during this batch
}

// Rate returns bytes per second. ok is false when the clock did not advance,
// in which case the rate is undefined and zero is returned.
func (s Sample) Rate() (bps float64, ok bool) {
	if s.Elapsed <= 0 {
		return 0, false
	}
	return float64(s.Bytes) / s.Elapsed.Seconds(), true
}

// MeterConfig holds the knobs for one measurement run.
type MeterConfig struct {
	BufSize    int         // read buffer size in bytes (0 = 4096)
	Iterations int         // buffer fills per sample (0 = 1)
	Pass       io.Writer   // receives a copy of every byte read (nil = discard)
	Clock      clock.Clock // time source (nil = wall clock)
}

// Meter reads a stream in fixed-size batches and turns each batch into a Sample.
type Meter struct {
	bufSize    int
	iterations int
	pass       io.Writer
	clock      clock.Clock
}

// NewMeter creates a Meter with defaults applied to zero fields.
func NewMeter(cfg MeterConfig) *Meter {
	m := &Meter{
		bufSize:    cfg.BufSize,
		iterations: cfg.Iterations,
		pass:       cfg.Pass,
		clock:      cfg.Clock,
	}
	if m.bufSize <= 0 {
		m.bufSize = defaultBufSize
	}
	if m.iterations <= 0 {
		m.iterations = defaultIterations
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	return m
}

// Samples returns the lazy sequence of samples read from r. The sequence ends
// after the batch in which r reports io.EOF. A read or pass-through failure is
// yielded once as a non-nil error and ends the sequence.
func (m *Meter) Samples(r io.Reader) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		buf := make([]byte, m.bufSize)
		for seq := 1; ; seq++ {
			s, err := m.batch(r, buf)
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if s.Bytes == 0 && s.Final {
				// the stream ended on a batch boundary
				return
			}
			s.Seq = seq
			if !yield(s, nil) || s.Final {
				return
			}
		}
	}
}

// Run reads r to the end, calling fn with every sample. It returns the first
// error from the stream or from fn.
func (m *Meter) Run(r io.Reader, fn func(Sample) error) error {
	for s, err := range m.Samples(r) {
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// batch performs Iterations buffer fills and times them.
func (m *Meter) batch(r io.Reader, buf []byte) (Sample, error) {
	s := Sample{Start: m.clock.Now()}
	for i := 0; i < m.iterations; i++ {
		n, err := fill(r, buf)
		s.Bytes += int64(n)
		if n > 0 && m.pass != nil {
			if _, werr := m.pass.Write(buf[:n]); werr != nil {
				return Sample{}, writeError("error while writing buffer into stdout", werr)
			}
		}
		if err == io.EOF {
			s.Final = true
			break
		}
		if err != nil {
			return Sample{}, readError(err)
		}
	}
	s.End = m.clock.Now()
	s.Elapsed = s.End.Sub(s.Start)
	if s.Elapsed < 0 {
		s.Elapsed = 0
	}
	return s, nil
}

// fill reads into buf until it is full or the stream ends. It returns the
// number of bytes read and io.EOF if the stream ended before buf was full.
// Unlike io.ReadFull, a short final fill still reports io.EOF rather than
// io.ErrUnexpectedEOF, and a reader stuck on (0, nil) fails with io.ErrNoProgress.
func fill(r io.Reader, buf []byte) (int, error) {
	var n, empty int
	for n < len(buf) {
		nn, err := r.Read(buf[n:])
		n += nn
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, io.EOF
			}
			return n, err
		}
		if nn > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxConsecutiveNils {
			return n, io.ErrNoProgress
		}
	}
	return n, nil
}
