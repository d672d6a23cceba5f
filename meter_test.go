package main

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"
	"testing/quick"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect runs m over r and returns every sample, or the error that ended the run.
func collect(t *testing.T, m *Meter, r io.Reader) ([]Sample, error) {
	t.Helper()
	var samples []Sample
	err := m.Run(r, func(s Sample) error {
		samples = append(samples, s)
		return nil
	})
	return samples, err
}

func sampleBytes(samples []Sample) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.Bytes
	}
	return out
}

// chunkReader returns at most chunk bytes per Read.
type chunkReader struct {
	r     io.Reader
	chunk int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	return c.r.Read(p)
}

// randomChunkReader returns between 1 and max bytes per Read.
type randomChunkReader struct {
	r   io.Reader
	rng *rand.Rand
	max int
}

func (c *randomChunkReader) Read(p []byte) (int, error) {
	n := 1 + c.rng.Intn(c.max)
	if len(p) > n {
		p = p[:n]
	}
	return c.r.Read(p)
}

// tickReader advances a mock clock by tick on every Read.
type tickReader struct {
	r     io.Reader
	clock *clock.Mock
	tick  time.Duration
}

func (t *tickReader) Read(p []byte) (int, error) {
	t.clock.Add(t.tick)
	return t.r.Read(p)
}

// stuckReader never makes progress.
type stuckReader struct{}

func (stuckReader) Read(p []byte) (int, error) { return 0, nil }

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestMeterScenarios(t *testing.T) {
	tests := []struct {
		name       string
		input      int
		bufSize    int
		iterations int
		want       []int64
	}{
		{"one full buffer", 4096, 4096, 1, []int64{4096}},
		{"one full batch", 8192, 4096, 2, []int64{8192}},
		{"short stream", 100, 4096, 1, []int64{100}},
		{"several batches", 4096 * 3, 4096, 1, []int64{4096, 4096, 4096}},
		{"ends mid batch", 4096*2 + 100, 4096, 2, []int64{8192, 100}},
		{"ends on a buffer inside a batch", 4096 * 3, 4096, 2, []int64{8192, 4096}},
		{"empty stream", 0, 4096, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeter(MeterConfig{BufSize: tt.bufSize, Iterations: tt.iterations})
			samples, err := collect(t, m, bytes.NewReader(make([]byte, tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, nilIfEmpty(sampleBytes(samples)))
			for i, s := range samples {
				assert.Equal(t, i+1, s.Seq)
				assert.GreaterOrEqual(t, s.Elapsed, time.Duration(0))
			}
		})
	}
}

func nilIfEmpty(v []int64) []int64 {
	if len(v) == 0 {
		return nil
	}
	return v
}

func TestMeterFinalFlag(t *testing.T) {
	m := NewMeter(MeterConfig{BufSize: 10, Iterations: 1})
	samples, err := collect(t, m, strings.NewReader(strings.Repeat("x", 25)))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.False(t, samples[0].Final)
	assert.False(t, samples[1].Final)
	assert.True(t, samples[2].Final)
	assert.Equal(t, int64(5), samples[2].Bytes)
}

func TestMeterExactBatchProperty(t *testing.T) {
	f := func(bufSize uint16, iterations uint8, seed int64) bool {
		bs := int(bufSize)%2048 + 1
		it := int(iterations)%8 + 1
		src := &randomChunkReader{
			r:   bytes.NewReader(make([]byte, bs*it)),
			rng: rand.New(rand.NewSource(seed)),
			max: bs + 3,
		}
		m := NewMeter(MeterConfig{BufSize: bs, Iterations: it})
		var got []int64
		err := m.Run(src, func(s Sample) error {
			got = append(got, s.Bytes)
			return nil
		})
		return err == nil && len(got) == 1 && got[0] == int64(bs*it)
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 200}))
}

func TestMeterRetriesShortReads(t *testing.T) {
	readers := map[string]func(io.Reader) io.Reader{
		"one byte":  iotest.OneByteReader,
		"half":      iotest.HalfReader,
		"data+EOF":  iotest.DataErrReader,
		"seven":     func(r io.Reader) io.Reader { return &chunkReader{r: r, chunk: 7} },
		"unchunked": func(r io.Reader) io.Reader { return r },
	}
	for name, wrap := range readers {
		t.Run(name, func(t *testing.T) {
			m := NewMeter(MeterConfig{BufSize: 64, Iterations: 2})
			samples, err := collect(t, m, wrap(bytes.NewReader(make([]byte, 64*5+10))))
			require.NoError(t, err)
			assert.Equal(t, []int64{128, 128, 74}, sampleBytes(samples))
		})
	}
}

func TestMeterIdempotent(t *testing.T) {
	input := make([]byte, 10000)
	rand.New(rand.NewSource(3)).Read(input)

	run := func() []int64 {
		m := NewMeter(MeterConfig{BufSize: 333, Iterations: 3})
		samples, err := collect(t, m, &chunkReader{r: bytes.NewReader(input), chunk: 100})
		require.NoError(t, err)
		return sampleBytes(samples)
	}
	assert.Equal(t, run(), run())
}

func TestMeterTimingWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	src := &tickReader{
		r:     &chunkReader{r: bytes.NewReader(make([]byte, 20)), chunk: 5},
		clock: mock,
		tick:  time.Millisecond,
	}
	m := NewMeter(MeterConfig{BufSize: 10, Iterations: 1, Clock: mock})

	samples, err := collect(t, m, src)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	for i, s := range samples {
		assert.Equal(t, int64(10), s.Bytes)
		assert.Equal(t, 2*time.Millisecond, s.Elapsed)
		assert.Equal(t, s.End.Sub(s.Start), s.Elapsed)
		if i > 0 {
			assert.False(t, s.Start.Before(samples[i-1].End), "sample %d starts before the previous one ended", i)
		}
		bps, ok := s.Rate()
		assert.True(t, ok)
		assert.InDelta(t, 5000.0, bps, 0.001)
	}
}

func TestMeterZeroElapsed(t *testing.T) {
	m := NewMeter(MeterConfig{BufSize: 8, Clock: clock.NewMock()})
	samples, err := collect(t, m, strings.NewReader("12345678"))
	require.NoError(t, err)
	require.Len(t, samples, 1)

	assert.Equal(t, time.Duration(0), samples[0].Elapsed)
	bps, ok := samples[0].Rate()
	assert.False(t, ok)
	assert.Zero(t, bps)
}

func TestMeterReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader(strings.Repeat("x", 30)), iotest.ErrReader(boom))
	m := NewMeter(MeterConfig{BufSize: 10})

	samples, err := collect(t, m, src)
	require.Error(t, err)
	assert.Equal(t, KindRead, kindOf(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{10, 10, 10}, sampleBytes(samples))
}

func TestMeterNoProgress(t *testing.T) {
	m := NewMeter(MeterConfig{BufSize: 10})
	_, err := collect(t, m, stuckReader{})
	require.Error(t, err)
	assert.Equal(t, KindRead, kindOf(err))
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestMeterPassThrough(t *testing.T) {
	input := make([]byte, 5000)
	rand.New(rand.NewSource(9)).Read(input)

	var pass bytes.Buffer
	m := NewMeter(MeterConfig{BufSize: 512, Iterations: 3, Pass: &pass})
	samples, err := collect(t, m, iotest.HalfReader(bytes.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, input, pass.Bytes())

	var total int64
	for _, s := range samples {
		total += s.Bytes
	}
	assert.Equal(t, int64(len(input)), total)
}

func TestMeterPassThroughWriteError(t *testing.T) {
	m := NewMeter(MeterConfig{BufSize: 4, Pass: failingWriter{err: io.ErrClosedPipe}})
	_, err := collect(t, m, strings.NewReader("abcdefgh"))
	require.Error(t, err)
	assert.Equal(t, KindWrite, kindOf(err))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestMeterConsumerStops(t *testing.T) {
	m := NewMeter(MeterConfig{BufSize: 1})
	var seen int
	for s, err := range m.Samples(strings.NewReader("abcdef")) {
		require.NoError(t, err)
		seen++
		if s.Seq == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	stop := errors.New("stop")
	err := m.Run(strings.NewReader("abcdef"), func(Sample) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestNewMeterDefaults(t *testing.T) {
	m := NewMeter(MeterConfig{})
	assert.Equal(t, defaultBufSize, m.bufSize)
	assert.Equal(t, defaultIterations, m.iterations)
	assert.NotNil(t, m.clock)
}

func TestFillEOFAtCapacity(t *testing.T) {
	buf := make([]byte, 4)
	n, err := fill(iotest.DataErrReader(strings.NewReader("abcd")), buf)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = fill(strings.NewReader("ab"), buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, io.EOF, err)
}

func TestMeterReusesBuffer(t *testing.T) {
	const bufSize = 64
	m := NewMeter(MeterConfig{BufSize: bufSize, Iterations: 2})
	discard := func(Sample) error { return nil }

	allocs := func(batches int) float64 {
		data := make([]byte, batches*2*bufSize)
		r := bytes.NewReader(data)
		return testing.AllocsPerRun(20, func() {
			r.Reset(data)
			if err := m.Run(r, discard); err != nil {
				t.Fatal(err)
			}
		})
	}

	few, many := allocs(10), allocs(10000)
	assert.Positive(t, few, "the buffer itself is allocated once per run")
	assert.LessOrEqual(t, many, few, "allocations grew with the number of batches")
}
