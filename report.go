package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// Report formats
const (
	formatAuto        = "auto"
	formatLine        = "line"
	formatJSON        = "json"
	formatInteractive = "interactive"
)

// labelWidth pads the interactive labels into one column.
const labelWidth = 24

// Reporter renders samples as they are produced.
type Reporter interface {
	// Report is called after t has been updated with s.
	Report(s Sample, t *Totals) error
	// Finish is called once after the last sample of a run that ended cleanly.
	Finish(t *Totals) error
}

// newReporter builds the reporter for format writing to w. For formatAuto,
// an interactive display is used when w is a terminal.
func newReporter(format string, w io.Writer, interval time.Duration) (Reporter, error) {
	switch format {
	case formatAuto, "":
		if isTerminal(w) {
			return newInteractiveReporter(w, interval), nil
		}
		return &lineReporter{w: w}, nil
	case formatLine:
		return &lineReporter{w: w}, nil
	case formatJSON:
		return &jsonReporter{enc: json.NewEncoder(w)}, nil
	case formatInteractive:
		return newInteractiveReporter(w, interval), nil
	default:
		return nil, configError("unknown format: %s", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// formatBytes renders n in 1024-based units.
func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// formatRate renders a bytes/sec value, or "-" when the rate is undefined.
func formatRate(bps float64, ok bool) string {
	if !ok {
		return "-"
	}
	return humanize.IBytes(uint64(bps)) + "/s"
}

// lineReporter writes one line per sample.
type lineReporter struct {
	w io.Writer
}

func (r *lineReporter) Report(s Sample, t *Totals) error {
	_, err := fmt.Fprintf(r.w, "#%d %d bytes in %v: %s (total %s, avg %s)\n",
		s.Seq, s.Bytes, s.Elapsed,
		formatRate(s.Rate()),
		formatBytes(t.Bytes),
		formatRate(t.Average()),
	)
	return err
}

func (r *lineReporter) Finish(t *Totals) error {
	_, err := fmt.Fprintf(r.w, "done: %s in %d samples, %v measured, overall %s, avg %s\n",
		formatBytes(t.Bytes), t.Samples, t.Elapsed,
		formatRate(t.Overall()),
		formatRate(t.Average()),
	)
	return err
}

// interactiveReporter keeps a three-line block on a terminal up to date.
type interactiveReporter struct {
	w        io.Writer
	throttle *rate.Sometimes // nil = redraw every sample
	drawn    bool
}

func newInteractiveReporter(w io.Writer, interval time.Duration) *interactiveReporter {
	r := &interactiveReporter{w: w}
	if interval > 0 {
		r.throttle = &rate.Sometimes{Interval: interval}
	}
	return r
}

func (r *interactiveReporter) Report(s Sample, t *Totals) error {
	if s.Final || r.throttle == nil {
		return r.draw(t)
	}
	var err error
	r.throttle.Do(func() { err = r.draw(t) })
	return err
}

func (r *interactiveReporter) Finish(t *Totals) error {
	if t.Samples > 0 && t.Last.Final {
		// already drawn by the final Report
		return nil
	}
	return r.draw(t)
}

func (r *interactiveReporter) draw(t *Totals) error {
	var b strings.Builder
	if r.drawn {
		b.WriteString("\x1b[3A")
	}
	writeField(&b, "Data Transferred:", fmt.Sprintf("%s (%d cycles)", formatBytes(t.Bytes), t.Samples))
	writeField(&b, "Transfer Speed:", formatRate(t.LastRate, t.LastRateOK))
	writeField(&b, "Average Transfer Speed:", formatRate(t.Average()))
	r.drawn = true
	_, err := io.WriteString(r.w, b.String())
	return err
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(label)
	if pad := labelWidth - len(label); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(value)
	b.WriteString("\x1b[K\n")
}

// jsonReporter writes newline-delimited JSON.
type jsonReporter struct {
	enc *json.Encoder
}

type jsonSample struct {
	Type      string   `json:"type"`
	Seq       int      `json:"seq,omitempty"`
	Bytes     int64    `json:"bytes"`
	ElapsedNs int64    `json:"elapsed_ns"`
	RateBps   *float64 `json:"rate_bps"`
	AvgBps    *float64 `json:"avg_bps"`
	Samples   int      `json:"samples,omitempty"`
	Final     bool     `json:"final,omitempty"`
}

func optRate(bps float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &bps
}

func (r *jsonReporter) Report(s Sample, t *Totals) error {
	return r.enc.Encode(jsonSample{
		Type:      "sample",
		Seq:       s.Seq,
		Bytes:     s.Bytes,
		ElapsedNs: s.Elapsed.Nanoseconds(),
		RateBps:   optRate(s.Rate()),
		AvgBps:    optRate(t.Average()),
		Final:     s.Final,
	})
}

func (r *jsonReporter) Finish(t *Totals) error {
	return r.enc.Encode(jsonSample{
		Type:      "summary",
		Bytes:     t.Bytes,
		ElapsedNs: t.Elapsed.Nanoseconds(),
		RateBps:   optRate(t.Overall()),
		AvgBps:    optRate(t.Average()),
		Samples:   t.Samples,
	})
}

// multiReporter fans samples out to several reporters.
type multiReporter []Reporter

func (m multiReporter) Report(s Sample, t *Totals) error {
	for _, r := range m {
		if err := r.Report(s, t); err != nil {
			return err
		}
	}
	return nil
}

func (m multiReporter) Finish(t *Totals) error {
	for _, r := range m {
		if err := r.Finish(t); err != nil {
			return err
		}
	}
	return nil
}
