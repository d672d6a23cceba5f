package main

import "time"

// Totals accumulates statistics across the samples of one run.
type Totals struct {
	Bytes      int64
	Samples    int
	Elapsed    time.Duration
	Last       Sample
	LastRate   float64
	LastRateOK bool

	sumRates     float64
	ratedSamples int
}

// Add folds s into the running totals.
func (t *Totals) Add(s Sample) {
	t.Bytes += s.Bytes
	t.Samples++
	t.Elapsed += s.Elapsed
	t.Last = s
	t.LastRate, t.LastRateOK = s.Rate()
	if t.LastRateOK {
		t.sumRates += t.LastRate
		t.ratedSamples++
	}
}

// Average is the mean of the per-sample rates. Samples with an undefined rate
// are left out; ok is false if none had a defined rate.
func (t *Totals) Average() (bps float64, ok bool) {
	if t.ratedSamples == 0 {
		return 0, false
	}
	return t.sumRates / float64(t.ratedSamples), true
}

// Overall is total bytes over total measured time.
func (t *Totals) Overall() (bps float64, ok bool) {
	if t.Elapsed <= 0 {
		return 0, false
	}
	return float64(t.Bytes) / t.Elapsed.Seconds(), true
}
