// Package osc provides the periodic waveforms shared by tonal voices and
// modulation LFOs.
package osc

import (
	"math"
	"strings"
)

type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return "sine"
	}
}

// ParseWaveform maps a waveform name to its shape. Unknown names report
// false and yield Sine, which is also what an oscillator keeps when asked
// for a type it does not know.
func ParseWaveform(name string) (Waveform, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sine":
		return Sine, true
	case "square":
		return Square, true
	case "sawtooth", "saw":
		return Sawtooth, true
	case "triangle":
		return Triangle, true
	}
	return Sine, false
}

// At returns the waveform value in [-1, 1] at phase in cycles. Every shape
// starts at or rises through zero at phase 0, except square which starts
// high.
func (w Waveform) At(phase float64) float64 {
	phase -= math.Floor(phase)
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		if phase < 0.5 {
			return 2 * phase
		}
		return 2*phase - 2
	case Triangle:
		switch {
		case phase < 0.25:
			return 4 * phase
		case phase < 0.75:
			return 2 - 4*phase
		default:
			return 4*phase - 4
		}
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Oscillator is a phase accumulator for one waveform. The frequency is
// passed per sample so it can follow automation.
type Oscillator struct {
	Wave  Waveform
	phase float64 // [0, 1)
}

func New(w Waveform) *Oscillator { return &Oscillator{Wave: w} }

// Next returns the current sample and advances the phase by freq/sampleRate.
func (o *Oscillator) Next(freq, sampleRate float64) float64 {
	v := o.Wave.At(o.phase)
	if sampleRate > 0 {
		o.phase += freq / sampleRate
		o.phase -= math.Floor(o.phase)
	}
	return v
}

func (o *Oscillator) Phase() float64 { return o.phase }

// Reset zeros the phase.
func (o *Oscillator) Reset() { o.phase = 0 }

// LFO is an oscillator scaled by a depth, producing values in
// [-depth, +depth] at a fixed rate.
type LFO struct {
	osc    Oscillator
	rateHz float64
	depth  float64
}

func NewLFO(w Waveform, rateHz, depth float64) *LFO {
	return &LFO{osc: Oscillator{Wave: w}, rateHz: rateHz, depth: depth}
}

// Sample advances the LFO by one sample. It returns 0 when the depth or the
// rate is zero.
func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() {
		return 0
	}
	return l.osc.Next(l.rateHz, sampleRate) * l.depth
}

// Active returns true if the LFO has non-zero depth and rate.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

func (l *LFO) Reset() { l.osc.Reset() }
