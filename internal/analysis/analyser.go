// Package analysis exposes frequency and waveform snapshots of the master
// output for visualizers.
package analysis

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/maddyblue/go-dsp/fft"
	"github.com/maddyblue/go-dsp/window"
)

const (
	DefaultFFTSize   = 512
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Analyser keeps the most recent FFTSize samples of a mono signal. Reads
// and writes may come from different goroutines.
type Analyser struct {
	mu        sync.Mutex
	fftSize   int
	ring      []float64
	pos       int
	window    []float64
	smoothed  []float64
	Smoothing float64
	MinDB     float64
	MaxDB     float64
}

// New returns an analyser for a power-of-two fftSize.
func New(fftSize int) *Analyser {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	return &Analyser{
		fftSize:   fftSize,
		ring:      make([]float64, fftSize),
		window:    window.Blackman(fftSize),
		smoothed:  make([]float64, fftSize/2),
		Smoothing: DefaultSmoothing,
		MinDB:     DefaultMinDB,
		MaxDB:     DefaultMaxDB,
	}
}

func (a *Analyser) FFTSize() int { return a.fftSize }

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Write appends samples, dropping the oldest.
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos++
		if a.pos == a.fftSize {
			a.pos = 0
		}
	}
}

// snapshot returns the ring in chronological order. Caller holds mu.
func (a *Analyser) snapshot() []float64 {
	out := make([]float64, a.fftSize)
	n := copy(out, a.ring[a.pos:])
	copy(out[n:], a.ring[:a.pos])
	return out
}

// FloatTimeDomainData returns the current waveform.
func (a *Analyser) FloatTimeDomainData() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// ByteTimeDomainData maps the waveform to bytes with 128 as zero.
func (a *Analyser) ByteTimeDomainData() []byte {
	samples := a.FloatTimeDomainData()
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = toByte(128 * (1 + s))
	}
	return out
}

// FloatFrequencyData returns smoothed magnitudes in dB. Each call advances
// the smoothing state.
func (a *Analyser) FloatFrequencyData() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	frame := a.snapshot()
	for i := range frame {
		frame[i] *= a.window[i]
	}
	spectrum := fft.FFTReal(frame)
	tau := a.Smoothing
	out := make([]float64, len(a.smoothed))
	for k := range a.smoothed {
		mag := cmplx.Abs(spectrum[k]) / float64(a.fftSize)
		v := tau*a.smoothed[k] + (1-tau)*mag
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[k] = v
		out[k] = 20 * math.Log10(v)
	}
	return out
}

// ByteFrequencyData maps FloatFrequencyData from [MinDB, MaxDB] to bytes.
func (a *Analyser) ByteFrequencyData() []byte {
	db := a.FloatFrequencyData()
	out := make([]byte, len(db))
	span := a.MaxDB - a.MinDB
	for i, v := range db {
		if math.IsInf(v, -1) || span <= 0 {
			continue
		}
		out[i] = toByte(255 / span * (v - a.MinDB))
	}
	return out
}

func toByte(v float64) byte {
	v = math.Floor(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
