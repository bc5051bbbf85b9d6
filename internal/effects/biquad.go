package effects

import "math"

type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
)

func (t FilterType) String() string {
	if t == Highpass {
		return "highpass"
	}
	return "lowpass"
}

// Biquad is a mono second-order filter using the Web Audio coefficient
// formulas, where Q for lowpass and highpass is a resonance in dB.
// Coefficients are recomputed only when the frequency or Q changes, so the
// cutoff can be driven per sample.
type Biquad struct {
	Type       FilterType
	sampleRate float64

	freq, q            float64
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
	ready              bool
}

func NewBiquad(t FilterType, sampleRate int, freq, q float64) *Biquad {
	b := &Biquad{Type: t, sampleRate: float64(sampleRate)}
	b.SetParams(freq, q)
	return b
}

// SetParams updates the cutoff in Hz and the resonance in dB.
func (b *Biquad) SetParams(freq, q float64) {
	if b.ready && freq == b.freq && q == b.q {
		return
	}
	b.freq, b.q, b.ready = freq, q, true

	nyquist := b.sampleRate / 2
	f := clamp(freq, 0, nyquist) / nyquist
	switch {
	case f >= 1:
		// at Nyquist a lowpass passes everything and a highpass nothing
		if b.Type == Lowpass {
			b.setNormalized(1, 0, 0, 1, 0, 0)
		} else {
			b.setNormalized(0, 0, 0, 1, 0, 0)
		}
		return
	case f <= 0:
		if b.Type == Lowpass {
			b.setNormalized(0, 0, 0, 1, 0, 0)
		} else {
			b.setNormalized(1, 0, 0, 1, 0, 0)
		}
		return
	}

	w0 := math.Pi * f
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * math.Pow(10, q/20))
	switch b.Type {
	case Highpass:
		b.setNormalized((1+cosw)/2, -(1 + cosw), (1+cosw)/2, 1+alpha, -2*cosw, 1-alpha)
	default:
		b.setNormalized((1-cosw)/2, 1-cosw, (1-cosw)/2, 1+alpha, -2*cosw, 1-alpha)
	}
}

func (b *Biquad) setNormalized(b0, b1, b2, a0, a1, a2 float64) {
	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

func (b *Biquad) Frequency() float64 { return b.freq }

// Process filters one sample.
func (b *Biquad) Process(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}
