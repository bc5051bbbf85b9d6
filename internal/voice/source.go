package voice

import (
	"math/rand"
	"strings"

	"github.com/cbegin/axml-go/internal/axml"
	"github.com/cbegin/axml-go/internal/osc"
	"github.com/cbegin/axml-go/internal/theory"
)

// SourceKind is the closed set of sound sources a voice can start from.
type SourceKind int

const (
	Tonal SourceKind = iota
	Noise
	Sample
	Sweep
)

func (k SourceKind) String() string {
	switch k {
	case Noise:
		return "noise"
	case Sample:
		return "sample"
	case Sweep:
		return "sweep"
	default:
		return "tonal"
	}
}

const (
	noiseSeconds  = 0.5
	sweepStartHz  = 150
	sweepEndHz    = 0.01
	sweepSeconds  = 0.5
	snareCutoffHz = 1200
	hihatCutoffHz = 8000
)

// SampleBank looks up decoded mono sample data by source.
type SampleBank interface {
	Sample(src string) (data []float64, sampleRate int, ok bool)
}

// Classify picks the source for an instrument. A sample instrument whose
// source is not in bank plays as a tonal sine.
func Classify(inst *axml.Instrument, bank SampleBank) SourceKind {
	if inst == nil {
		return Tonal
	}
	switch strings.ToLower(inst.Type) {
	case "kick":
		return Sweep
	case "snare", "hihat":
		return Noise
	case "sample":
		if bank != nil && inst.Src != "" {
			if _, _, ok := bank.Sample(inst.Src); ok {
				return Sample
			}
		}
	}
	return Tonal
}

// TonalWaveform maps an instrument type to its oscillator shape.
func TonalWaveform(typ string) osc.Waveform {
	switch strings.ToLower(typ) {
	case "piano":
		return osc.Triangle
	case "synth":
		return osc.Sawtooth
	}
	w, _ := osc.ParseWaveform(typ)
	return w
}

// source produces one mono sample per call for successive frames starting
// at the voice's start. t is the frame time in seconds.
type source interface {
	next(t float64) float64
}

type tonalSource struct {
	osc        osc.Oscillator
	freq       float64
	sampleRate float64
}

func (s *tonalSource) next(float64) float64 { return s.osc.Next(s.freq, s.sampleRate) }

type sweepSource struct {
	osc        osc.Oscillator
	freq       *Param
	sampleRate float64
}

func newSweepSource(at, sampleRate float64) *sweepSource {
	p := NewParam(440)
	p.SetValueAtTime(sweepStartHz, at)
	p.ExponentialRampToValueAtTime(sweepEndHz, at+sweepSeconds)
	return &sweepSource{osc: osc.Oscillator{Wave: osc.Sine}, freq: p, sampleRate: sampleRate}
}

func (s *sweepSource) next(t float64) float64 {
	return s.osc.Next(s.freq.ValueAt(t), s.sampleRate)
}

// bufferSource plays data once at a fixed rate with linear interpolation
// and falls silent at the end.
type bufferSource struct {
	data []float64
	pos  float64
	step float64
}

func (s *bufferSource) next(float64) float64 {
	i := int(s.pos)
	if i >= len(s.data) || s.pos < 0 {
		return 0
	}
	v := s.data[i]
	if i+1 < len(s.data) {
		frac := s.pos - float64(i)
		v += (s.data[i+1] - v) * frac
	}
	s.pos += s.step
	return v
}

// NoiseBuffer draws half a second of uniform white noise in [-1, 1).
func NoiseBuffer(rng *rand.Rand, sampleRate int) []float64 {
	n := int(float64(sampleRate) * noiseSeconds)
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = rng.Float64()*2 - 1
	}
	return buf
}

func newSampleSource(data []float64, dataRate, sampleRate int, freq float64) *bufferSource {
	step := freq / theory.MiddleC
	if dataRate > 0 && sampleRate > 0 {
		step *= float64(dataRate) / float64(sampleRate)
	}
	return &bufferSource{data: data, step: step}
}
