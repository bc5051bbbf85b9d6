// Package voice turns a flattened note into a renderable voice: a source
// feeding filter, envelope, optional distortion, panning and the optional
// bitcrush and chorus stages, with taps into the reverb and delay buses.
package voice

import (
	"math"

	"github.com/cbegin/axml-go/internal/effects"
	"github.com/cbegin/axml-go/internal/engine"
	"github.com/cbegin/axml-go/internal/osc"
)

type lfoTarget int

const (
	lfoNone lfoTarget = iota
	lfoCutoff
	lfoVolume
	lfoPan
)

// Voice implements engine.Voice for one note.
type Voice struct {
	kind       SourceKind
	sampleRate float64
	startFrame int64
	stopFrame  int64
	expires    int64
	bus        *engine.TrackBus

	src       source
	filter    *effects.Biquad
	cutoff    float64
	resonance float64
	gain      *Param
	shaper    *effects.Shaper
	pan       float64
	post      *effects.Chain
	reverb    float64
	delay     float64

	lfo    *osc.LFO
	target lfoTarget
}

func (v *Voice) Kind() SourceKind { return v.kind }

func (v *Voice) StartFrame() int64 { return v.startFrame }

// StopFrame is the first frame after the source stops.
func (v *Voice) StopFrame() int64 { return v.stopFrame }

func (v *Voice) Expires() int64 { return v.expires }

func (v *Voice) Bus() *engine.TrackBus { return v.bus }

// Gain returns the envelope automation.
func (v *Voice) Gain() *Param { return v.gain }

// Filter returns the voice filter.
func (v *Voice) Filter() *effects.Biquad { return v.filter }

// Frequency returns the pitch automation of a sweep voice, nil otherwise.
func (v *Voice) Frequency() *Param {
	if s, ok := v.src.(*sweepSource); ok {
		return s.freq
	}
	return nil
}

// Post returns the stages applied after panning and the sends.
func (v *Voice) Post() *effects.Chain { return v.post }

// Crushed reports whether the bitcrush stage is in the chain.
func (v *Voice) Crushed() bool {
	for _, e := range v.post.Effects() {
		if _, ok := e.(*effects.Bitcrusher); ok {
			return true
		}
	}
	return false
}

func (v *Voice) Render(frame int64, out *engine.Frame) {
	if frame < v.startFrame || frame >= v.expires {
		return
	}
	t := float64(frame) / v.sampleRate

	var s, mod float64
	if frame < v.stopFrame {
		s = v.src.next(t)
		if v.lfo != nil {
			mod = v.lfo.Sample(v.sampleRate)
		}
	}

	cutoff := v.cutoff
	if v.target == lfoCutoff {
		cutoff += mod
	}
	v.filter.SetParams(cutoff, v.resonance)
	x := v.filter.Process(s)

	g := v.gain.ValueAt(t)
	if v.target == lfoVolume {
		g += mod
	}
	x *= g

	if v.shaper != nil {
		x = v.shaper.Process(x)
	}

	p := v.pan
	if v.target == lfoPan {
		p += mod
	}
	p = math.Max(-1, math.Min(1, p))
	angle := (p + 1) / 2 * math.Pi / 2
	l, r := x*math.Cos(angle), x*math.Sin(angle)

	out.ReverbL, out.ReverbR = l*v.reverb, r*v.reverb
	out.DelayL, out.DelayR = l*v.delay, r*v.delay

	out.L, out.R = v.post.Process(l, r)
}

var _ engine.Voice = (*Voice)(nil)
