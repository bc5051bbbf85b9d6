package voice

import (
	"strings"

	"github.com/cbegin/axml-go/internal/effects"
	"github.com/cbegin/axml-go/internal/engine"
	"github.com/cbegin/axml-go/internal/osc"
	"github.com/cbegin/axml-go/internal/sequencer"
	"github.com/cbegin/axml-go/internal/theory"
)

// TailSeconds is how long a voice stays in the arena after its source
// stops, so filter and chorus state can ring out.
const TailSeconds = 0.04

// Build creates the voice for note starting at time at (seconds on the
// context clock) and lasting duration seconds before release, and registers
// it with ctx. The voice joins the bus of the note's track when the
// context has one and the master bus otherwise. Rests and unknown pitches
// return nil.
func Build(ctx *engine.Context, note sequencer.FlatNote, at, duration float64, bank SampleBank) *Voice {
	inst := note.Instrument
	if inst == nil {
		return nil
	}
	freq := theory.Frequency(note.Pitch)
	if freq == 0 {
		return nil
	}
	sr := ctx.SampleRate()
	stop := at + duration + inst.Release

	v := &Voice{
		kind:       Classify(inst, bank),
		sampleRate: float64(sr),
		startFrame: ctx.FrameAt(at),
		stopFrame:  ctx.FrameAt(stop),
		bus:        ctx.Track(note.TrackName),
		cutoff:     inst.Cutoff,
		resonance:  inst.Resonance,
		pan:        inst.Pan,
		reverb:     inst.Reverb,
		delay:      inst.Delay,
	}
	v.expires = v.stopFrame + ctx.FrameAt(TailSeconds)

	filterType := effects.Lowpass
	switch v.kind {
	case Sweep:
		v.src = newSweepSource(at, float64(sr))
	case Noise:
		hihat := strings.EqualFold(inst.Type, "hihat")
		if hihat {
			filterType = effects.Highpass
		}
		if !inst.CutoffDeclared {
			v.cutoff = snareCutoffHz
			if hihat {
				v.cutoff = hihatCutoffHz
			}
		}
		v.src = &bufferSource{data: NoiseBuffer(ctx.Rand(), sr), step: 1}
	case Sample:
		data, rate, _ := bank.Sample(inst.Src)
		v.src = newSampleSource(data, rate, sr, freq)
	case Tonal:
		v.src = &tonalSource{osc: osc.Oscillator{Wave: TonalWaveform(inst.Type)}, freq: freq, sampleRate: float64(sr)}
	}
	v.filter = effects.NewBiquad(filterType, sr, v.cutoff, v.resonance)

	level := inst.Volume * note.Velocity
	v.gain = NewParam(1)
	v.gain.SetValueAtTime(0, at)
	v.gain.LinearRampToValueAtTime(level, at+inst.Attack)
	v.gain.LinearRampToValueAtTime(level*inst.Sustain, at+inst.Attack+inst.Decay)
	v.gain.SetValueAtTime(level*inst.Sustain, at+duration)
	v.gain.LinearRampToValueAtTime(0, stop)

	if inst.Distortion > 0 {
		v.shaper = effects.NewDistortion(inst.Distortion)
	}
	v.post = effects.NewChain()
	if inst.Bitcrush > 0 && ctx.Mode() == engine.Realtime {
		v.post.Add(effects.NewBitcrusher(inst.Bitcrush))
	}
	if inst.Chorus > 0 {
		v.post.Add(effects.NewChorus(sr, inst.Chorus))
	}

	if inst.LFORate > 0 {
		wave, _ := osc.ParseWaveform(inst.LFOType)
		switch strings.ToLower(inst.LFOTarget) {
		case "cutoff":
			v.target = lfoCutoff
			v.lfo = osc.NewLFO(wave, inst.LFORate, inst.LFOAmount*inst.Cutoff)
		case "volume":
			v.target = lfoVolume
			v.lfo = osc.NewLFO(wave, inst.LFORate, inst.LFOAmount)
		case "pan":
			v.target = lfoPan
			v.lfo = osc.NewLFO(wave, inst.LFORate, inst.LFOAmount)
		}
	}

	if inst.Delay > 0 {
		ctx.ScheduleDelay(at, inst.DelayTime, inst.DelayFeedback)
	}
	ctx.Add(v)
	return v
}
