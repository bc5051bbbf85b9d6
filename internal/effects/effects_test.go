package effects

import (
	"math"
	"math/rand"
	"testing"
)

func TestDelayBusEchoesAfterDelayTime(t *testing.T) {
	d := NewDelayBus(1000)
	d.SetTime(0.1)
	d.SetFeedback(0.5)
	d.Process(1, 1)
	for i := 1; i < 100; i++ {
		l, r := d.Process(0, 0)
		if l != 0 || r != 0 {
			t.Fatalf("unexpected early output at %d: %f %f", i, l, r)
		}
	}
	l, r := d.Process(0, 0)
	if l != 1 || r != 1 {
		t.Errorf("expected first echo at 100 samples, got l=%f r=%f", l, r)
	}
	for i := 101; i < 200; i++ {
		d.Process(0, 0)
	}
	l, _ = d.Process(0, 0)
	if math.Abs(l-0.5) > 1e-12 {
		t.Errorf("expected second echo scaled by feedback, got %f", l)
	}
}

func TestDelayBusClampsTime(t *testing.T) {
	d := NewDelayBus(1000)
	d.SetTime(0)
	if d.Time() != 0.001 {
		t.Errorf("minimum delay should be one sample, got %f", d.Time())
	}
	d.SetTime(60)
	if d.Time() > MaxDelaySeconds {
		t.Errorf("delay should clamp to %fs, got %f", MaxDelaySeconds, d.Time())
	}
}

func TestConvolverMatchesDirectConvolution(t *testing.T) {
	ir := [][]float64{{1, 0.5, 0.25}, {0, 1}}
	c := NewConvolver(ir, false)
	n := 3 * ReverbBlock
	input := make([]float64, n)
	input[0] = 1
	input[700] = -2
	outL := make([]float64, n)
	outR := make([]float64, n)
	for i := 0; i < n; i++ {
		outL[i], outR[i] = c.Process(input[i], input[i])
	}
	direct := func(h []float64, i int) float64 {
		var s float64
		for k, v := range h {
			if i-k >= 0 {
				s += input[i-k] * v
			}
		}
		return s
	}
	for i := ReverbBlock; i < n; i++ {
		src := i - ReverbBlock
		if math.Abs(outL[i]-direct(ir[0], src)) > 1e-9 {
			t.Fatalf("left sample %d: got %f want %f", i, outL[i], direct(ir[0], src))
		}
		if math.Abs(outR[i]-direct(ir[1], src)) > 1e-9 {
			t.Fatalf("right sample %d: got %f want %f", i, outR[i], direct(ir[1], src))
		}
	}
}

func TestConvolverTailAcrossPartitions(t *testing.T) {
	ir := make([]float64, 3*ReverbBlock)
	ir[2*ReverbBlock+10] = 1
	c := NewConvolver([][]float64{ir}, false)
	hit := -1
	for i := 0; i < 5*ReverbBlock; i++ {
		in := 0.0
		if i == 0 {
			in = 1
		}
		l, _ := c.Process(in, in)
		if math.Abs(l-1) < 1e-9 {
			hit = i
		}
	}
	if want := 3*ReverbBlock + 10; hit != want {
		t.Errorf("impulse should reappear at %d, got %d", want, hit)
	}
}

func TestConvolverNormalization(t *testing.T) {
	ir := NoiseImpulse(rand.New(rand.NewSource(1)), 8000, 2)
	if len(ir) != 2 || len(ir[0]) != 16000 {
		t.Fatalf("unexpected impulse shape %d x %d", len(ir), len(ir[0]))
	}
	if math.Abs(ir[0][15999]) > 1e-6 {
		t.Errorf("impulse should decay to zero, got %f", ir[0][15999])
	}
	c := NewConvolver(ir, true)
	if c.Scale() <= 0.00125 {
		t.Errorf("noise impulse should be scaled above 0.00125, got %f", c.Scale())
	}
}

func TestShaperCurve(t *testing.T) {
	curve := DistortionCurve(0.5)
	if len(curve) != CurveLength {
		t.Fatalf("curve length %d", len(curve))
	}
	if curve[0] >= 0 || curve[CurveLength-1] <= 0 {
		t.Error("curve should be odd around the midpoint")
	}
	s := NewShaper(curve)
	if v := s.Process(0); math.Abs(v) > 1e-3 {
		t.Errorf("shaper at 0: got %f", v)
	}
	if s.Process(5) != curve[CurveLength-1] || s.Process(-5) != curve[0] {
		t.Error("out of range input should clamp to curve ends")
	}
	soft := NewDistortion(0).Process(0.5)
	hard := NewDistortion(1).Process(0.5)
	if hard <= soft {
		t.Errorf("more distortion should push mid-level input harder: %f <= %f", hard, soft)
	}
}

func TestBitcrusherQuantizes(t *testing.T) {
	b := NewBitcrusher(1)
	if b.Bits() != 2 {
		t.Errorf("full bitcrush should leave 2 bits, got %f", b.Bits())
	}
	l, r := b.Process(0.3, -0.3)
	if l != 0.25 || r != -0.25 {
		t.Errorf("expected quarter steps, got %f %f", l, r)
	}
	l, _ = b.Process(0.125, 0)
	if l != 0.25 {
		t.Errorf("halfway rounds up, got %f", l)
	}
	if NewBitcrusher(0).Bits() != 16 {
		t.Error("zero bitcrush should keep 16 bits")
	}
}

func TestChorusAddsDelayedCopy(t *testing.T) {
	c := NewChorus(1000, 1)
	l, _ := c.Process(1, 1)
	if l != 1 {
		t.Errorf("first frame should be dry only, got %f", l)
	}
	var peak float64
	for i := 0; i < 40; i++ {
		l, _ = c.Process(0, 0)
		peak = math.Max(peak, l)
	}
	if peak < 0.1 || peak > 0.5 {
		t.Errorf("expected delayed copy at wet level 0.5, peak %f", peak)
	}
}

func TestBiquadLowpassAttenuatesHighs(t *testing.T) {
	sr := 44100
	lp := NewBiquad(Lowpass, sr, 500, 1)
	hp := NewBiquad(Highpass, sr, 500, 1)
	var lpLow, lpHigh, hpLow float64
	for i := 0; i < sr/2; i++ {
		low := math.Sin(2 * math.Pi * 100 * float64(i) / float64(sr))
		if i > sr/4 {
			lpLow = math.Max(lpLow, math.Abs(lp.Process(low)))
			hpLow = math.Max(hpLow, math.Abs(hp.Process(low)))
		} else {
			lp.Process(low)
			hp.Process(low)
		}
	}
	lp.Reset()
	for i := 0; i < sr/2; i++ {
		high := math.Sin(2 * math.Pi * 8000 * float64(i) / float64(sr))
		v := lp.Process(high)
		if i > sr/4 {
			lpHigh = math.Max(lpHigh, math.Abs(v))
		}
	}
	if lpLow < 0.9 {
		t.Errorf("lowpass should pass 100Hz, peak %f", lpLow)
	}
	if lpHigh > 0.05 {
		t.Errorf("lowpass should cut 8kHz, peak %f", lpHigh)
	}
	if hpLow > 0.1 {
		t.Errorf("highpass should cut 100Hz, peak %f", hpLow)
	}
}

func TestBiquadNyquistEdges(t *testing.T) {
	lp := NewBiquad(Lowpass, 44100, 30000, 1)
	if v := lp.Process(0.7); v != 0.7 {
		t.Errorf("lowpass at nyquist should pass through, got %f", v)
	}
	hp := NewBiquad(Highpass, 44100, 30000, 1)
	if v := hp.Process(0.7); v != 0 {
		t.Errorf("highpass at nyquist should be silent, got %f", v)
	}
}

func TestLimiterReducesLoud(t *testing.T) {
	c := NewMasterLimiter(44100)
	var out float64
	for i := 0; i < 44100; i++ {
		out, _ = c.Process(4, 4)
	}
	if out >= 1.2 {
		t.Errorf("limiter should hold loud signals near threshold, got %f", out)
	}
	if c.Reduction() >= 0 {
		t.Error("expected gain reduction")
	}
	c.Reset()
	quiet, _ := c.Process(0.1, 0.1)
	if quiet < 0.1 || quiet > 0.11 {
		t.Errorf("quiet signal should only get makeup gain, got %f", quiet)
	}
}

type doubler struct{ resets int }

func (d *doubler) Process(l, r float64) (float64, float64) { return 2 * l, 2 * r }
func (d *doubler) Reset()                                  { d.resets++ }

func TestChainAppliesEffectsInOrder(t *testing.T) {
	d := &doubler{}
	c := NewChain(d)
	c.Add(NewBitcrusher(1))
	l, r := c.Process(0.1, -0.1)
	if l != 0.25 || r != -0.25 {
		t.Errorf("double then crush: got %f %f", l, r)
	}
	if c.Len() != 2 {
		t.Errorf("chain length %d", c.Len())
	}
	if _, ok := c.Effects()[1].(*Bitcrusher); !ok {
		t.Errorf("second stage is %T", c.Effects()[1])
	}
	c.Reset()
	if d.resets != 1 {
		t.Errorf("resets = %d", d.resets)
	}

	var empty Chain
	if l, r := empty.Process(0.3, -0.3); l != 0.3 || r != -0.3 {
		t.Errorf("empty chain: got %f %f", l, r)
	}
}
