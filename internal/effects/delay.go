package effects

import "math"

// MaxDelaySeconds is the longest echo the delay bus can hold.
const MaxDelaySeconds = 5.0

// DelayBus is a shared stereo echo: the input is delayed and fed back into
// itself through a feedback gain. Time and feedback are set by the voices
// that send to it.
type DelayBus struct {
	bufL, bufR []float64
	pos        int
	sampleRate float64
	delay      int
	feedback   float64
}

func NewDelayBus(sampleRate int) *DelayBus {
	size := int(MaxDelaySeconds*float64(sampleRate)) + 1
	return &DelayBus{
		bufL:       make([]float64, size),
		bufR:       make([]float64, size),
		sampleRate: float64(sampleRate),
		delay:      1,
		feedback:   0.4,
	}
}

// SetTime sets the echo time in seconds, clamped to [1 sample, 5s].
func (d *DelayBus) SetTime(seconds float64) {
	n := int(math.Round(seconds * d.sampleRate))
	if n < 1 {
		n = 1
	}
	if n >= len(d.bufL) {
		n = len(d.bufL) - 1
	}
	d.delay = n
}

func (d *DelayBus) Time() float64 { return float64(d.delay) / d.sampleRate }

func (d *DelayBus) SetFeedback(g float64) { d.feedback = g }

func (d *DelayBus) Feedback() float64 { return d.feedback }

func (d *DelayBus) Process(l, r float64) (float64, float64) {
	read := d.pos - d.delay
	if read < 0 {
		read += len(d.bufL)
	}
	outL, outR := d.bufL[read], d.bufR[read]
	d.bufL[d.pos] = l + outL*d.feedback
	d.bufR[d.pos] = r + outR*d.feedback
	d.pos++
	if d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return outL, outR
}

func (d *DelayBus) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}
