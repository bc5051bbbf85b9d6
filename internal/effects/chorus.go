package effects

import "math"

const (
	chorusBaseDelay = 0.02 // seconds
	chorusRateHz    = 1.5
	chorusDepthUnit = 0.002 // seconds of modulation per unit of amount
)

// Chorus adds one modulated short delay of the input to the dry signal.
// The delay time swings around 20ms by 0.002*amount seconds at 1.5 Hz and
// the delayed copy is mixed in at amount*0.5.
type Chorus struct {
	bufL, bufR []float64
	pos        int
	size       int
	sampleRate float64
	depth      float64 // seconds
	rate       float64 // radians per sample
	phase      float64
	wet        float64
}

func NewChorus(sampleRate int, amount float64) *Chorus {
	sr := float64(sampleRate)
	depth := chorusDepthUnit * amount
	size := int(math.Ceil((chorusBaseDelay+math.Abs(depth))*sr)) + 4
	return &Chorus{
		bufL:       make([]float64, size),
		bufR:       make([]float64, size),
		size:       size,
		sampleRate: sr,
		depth:      depth,
		rate:       2 * math.Pi * chorusRateHz / sr,
		wet:        amount * 0.5,
	}
}

func (c *Chorus) Process(l, r float64) (float64, float64) {
	delay := (chorusBaseDelay + c.depth*math.Sin(c.phase)) * c.sampleRate
	c.phase += c.rate
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r

	readPos := float64(c.pos) - delay
	for readPos < 0 {
		readPos += float64(c.size)
	}
	idx := int(readPos)
	frac := readPos - float64(idx)
	idx2 := idx + 1
	if idx2 >= c.size {
		idx2 = 0
	}
	delL := c.bufL[idx]*(1-frac) + c.bufL[idx2]*frac
	delR := c.bufR[idx]*(1-frac) + c.bufR[idx2]*frac

	c.pos++
	if c.pos >= c.size {
		c.pos = 0
	}
	return l + delL*c.wet, r + delR*c.wet
}

func (c *Chorus) Reset() {
	for i := range c.bufL {
		c.bufL[i] = 0
		c.bufR[i] = 0
	}
	c.pos = 0
	c.phase = 0
}
