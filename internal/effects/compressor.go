package effects

import "math"

// Limiter is a stereo-linked hard-knee compressor. Gain reduction follows
// a one-pole envelope in dB and an automatic makeup gain lifts the output
// so a full-scale input comes back near full scale.
type Limiter struct {
	threshold float64 // dB
	ratio     float64
	attack    float64 // coefficient
	release   float64 // coefficient
	makeup    float64
	reduction float64 // current gain reduction in dB, <= 0
}

// NewLimiter creates a limiter.
// thresholdDB: level where compression starts (e.g. -1)
// ratio: compression ratio above threshold (e.g. 20)
// attack, release: time constants in seconds
func NewLimiter(sampleRate int, thresholdDB, ratio, attack, release float64) *Limiter {
	sr := float64(sampleRate)
	l := &Limiter{
		threshold: thresholdDB,
		ratio:     math.Max(ratio, 1),
		attack:    timeCoefficient(attack, sr),
		release:   timeCoefficient(release, sr),
	}
	fullRange := dbToLinear(l.curve(0))
	l.makeup = math.Pow(1/fullRange, 0.6)
	return l
}

// NewMasterLimiter returns the master bus settings: -1 dB threshold, 20:1,
// 3ms attack and 250ms release.
func NewMasterLimiter(sampleRate int) *Limiter {
	return NewLimiter(sampleRate, -1, 20, 0.003, 0.25)
}

func timeCoefficient(seconds, sampleRate float64) float64 {
	if seconds <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(seconds*sampleRate))
}

// curve maps an input level in dB to an output level in dB.
func (c *Limiter) curve(inDB float64) float64 {
	if inDB <= c.threshold {
		return inDB
	}
	return c.threshold + (inDB-c.threshold)/c.ratio
}

func (c *Limiter) Process(l, r float64) (float64, float64) {
	peak := math.Max(math.Abs(l), math.Abs(r))
	target := 0.0
	if peak > 0 {
		inDB := linearToDB(peak)
		target = c.curve(inDB) - inDB
	}
	if target < c.reduction {
		c.reduction += c.attack * (target - c.reduction)
	} else {
		c.reduction += c.release * (target - c.reduction)
	}
	g := dbToLinear(c.reduction) * c.makeup
	return l * g, r * g
}

// Reduction returns the current gain reduction in dB.
func (c *Limiter) Reduction() float64 { return c.reduction }

func (c *Limiter) Reset() {
	c.reduction = 0
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func linearToDB(v float64) float64 { return 20 * math.Log10(v) }
