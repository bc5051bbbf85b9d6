package effects

import "math"

// CurveLength is the number of points in a distortion transfer curve.
const CurveLength = 44100

// Shaper applies a transfer curve to a mono signal. Inputs in [-1, 1] map
// linearly onto the curve's index range with linear interpolation; inputs
// outside it take the end values.
type Shaper struct {
	curve []float64
}

func NewShaper(curve []float64) *Shaper {
	return &Shaper{curve: curve}
}

// NewDistortion builds the soft clipping shaper for a distortion amount
// in [0, 1].
func NewDistortion(amount float64) *Shaper {
	return NewShaper(DistortionCurve(amount))
}

// DistortionCurve samples (3+k)*x*20deg/(pi+k*|x|) with k = amount*400 over
// x = i*2/n - 1.
func DistortionCurve(amount float64) []float64 {
	k := amount * 400
	deg := math.Pi / 180
	curve := make([]float64, CurveLength)
	for i := range curve {
		x := float64(i)*2/CurveLength - 1
		curve[i] = (3 + k) * x * 20 * deg / (math.Pi + k*math.Abs(x))
	}
	return curve
}

func (s *Shaper) Process(x float64) float64 {
	n := len(s.curve)
	if n == 0 {
		return x
	}
	if n == 1 {
		return s.curve[0]
	}
	v := float64(n-1) * (x + 1) / 2
	if v <= 0 {
		return s.curve[0]
	}
	if v >= float64(n-1) {
		return s.curve[n-1]
	}
	i := int(v)
	frac := v - float64(i)
	return s.curve[i] + (s.curve[i+1]-s.curve[i])*frac
}

func (s *Shaper) Reset() {}
