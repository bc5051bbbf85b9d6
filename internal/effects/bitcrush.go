package effects

import "math"

// Bitcrusher quantizes samples to a reduced bit depth.
type Bitcrusher struct {
	norm float64
}

// NewBitcrusher maps amount in [0, 1] to 16-amount*14 bits.
func NewBitcrusher(amount float64) *Bitcrusher {
	bits := 16 - amount*14
	return &Bitcrusher{norm: math.Pow(2, bits)}
}

func (b *Bitcrusher) Bits() float64 { return math.Log2(b.norm) }

func (b *Bitcrusher) Process(l, r float64) (float64, float64) {
	return b.quantize(l), b.quantize(r)
}

func (b *Bitcrusher) quantize(x float64) float64 {
	return math.Floor(x*b.norm+0.5) / b.norm
}

func (b *Bitcrusher) Reset() {}
