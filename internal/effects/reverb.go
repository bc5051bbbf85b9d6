package effects

import (
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/maddyblue/go-dsp/fft"
)

// ReverbBlock is the partition size of the convolution reverb. Output lags
// input by one block.
const ReverbBlock = 512

// NoiseImpulse generates a stereo impulse response of decaying white noise:
// (rand*2-1) * (1-i/n)^2 over n = seconds*sampleRate samples per channel.
func NoiseImpulse(rng *rand.Rand, sampleRate int, seconds float64) [][]float64 {
	n := int(float64(sampleRate) * seconds)
	ir := make([][]float64, 2)
	for c := range ir {
		data := make([]float64, n)
		for i := range data {
			decay := 1 - float64(i)/float64(n)
			data[i] = (rng.Float64()*2 - 1) * decay * decay
		}
		ir[c] = data
	}
	return ir
}

// Convolver is a uniformly partitioned overlap-save convolution reverb.
// Each channel of the input is convolved with the matching channel of the
// impulse response; a mono response serves both channels.
type Convolver struct {
	parts  [2][][]complex128 // impulse spectra per partition
	fdl    [2][][]complex128 // input spectra, newest at head
	head   int
	prev   [2][]float64
	cur    [2][]float64
	out    [2][]float64
	n      int
	silent int // consecutive all-zero input blocks
	scale  float64
}

// NewConvolver prepares ir for convolution. With normalize set the
// response is scaled to 0.00125/rms, which keeps a 2 second noise tail
// at a usable level.
func NewConvolver(ir [][]float64, normalize bool) *Convolver {
	c := &Convolver{scale: 1}
	if len(ir) == 0 {
		ir = [][]float64{{}}
	}
	if normalize {
		c.scale = normalizationScale(ir)
	}
	for ch := 0; ch < 2; ch++ {
		src := ir[0]
		if ch < len(ir) {
			src = ir[ch]
		}
		c.parts[ch] = partition(src, c.scale)
		c.fdl[ch] = make([][]complex128, len(c.parts[ch]))
		for p := range c.fdl[ch] {
			c.fdl[ch][p] = make([]complex128, 2*ReverbBlock)
		}
		c.prev[ch] = make([]float64, ReverbBlock)
		c.cur[ch] = make([]float64, ReverbBlock)
		c.out[ch] = make([]float64, ReverbBlock)
	}
	return c
}

func normalizationScale(ir [][]float64) float64 {
	var power float64
	var count int
	for _, ch := range ir {
		for _, v := range ch {
			power += v * v
		}
		count += len(ch)
	}
	if count == 0 {
		return 1
	}
	rms := math.Sqrt(power / float64(count))
	if rms < 0.000125 {
		rms = 0.000125
	}
	return 0.00125 / rms
}

func partition(ir []float64, scale float64) [][]complex128 {
	count := (len(ir) + ReverbBlock - 1) / ReverbBlock
	if count == 0 {
		count = 1
	}
	parts := make([][]complex128, count)
	for p := range parts {
		frame := make([]float64, 2*ReverbBlock)
		for i := 0; i < ReverbBlock; i++ {
			j := p*ReverbBlock + i
			if j >= len(ir) {
				break
			}
			frame[i] = ir[j] * scale
		}
		parts[p] = fft.FFTReal(frame)
	}
	return parts
}

// Scale returns the normalization gain applied to the impulse response.
func (c *Convolver) Scale() float64 { return c.scale }

func (c *Convolver) Process(l, r float64) (float64, float64) {
	outL, outR := c.out[0][c.n], c.out[1][c.n]
	c.cur[0][c.n] = l
	c.cur[1][c.n] = r
	c.n++
	if c.n == ReverbBlock {
		c.processBlock()
		c.n = 0
	}
	return outL, outR
}

func (c *Convolver) processBlock() {
	if isZero(c.cur[0]) && isZero(c.cur[1]) {
		c.silent++
	} else {
		c.silent = 0
	}
	parts := len(c.parts[0])
	// once every partition has seen only silence the tail is over
	if c.silent > parts+1 {
		for ch := 0; ch < 2; ch++ {
			clear(c.out[ch])
			clear(c.prev[ch])
		}
		return
	}

	c.head = (c.head - 1 + parts) % parts
	frame := make([]float64, 2*ReverbBlock)
	acc := make([]complex128, 2*ReverbBlock)
	for ch := 0; ch < 2; ch++ {
		copy(frame, c.prev[ch])
		copy(frame[ReverbBlock:], c.cur[ch])
		c.fdl[ch][c.head] = fft.FFTReal(frame)

		clear(acc)
		for p := 0; p < parts; p++ {
			x := c.fdl[ch][(c.head+p)%parts]
			h := c.parts[ch][p]
			for k := 0; k <= ReverbBlock; k++ {
				acc[k] += x[k] * h[k]
			}
		}
		for k := 1; k < ReverbBlock; k++ {
			acc[2*ReverbBlock-k] = cmplx.Conj(acc[k])
		}
		y := fft.IFFT(acc)
		for i := 0; i < ReverbBlock; i++ {
			c.out[ch][i] = real(y[ReverbBlock+i])
		}
		c.prev[ch], c.cur[ch] = c.cur[ch], c.prev[ch]
	}
}

func (c *Convolver) Reset() {
	for ch := 0; ch < 2; ch++ {
		for p := range c.fdl[ch] {
			clear(c.fdl[ch][p])
		}
		clear(c.prev[ch])
		clear(c.cur[ch])
		clear(c.out[ch])
	}
	c.n = 0
	c.head = 0
	c.silent = 0
}

func isZero(buf []float64) bool {
	for _, v := range buf {
		if v != 0 {
			return false
		}
	}
	return true
}
