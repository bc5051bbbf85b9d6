package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilenceMapsToZeroBytes(t *testing.T) {
	a := New(DefaultFFTSize)
	freq := a.ByteFrequencyData()
	require.Len(t, freq, 256)
	for _, b := range freq {
		assert.Zero(t, b)
	}
	wave := a.ByteTimeDomainData()
	require.Len(t, wave, 512)
	for _, b := range wave {
		assert.Equal(t, byte(128), b)
	}
}

func TestSinePeaksInItsBin(t *testing.T) {
	a := New(512)
	a.Smoothing = 0
	sr := 44100.0
	bin := 32
	freq := float64(bin) * sr / 512
	samples := make([]float64, 1024)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
	}
	a.Write(samples)

	db := a.FloatFrequencyData()
	peak := 0
	for k := range db {
		if db[k] > db[peak] {
			peak = k
		}
	}
	assert.Equal(t, bin, peak)

	bytes := a.ByteFrequencyData()
	assert.Equal(t, byte(255), bytes[bin])
}

func TestTimeDomainIsChronological(t *testing.T) {
	a := New(32)
	in := make([]float64, 40)
	for i := range in {
		in[i] = float64(i) / 100
	}
	a.Write(in)
	out := a.FloatTimeDomainData()
	require.Len(t, out, 32)
	assert.InDelta(t, 0.08, out[0], 1e-12)
	assert.InDelta(t, 0.39, out[31], 1e-12)
	last := 0.39
	assert.Equal(t, byte(128+int(128*last)), a.ByteTimeDomainData()[31])
}

func TestNewRejectsBadSize(t *testing.T) {
	assert.Equal(t, DefaultFFTSize, New(100).FFTSize())
	assert.Equal(t, 16, New(32).FrequencyBinCount())
}
