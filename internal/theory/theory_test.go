package theory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrequency(t *testing.T) {
	cases := []struct {
		pitch string
		want  float64
	}{
		{"A4", 440},
		{"C4", 261.63},
		{"69", 440},
		{"60", 261.63},
		{"A#4", 466.16},
		{"Bb4", 466.16},
		{"C#3", 138.59},
		{"A0", 27.5},
		{"rest", 0},
		{"", 0},
		{"H4", 0},
		{"C", 0},
		{"c4", 0},
		{"C4x", 0},
		{"NaN", 0},
	}
	for _, tc := range cases {
		t.Run(tc.pitch, func(t *testing.T) {
			assert.InDelta(t, tc.want, Frequency(tc.pitch), 0.01)
		})
	}
}

func TestMIDINote(t *testing.T) {
	n, ok := MIDINote("C4")
	assert.True(t, ok)
	assert.Equal(t, 60, n)

	_, ok = MIDINote("rest")
	assert.False(t, ok)
}

func TestBeats(t *testing.T) {
	cases := []struct {
		token string
		want  float64
	}{
		{"q", 1},
		{"w", 4},
		{"h", 2},
		{"e", 0.5},
		{"s", 0.25},
		{"whole", 4},
		{"sixteenth", 0.25},
		{"3.5", 3.5},
		{"2beats", 2},
		{"bogus", 1},
		{"", 1},
		{"0", 1},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			assert.Equal(t, tc.want, Beats(tc.token))
		})
	}
}

func TestBeatsOrUsesFallback(t *testing.T) {
	assert.Equal(t, 2.0, BeatsOr("", 2))
	assert.Equal(t, 0.5, BeatsOr("e", 2))
}

func TestParseFloatPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0.5", 0.5, true},
		{" 12px", 12, true},
		{"-0.25", -0.25, true},
		{".5", 0.5, true},
		{"1e3", 1000, true},
		{"1e", 1, true},
		{"abc", 0, false},
		{"-", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseFloatPrefix(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
