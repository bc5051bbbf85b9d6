// Package theory converts AXML pitch and duration tokens into frequencies
// and beat lengths.
package theory

import (
	"math"
	"strconv"
	"strings"
)

// MiddleC is the reference pitch for sample playback rates.
const MiddleC = 261.63

var chromatic = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

var durations = map[string]float64{
	"w": 4, "h": 2, "q": 1, "e": 0.5, "s": 0.25,
	"whole": 4, "half": 2, "quarter": 1, "eighth": 0.5, "sixteenth": 0.25,
}

// Frequency returns the frequency in Hz for a pitch token. Scientific names
// ("A4", "C#3", "Bb2") and MIDI numbers ("69") are accepted; "rest", the
// empty string and anything unparseable yield 0.
func Frequency(pitch string) float64 {
	pitch = strings.TrimSpace(pitch)
	if pitch == "" || pitch == "rest" {
		return 0
	}
	if n, err := strconv.ParseFloat(pitch, 64); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return midiToFreq(math.Trunc(n))
	}
	semitone, octave, ok := splitScientific(pitch)
	if !ok {
		return 0
	}
	return 440 * math.Pow(2, float64(octave*12+semitone-57)/12)
}

// MIDINote returns the MIDI note number for a pitch token, or false when the
// token has no pitch.
func MIDINote(pitch string) (int, bool) {
	f := Frequency(pitch)
	if f <= 0 {
		return 0, false
	}
	return int(math.Round(69 + 12*math.Log2(f/440))), true
}

func midiToFreq(n float64) float64 {
	return 440 * math.Pow(2, (n-69)/12)
}

// splitScientific parses LETTER[#|b]OCTAVE.
func splitScientific(s string) (semitone, octave int, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	base, found := chromatic[s[0]]
	if !found {
		return 0, 0, false
	}
	rest := s[1:]
	switch rest[0] {
	case '#':
		base++
		rest = rest[1:]
	case 'b':
		base--
		rest = rest[1:]
	}
	if rest == "" {
		return 0, 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, 0, false
		}
	}
	oct, err := strconv.Atoi(rest)
	if err != nil {
		return 0, 0, false
	}
	return base, oct, true
}

// Beats converts a duration token to a beat count. Symbolic tokens come from
// a fixed table, anything else is read as a number; unresolvable or zero
// values fall back to one beat.
func Beats(token string) float64 {
	return BeatsOr(token, 1)
}

// BeatsOr is Beats with a caller supplied fallback.
func BeatsOr(token string, fallback float64) float64 {
	if v, ok := durations[token]; ok {
		return v
	}
	if v, ok := ParseFloatPrefix(token); ok && v != 0 {
		return v
	}
	return fallback
}

// ParseFloatPrefix reads the longest leading decimal number of s, ignoring
// leading whitespace, so "0.5s" parses as 0.5.
func ParseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	// exponent, only when followed by digits
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		j := end + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			end = k
		}
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
