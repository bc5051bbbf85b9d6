package sequencer

import (
	"sort"

	"github.com/cbegin/axml-go/internal/axml"
)

// DefaultMaxDepth bounds nested play references. Deeper references, which
// only occur with patterns that invoke each other, are dropped.
const DefaultMaxDepth = 32

// FlatNote is a playable note at an absolute position in beats, bound to
// its resolved instrument.
type FlatNote struct {
	Pitch      string
	Start      float64
	Duration   float64
	Velocity   float64
	Instrument *axml.Instrument
	TrackName  string
}

// End returns Start+Duration in beats.
func (n FlatNote) End() float64 { return n.Start + n.Duration }

func Flatten(doc *axml.Document) []FlatNote {
	return FlattenWithDepth(doc, DefaultMaxDepth)
}

// FlattenWithDepth expands every track of doc into a list of notes sorted by
// start. Tracks naming an unknown instrument and play events naming an
// unknown pattern contribute nothing.
func FlattenWithDepth(doc *axml.Document, maxDepth int) []FlatNote {
	if doc == nil {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var out []FlatNote
	for _, tr := range doc.Tracks {
		inst, ok := doc.Instruments[tr.InstrumentID]
		if !ok || inst == nil {
			continue
		}
		w := walker{doc: doc, inst: inst, track: tr.Name, maxDepth: maxDepth}
		w.walk(tr.Events, 0, 0)
		out = append(out, w.out...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

type walker struct {
	doc      *axml.Document
	inst     *axml.Instrument
	track    string
	maxDepth int
	out      []FlatNote
}

func (w *walker) walk(events []axml.Event, offset float64, depth int) {
	for _, ev := range events {
		switch ev.Kind {
		case axml.EventNote:
			w.out = append(w.out, FlatNote{
				Pitch:      ev.Pitch,
				Start:      ev.Start + offset,
				Duration:   ev.Duration,
				Velocity:   ev.Velocity,
				Instrument: w.inst,
				TrackName:  w.track,
			})
		case axml.EventChord:
			for _, n := range ev.Notes {
				w.out = append(w.out, FlatNote{
					Pitch:      n.Pitch,
					Start:      ev.Start + offset,
					Duration:   n.Duration,
					Velocity:   n.Velocity,
					Instrument: w.inst,
					TrackName:  w.track,
				})
			}
		case axml.EventPlay:
			pat, ok := w.doc.Patterns[ev.PatternID]
			if !ok || depth >= w.maxDepth {
				continue
			}
			w.walk(pat, offset+ev.Start, depth+1)
		}
	}
}

// Duration returns the length in seconds from the origin to the end of the
// last note in the list. Notes must be sorted by start.
func Duration(notes []FlatNote, tempo float64) float64 {
	if len(notes) == 0 {
		return 0
	}
	if tempo <= 0 {
		tempo = 120
	}
	return notes[len(notes)-1].End() * 60 / tempo
}
