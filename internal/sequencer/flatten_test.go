package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/axml-go/internal/axml"
)

func mustParse(t *testing.T, text string) *axml.Document {
	t.Helper()
	doc, err := axml.Parse(text)
	require.NoError(t, err)
	return doc
}

func starts(notes []FlatNote) []float64 {
	out := make([]float64, len(notes))
	for i, n := range notes {
		out[i] = n.Start
	}
	return out
}

func pitches(notes []FlatNote) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Pitch
	}
	return out
}

func TestFlattenCursorStarts(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<tracks><track instrument="p">
			<note pitch="C4" duration="q"/><note pitch="D4" duration="h"/>
		</track></tracks></axml>`)
	notes := Flatten(doc)
	assert.Equal(t, []float64{0, 1}, starts(notes))
	assert.Equal(t, "Track", notes[0].TrackName)
	assert.Same(t, doc.Instruments["p"], notes[0].Instrument)
}

func TestFlattenIsIdempotent(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<patterns><pattern id="riff"><note pitch="E4"/><note pitch="G4"/></pattern></patterns>
		<tracks><track instrument="p">
			<note pitch="C4" start="3"/><play pattern="riff" start="1"/>
			<chord start="0"><note pitch="C3"/><note pitch="G3"/></chord>
		</track></tracks></axml>`)
	first := Flatten(doc)
	second := Flatten(doc)
	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
}

func TestFlattenSortsStable(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<tracks>
			<track instrument="p">
				<note pitch="E4" start="2"/>
				<note pitch="C4" start="0"/>
				<note pitch="D4" start="2"/>
			</track>
			<track instrument="p">
				<note pitch="F4" start="2"/>
				<note pitch="G4" start="1"/>
			</track>
		</tracks></axml>`)
	notes := Flatten(doc)
	assert.Equal(t, []float64{0, 1, 2, 2, 2}, starts(notes))
	assert.Equal(t, []string{"C4", "G4", "E4", "D4", "F4"}, pitches(notes))
}

func TestFlattenPatternOffset(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<patterns>
			<pattern id="P"><note pitch="C4" start="0"/></pattern>
			<pattern id="outer"><play pattern="P" start="2"/></pattern>
		</patterns>
		<tracks><track instrument="p">
			<play pattern="P" start="4"/>
			<play pattern="outer" start="8"/>
		</track></tracks></axml>`)
	notes := Flatten(doc)
	assert.Equal(t, []float64{4, 10}, starts(notes))
}

func TestFlattenChordUsesInnerValues(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<tracks><track instrument="p">
			<chord start="1" duration="h"><note pitch="C4"/><note pitch="E4" duration="q" velocity="0.2"/></chord>
		</track></tracks></axml>`)
	notes := Flatten(doc)
	require.Len(t, notes, 2)
	assert.Equal(t, FlatNote{Pitch: "C4", Start: 1, Duration: 2, Velocity: 0.7, Instrument: notes[0].Instrument, TrackName: "Track"}, notes[0])
	assert.Equal(t, 1.0, notes[1].Start)
	assert.Equal(t, 1.0, notes[1].Duration)
	assert.Equal(t, 0.2, notes[1].Velocity)
}

func TestFlattenSkipsMissingReferences(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<tracks>
			<track instrument="p"><note pitch="C4"/><play pattern="nope" start="4"/></track>
			<track instrument="ghost"><note pitch="D4"/></track>
			<track><note pitch="E4"/></track>
		</tracks></axml>`)
	notes := Flatten(doc)
	assert.Equal(t, []string{"C4"}, pitches(notes))
}

func TestFlattenBoundsRecursion(t *testing.T) {
	doc := mustParse(t, `<axml>
		<instruments><instrument id="p"/></instruments>
		<patterns>
			<pattern id="a"><note pitch="C4"/><play pattern="b" start="1"/></pattern>
			<pattern id="b"><note pitch="D4"/><play pattern="a" start="1"/></pattern>
		</patterns>
		<tracks><track instrument="p"><play pattern="a"/></track></tracks></axml>`)
	notes := FlattenWithDepth(doc, 4)
	assert.Equal(t, []float64{0, 1, 2, 3}, starts(notes))
	assert.Equal(t, []string{"C4", "D4", "C4", "D4"}, pitches(notes))

	assert.Len(t, Flatten(doc), DefaultMaxDepth)
}

func TestFlattenNilDocument(t *testing.T) {
	assert.Empty(t, Flatten(nil))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 0.0, Duration(nil, 120))
	notes := []FlatNote{{Start: 0, Duration: 1}, {Start: 3, Duration: 2}}
	assert.InDelta(t, 2.5, Duration(notes, 120), 1e-9)
	assert.InDelta(t, 5.0, Duration(notes, 60), 1e-9)
}
