package axml

import "sort"

type EventKind int

const (
	EventNote EventKind = iota + 1
	EventChord
	EventPlay
)

func (k EventKind) String() string {
	switch k {
	case EventNote:
		return "note"
	case EventChord:
		return "chord"
	case EventPlay:
		return "play"
	default:
		return "unknown"
	}
}

// Event is one timed entry of a track or pattern. Start and Duration are in
// beats. Which fields are meaningful depends on Kind: notes use Pitch and
// Velocity, chords use Notes, play events use PatternID.
type Event struct {
	Kind      EventKind
	Start     float64
	Duration  float64
	Pitch     string
	Velocity  float64
	Notes     []ChordNote
	PatternID string
}

type ChordNote struct {
	Pitch    string
	Duration float64
	Velocity float64
}

type Metadata struct {
	Title         string
	Artist        string
	Tempo         float64
	Key           string
	TimeSignature string
}

// SecondsPerBeat returns 60/tempo.
func (m Metadata) SecondsPerBeat() float64 {
	if m.Tempo <= 0 {
		return 0.5
	}
	return 60 / m.Tempo
}

type Instrument struct {
	ID            string
	Type          string
	Volume        float64
	Attack        float64
	Decay         float64
	Sustain       float64
	Release       float64
	Cutoff        float64
	Resonance     float64
	Reverb        float64
	Delay         float64
	Pan           float64
	Distortion    float64
	Bitcrush      float64
	Chorus        float64
	DelayTime     float64
	DelayFeedback float64
	LFORate       float64
	LFOAmount     float64
	LFOType       string
	LFOTarget     string
	Src           string

	// CutoffDeclared is set when the source document carried a cutoff
	// attribute rather than relying on the default.
	CutoffDeclared bool
}

type Track struct {
	InstrumentID string
	Name         string
	Events       []Event
}

type Document struct {
	Metadata    Metadata
	Instruments map[string]*Instrument
	Patterns    map[string][]Event
	Tracks      []Track
}

// SampleSources lists the distinct src values of sample instruments, in
// instrument id order.
func (d *Document) SampleSources() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, len(d.Instruments))
	for id := range d.Instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	seen := map[string]struct{}{}
	var out []string
	for _, id := range ids {
		inst := d.Instruments[id]
		if inst.Type != "sample" || inst.Src == "" {
			continue
		}
		if _, ok := seen[inst.Src]; ok {
			continue
		}
		seen[inst.Src] = struct{}{}
		out = append(out, inst.Src)
	}
	return out
}

type ParserConfig struct {
	DefaultTitle         string
	DefaultArtist        string
	DefaultTempo         float64
	DefaultKey           string
	DefaultTimeSignature string
	DefaultTrackName     string
	DefaultVelocity      float64
	Instrument           Instrument
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		DefaultTitle:         "Untitled Project",
		DefaultArtist:        "Unknown Artist",
		DefaultTempo:         120,
		DefaultKey:           "C",
		DefaultTimeSignature: "4/4",
		DefaultTrackName:     "Track",
		DefaultVelocity:      0.7,
		Instrument: Instrument{
			Type:          "sine",
			Volume:        0.7,
			Attack:        0.01,
			Decay:         0.1,
			Sustain:       0.5,
			Release:       0.3,
			Cutoff:        20000,
			Resonance:     1,
			DelayTime:     0.3,
			DelayFeedback: 0.4,
			LFOType:       "sine",
			LFOTarget:     "cutoff",
		},
	}
}
