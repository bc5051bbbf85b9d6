package axml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cbegin/axml-go/internal/theory"
)

// SyntaxError reports input that is not well-formed XML or has no <axml>
// element. No partial document is returned alongside it.
type SyntaxError struct {
	Line   int
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("axml syntax error at line %d: %s", e.Line, e.Reason)
	}
	return "axml syntax error: " + e.Reason
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// IsSyntaxError reports whether err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser { return &Parser{cfg: cfg} }

// Parse parses text with the default parser configuration.
func Parse(text string) (*Document, error) {
	return NewParser(DefaultParserConfig()).Parse(text)
}

func (p *Parser) Parse(text string) (*Document, error) {
	tree, err := buildTree(text)
	if err != nil {
		return nil, err
	}
	root := tree.find("axml")
	if root == nil {
		return nil, &SyntaxError{Reason: "root <axml> not found"}
	}
	return &Document{
		Metadata:    p.parseMetadata(root.find("metadata")),
		Instruments: p.parseInstruments(root),
		Patterns:    p.parsePatterns(root),
		Tracks:      p.parseTracks(root),
	}, nil
}

func (p *Parser) parseMetadata(m *element) Metadata {
	md := Metadata{
		Title:         p.cfg.DefaultTitle,
		Artist:        p.cfg.DefaultArtist,
		Tempo:         p.cfg.DefaultTempo,
		Key:           p.cfg.DefaultKey,
		TimeSignature: p.cfg.DefaultTimeSignature,
	}
	if m == nil {
		return md
	}
	text := func(name string, def string) string {
		if el := m.find(name); el != nil {
			if s := strings.TrimSpace(el.textContent()); s != "" {
				return s
			}
		}
		return def
	}
	md.Title = text("title", md.Title)
	md.Artist = text("artist", md.Artist)
	md.Key = text("key", md.Key)
	md.TimeSignature = text("time-signature", md.TimeSignature)
	if v, ok := theory.ParseFloatPrefix(text("tempo", "")); ok && v > 0 {
		md.Tempo = v
	}
	return md
}

func (p *Parser) parseInstruments(root *element) map[string]*Instrument {
	insts := map[string]*Instrument{}
	for _, el := range root.descendantsUnder("instruments", "instrument") {
		id, ok := el.attr("id")
		if !ok || id == "" {
			continue
		}
		def := p.cfg.Instrument
		num := func(name string, fallback float64) float64 {
			return el.floatAttr(name, fallback)
		}
		inst := &Instrument{
			ID:            id,
			Type:          el.stringAttr("type", def.Type),
			Volume:        num("volume", def.Volume),
			Attack:        num("attack", def.Attack),
			Decay:         num("decay", def.Decay),
			Sustain:       num("sustain", def.Sustain),
			Release:       num("release", def.Release),
			Cutoff:        num("cutoff", def.Cutoff),
			Resonance:     num("resonance", def.Resonance),
			Reverb:        num("reverb", def.Reverb),
			Delay:         num("delay", def.Delay),
			Pan:           num("pan", def.Pan),
			Distortion:    num("distortion", def.Distortion),
			Bitcrush:      num("bitcrush", def.Bitcrush),
			Chorus:        num("chorus", def.Chorus),
			DelayTime:     num("delayTime", def.DelayTime),
			DelayFeedback: num("delayFeedback", def.DelayFeedback),
			LFORate:       num("lfoRate", def.LFORate),
			LFOAmount:     num("lfoAmount", def.LFOAmount),
			LFOType:       el.stringAttr("lfoType", def.LFOType),
			LFOTarget:     el.stringAttr("lfoTarget", def.LFOTarget),
			Src:           el.stringAttr("src", def.Src),
		}
		if _, ok := el.numericAttr("cutoff"); ok {
			inst.CutoffDeclared = true
		}
		insts[id] = inst
	}
	return insts
}

func (p *Parser) parsePatterns(root *element) map[string][]Event {
	pats := map[string][]Event{}
	for _, el := range root.descendantsUnder("patterns", "pattern") {
		id, ok := el.attr("id")
		if !ok || id == "" {
			continue
		}
		pats[id] = p.parseEvents(el)
	}
	return pats
}

func (p *Parser) parseTracks(root *element) []Track {
	els := root.descendantsUnder("tracks", "track")
	tracks := make([]Track, 0, len(els))
	for _, el := range els {
		instID, _ := el.attr("instrument")
		tracks = append(tracks, Track{
			InstrumentID: instID,
			Name:         el.stringAttr("name", p.cfg.DefaultTrackName),
			Events:       p.parseEvents(el),
		})
	}
	return tracks
}

// parseEvents reads the direct children of a track or pattern. An element
// without start begins where the previous element ended; every child,
// including play and unknown elements, moves the cursor by its own
// duration attribute.
func (p *Parser) parseEvents(container *element) []Event {
	events := make([]Event, 0, len(container.children))
	cursor := 0.0
	for _, el := range container.children {
		start := cursor
		if v, ok := el.numericAttr("start"); ok {
			start = v
		}
		durToken, _ := el.attr("duration")
		duration := theory.Beats(durToken)

		switch el.name {
		case "note":
			pitch, _ := el.attr("pitch")
			events = append(events, Event{
				Kind:     EventNote,
				Pitch:    pitch,
				Start:    start,
				Duration: duration,
				Velocity: el.floatAttr("velocity", p.cfg.DefaultVelocity),
			})
		case "chord":
			inner := el.descendants("note")
			notes := make([]ChordNote, 0, len(inner))
			for _, n := range inner {
				pitch, _ := n.attr("pitch")
				tok, _ := n.attr("duration")
				notes = append(notes, ChordNote{
					Pitch:    pitch,
					Duration: theory.BeatsOr(tok, duration),
					Velocity: n.floatAttr("velocity", p.cfg.DefaultVelocity),
				})
			}
			events = append(events, Event{
				Kind:     EventChord,
				Notes:    notes,
				Start:    start,
				Duration: duration,
			})
		case "play":
			id, _ := el.attr("pattern")
			events = append(events, Event{
				Kind:      EventPlay,
				PatternID: id,
				Start:     start,
				Duration:  duration,
			})
		}
		cursor = start + duration
	}
	return events
}

// element is the minimal DOM the parser queries.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
	text     strings.Builder
	line     int
}

func buildTree(text string) (*element, error) {
	doc := &element{name: "#document"}
	stack := []*element{doc}
	dec := xml.NewDecoder(strings.NewReader(text))
	for {
		line, _ := dec.InputPos()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			se := &SyntaxError{Reason: err.Error(), Err: err}
			var xe *xml.SyntaxError
			if errors.As(err, &xe) {
				se.Line = xe.Line
				se.Reason = xe.Msg
			}
			return nil, se
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr)), line: line}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}
	if len(stack) != 1 {
		return nil, &SyntaxError{Reason: "unexpected end of document"}
	}
	return doc, nil
}

// find returns the first descendant named name in document order.
func (e *element) find(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

func (e *element) descendants(name string) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for _, c := range n.children {
			if c.name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// descendantsUnder matches the selector "outer inner": elements named inner
// that have an ancestor named outer, each reported once, in document order.
func (e *element) descendantsUnder(outer, inner string) []*element {
	var out []*element
	var walk func(n *element, inside bool)
	walk = func(n *element, inside bool) {
		for _, c := range n.children {
			if inside && c.name == inner {
				out = append(out, c)
			}
			walk(c, inside || c.name == outer)
		}
	}
	walk(e, false)
	return out
}

func (e *element) textContent() string {
	var b strings.Builder
	var walk func(*element)
	walk = func(n *element) {
		b.WriteString(n.text.String())
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e)
	return b.String()
}

func (e *element) attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *element) stringAttr(name, def string) string {
	if v, ok := e.attrs[name]; ok && v != "" {
		return v
	}
	return def
}

func (e *element) numericAttr(name string) (float64, bool) {
	v, ok := e.attrs[name]
	if !ok || v == "" {
		return 0, false
	}
	return theory.ParseFloatPrefix(v)
}

func (e *element) floatAttr(name string, def float64) float64 {
	if v, ok := e.numericAttr(name); ok {
		return v
	}
	return def
}
