package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	axml "github.com/cbegin/axml-go"
	intseq "github.com/cbegin/axml-go/internal/sequencer"
	"github.com/cbegin/axml-go/internal/theory"
)

var (
	accent = lipgloss.Color("#d75fd7")
	muted  = lipgloss.Color("#8a7a9e")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(12)
	headStyle  = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)

// pitchRange tracks the lowest and highest note of a track by MIDI number.
type pitchRange struct {
	lo, hi         int
	loName, hiName string
}

func (p *pitchRange) add(pitch string) {
	n, ok := theory.MIDINote(pitch)
	if !ok {
		return
	}
	if p.loName == "" || n < p.lo {
		p.lo, p.loName = n, pitch
	}
	if p.hiName == "" || n > p.hi {
		p.hi, p.hiName = n, pitch
	}
}

func (p *pitchRange) String() string {
	if p == nil || p.loName == "" {
		return ""
	}
	return fmt.Sprintf(", %s-%s (midi %d-%d)", p.loName, p.hiName, p.lo, p.hi)
}

// renderSummary formats a document for the inspect command.
func renderSummary(doc *axml.Document, maxDepth int) string {
	notes := intseq.FlattenWithDepth(doc, maxDepth)
	perTrack := map[string]int{}
	ranges := map[string]*pitchRange{}
	for _, n := range notes {
		perTrack[n.TrackName]++
		r := ranges[n.TrackName]
		if r == nil {
			r = &pitchRange{}
			ranges[n.TrackName] = r
		}
		r.add(n.Pitch)
	}

	meta := doc.Metadata
	title := meta.Title
	if title == "" {
		title = "(untitled)"
	}
	lines := []string{titleStyle.Render(title)}
	field := func(label, value string) {
		if value != "" {
			lines = append(lines, labelStyle.Render(label)+value)
		}
	}
	field("artist", meta.Artist)
	field("tempo", fmt.Sprintf("%g bpm", meta.Tempo))
	field("key", meta.Key)
	field("time", meta.TimeSignature)
	field("duration", fmt.Sprintf("%.2fs", intseq.Duration(notes, meta.Tempo)))
	field("notes", fmt.Sprintf("%d", len(notes)))
	field("file", axml.SuggestedFileName(meta))

	lines = append(lines, headStyle.Render("instruments"))
	ids := make([]string, 0, len(doc.Instruments))
	for id := range doc.Instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		inst := doc.Instruments[id]
		desc := inst.Type
		if inst.Src != "" {
			desc += " " + inst.Src
		}
		lines = append(lines, labelStyle.Render(id)+desc)
	}

	lines = append(lines, headStyle.Render("tracks"))
	for _, tr := range doc.Tracks {
		lines = append(lines, labelStyle.Render(tr.Name)+
			fmt.Sprintf("%s, %d notes%s", tr.InstrumentID, perTrack[tr.Name], ranges[tr.Name]))
	}

	if srcs := doc.SampleSources(); len(srcs) > 0 {
		lines = append(lines, headStyle.Render("samples"), strings.Join(srcs, "\n"))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
