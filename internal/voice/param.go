package voice

import (
	"math"
	"sort"
)

type rampKind int

const (
	setValue rampKind = iota
	linearRamp
	exponentialRamp
)

type paramEvent struct {
	kind  rampKind
	time  float64
	value float64
}

// Param is an automation timeline. Events are kept in time order; an event
// added at the same time as existing ones goes after them. Between events
// the value holds, except that a ramp interpolates from the previous
// event's value to its own.
type Param struct {
	def    float64
	events []paramEvent
	cursor int
}

func NewParam(def float64) *Param { return &Param{def: def} }

func (p *Param) SetValueAtTime(v, t float64) { p.insert(paramEvent{setValue, t, v}) }

func (p *Param) LinearRampToValueAtTime(v, t float64) { p.insert(paramEvent{linearRamp, t, v}) }

func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{exponentialRamp, t, v})
}

func (p *Param) insert(ev paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > ev.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = ev
	p.cursor = 0
}

// ValueAt returns the automated value at t. Successive calls with
// non-decreasing t are amortized constant time.
func (p *Param) ValueAt(t float64) float64 {
	if len(p.events) == 0 {
		return p.def
	}
	if p.cursor > 0 && p.events[p.cursor-1].time > t {
		p.cursor = 0
	}
	// cursor = number of events at or before t
	for p.cursor < len(p.events) && p.events[p.cursor].time <= t {
		p.cursor++
	}

	prevTime, prevValue := 0.0, p.def
	if p.cursor > 0 {
		prev := p.events[p.cursor-1]
		prevTime, prevValue = prev.time, prev.value
	}
	if p.cursor == len(p.events) {
		return prevValue
	}
	next := p.events[p.cursor]
	switch next.kind {
	case linearRamp:
		span := next.time - prevTime
		if span <= 0 {
			return next.value
		}
		return prevValue + (next.value-prevValue)*(t-prevTime)/span
	case exponentialRamp:
		if prevValue == 0 || prevValue*next.value < 0 {
			return prevValue
		}
		span := next.time - prevTime
		if span <= 0 {
			return next.value
		}
		return prevValue * math.Pow(next.value/prevValue, (t-prevTime)/span)
	default:
		return prevValue
	}
}
