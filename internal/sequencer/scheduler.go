package sequencer

import (
	"fmt"
	"sync"
	"time"
)

// Clock reports the rendering context's current time in seconds.
type Clock interface {
	CurrentTime() float64
}

// Timer is a pending scheduling pass.
type Timer interface {
	Stop() bool
}

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Hooks connect the scheduler to the engine. Build is called once per note
// with its absolute start time and its duration, both in seconds. Resume
// and Suspend bracket a run. OnEnded fires after every Stop, whether
// requested or reached at the end of the song.
type Hooks struct {
	Build   func(note FlatNote, at, duration float64)
	Resume  func() error
	Suspend func()
	OnEnded func()
}

type Options struct {
	Lookahead float64 // seconds of notes committed ahead of the clock
	PreRoll   float64 // delay between Play and the first beat
	Tail      float64 // time allowed after the last note before stopping
	Interval  time.Duration
	AfterFunc func(d time.Duration, f func()) Timer
}

func DefaultOptions() Options {
	return Options{
		Lookahead: 0.2,
		PreRoll:   0.1,
		Tail:      1,
		Interval:  25 * time.Millisecond,
		AfterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
	}
}

// Scheduler commits notes to the engine a short window ahead of the clock,
// re-arming itself every Interval until the song and its tail have played.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock
	hooks Hooks
	opts  Options

	notes     []FlatNote
	tempo     float64
	state     State
	startTime float64
	next      int
	timer     Timer
	gen       uint64
}

func NewScheduler(clock Clock, hooks Hooks, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.Lookahead <= 0 {
		opts.Lookahead = def.Lookahead
	}
	if opts.PreRoll < 0 {
		opts.PreRoll = def.PreRoll
	}
	if opts.Tail < 0 {
		opts.Tail = def.Tail
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = def.AfterFunc
	}
	return &Scheduler{clock: clock, hooks: hooks, opts: opts, tempo: 120}
}

// Load replaces the note list. A running pass is stopped first.
func (s *Scheduler) Load(notes []FlatNote, tempo float64) {
	if tempo <= 0 {
		tempo = 120
	}
	s.mu.Lock()
	wasPlaying := s.state == Playing
	if wasPlaying {
		s.haltLocked()
	}
	s.notes = notes
	s.tempo = tempo
	s.next = 0
	onEnded := s.hooks.OnEnded
	s.mu.Unlock()
	if wasPlaying && onEnded != nil {
		onEnded()
	}
}

// Play starts a run from the first note. Calling Play while playing
// restarts the run.
func (s *Scheduler) Play() error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.gen++
	if s.hooks.Resume != nil {
		if err := s.hooks.Resume(); err != nil {
			s.state = Idle
			s.mu.Unlock()
			return fmt.Errorf("resume context: %w", err)
		}
	}
	s.startTime = s.clock.CurrentTime() + s.opts.PreRoll
	s.next = 0
	s.state = Playing
	ended := s.passLocked(s.gen)
	onEnded := s.hooks.OnEnded
	s.mu.Unlock()
	if ended && onEnded != nil {
		onEnded()
	}
	return nil
}

// Stop cancels the pending pass and suspends the context. It is safe to call
// in any state, any number of times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.haltLocked()
	onEnded := s.hooks.OnEnded
	s.mu.Unlock()
	if onEnded != nil {
		onEnded()
	}
}

// Tick runs one scheduling pass immediately.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.run(gen)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns the song length in seconds, excluding the tail.
func (s *Scheduler) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Duration(s.notes, s.tempo)
}

// StartTime returns the clock time of beat zero for the current run.
func (s *Scheduler) StartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Scheduled returns how many notes of the current run were committed.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) run(gen uint64) {
	s.mu.Lock()
	ended := s.passLocked(gen)
	onEnded := s.hooks.OnEnded
	s.mu.Unlock()
	if ended && onEnded != nil {
		onEnded()
	}
}

// passLocked commits due notes and re-arms the timer. It reports whether the
// run reached its end and was stopped.
func (s *Scheduler) passLocked(gen uint64) bool {
	if s.state != Playing || gen != s.gen {
		return false
	}
	spb := 60 / s.tempo
	now := s.clock.CurrentTime()
	for s.next < len(s.notes) {
		n := s.notes[s.next]
		at := s.startTime + n.Start*spb
		if at > now+s.opts.Lookahead {
			break
		}
		if s.hooks.Build != nil {
			s.hooks.Build(n, at, n.Duration*spb)
		}
		s.next++
	}
	if s.next >= len(s.notes) && now > s.startTime+Duration(s.notes, s.tempo)+s.opts.Tail {
		s.haltLocked()
		return true
	}
	// one pending pass at a time, also when Tick runs between timers
	s.cancelTimerLocked()
	s.timer = s.opts.AfterFunc(s.opts.Interval, func() { s.run(gen) })
	return false
}

func (s *Scheduler) haltLocked() {
	s.cancelTimerLocked()
	s.gen++
	if s.hooks.Suspend != nil {
		s.hooks.Suspend()
	}
	s.state = Idle
}

func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
