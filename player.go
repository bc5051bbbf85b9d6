// Package axml plays and renders songs written in AXML, an XML music
// notation with synthesized instruments, reusable patterns and tracks.
package axml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/cbegin/axml-go/internal/audio"
	intaxml "github.com/cbegin/axml-go/internal/axml"
	"github.com/cbegin/axml-go/internal/engine"
	"github.com/cbegin/axml-go/internal/samples"
	intseq "github.com/cbegin/axml-go/internal/sequencer"
	"github.com/cbegin/axml-go/internal/voice"
)

type (
	Document    = intaxml.Document
	Metadata    = intaxml.Metadata
	SyntaxError = intaxml.SyntaxError
)

// ErrNoDocument is returned by operations that need a loaded song.
var ErrNoDocument = errors.New("no document loaded")

// PlaybackEvent carries playback state changes from Watch().
type PlaybackEvent struct {
	Kind EventKind
}

type EventKind int

const (
	EventPlaybackStarted EventKind = iota
	EventPlaybackEnded
)

func (k EventKind) String() string {
	if k == EventPlaybackEnded {
		return "ended"
	}
	return "started"
}

// output is the device side of the live context.
type output interface {
	Resume() error
	Suspend()
	Close() error
}

type outputFactory func(sampleRate int, source intaudio.SampleSource) (output, error)

func deviceOutput(sampleRate int, source intaudio.SampleSource) (output, error) {
	return intaudio.NewOutput(sampleRate, source)
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleRate    int
	logger        *slog.Logger
	maxDepth      int
	sampleTimeout time.Duration
	bank          *samples.Bank
	schedule      intseq.Options
	newOutput     outputFactory
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		sampleRate:    engine.DefaultSampleRate,
		logger:        slog.Default(),
		maxDepth:      intseq.DefaultMaxDepth,
		sampleTimeout: samples.DefaultTimeout,
		schedule:      intseq.DefaultOptions(),
		newOutput:     deviceOutput,
	}
}

func WithSampleRate(sampleRate int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleRate = sampleRate
	}
}

func WithLogger(logger *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = logger
	}
}

// WithMaxPatternDepth bounds how deeply play references may nest.
func WithMaxPatternDepth(depth int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.maxDepth = depth
	}
}

// WithSampleTimeout bounds each sample fetch made by LoadSamples.
func WithSampleTimeout(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTimeout = d
	}
}

// WithSamples shares an existing sample bank. Its sample rate should match
// the player's.
func WithSamples(bank *samples.Bank) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.bank = bank
	}
}

// WithSchedulerOptions overrides the look-ahead scheduler timing.
func WithSchedulerOptions(opts intseq.Options) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.schedule = opts
	}
}

// Player is the live engine: it schedules a loaded document against a
// real-time context and streams the result to the audio device, which is
// opened on the first Play.
type Player struct {
	mu        sync.Mutex
	cfg       playerConfig
	logger    *slog.Logger
	parser    *intaxml.Parser
	ctx       *engine.Context
	sched     *intseq.Scheduler
	bank      *samples.Bank
	doc       *Document
	notes     []intseq.FlatNote
	done      chan struct{}
	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex

	outMu sync.Mutex
	out   output
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	bank := cfg.bank
	if bank == nil {
		bank = samples.NewBank(cfg.sampleRate,
			samples.WithTimeout(cfg.sampleTimeout),
			samples.WithLogger(cfg.logger))
	}
	p := &Player{
		cfg:    cfg,
		logger: cfg.logger,
		parser: intaxml.NewParser(intaxml.DefaultParserConfig()),
		ctx:    engine.New(cfg.sampleRate, engine.Realtime, engine.WithAnalyser()),
		bank:   bank,
	}
	p.sched = intseq.NewScheduler(p.ctx, intseq.Hooks{
		Build: func(n intseq.FlatNote, at, duration float64) {
			voice.Build(p.ctx, n, at, duration, p.bank)
		},
		Resume:  p.resume,
		Suspend: p.suspend,
		OnEnded: p.ended,
	}, cfg.schedule)
	return p, nil
}

// Parse parses AXML text with the default parser settings.
func Parse(text string) (*Document, error) {
	return intaxml.Parse(text)
}

// Parse parses text with the player's parser.
func (p *Player) Parse(text string) (*Document, error) {
	return p.parser.Parse(text)
}

// Load flattens doc, creates a mixer bus per track and hands the notes to
// the scheduler. A running playback is stopped.
func (p *Player) Load(doc *Document) {
	notes := intseq.FlattenWithDepth(doc, p.cfg.maxDepth)
	if doc != nil {
		for _, tr := range doc.Tracks {
			p.ctx.EnsureTrack(tr.Name)
		}
		p.logResolutionGaps(doc)
	}
	tempo := 0.0
	if doc != nil {
		tempo = doc.Metadata.Tempo
	}

	p.mu.Lock()
	p.doc = doc
	p.notes = notes
	p.mu.Unlock()

	p.sched.Load(notes, tempo)
	if doc != nil {
		p.logger.Info("song loaded",
			"title", doc.Metadata.Title,
			"tracks", len(doc.Tracks),
			"notes", len(notes),
			"duration", p.sched.Duration())
	}
}

// LoadText parses text and loads the result.
func (p *Player) LoadText(text string) (*Document, error) {
	doc, err := p.Parse(text)
	if err != nil {
		return nil, err
	}
	p.Load(doc)
	return doc, nil
}

func (p *Player) document() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// LoadSamples fetches every sample source of the loaded document that is
// not cached yet. It waits for all of them and returns the first failure.
func (p *Player) LoadSamples(ctx context.Context) error {
	doc := p.document()
	if doc == nil {
		return ErrNoDocument
	}
	srcs := doc.SampleSources()
	if len(srcs) == 0 {
		return nil
	}
	if err := p.bank.Load(ctx, srcs); err != nil {
		p.logger.Error("sample loading failed", "error", err)
		return err
	}
	p.logger.Debug("samples ready", "count", len(srcs))
	return nil
}

// Play starts the loaded song from the beginning. Calling Play while
// playing restarts it.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.doc == nil {
		p.mu.Unlock()
		return ErrNoDocument
	}
	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})
	title := p.doc.Metadata.Title
	p.mu.Unlock()

	if err := p.sched.Play(); err != nil {
		p.signalDone()
		return err
	}
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackStarted})
	p.logger.Info("playback started", "title", title, "duration", p.sched.Duration())
	return nil
}

// Stop ends playback. Watchers always receive EventPlaybackEnded, even when
// nothing was playing.
func (p *Player) Stop() {
	p.sched.Stop()
}

// resume runs with the scheduler locked: it clears voices left from an
// earlier run and starts the device.
func (p *Player) resume() error {
	p.ctx.Reset()
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.out == nil {
		out, err := p.cfg.newOutput(p.cfg.sampleRate, p.ctx)
		if err != nil {
			return err
		}
		p.out = out
	}
	return p.out.Resume()
}

func (p *Player) suspend() {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.out != nil {
		p.out.Suspend()
	}
}

func (p *Player) ended() {
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	p.signalDone()
	p.logger.Debug("playback ended")
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Wait blocks until the current playback ends. It returns immediately if
// nothing is playing.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events. The channel is
// buffered (cap 8) and events are dropped when it is full. Only the most
// recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

func (p *Player) IsPlaying() bool {
	return p.sched.State() == intseq.Playing
}

// Duration returns the loaded song's length in seconds.
func (p *Player) Duration() float64 {
	return p.sched.Duration()
}

// CurrentTime returns the live context clock in seconds.
func (p *Player) CurrentTime() float64 {
	return p.ctx.CurrentTime()
}

// TrackNames lists the mixer channels of the loaded song.
func (p *Player) TrackNames() []string {
	return p.ctx.TrackNames()
}

// SetTrackGain sets a mixer level. It reports false for unknown tracks.
func (p *Player) SetTrackGain(name string, gain float64) bool {
	return p.ctx.SetTrackGain(name, gain)
}

func (p *Player) TrackGain(name string) (float64, bool) {
	return p.ctx.TrackGain(name)
}

// SetMasterGain scales the master bus. 1.0 is default.
func (p *Player) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	p.ctx.SetMasterGain(gain)
}

func (p *Player) MasterGain() float64 {
	return p.ctx.MasterGain()
}

// FrequencyData returns the master output spectrum, one byte per bin.
func (p *Player) FrequencyData() []byte {
	return p.ctx.Analyser().ByteFrequencyData()
}

// TimeDomainData returns the latest master output waveform with silence
// at 128.
func (p *Player) TimeDomainData() []byte {
	return p.ctx.Analyser().ByteTimeDomainData()
}

// RenderWAV renders the loaded song offline with the player's samples and
// current mix and encodes it as WAV.
func (p *Player) RenderWAV(ctx context.Context, opts ...RenderOption) ([]byte, error) {
	doc := p.document()
	if doc == nil {
		return nil, ErrNoDocument
	}
	all := []RenderOption{
		WithSampleBank(p.bank),
		WithPatternDepth(p.cfg.maxDepth),
		WithMasterGain(p.ctx.MasterGain()),
	}
	for _, name := range p.ctx.TrackNames() {
		if g, ok := p.ctx.TrackGain(name); ok {
			all = append(all, WithTrackGain(name, g))
		}
	}
	buf, err := Render(ctx, doc, append(all, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", doc.Metadata.Title, err)
	}
	p.logger.Info("song rendered", "title", doc.Metadata.Title, "duration", buf.Seconds())
	return EncodeWAV(buf), nil
}

// Close stops playback and releases the audio device.
func (p *Player) Close() error {
	p.sched.Stop()
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.out == nil {
		return nil
	}
	err := p.out.Close()
	p.out = nil
	return err
}

// logResolutionGaps reports references that play nothing: tracks naming an
// unknown instrument and play events naming an unknown pattern.
func (p *Player) logResolutionGaps(doc *Document) {
	for _, tr := range doc.Tracks {
		if _, ok := doc.Instruments[tr.InstrumentID]; !ok {
			p.logger.Debug("track skipped: unknown instrument", "track", tr.Name, "instrument", tr.InstrumentID)
		}
		p.logMissingPatterns(doc, tr.Events, tr.Name)
	}
	for id, events := range doc.Patterns {
		p.logMissingPatterns(doc, events, "pattern "+id)
	}
}

func (p *Player) logMissingPatterns(doc *Document, events []intaxml.Event, where string) {
	for _, ev := range events {
		if ev.Kind != intaxml.EventPlay {
			continue
		}
		if _, ok := doc.Patterns[ev.PatternID]; !ok {
			p.logger.Debug("play skipped: unknown pattern", "in", where, "pattern", ev.PatternID)
		}
	}
}
