// Package engine is the rendering context shared by live playback and
// offline export: a frame clock, the voice arena, per-track buses, the
// reverb and delay send buses and the master chain.
package engine

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cbegin/axml-go/internal/analysis"
	"github.com/cbegin/axml-go/internal/effects"
)

type Mode int

const (
	Realtime Mode = iota
	Offline
)

func (m Mode) String() string {
	if m == Offline {
		return "offline"
	}
	return "realtime"
}

const (
	DefaultSampleRate = 44100
	Channels          = 2
	DefaultTrackGain  = 0.7
	ReverbSeconds     = 2.0
)

// TrackBus is a named mixer channel between voices and the master bus.
type TrackBus struct {
	Name       string
	gain       float64
	accL, accR float64
}

type delayEvent struct {
	frame    int64
	seconds  float64
	feedback float64
}

type Option func(*options)

type options struct {
	seed     int64
	seeded   bool
	analyser bool
}

// WithSeed pins the random source used for the reverb impulse and noise
// voices. Without it every context draws a fresh seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithAnalyser feeds the master output into an analyser.
func WithAnalyser() Option {
	return func(o *options) { o.analyser = true }
}

// Context renders voices into stereo frames. All methods are safe for
// concurrent use; rendering holds the lock for a whole block.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	mode       Mode
	frame      int64
	rng        *rand.Rand

	masterGain float64
	limiter    *effects.Limiter
	reverb     *effects.Convolver
	delay      *effects.DelayBus
	tracks     []*TrackBus
	delayQueue []delayEvent
	arena      arena
	analyser   *analysis.Analyser
	scratch    []float64
}

func New(sampleRate int, mode Mode, opts ...Option) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(o.seed))
	c := &Context{
		sampleRate: sampleRate,
		mode:       mode,
		rng:        rng,
		masterGain: 1,
		limiter:    effects.NewMasterLimiter(sampleRate),
		reverb:     effects.NewConvolver(effects.NoiseImpulse(rng, sampleRate, ReverbSeconds), true),
		delay:      effects.NewDelayBus(sampleRate),
	}
	if o.analyser {
		c.analyser = analysis.New(analysis.DefaultFFTSize)
	}
	return c
}

func (c *Context) SampleRate() int { return c.sampleRate }

func (c *Context) Mode() Mode { return c.mode }

// Rand returns the context's random source. Callers must draw from it only
// while building voices, which happens in a fixed order for a given song.
func (c *Context) Rand() *rand.Rand { return c.rng }

// Analyser returns nil unless the context was built WithAnalyser.
func (c *Context) Analyser() *analysis.Analyser { return c.analyser }

// CurrentTime returns the clock in seconds: frames rendered so far over the
// sample rate.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frame) / float64(c.sampleRate)
}

func (c *Context) CurrentFrame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// FrameAt converts a time in seconds to the first frame at or after it.
func (c *Context) FrameAt(seconds float64) int64 {
	return int64(math.Ceil(seconds*float64(c.sampleRate) - 1e-9))
}

// EnsureTrack returns the bus for name, creating it at the default gain.
// Existing buses keep their gain.
func (c *Context) EnsureTrack(name string) *TrackBus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureTrackLocked(name)
}

func (c *Context) ensureTrackLocked(name string) *TrackBus {
	for _, t := range c.tracks {
		if t.Name == name {
			return t
		}
	}
	t := &TrackBus{Name: name, gain: DefaultTrackGain}
	c.tracks = append(c.tracks, t)
	return t
}

// Track returns the bus for name or nil.
func (c *Context) Track(name string) *TrackBus {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tracks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TrackNames lists the buses in creation order.
func (c *Context) TrackNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.tracks))
	for i, t := range c.tracks {
		names[i] = t.Name
	}
	return names
}

// SetTrackGain reports false if no bus has that name.
func (c *Context) SetTrackGain(name string, gain float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tracks {
		if t.Name == name {
			t.gain = gain
			return true
		}
	}
	return false
}

func (c *Context) TrackGain(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tracks {
		if t.Name == name {
			return t.gain, true
		}
	}
	return 0, false
}

func (c *Context) SetMasterGain(gain float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masterGain = gain
}

func (c *Context) MasterGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterGain
}

// Add registers a voice with the arena.
func (c *Context) Add(v Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arena.add(v)
}

// ScheduleDelay sets the delay bus time and feedback from the given time on.
func (c *Context) ScheduleDelay(at, seconds, feedback float64) {
	ev := delayEvent{frame: c.FrameAt(at), seconds: seconds, feedback: feedback}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.delayQueue), func(i int) bool {
		return c.delayQueue[i].frame > ev.frame
	})
	c.delayQueue = append(c.delayQueue, delayEvent{})
	copy(c.delayQueue[i+1:], c.delayQueue[i:])
	c.delayQueue[i] = ev
}

// Voices returns the number of registered voices not yet reaped.
func (c *Context) Voices() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arena.pending) + len(c.arena.active)
}

// Reaped returns the number of voices dropped after expiring.
func (c *Context) Reaped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena.reaped
}

// LastExpiry returns the frame after which no registered voice sounds.
func (c *Context) LastExpiry() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena.lastExpiry()
}

// Reset silences everything: voices, pending delay changes and bus state.
// The clock keeps running and track gains are kept.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arena.reset()
	c.delayQueue = nil
	c.reverb.Reset()
	c.delay.Reset()
	c.limiter.Reset()
}

// Process renders len(dst)/2 interleaved stereo frames.
func (c *Context) Process(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := len(dst) / Channels
	c.beginBlock(frames)
	for i := 0; i < frames; i++ {
		l, r := c.renderFrame()
		dst[2*i] = float32(l)
		dst[2*i+1] = float32(r)
		c.scratch[i] = (l + r) / 2
	}
	c.endBlock(frames)
}

// ProcessPlanar renders len(left) frames into separate channel buffers.
func (c *Context) ProcessPlanar(left, right []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := min(len(left), len(right))
	c.beginBlock(frames)
	for i := 0; i < frames; i++ {
		l, r := c.renderFrame()
		left[i] = float32(l)
		right[i] = float32(r)
		c.scratch[i] = (l + r) / 2
	}
	c.endBlock(frames)
}

func (c *Context) beginBlock(frames int) {
	if cap(c.scratch) < frames {
		c.scratch = make([]float64, frames)
	}
	c.scratch = c.scratch[:frames]
}

func (c *Context) endBlock(frames int) {
	if c.analyser != nil && frames > 0 {
		c.analyser.Write(c.scratch)
	}
	c.arena.reap(c.frame)
}

func (c *Context) renderFrame() (float64, float64) {
	frame := c.frame
	for len(c.delayQueue) > 0 && c.delayQueue[0].frame <= frame {
		ev := c.delayQueue[0]
		c.delay.SetTime(ev.seconds)
		c.delay.SetFeedback(ev.feedback)
		c.delayQueue = c.delayQueue[1:]
	}
	c.arena.activate(frame)

	var mL, mR, revL, revR, dlyL, dlyR float64
	for _, v := range c.arena.active {
		var f Frame
		v.Render(frame, &f)
		if b := v.Bus(); b != nil {
			b.accL += f.L
			b.accR += f.R
		} else {
			mL += f.L
			mR += f.R
		}
		revL += f.ReverbL
		revR += f.ReverbR
		dlyL += f.DelayL
		dlyR += f.DelayR
	}
	for _, t := range c.tracks {
		mL += t.accL * t.gain
		mR += t.accR * t.gain
		t.accL, t.accR = 0, 0
	}
	rl, rr := c.reverb.Process(revL, revR)
	dl, dr := c.delay.Process(dlyL, dlyR)
	mL = (mL + rl + dl) * c.masterGain
	mR = (mR + rr + dr) * c.masterGain
	c.frame++
	return c.limiter.Process(mL, mR)
}
