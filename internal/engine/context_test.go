package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constVoice emits a constant level on [start, end).
type constVoice struct {
	start, end int64
	level      float64
	reverb     float64
	delay      float64
	bus        *TrackBus
}

func (v *constVoice) StartFrame() int64 { return v.start }
func (v *constVoice) Expires() int64    { return v.end }
func (v *constVoice) Bus() *TrackBus    { return v.bus }
func (v *constVoice) Render(frame int64, out *Frame) {
	if frame < v.start || frame >= v.end {
		return
	}
	out.L, out.R = v.level, v.level
	out.ReverbL, out.ReverbR = v.level*v.reverb, v.level*v.reverb
	out.DelayL, out.DelayR = v.level*v.delay, v.level*v.delay
}

func render(c *Context, frames int) []float32 {
	buf := make([]float32, frames*Channels)
	c.Process(buf)
	return buf
}

func TestContextClockAdvances(t *testing.T) {
	c := New(1000, Offline, WithSeed(1))
	assert.Zero(t, c.CurrentTime())
	render(c, 250)
	assert.InDelta(t, 0.25, c.CurrentTime(), 1e-12)
	assert.Equal(t, int64(250), c.CurrentFrame())
	assert.Equal(t, int64(100), c.FrameAt(0.1))
	assert.Equal(t, int64(101), c.FrameAt(0.1005))
}

func TestContextVoiceLifecycle(t *testing.T) {
	c := New(1000, Offline, WithSeed(1))
	c.Add(&constVoice{start: 10, end: 20, level: 0.1})
	assert.Equal(t, 1, c.Voices())
	assert.Equal(t, int64(20), c.LastExpiry())

	buf := render(c, 30)
	assert.Zero(t, buf[2*9])
	assert.NotZero(t, buf[2*10])
	assert.NotZero(t, buf[2*19+1])
	assert.Zero(t, buf[2*20])

	assert.Equal(t, 0, c.Voices())
	assert.Equal(t, int64(1), c.Reaped())
}

func TestContextArenaOrdersByStart(t *testing.T) {
	var a arena
	late := &constVoice{start: 50, end: 60}
	early := &constVoice{start: 5, end: 6}
	tie := &constVoice{start: 50, end: 70}
	a.add(late)
	a.add(early)
	a.add(tie)
	require.Len(t, a.pending, 3)
	assert.Same(t, early, a.pending[0])
	assert.Same(t, late, a.pending[1])
	assert.Same(t, tie, a.pending[2])

	a.activate(49)
	assert.Len(t, a.active, 1)
	a.activate(50)
	assert.Len(t, a.active, 3)
	assert.Equal(t, 1, a.reap(6))
	assert.Equal(t, 1, a.reap(60))
	assert.Len(t, a.active, 1)
}

func TestContextTrackBusGain(t *testing.T) {
	c := New(1000, Offline, WithSeed(1))
	bus := c.EnsureTrack("Lead")
	assert.Same(t, bus, c.EnsureTrack("Lead"))
	g, ok := c.TrackGain("Lead")
	require.True(t, ok)
	assert.Equal(t, DefaultTrackGain, g)

	c.SetMasterGain(0.5)
	require.True(t, c.SetTrackGain("Lead", 0.5))
	assert.False(t, c.SetTrackGain("Missing", 1))
	c.Add(&constVoice{start: 0, end: 10, level: 0.2, bus: bus})
	c.Add(&constVoice{start: 0, end: 10, level: 0.2})

	buf := render(c, 1)
	// limiter makeup is a fixed gain above unity for quiet input
	direct := New(1000, Offline, WithSeed(1))
	direct.SetMasterGain(0.5)
	direct.Add(&constVoice{start: 0, end: 10, level: 0.3})
	ref := render(direct, 1)
	assert.InDelta(t, ref[0], buf[0], 1e-6)
	assert.Equal(t, []string{"Lead"}, c.TrackNames())
}

func TestContextDelayScheduling(t *testing.T) {
	c := New(1000, Offline, WithSeed(1))
	c.ScheduleDelay(0.05, 0.01, 0)
	c.Add(&constVoice{start: 50, end: 51, level: 0.5, delay: 1})
	buf := render(c, 80)
	assert.NotZero(t, buf[2*50], "dry impulse")
	assert.Zero(t, buf[2*55])
	assert.NotZero(t, buf[2*60], "echo 10 frames later")
	assert.Zero(t, buf[2*70], "no feedback")
}

func TestContextSeededRendersMatch(t *testing.T) {
	run := func() []float32 {
		c := New(8000, Offline, WithSeed(42))
		c.Add(&constVoice{start: 0, end: 100, level: 0.3, reverb: 0.5})
		return render(c, 4000)
	}
	a, b := run(), run()
	assert.Equal(t, a, b)

	var tail bool
	for i := 2 * 200; i < len(a); i++ {
		if a[i] != 0 {
			tail = true
			break
		}
	}
	assert.True(t, tail, "reverb should ring past the voice")
}

func TestContextAnalyserTap(t *testing.T) {
	c := New(1000, Realtime, WithSeed(1), WithAnalyser())
	require.NotNil(t, c.Analyser())
	c.Add(&constVoice{start: 0, end: 1000, level: 0.25})
	render(c, 600)
	wave := c.Analyser().FloatTimeDomainData()
	assert.Greater(t, wave[len(wave)-1], 0.25)
	assert.Nil(t, New(1000, Offline).Analyser())
}

func TestContextReset(t *testing.T) {
	c := New(1000, Offline, WithSeed(1))
	c.EnsureTrack("A")
	c.SetTrackGain("A", 0.2)
	c.Add(&constVoice{start: 0, end: 100, level: 0.1})
	c.Reset()
	assert.Zero(t, c.Voices())
	g, _ := c.TrackGain("A")
	assert.Equal(t, 0.2, g)
	buf := render(c, 10)
	for _, v := range buf {
		assert.Zero(t, v)
	}
}
