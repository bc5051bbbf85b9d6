package axml

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	intaudio "github.com/cbegin/axml-go/internal/audio"
	intseq "github.com/cbegin/axml-go/internal/sequencer"
)

type fakeOutput struct {
	resumed, suspended, closed int
	err                        error
}

func (o *fakeOutput) Resume() error {
	o.resumed++
	return o.err
}
func (o *fakeOutput) Suspend()     { o.suspended++ }
func (o *fakeOutput) Close() error { o.closed++; return nil }

type manualTimer struct{ stopped bool }

func (t *manualTimer) Stop() bool {
	t.stopped = true
	return true
}

// manualClock captures scheduler passes so a test can fire them at will.
type manualClock struct {
	mu      sync.Mutex
	pending func()
}

func (c *manualClock) afterFunc(_ time.Duration, f func()) intseq.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = f
	return &manualTimer{}
}

func (c *manualClock) fire() {
	c.mu.Lock()
	f := c.pending
	c.pending = nil
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

const oneNote = `<axml>
  <metadata><title>One Note</title><tempo>120</tempo></metadata>
  <instruments><instrument id="lead" type="square" /></instruments>
  <tracks><track instrument="lead" name="Lead"><note pitch="A4" duration="q"/></track></tracks>
</axml>`

func newTestPlayer(t *testing.T, out *fakeOutput, clock *manualClock) *Player {
	t.Helper()
	opts := intseq.DefaultOptions()
	opts.AfterFunc = clock.afterFunc
	pl, err := NewPlayer(
		WithSampleRate(8000),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSchedulerOptions(opts),
	)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pl.cfg.newOutput = func(int, intaudio.SampleSource) (output, error) { return out, nil }
	return pl
}

func nextEvent(t *testing.T, ch <-chan PlaybackEvent) PlaybackEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no playback event")
		return PlaybackEvent{}
	}
}

func TestPlayerMasterGainRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer()
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterGain(); got != 1 {
		t.Fatalf("default master gain = %v, want 1", got)
	}
	pl.SetMasterGain(0.35)
	if got := pl.MasterGain(); got != 0.35 {
		t.Fatalf("master gain = %v, want 0.35", got)
	}
	pl.SetMasterGain(-2)
	if got := pl.MasterGain(); got != 0 {
		t.Fatalf("master gain should clamp to 0, got %v", got)
	}
}

func TestNewPlayerRejectsBadSampleRate(t *testing.T) {
	if _, err := NewPlayer(WithSampleRate(0)); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestPlayerNeedsDocument(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	if err := pl.Play(); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("Play = %v, want ErrNoDocument", err)
	}
	if err := pl.LoadSamples(context.Background()); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("LoadSamples = %v, want ErrNoDocument", err)
	}
	if _, err := pl.RenderWAV(context.Background()); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("RenderWAV = %v, want ErrNoDocument", err)
	}
}

func TestPlayerPlayAndStop(t *testing.T) {
	out := &fakeOutput{}
	pl := newTestPlayer(t, out, &manualClock{})
	if _, err := pl.LoadText(oneNote); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := pl.Duration(); got != 0.5 {
		t.Fatalf("duration = %v, want 0.5", got)
	}
	events := pl.Watch()

	if err := pl.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !pl.IsPlaying() {
		t.Fatal("expected playing after Play")
	}
	if out.resumed != 1 {
		t.Fatalf("output resumed %d times, want 1", out.resumed)
	}
	if ev := nextEvent(t, events); ev.Kind != EventPlaybackStarted {
		t.Fatalf("event = %v, want started", ev.Kind)
	}
	if n := pl.ctx.Voices(); n != 1 {
		t.Fatalf("voices = %d, want the first note scheduled", n)
	}

	pl.Stop()
	if pl.IsPlaying() {
		t.Fatal("still playing after Stop")
	}
	if out.suspended != 1 {
		t.Fatalf("output suspended %d times, want 1", out.suspended)
	}
	if ev := nextEvent(t, events); ev.Kind != EventPlaybackEnded {
		t.Fatalf("event = %v, want ended", ev.Kind)
	}
	pl.Wait()

	if err := pl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.closed != 1 {
		t.Fatalf("output closed %d times, want 1", out.closed)
	}
}

func TestPlayerStopWhenIdleStillEnds(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	events := pl.Watch()
	pl.Stop()
	if ev := nextEvent(t, events); ev.Kind != EventPlaybackEnded {
		t.Fatalf("event = %v, want ended", ev.Kind)
	}
}

func TestPlayerEndsAfterTail(t *testing.T) {
	clock := &manualClock{}
	pl := newTestPlayer(t, &fakeOutput{}, clock)
	if _, err := pl.LoadText(oneNote); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := pl.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}

	// pre-roll 0.1 + song 0.5 + tail 1 = 1.6 s of clock
	buf := make([]float32, 2*8000*17/10)
	pl.ctx.Process(buf)
	var loud bool
	for _, s := range buf {
		if s != 0 {
			loud = true
			break
		}
	}
	if !loud {
		t.Fatal("expected the note in the output")
	}

	clock.fire()
	if pl.IsPlaying() {
		t.Fatal("expected playback to end after the tail")
	}
	done := make(chan struct{})
	go func() {
		pl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the song ended")
	}
}

func TestPlayerResumeFailure(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{err: errors.New("no device")}, &manualClock{})
	if _, err := pl.LoadText(oneNote); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := pl.Play(); err == nil {
		t.Fatal("expected resume error")
	}
	if pl.IsPlaying() {
		t.Fatal("should not be playing")
	}
	pl.Wait()
}

func TestPlayerMixer(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	if _, err := pl.LoadText(oneNote); err != nil {
		t.Fatalf("load: %v", err)
	}
	if names := pl.TrackNames(); len(names) != 1 || names[0] != "Lead" {
		t.Fatalf("TrackNames = %v", names)
	}
	if g, ok := pl.TrackGain("Lead"); !ok || g != 0.7 {
		t.Fatalf("TrackGain = %v, %v; want 0.7, true", g, ok)
	}
	if !pl.SetTrackGain("Lead", 0.2) {
		t.Fatal("SetTrackGain on a loaded track failed")
	}
	if pl.SetTrackGain("Drums", 0.2) {
		t.Fatal("SetTrackGain on an unknown track succeeded")
	}
}

func TestPlayerAnalyserData(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	if n := len(pl.FrequencyData()); n != 256 {
		t.Fatalf("frequency bins = %d, want 256", n)
	}
	wave := pl.TimeDomainData()
	if len(wave) != 512 || wave[0] != 128 {
		t.Fatalf("time domain = %d bytes starting at %d", len(wave), wave[0])
	}
}

func TestPlayerRenderWAV(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	text, err := os.ReadFile("testdata/happy-birthday.axml")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := pl.LoadText(string(text))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := SuggestedFileName(doc.Metadata); got != "happy-birthday.wav" {
		t.Fatalf("file name = %q", got)
	}
	wav, err := pl.RenderWAV(context.Background(), WithSeed(1))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatal("missing RIFF header")
	}
	// 12 beats at 120 bpm plus the 2 s tail
	if want := 44 + 8*44100*4; len(wav) != want {
		t.Fatalf("wav size = %d, want %d", len(wav), want)
	}
}

func TestPlayerParseErrors(t *testing.T) {
	pl := newTestPlayer(t, &fakeOutput{}, &manualClock{})
	_, err := pl.LoadText("<axml><tracks>")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyntaxError", err)
	}
	if _, err := Parse("<song/>"); err == nil {
		t.Fatal("expected missing root error")
	}
}
