// Package audio connects a pull-based stereo renderer to the system audio
// device through ebiten.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// DefaultBufferSize keeps device latency well under the scheduler's
// look-ahead window.
const DefaultBufferSize = 50 * time.Millisecond

// SampleSource fills dst with interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the little-endian float32 byte
// stream ebiten expects. It never reports EOF.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

var (
	deviceOnce sync.Once
	device     *ebitaudio.Context
	deviceRate int
)

// sharedDevice returns the process-wide ebiten context. ebiten allows only
// one, so every output must use the rate of the first.
func sharedDevice(sampleRate int) (*ebitaudio.Context, error) {
	deviceOnce.Do(func() {
		deviceRate = sampleRate
		device = ebitaudio.NewContext(sampleRate)
	})
	if deviceRate != sampleRate {
		return nil, fmt.Errorf("audio device already opened at %d Hz (requested %d Hz)", deviceRate, sampleRate)
	}
	return device, nil
}

// Output streams a source to the audio device. It starts suspended.
type Output struct {
	player *ebitaudio.Player
	reader *StreamReader
}

func NewOutput(sampleRate int, source SampleSource) (*Output, error) {
	ctx, err := sharedDevice(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	pl.SetBufferSize(DefaultBufferSize)
	return &Output{player: pl, reader: reader}, nil
}

// Resume starts pulling frames from the source.
func (o *Output) Resume() error {
	o.player.Play()
	return nil
}

func (o *Output) Suspend() { o.player.Pause() }

func (o *Output) Running() bool { return o.player.IsPlaying() }

// Position returns how much audio the device has played.
func (o *Output) Position() time.Duration {
	return o.player.Position()
}

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
