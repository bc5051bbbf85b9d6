package axml

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cbegin/axml-go/internal/engine"
	intseq "github.com/cbegin/axml-go/internal/sequencer"
	"github.com/cbegin/axml-go/internal/voice"
)

const (
	// OfflineSampleRate is the rate of every offline render.
	OfflineSampleRate = 44100
	// RenderTail is the silence rendered after the last note so releases
	// and reverb can ring out.
	RenderTail = 2.0
	// MaxRenderSeconds caps the length of a render unless WithMaxSeconds
	// says otherwise.
	MaxRenderSeconds = 600.0

	renderBlock = 4096
)

// ErrNothingToRender is returned for documents without playable notes.
var ErrNothingToRender = errors.New("nothing to render")

// ErrTooLong is returned when a song would render past the length cap.
var ErrTooLong = errors.New("song too long to render")

// SampleBank supplies decoded sample instrument buffers.
type SampleBank = voice.SampleBank

// Buffer is rendered stereo audio with one slice per channel.
type Buffer struct {
	SampleRate int
	Left       []float32
	Right      []float32
}

func (b *Buffer) Channels() int { return 2 }

func (b *Buffer) Frames() int { return len(b.Left) }

// Seconds returns the buffer length in seconds.
func (b *Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Left)) / float64(b.SampleRate)
}

// Interleaved returns the frames as L,R pairs.
func (b *Buffer) Interleaved() []float32 {
	out := make([]float32, 2*len(b.Left))
	for i := range b.Left {
		out[2*i] = b.Left[i]
		out[2*i+1] = b.Right[i]
	}
	return out
}

type RenderOption func(*renderConfig)

type renderConfig struct {
	seed       int64
	seeded     bool
	bank       SampleBank
	depth      int
	masterGain float64
	maxSeconds float64
	trackGains map[string]float64
}

// WithSeed fixes the random source for the reverb impulse and noise
// voices. Renders of the same document with the same seed are identical.
func WithSeed(seed int64) RenderOption {
	return func(cfg *renderConfig) {
		cfg.seed = seed
		cfg.seeded = true
	}
}

// WithSampleBank provides buffers for sample instruments. Without it they
// play as sine tones.
func WithSampleBank(bank SampleBank) RenderOption {
	return func(cfg *renderConfig) {
		cfg.bank = bank
	}
}

func WithPatternDepth(depth int) RenderOption {
	return func(cfg *renderConfig) {
		cfg.depth = depth
	}
}

// WithMasterGain scales the master bus before the limiter. 1.0 is default.
func WithMasterGain(gain float64) RenderOption {
	return func(cfg *renderConfig) {
		cfg.masterGain = gain
	}
}

// WithMaxSeconds caps the rendered length, tail included. Non-positive
// values keep MaxRenderSeconds.
func WithMaxSeconds(seconds float64) RenderOption {
	return func(cfg *renderConfig) {
		if seconds > 0 {
			cfg.maxSeconds = seconds
		}
	}
}

// WithTrackGain overrides the mixer level of one track.
func WithTrackGain(name string, gain float64) RenderOption {
	return func(cfg *renderConfig) {
		if cfg.trackGains == nil {
			cfg.trackGains = map[string]float64{}
		}
		cfg.trackGains[name] = gain
	}
}

// Render synthesizes the whole document into a buffer of the song length
// plus RenderTail at OfflineSampleRate. Every note is scheduled up front at
// its exact time. Bitcrush is not applied offline. Songs longer than the
// length cap fail with ErrTooLong before any audio is allocated.
func Render(ctx context.Context, doc *Document, opts ...RenderOption) (*Buffer, error) {
	cfg := renderConfig{depth: intseq.DefaultMaxDepth, masterGain: 1, maxSeconds: MaxRenderSeconds}
	for _, opt := range opts {
		opt(&cfg)
	}
	if doc == nil {
		return nil, ErrNothingToRender
	}
	notes := intseq.FlattenWithDepth(doc, cfg.depth)
	if len(notes) == 0 {
		return nil, ErrNothingToRender
	}
	// notes that all end before zero still get the tail
	seconds := max(intseq.Duration(notes, doc.Metadata.Tempo), 0) + RenderTail
	if math.IsNaN(seconds) || seconds > cfg.maxSeconds {
		return nil, fmt.Errorf("%w: %.0fs exceeds %.0fs", ErrTooLong, seconds, cfg.maxSeconds)
	}
	frames := int(math.Ceil(seconds * OfflineSampleRate))

	var engOpts []engine.Option
	if cfg.seeded {
		engOpts = append(engOpts, engine.WithSeed(cfg.seed))
	}
	ec := engine.New(OfflineSampleRate, engine.Offline, engOpts...)
	ec.SetMasterGain(cfg.masterGain)
	for _, tr := range doc.Tracks {
		ec.EnsureTrack(tr.Name)
	}
	for name, g := range cfg.trackGains {
		ec.SetTrackGain(name, g)
	}

	spb := doc.Metadata.SecondsPerBeat()
	for _, n := range notes {
		voice.Build(ec, n, n.Start*spb, n.Duration*spb, cfg.bank)
	}

	buf := &Buffer{
		SampleRate: OfflineSampleRate,
		Left:       make([]float32, frames),
		Right:      make([]float32, frames),
	}
	for pos := 0; pos < frames; pos += renderBlock {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(pos+renderBlock, frames)
		ec.ProcessPlanar(buf.Left[pos:end], buf.Right[pos:end])
	}
	return buf, nil
}

// EncodeWAV writes buf as a 16-bit PCM RIFF/WAVE file. Samples are clamped
// to [-1, 1] and scaled by 32768 below zero and 32767 above.
func EncodeWAV(buf *Buffer) []byte {
	channels := buf.Channels()
	frames := buf.Frames()
	dataSize := frames * channels * 2
	byteRate := buf.SampleRate * channels * 2
	blockAlign := channels * 2
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	pos := 44
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(out[pos:], uint16(pcm16(buf.Left[i])))
		binary.LittleEndian.PutUint16(out[pos+2:], uint16(pcm16(buf.Right[i])))
		pos += 4
	}
	return out
}

func pcm16(x float32) int16 {
	s := math.Max(-1, math.Min(1, float64(x)))
	if s < 0 {
		return int16(math.Round(s * 32768))
	}
	return int16(math.Round(s * 32767))
}

var whitespace = regexp.MustCompile(`\s+`)

// SuggestedFileName returns the download name for a song: its title in
// lower case with whitespace runs replaced by dashes, plus ".wav".
func SuggestedFileName(meta Metadata) string {
	title := meta.Title
	if title == "" {
		title = "song"
	}
	return whitespace.ReplaceAllString(strings.ToLower(title), "-") + ".wav"
}
