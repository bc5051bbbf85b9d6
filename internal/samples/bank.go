// Package samples fetches and decodes the audio files referenced by sample
// instruments and keeps them as mono buffers at a fixed sample rate.
package samples

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedFormat is returned for data that is not a PCM WAV file.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// LoadError reports a source that could not be fetched or decoded.
type LoadError struct {
	Src string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load sample %q: %v", e.Src, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

const DefaultTimeout = 30 * time.Second

type Option func(*Bank)

// WithHTTPClient replaces the client used for http and https sources.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bank) { b.client = c }
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(b *Bank) { b.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bank) { b.logger = l }
}

// Bank caches decoded samples by source. It is safe for concurrent use.
type Bank struct {
	sampleRate int
	client     *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	mu      sync.RWMutex
	buffers map[string][]float64
}

func NewBank(sampleRate int, opts ...Option) *Bank {
	b := &Bank{
		sampleRate: sampleRate,
		client:     http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		buffers:    map[string][]float64{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bank) SampleRate() int { return b.sampleRate }

// Sample returns the decoded buffer for src.
func (b *Bank) Sample(src string) ([]float64, int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.buffers[src]
	return data, b.sampleRate, ok
}

func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffers)
}

// Store adds an already decoded buffer at the bank's sample rate.
func (b *Bank) Store(src string, data []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers[src] = data
}

// Load fetches every source not yet cached, one goroutine each. The first
// failure cancels the remaining fetches and is returned; buffers decoded
// before it stay cached.
func (b *Bank) Load(ctx context.Context, srcs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range srcs {
		if _, _, ok := b.Sample(src); ok || src == "" {
			continue
		}
		g.Go(func() error {
			data, err := b.fetch(ctx, src)
			if err != nil {
				return &LoadError{Src: src, Err: err}
			}
			buf, err := Decode(bytes.NewReader(data), b.sampleRate)
			if err != nil {
				return &LoadError{Src: src, Err: err}
			}
			b.Store(src, buf)
			b.logger.Debug("sample loaded", "src", src, "frames", len(buf))
			return nil
		})
	}
	return g.Wait()
}

func (b *Bank) fetch(ctx context.Context, src string) ([]byte, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return b.fetchHTTP(ctx, src)
	}
	path := src
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (b *Bank) fetchHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Decode reads a PCM WAV file, mixes it down to mono and resamples it to
// sampleRate.
func Decode(r io.ReadSeeker, sampleRate int) ([]float64, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	}
	mono := downmix(buf.Data, channels, int(d.BitDepth))
	return Resample(mono, int(d.SampleRate), sampleRate), nil
}

func downmix(data []int, channels, bitDepth int) []float64 {
	scale, offset := 1.0, 0.0
	switch {
	case bitDepth == 8:
		scale, offset = 128, 128
	case bitDepth > 8:
		scale = float64(int64(1) << (bitDepth - 1))
	}
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) / scale
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Resample converts data from one rate to another with linear
// interpolation.
func Resample(data []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(data) == 0 {
		return data
	}
	n := int(int64(len(data)) * int64(to) / int64(from))
	out := make([]float64, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(data)-1 {
			out[i] = data[len(data)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = data[j] + (data[j+1]-data[j])*frac
	}
	return out
}
