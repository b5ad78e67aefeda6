package waveform

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/soundglass/waveview/pkg/audio"
)

// smoothingWindow is the envelope window half-width in samples: each
// output sample covers smoothingWindow samples on either side.
const smoothingWindow = 20

// Processor converts raw samples into per-pixel amplitudes: envelope
// the signal, then take the maximum per pixel bucket.
type Processor struct {
	engine audio.Engine
}

func NewProcessor(engine audio.Engine) *Processor {
	return &Processor{engine: engine}
}

// SegmentPixels computes the amplitude column for every pixel of one
// segment. Ranges outside the file read as silence, so segments before
// the start of the audio or past its end come out flat.
func (p *Processor) SegmentPixels(ctx context.Context, h *audio.Handle, key SegmentKey, sampleRate int) ([]float64, error) {
	framesPerPixel := float64(sampleRate) / key.PixelsPerSecond
	if framesPerPixel <= 0 {
		return nil, fmt.Errorf("segment pixels: invalid pixels per second %v", key.PixelsPerSecond)
	}
	startFrame := int64(math.Round(key.StartSeconds() * float64(sampleRate)))
	frameCount := int64(math.Ceil(SegmentWidthPx * framesPerPixel))

	samples, err := p.engine.ReadSamples(ctx, h, startFrame, frameCount)
	if err != nil {
		return nil, fmt.Errorf("segment pixels: %w", err)
	}

	env := envelope(samples)

	pixels := make([]float64, SegmentWidthPx)
	for x := 0; x < SegmentWidthPx; x++ {
		lo := int(float64(x) * framesPerPixel)
		hi := int(float64(x+1) * framesPerPixel)
		if hi > len(env) {
			hi = len(env)
		}
		if hi <= lo && lo < len(env) {
			hi = lo + 1
		}
		peak := 0.0
		for i := lo; i < hi; i++ {
			if env[i] > peak {
				peak = env[i]
			}
		}
		pixels[x] = peak
	}
	return pixels, nil
}

// envelope replaces each sample with the largest absolute value inside
// the window [i-smoothingWindow, i+smoothingWindow). The monotonic
// deque of candidate indices keeps it a single pass.
func envelope(samples []float64) []float64 {
	out := make([]float64, len(samples))
	deque := make([]int, 0, 2*smoothingWindow)
	next := 0
	for i := range samples {
		start := i - smoothingWindow
		end := i + smoothingWindow
		if end > len(samples) {
			end = len(samples)
		}
		for len(deque) > 0 && deque[0] < start {
			deque = deque[1:]
		}
		for ; next < end; next++ {
			a := math.Abs(samples[next])
			for len(deque) > 0 && math.Abs(samples[deque[len(deque)-1]]) <= a {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, next)
		}
		out[i] = math.Abs(samples[deque[0]])
	}
	return out
}

// PeakDetector finds and caches the global amplitude peak of a file.
// All segments of one file share the peak, so the vertical scale stays
// consistent across the whole waveform.
type PeakDetector struct {
	engine audio.Engine

	mu    sync.Mutex
	peaks map[string]float64
}

func NewPeakDetector(engine audio.Engine) *PeakDetector {
	return &PeakDetector{engine: engine, peaks: make(map[string]float64)}
}

// Peak returns the global peak of h, scanning the file on the first
// call. Files quieter than the floor report 1.0 so silence does not
// blow up the vertical scale.
func (d *PeakDetector) Peak(ctx context.Context, h *audio.Handle, totalFrames int64) (float64, error) {
	id := h.ID().String()
	d.mu.Lock()
	if peak, ok := d.peaks[id]; ok {
		d.mu.Unlock()
		return peak, nil
	}
	d.mu.Unlock()

	const chunk = int64(1 << 16)
	peak := 0.0
	for off := int64(0); off < totalFrames; off += chunk {
		n := chunk
		if off+n > totalFrames {
			n = totalFrames - off
		}
		samples, err := d.engine.ReadSamples(ctx, h, off, n)
		if err != nil {
			return 0, fmt.Errorf("peak scan: %w", err)
		}
		for _, s := range samples {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
	}
	if peak < 1e-6 {
		peak = 1.0
	}

	d.mu.Lock()
	d.peaks[id] = peak
	d.mu.Unlock()
	return peak, nil
}

// Forget drops the cached peak for h.
func (d *PeakDetector) Forget(h *audio.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peaks, h.ID().String())
}
