package waveform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/soundglass/waveview/pkg/audio"
	"github.com/soundglass/waveview/pkg/logger"
	"github.com/soundglass/waveview/pkg/viewport"
)

// DefaultPrefetchSeconds is how much audio is pre-rendered on each side
// of the viewport.
const DefaultPrefetchSeconds = 5.0

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	centerLineColor = color.RGBA{0, 0, 0, 255}
	scaleLineColor  = color.RGBA{226, 224, 131, 255}
	labelColor      = color.RGBA{90, 90, 90, 255}
	waveColor       = color.RGBA{0, 0, 0, 255}
)

// ErrNoSource is returned when rendering is requested with no audio
// attached.
var ErrNoSource = errors.New("waveform: no audio source")

// Renderer renders waveform segments on a bounded worker pool and
// composes them into viewport frames. Every segment render belongs to
// the cache's current epoch; Invalidate cancels the epoch and in-flight
// work aborts at the next checkpoint.
type Renderer struct {
	engine audio.Engine
	proc   *Processor
	peaks  *PeakDetector
	cache  *Cache

	sem             chan struct{}
	prefetchSeconds float64

	mu          sync.Mutex
	handle      *audio.Handle
	sampleRate  int
	totalFrames int64
}

// NewRenderer creates a renderer with the given worker count and
// prefetch distance. A non-positive worker count selects a small
// default; a negative prefetch distance selects DefaultPrefetchSeconds
// and zero disables prefetching.
func NewRenderer(engine audio.Engine, cache *Cache, workers int, prefetchSeconds float64) *Renderer {
	if workers <= 0 {
		workers = 4
	}
	if prefetchSeconds < 0 {
		prefetchSeconds = DefaultPrefetchSeconds
	}
	return &Renderer{
		engine:          engine,
		proc:            NewProcessor(engine),
		peaks:           NewPeakDetector(engine),
		cache:           cache,
		sem:             make(chan struct{}, workers),
		prefetchSeconds: prefetchSeconds,
	}
}

// SetSource attaches the audio to render. Switching files clears the
// cache and restarts the statistics.
func (r *Renderer) SetSource(h *audio.Handle, meta audio.Metadata) {
	r.mu.Lock()
	prev := r.handle
	r.handle = h
	r.sampleRate = meta.SampleRate
	r.totalFrames = meta.FrameCount
	r.mu.Unlock()

	if prev != h {
		if prev != nil {
			r.peaks.Forget(prev)
		}
		r.cache.Clear()
		r.cache.ResetStats()
	}
}

// ClearSource detaches the audio and clears the cache.
func (r *Renderer) ClearSource() {
	r.SetSource(nil, audio.Metadata{})
}

// Invalidate drops every cached segment and aborts in-flight renders.
// Call on zoom or height changes; width changes do not need it.
func (r *Renderer) Invalidate() {
	r.cache.Clear()
}

// Cache exposes the segment cache, mainly for statistics.
func (r *Renderer) Cache() *Cache {
	return r.cache
}

func (r *Renderer) source() (*audio.Handle, int, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle, r.sampleRate, r.totalFrames
}

// RenderWindow returns a future frame for the window. Cached segments
// resolve it immediately; otherwise it resolves when the missing
// segments finish rendering. Segments beyond the viewport are
// prefetched in the background either way.
func (r *Renderer) RenderWindow(w viewport.WaveformWindow) *Future {
	h, _, _ := r.source()
	if h == nil {
		return ResolvedFuture(nil, ErrNoSource)
	}
	if w.WidthPx <= 0 || w.HeightPx <= 0 || w.PixelsPerSecond <= 0 {
		return ResolvedFuture(nil, fmt.Errorf("render window: bad geometry %dx%d @ %v pps",
			w.WidthPx, w.HeightPx, w.PixelsPerSecond))
	}

	pps := w.PixelsPerSecond
	firstIdx := SegmentIndexForTime(w.StartSeconds, pps)
	lastIdx := SegmentIndexForTime(w.EndSeconds, pps)
	if float64(lastIdx)*SegmentWidthPx/pps >= w.EndSeconds {
		lastIdx--
	}

	futs := make([]*Future, 0, lastIdx-firstIdx+1)
	var epoch context.Context
	for idx := firstIdx; idx <= lastIdx; idx++ {
		key := SegmentKey{Index: idx, PixelsPerSecond: pps, HeightPx: w.HeightPx}
		fut, ctx, created := r.cache.GetOrInsert(key)
		epoch = ctx
		if created {
			go r.renderInto(ctx, key, fut)
		}
		futs = append(futs, fut)
	}

	go r.prefetch(firstIdx, lastIdx, pps, w.HeightPx)

	if img, ok := tryCompose(futs, firstIdx, w); ok {
		if img == nil {
			return ResolvedFuture(nil, firstError(futs))
		}
		return ResolvedFuture(img, nil)
	}

	out := NewFuture()
	go func() {
		for _, fut := range futs {
			select {
			case <-fut.Done():
			case <-epoch.Done():
				out.Complete(nil, epoch.Err())
				return
			}
		}
		img, _ := tryCompose(futs, firstIdx, w)
		if img == nil {
			out.Complete(nil, firstError(futs))
			return
		}
		out.Complete(img, nil)
	}()
	return out
}

// prefetch warms the cache on both sides of the visible range.
func (r *Renderer) prefetch(firstIdx, lastIdx int64, pps float64, heightPx int) {
	count := int(math.Ceil(r.prefetchSeconds * pps / SegmentWidthPx))
	for i := 1; i <= count; i++ {
		for _, idx := range []int64{firstIdx - int64(i), lastIdx + int64(i)} {
			key := SegmentKey{Index: idx, PixelsPerSecond: pps, HeightPx: heightPx}
			if fut, ctx, created := r.cache.Prefetch(key); created {
				go r.renderInto(ctx, key, fut)
			}
		}
	}
}

// renderInto renders one segment and resolves its future. Runs under
// the worker semaphore.
func (r *Renderer) renderInto(ctx context.Context, key SegmentKey, fut *Future) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		fut.Complete(nil, ctx.Err())
		return
	}
	defer func() { <-r.sem }()

	if err := ctx.Err(); err != nil {
		fut.Complete(nil, err)
		return
	}
	h, rate, total := r.source()
	if h == nil {
		fut.Complete(nil, ErrNoSource)
		return
	}
	peak, err := r.peaks.Peak(ctx, h, total)
	if err != nil {
		fut.Complete(nil, err)
		return
	}
	pixels, err := r.proc.SegmentPixels(ctx, h, key, rate)
	if err != nil {
		logger.GetLogger().Warn("segment render failed",
			"index", key.Index, "pps", key.PixelsPerSecond, "error", err)
		fut.Complete(nil, err)
		return
	}
	fut.Complete(renderSegment(pixels, key, peak), nil)
}

func firstError(futs []*Future) error {
	for _, fut := range futs {
		if err := fut.Err(); err != nil {
			return err
		}
	}
	return errors.New("waveform: segment missing")
}

// tryCompose assembles the frame when every segment future is resolved
// with an image.
func tryCompose(futs []*Future, firstIdx int64, w viewport.WaveformWindow) (*image.RGBA, bool) {
	imgs := make([]*image.RGBA, len(futs))
	for i, fut := range futs {
		img, ok := fut.TryImage()
		if !ok {
			return nil, false
		}
		if img == nil {
			// Resolved, but the segment failed.
			return nil, true
		}
		imgs[i] = img
	}
	return compose(imgs, firstIdx, w), true
}

// compose crops the segment strip to the window. The first segment
// usually starts left of the window, so the offset is zero or negative.
func compose(imgs []*image.RGBA, firstIdx int64, w viewport.WaveformWindow) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w.WidthPx, w.HeightPx))
	draw.Draw(out, out.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	firstStart := float64(firstIdx) * SegmentWidthPx / w.PixelsPerSecond
	offsetPx := int(math.Round((firstStart - w.StartSeconds) * w.PixelsPerSecond))
	for i, img := range imgs {
		x := offsetPx + i*SegmentWidthPx
		dst := image.Rect(x, 0, x+SegmentWidthPx, w.HeightPx)
		draw.Draw(out, dst, img, image.Point{}, draw.Src)
	}
	return out
}

// renderSegment rasterizes one segment: white background, second-grid
// lines with time labels, the center reference line, then the peak
// scaled amplitude columns.
func renderSegment(pixels []float64, key SegmentKey, peak float64) *image.RGBA {
	width, height := SegmentWidthPx, key.HeightPx
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	drawTimeGrid(img, key)

	mid := height / 2
	for x := 0; x < width; x++ {
		img.SetRGBA(x, mid, centerLineColor)
	}

	yScale := (float64(height)/2 - 1) / peak
	for x := 0; x < width && x < len(pixels); x++ {
		amp := int(pixels[x] * yScale)
		if amp > mid-1 {
			amp = mid - 1
		}
		for y := mid - amp; y <= mid+amp; y++ {
			img.SetRGBA(x, y, waveColor)
		}
	}
	return img
}

// drawTimeGrid draws a vertical line and a label at every whole second
// inside the segment. Seconds before zero have no audio and get no
// grid.
func drawTimeGrid(img *image.RGBA, key SegmentKey) {
	height := key.HeightPx
	start := key.StartSeconds()
	end := key.EndSeconds()
	for s := int64(math.Ceil(start)); float64(s) < end; s++ {
		if s < 0 {
			continue
		}
		x := int(math.Round((float64(s) - start) * key.PixelsPerSecond))
		if x < 0 || x >= SegmentWidthPx {
			continue
		}
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, scaleLineColor)
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(labelColor),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x+2, height-4),
		}
		d.DrawString(fmt.Sprintf("%.2fs", float64(s)))
	}
}
