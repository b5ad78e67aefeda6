// Package waveform turns audio samples into cached, fixed-width image
// segments and composes them into viewport-sized frames.
package waveform

import (
	"image"
	"math"
	"sync"
)

// SegmentWidthPx is the fixed pixel width of one cached segment.
const SegmentWidthPx = 200

// SegmentKey identifies one renderable segment. Two keys are equal
// exactly when they describe the same image, so the key doubles as the
// cache key.
type SegmentKey struct {
	Index           int64
	PixelsPerSecond float64
	HeightPx        int
}

// DurationSeconds returns the audio span one segment covers.
func (k SegmentKey) DurationSeconds() float64 {
	return SegmentWidthPx / k.PixelsPerSecond
}

// StartSeconds returns the segment's position on the timeline. Negative
// indexes sit before the start of the audio and render as silence.
func (k SegmentKey) StartSeconds() float64 {
	return float64(k.Index) * k.DurationSeconds()
}

// EndSeconds returns the end of the segment's span.
func (k SegmentKey) EndSeconds() float64 {
	return k.StartSeconds() + k.DurationSeconds()
}

// SegmentIndexForTime returns the index of the segment containing the
// given timeline position.
func SegmentIndexForTime(seconds, pixelsPerSecond float64) int64 {
	return int64(math.Floor(seconds * pixelsPerSecond / SegmentWidthPx))
}

// Future is a render result that resolves at most once. It starts
// pending and completes with either an image or an error.
type Future struct {
	done chan struct{}
	once sync.Once
	img  *image.RGBA
	err  error
}

// NewFuture returns a pending future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolvedFuture returns a future that is already complete.
func ResolvedFuture(img *image.RGBA, err error) *Future {
	f := NewFuture()
	f.Complete(img, err)
	return f
}

// Complete resolves the future. Later calls are ignored.
func (f *Future) Complete(img *image.RGBA, err error) {
	f.once.Do(func() {
		f.img = img
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// TryImage returns the result without blocking. ok is false while the
// future is still pending. A resolved failure returns ok true with a
// nil image; inspect Err for the cause.
func (f *Future) TryImage() (img *image.RGBA, ok bool) {
	select {
	case <-f.done:
		return f.img, true
	default:
		return nil, false
	}
}

// Err returns the failure of a resolved future, nil otherwise.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}
