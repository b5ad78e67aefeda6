package waveform

import (
	"errors"
	"image"
	"testing"
)

func TestSegmentIndexForTime(t *testing.T) {
	cases := []struct {
		seconds float64
		pps     float64
		want    int64
	}{
		{0, 100, 0},
		{1.99, 100, 0},
		{2.0, 100, 1},
		{5.0, 100, 2},
		{-0.01, 100, -1},
		{-2.0, 100, -1},
		{-2.01, 100, -2},
		{10.0, 50, 2},
	}
	for _, c := range cases {
		if got := SegmentIndexForTime(c.seconds, c.pps); got != c.want {
			t.Errorf("SegmentIndexForTime(%v, %v) = %d, want %d", c.seconds, c.pps, got, c.want)
		}
	}
}

func TestSegmentKeySpan(t *testing.T) {
	k := SegmentKey{Index: 3, PixelsPerSecond: 100, HeightPx: 200}
	if k.DurationSeconds() != 2.0 {
		t.Errorf("duration = %v, want 2.0", k.DurationSeconds())
	}
	if k.StartSeconds() != 6.0 || k.EndSeconds() != 8.0 {
		t.Errorf("span = [%v, %v), want [6, 8)", k.StartSeconds(), k.EndSeconds())
	}

	neg := SegmentKey{Index: -1, PixelsPerSecond: 100, HeightPx: 200}
	if neg.StartSeconds() != -2.0 {
		t.Errorf("negative index start = %v, want -2.0", neg.StartSeconds())
	}
}

func TestFutureResolution(t *testing.T) {
	f := NewFuture()
	if _, ok := f.TryImage(); ok {
		t.Fatal("pending future reported resolved")
	}
	if f.Err() != nil {
		t.Fatal("pending future reported an error")
	}

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	f.Complete(img, nil)
	if got, ok := f.TryImage(); !ok || got != img {
		t.Fatal("resolved future lost its image")
	}

	// Later completions are ignored.
	f.Complete(nil, errors.New("late"))
	if got, ok := f.TryImage(); !ok || got != img || f.Err() != nil {
		t.Error("second completion overwrote the first")
	}

	select {
	case <-f.Done():
	default:
		t.Error("Done channel not closed")
	}
}

func TestFutureFailure(t *testing.T) {
	boom := errors.New("boom")
	f := ResolvedFuture(nil, boom)
	img, ok := f.TryImage()
	if !ok || img != nil {
		t.Fatalf("TryImage = %v, %v", img, ok)
	}
	if !errors.Is(f.Err(), boom) {
		t.Errorf("Err = %v, want boom", f.Err())
	}
}
