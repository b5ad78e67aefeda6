package viewport

import "sync"

// Zoom bounds in frames per pixel. At 44.1kHz the range spans roughly
// 0.2ms to 2.9s of audio per pixel.
const (
	MinFramesPerPixel = 8
	MaxFramesPerPixel = 131072
	zoomStep          = 2
)

// DefaultFramesPerPixel is the initial zoom level.
const DefaultFramesPerPixel = 512

// ChangeKind classifies a UI state change by its effect on cached
// waveform segments.
type ChangeKind int

const (
	// ChangeNone means the states are equal.
	ChangeNone ChangeKind = iota
	// ChangeWidth means only the width changed; cached segments stay
	// valid, only more or fewer of them are visible.
	ChangeWidth
	// ChangeInvalidating means zoom or height changed; every cached
	// segment was rendered for a different key space and must go.
	ChangeInvalidating
)

// ClassifyChange compares two UI states.
func ClassifyChange(old, new UIState) ChangeKind {
	if old == new {
		return ChangeNone
	}
	if old.FramesPerPixel == new.FramesPerPixel && old.HeightPx == new.HeightPx {
		return ChangeWidth
	}
	return ChangeInvalidating
}

// Controller owns the mutable UI state behind a mutex. Reads return a
// copy.
type Controller struct {
	mu sync.Mutex
	ui UIState
}

// NewController creates a controller at the default zoom with the given
// widget size.
func NewController(widthPx, heightPx int) *Controller {
	return &Controller{ui: UIState{
		FramesPerPixel: DefaultFramesPerPixel,
		WidthPx:        widthPx,
		HeightPx:       heightPx,
	}}
}

// State returns the current UI state.
func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ui
}

// ZoomIn halves the frames-per-pixel ratio, showing less audio in more
// detail. It reports whether the state changed.
func (c *Controller) ZoomIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.ui.FramesPerPixel / zoomStep
	if next < MinFramesPerPixel {
		return false
	}
	c.ui.FramesPerPixel = next
	return true
}

// ZoomOut doubles the frames-per-pixel ratio. It reports whether the
// state changed.
func (c *Controller) ZoomOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.ui.FramesPerPixel * zoomStep
	if next > MaxFramesPerPixel {
		return false
	}
	c.ui.FramesPerPixel = next
	return true
}

// Resize updates the widget size. It reports whether the state changed.
func (c *Controller) Resize(widthPx, heightPx int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if widthPx <= 0 || heightPx <= 0 {
		return false
	}
	if c.ui.WidthPx == widthPx && c.ui.HeightPx == heightPx {
		return false
	}
	c.ui.WidthPx = widthPx
	c.ui.HeightPx = heightPx
	return true
}
