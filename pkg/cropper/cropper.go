package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/carvision/pkg/photo"
)

// MaxScale is the largest zoom factor a viewport accepts
const MaxScale = 5.0

// DefaultMagnifyDamping slows pinch gestures down so that a full pinch does
// not jump straight to the zoom limits
const DefaultMagnifyDamping = 0.5

var (
	// ErrNoImage is returned when the source photo or its pixels are missing
	ErrNoImage = errors.New("source image unavailable")
	// ErrEmptyRegion is returned when the crop rectangle has no area
	ErrEmptyRegion = errors.New("empty crop region")
)

// Size is a width/height pair in display points
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is an x/y pair in display points
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the transient zoom and pan of a cropping session
type State struct {
	Scale  float64 `json:"scale"`
	Offset Point   `json:"offset"`
}

// Region is a crop rectangle in source pixel coordinates
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect rounds the region to whole pixels and clips it to bounds
func (r Region) Rect(bounds image.Rectangle) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}

// Viewport describes how a source image is laid out on screen: the fixed
// crop window, the size the image is drawn at when scale is 1, and the
// screen the image is fitted to.
type Viewport struct {
	Window  Size `json:"window"`
	Display Size `json:"display"`
	Screen  Size `json:"screen"`
}

// FitWidth lays an image of imgW x imgH pixels out across the screen width,
// keeping its aspect ratio
func FitWidth(imgW, imgH int, screen, window Size) Viewport {
	factor := screen.Width / float64(imgW)
	return Viewport{
		Window: window,
		Display: Size{
			Width:  float64(imgW) * factor,
			Height: float64(imgH) * factor,
		},
		Screen: screen,
	}
}

// MinScale is the smallest scale at which the displayed image is still as
// wide as the crop window
func (v Viewport) MinScale() float64 {
	return v.Window.Width / v.Display.Width
}

// OffsetLimit returns how far the image may be panned on each axis at the
// given scale. When the displayed image is smaller than the window along an
// axis the limit saturates at zero.
func (v Viewport) OffsetLimit(scale float64) Point {
	return Point{
		X: math.Max(0, (v.Display.Width*scale-v.Window.Width)/2),
		Y: math.Max(0, (v.Display.Height*scale-v.Window.Height)/2),
	}
}

// ClampOffset limits a requested pan so the crop window stays inside the
// displayed image
func (v Viewport) ClampOffset(scale float64, offset Point) Point {
	limit := v.OffsetLimit(scale)
	return Point{
		X: clamp(offset.X, -limit.X, limit.X),
		Y: clamp(offset.Y, -limit.Y, limit.Y),
	}
}

// ClampScale applies a relative zoom to the previous scale and limits the
// result to [MinScale, MaxScale]
func (v Viewport) ClampScale(delta, previous float64) float64 {
	return math.Min(math.Max(delta*previous, v.MinScale()), MaxScale)
}

// Clamp returns a copy of state with both scale and offset inside the
// viewport limits
func (v Viewport) Clamp(state State) State {
	scale := v.ClampScale(1, state.Scale)
	return State{
		Scale:  scale,
		Offset: v.ClampOffset(scale, state.Offset),
	}
}

// PixelFactor converts display points into source pixels
func (v Viewport) PixelFactor(pixelW, pixelH int) float64 {
	return math.Max(float64(pixelW)/v.Screen.Width, float64(pixelH)/v.Screen.Height)
}

// Region computes the part of a pixelW x pixelH source that is visible
// through the crop window for the given state
func (v Viewport) Region(state State, pixelW, pixelH int) Region {
	k := v.PixelFactor(pixelW, pixelH)
	s := state.Scale
	w := v.Window.Width / s
	h := v.Window.Height / s
	return Region{
		X:      ((v.Display.Width-w)/2 - state.Offset.X/s) * k,
		Y:      ((v.Display.Height-h)/2 - state.Offset.Y/s) * k,
		Width:  w * k,
		Height: h * k,
	}
}

// Transformer crops photos to a fixed-size window
type Transformer struct {
	config Config
}

// Config holds the crop window and screen geometry
type Config struct {
	Window         Size
	Screen         Size
	MagnifyDamping float64
}

// DefaultConfig returns a 300x225 window on a 393x852 point screen
func DefaultConfig() Config {
	return Config{
		Window:         Size{Width: 300, Height: 225},
		Screen:         Size{Width: 393, Height: 852},
		MagnifyDamping: DefaultMagnifyDamping,
	}
}

// New creates a new Transformer with default configuration
func New() *Transformer {
	return &Transformer{config: DefaultConfig()}
}

// NewWithConfig creates a new Transformer with custom configuration
func NewWithConfig(config Config) *Transformer {
	if config.MagnifyDamping <= 0 {
		config.MagnifyDamping = DefaultMagnifyDamping
	}
	return &Transformer{config: config}
}

// Viewport lays out a photo on the configured screen
func (t *Transformer) Viewport(p *photo.Photo) (Viewport, error) {
	if p == nil || p.Pixels == nil {
		return Viewport{}, ErrNoImage
	}
	if p.Width() == 0 || p.Height() == 0 {
		return Viewport{}, fmt.Errorf("invalid image dimensions %dx%d", p.Width(), p.Height())
	}
	return FitWidth(p.Width(), p.Height(), t.config.Screen, t.config.Window), nil
}

// Crop cuts the part of p visible through the crop window at state. The
// state is clamped first. The returned photo carries the source orientation.
func (t *Transformer) Crop(p *photo.Photo, state State) (*photo.Photo, Region, error) {
	vp, err := t.Viewport(p)
	if err != nil {
		return nil, Region{}, err
	}
	if state.Scale == 0 {
		state.Scale = 1
	}
	state = vp.Clamp(state)

	region := vp.Region(state, p.Width(), p.Height())
	rect := region.Rect(image.Rect(0, 0, p.Width(), p.Height()))
	if rect.Empty() {
		return nil, region, ErrEmptyRegion
	}

	cropped, err := p.Crop(rect)
	if err != nil {
		return nil, region, fmt.Errorf("crop failed: %w", err)
	}
	return cropped, region, nil
}

// NewSession starts an interactive cropping session for p
func (t *Transformer) NewSession(p *photo.Photo) (*Session, error) {
	vp, err := t.Viewport(p)
	if err != nil {
		return nil, err
	}
	initial := vp.Clamp(State{Scale: 1})
	return &Session{
		viewport: vp,
		damping:  t.config.MagnifyDamping,
		current:  initial,
		last:     initial,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
