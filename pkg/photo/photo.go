// Package photo holds decoded images together with their orientation tag.
//
// Camera images are commonly stored with raw pixels in sensor order and an
// EXIF orientation that tells the viewer how to rotate or mirror them. A
// Photo keeps both so that geometry computed on the displayed image can be
// applied to the raw buffer without decoding twice.
package photo

import (
	"errors"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is an EXIF orientation value (1..8)
type Orientation int

// EXIF orientations. The names describe what the viewer has to do with the
// raw pixels to display them upright.
const (
	Up            Orientation = 1 // normal
	UpMirrored    Orientation = 2 // flip horizontal
	Down          Orientation = 3 // rotate 180
	DownMirrored  Orientation = 4 // flip vertical
	LeftMirrored  Orientation = 5 // transpose
	Right         Orientation = 6 // rotate 90 clockwise
	RightMirrored Orientation = 7 // transverse
	Left          Orientation = 8 // rotate 90 counter-clockwise
)

// ErrNoPixels is returned when a photo has no underlying pixel buffer
var ErrNoPixels = errors.New("photo has no pixel data")

// Valid reports whether o is one of the eight EXIF orientations
func (o Orientation) Valid() bool {
	return o >= Up && o <= Left
}

// Transposed reports whether displaying the raw pixels swaps width and height
func (o Orientation) Transposed() bool {
	return o >= LeftMirrored && o <= Left
}

func (o Orientation) String() string {
	switch o {
	case Up:
		return "up"
	case UpMirrored:
		return "up-mirrored"
	case Down:
		return "down"
	case DownMirrored:
		return "down-mirrored"
	case LeftMirrored:
		return "left-mirrored"
	case Right:
		return "right"
	case RightMirrored:
		return "right-mirrored"
	case Left:
		return "left"
	}
	return "unknown"
}

// Photo is an immutable raw pixel buffer plus its orientation tag
type Photo struct {
	Pixels      image.Image
	Orientation Orientation
}

// New wraps pixels with an orientation. Invalid orientations are treated as Up.
func New(pixels image.Image, o Orientation) *Photo {
	if !o.Valid() {
		o = Up
	}
	return &Photo{Pixels: pixels, Orientation: o}
}

// Width returns the displayed width, after orientation is applied
func (p *Photo) Width() int {
	if p.Orientation.Transposed() {
		return p.Pixels.Bounds().Dy()
	}
	return p.Pixels.Bounds().Dx()
}

// Height returns the displayed height, after orientation is applied
func (p *Photo) Height() int {
	if p.Orientation.Transposed() {
		return p.Pixels.Bounds().Dx()
	}
	return p.Pixels.Bounds().Dy()
}

// Normalized bakes the orientation into the pixel data and returns an image
// that displays upright without any tag. An Up photo is returned unchanged.
func (p *Photo) Normalized() image.Image {
	switch p.Orientation {
	case UpMirrored:
		return imaging.FlipH(p.Pixels)
	case Down:
		return imaging.Rotate180(p.Pixels)
	case DownMirrored:
		return imaging.FlipV(p.Pixels)
	case LeftMirrored:
		return imaging.Transpose(p.Pixels)
	case Right:
		return imaging.Rotate270(p.Pixels)
	case RightMirrored:
		return imaging.Transverse(p.Pixels)
	case Left:
		return imaging.Rotate90(p.Pixels)
	}
	return p.Pixels
}

// RawRect maps a rectangle given in displayed coordinates (origin at the
// top-left of the upright image) into raw pixel coordinates. The result is
// relative to the raw buffer's origin.
func (p *Photo) RawRect(r image.Rectangle) image.Rectangle {
	b := p.Pixels.Bounds()
	rw, rh := b.Dx(), b.Dy()
	x, y, w, h := r.Min.X, r.Min.Y, r.Dx(), r.Dy()

	var rx, ry, ww, hh int
	switch p.Orientation {
	case UpMirrored:
		rx, ry, ww, hh = rw-x-w, y, w, h
	case Down:
		rx, ry, ww, hh = rw-x-w, rh-y-h, w, h
	case DownMirrored:
		rx, ry, ww, hh = x, rh-y-h, w, h
	case LeftMirrored:
		rx, ry, ww, hh = y, x, h, w
	case Right:
		rx, ry, ww, hh = y, rh-x-w, h, w
	case RightMirrored:
		rx, ry, ww, hh = rw-y-h, rh-x-w, h, w
	case Left:
		rx, ry, ww, hh = rw-y-h, x, h, w
	default:
		rx, ry, ww, hh = x, y, w, h
	}
	return image.Rect(rx, ry, rx+ww, ry+hh)
}

// Crop cuts a rectangle given in displayed coordinates out of the raw
// buffer. The result keeps the source orientation tag so it displays the
// same way the source did.
func (p *Photo) Crop(r image.Rectangle) (*Photo, error) {
	if p == nil || p.Pixels == nil {
		return nil, ErrNoPixels
	}
	raw := p.RawRect(r).Add(p.Pixels.Bounds().Min)
	if raw.Intersect(p.Pixels.Bounds()).Empty() {
		return nil, errors.New("crop rectangle outside image")
	}
	return &Photo{
		Pixels:      imaging.Crop(p.Pixels, raw),
		Orientation: p.Orientation,
	}, nil
}

// ReadOrientation reads the EXIF orientation tag from an encoded image.
// Images without EXIF data, or with an unreadable tag, are reported as Up.
func ReadOrientation(r io.Reader) Orientation {
	x, err := exif.Decode(r)
	if err != nil {
		return Up
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Up
	}
	v, err := tag.Int(0)
	if err != nil {
		return Up
	}
	o := Orientation(v)
	if !o.Valid() {
		return Up
	}
	return o
}
