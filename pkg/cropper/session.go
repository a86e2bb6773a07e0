package cropper

// Session tracks zoom and pan while a user drags and pinches a photo behind
// the crop window. Gestures report values relative to the state committed
// when the previous gesture ended.
type Session struct {
	viewport Viewport
	damping  float64
	current  State
	last     State
}

// Viewport returns the layout the session works in
func (s *Session) Viewport() Viewport {
	return s.viewport
}

// State returns the current, possibly uncommitted, state
func (s *Session) State() State {
	return s.current
}

// Drag pans by a translation measured from the start of the gesture
func (s *Session) Drag(tx, ty float64) State {
	s.current.Offset = s.viewport.ClampOffset(s.current.Scale, Point{
		X: s.last.Offset.X + tx,
		Y: s.last.Offset.Y + ty,
	})
	return s.current
}

// EndDrag commits the pan
func (s *Session) EndDrag() {
	s.last.Offset = s.current.Offset
}

// Magnify zooms by a raw pinch magnification measured from the start of
// the gesture. The offset is re-clamped so the window stays covered.
func (s *Session) Magnify(magnification float64) State {
	delta := (magnification-1)*s.damping + 1
	s.current.Scale = s.viewport.ClampScale(delta, s.last.Scale)
	s.current.Offset = s.viewport.ClampOffset(s.current.Scale, s.current.Offset)
	return s.current
}

// EndMagnify commits both zoom and pan
func (s *Session) EndMagnify() {
	s.last = s.current
}

// Region returns the source rectangle for the current state
func (s *Session) Region(pixelW, pixelH int) Region {
	return s.viewport.Region(s.current, pixelW, pixelH)
}
