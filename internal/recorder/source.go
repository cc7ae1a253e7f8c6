package recorder

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// Source supplies the current frame of one media stream. Sources are owned
// exclusively by the recorder for their whole lifetime; no other component
// may read or stop them directly.
type Source interface {
	NextFrame() (image.Image, error)
	Close() error
}

// AcquireFunc obtains a media source. Acquisition may suspend on a user
// permission prompt, hence the context.
type AcquireFunc func(ctx context.Context) (Source, error)

// StillSource replays a fixed frame. Used for scenario drives and tests
// where no real capture stream exists.
type StillSource struct {
	mu     sync.Mutex
	frame  image.Image
	closed bool
	frames int
}

// NewStillSource creates a source that returns img on every frame.
func NewStillSource(img image.Image) *StillSource {
	return &StillSource{frame: img}
}

// NewColorSource creates a still source of a solid color at the given size.
func NewColorSource(c color.Color, w, h int) *StillSource {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return NewStillSource(img)
}

func (s *StillSource) NextFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return s.frame, nil
}

// FrameCount returns how many frames were served.
func (s *StillSource) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Closed reports whether Close was called.
func (s *StillSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StillSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
