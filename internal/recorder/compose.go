package recorder

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay is the per-frame annotation drawn on top of the composite.
type Overlay struct {
	// Caption is the status line: assessment identifier + remaining time.
	Caption string
	// Timestamp is rendered inside the camera inset.
	Timestamp string
	// Indicator toggles the red recording dot.
	Indicator bool
}

// Camera inset geometry within the composite surface.
const (
	insetWidth    = 240
	insetHeight   = 180
	insetMargin   = 16
	insetRadius   = 12
	indicatorSize = 6
)

// CompositeFrame draws one frame of the composite recording: the screen
// frame scaled to fit the surface preserving aspect ratio (letterboxed, not
// cropped), an optional rounded-rectangle camera inset in the bottom-right
// corner with timestamp and recording indicator, and the status caption in
// the top-left corner. The function is pure: it allocates and returns the
// surface and touches no shared state.
func CompositeFrame(screen, camera image.Image, ov Overlay, size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	if screen != nil {
		drawLetterboxed(dst, screen)
	}
	if camera != nil {
		drawCameraInset(dst, camera, ov)
	}
	if ov.Caption != "" {
		drawCaption(dst, ov.Caption)
	}
	return dst
}

// letterboxRect computes the centered target rectangle for a src of the
// given bounds scaled to fit dst preserving aspect ratio.
func letterboxRect(dst image.Rectangle, src image.Rectangle) image.Rectangle {
	dw, dh := dst.Dx(), dst.Dy()
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return image.Rectangle{}
	}

	w := dw
	h := sh * dw / sw
	if h > dh {
		h = dh
		w = sw * dh / sh
	}
	x0 := dst.Min.X + (dw-w)/2
	y0 := dst.Min.Y + (dh-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func drawLetterboxed(dst *image.RGBA, screen image.Image) {
	target := letterboxRect(dst.Bounds(), screen.Bounds())
	if target.Empty() {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, target, screen, screen.Bounds(), draw.Over, nil)
}

func drawCameraInset(dst *image.RGBA, camera image.Image, ov Overlay) {
	b := dst.Bounds()
	inset := image.Rect(
		b.Max.X-insetMargin-insetWidth,
		b.Max.Y-insetMargin-insetHeight,
		b.Max.X-insetMargin,
		b.Max.Y-insetMargin,
	)

	scaled := image.NewRGBA(image.Rect(0, 0, insetWidth, insetHeight))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), camera, camera.Bounds(), draw.Src, nil)

	mask := &roundedRectMask{rect: image.Rect(0, 0, insetWidth, insetHeight), radius: insetRadius}
	draw.DrawMask(dst, inset, scaled, image.Point{}, mask, image.Point{}, draw.Over)

	if ov.Indicator {
		center := image.Pt(inset.Min.X+insetMargin, inset.Min.Y+insetMargin)
		dot := &circleMask{center: center, radius: indicatorSize}
		red := image.NewUniform(color.RGBA{R: 0xe5, G: 0x2e, B: 0x2e, A: 0xff})
		draw.DrawMask(dst, inset, red, image.Point{}, dot, inset.Min, draw.Over)
	}
	if ov.Timestamp != "" {
		drawText(dst, ov.Timestamp, inset.Min.X+8, inset.Max.Y-8)
	}
}

func drawCaption(dst *image.RGBA, caption string) {
	face := basicfont.Face7x13
	pad := 6
	w := font.MeasureString(face, caption).Ceil()
	bar := image.Rect(0, 0, w+2*pad, face.Height+2*pad)
	dim := image.NewUniform(color.RGBA{A: 0xa0})
	draw.Draw(dst, bar, dim, image.Point{}, draw.Over)
	drawText(dst, caption, pad, pad+face.Ascent)
}

func drawText(dst *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// roundedRectMask is an alpha mask for a rectangle with rounded corners.
type roundedRectMask struct {
	rect   image.Rectangle
	radius int
}

func (m *roundedRectMask) ColorModel() color.Model { return color.AlphaModel }

func (m *roundedRectMask) Bounds() image.Rectangle { return m.rect }

func (m *roundedRectMask) At(x, y int) color.Color {
	r := m.rect
	rad := m.radius
	if !image.Pt(x, y).In(r) {
		return color.Alpha{}
	}
	// Corner cells are inside only within the corner circle.
	cx, cy := x, y
	switch {
	case x < r.Min.X+rad && y < r.Min.Y+rad:
		cx, cy = r.Min.X+rad, r.Min.Y+rad
	case x >= r.Max.X-rad && y < r.Min.Y+rad:
		cx, cy = r.Max.X-rad-1, r.Min.Y+rad
	case x < r.Min.X+rad && y >= r.Max.Y-rad:
		cx, cy = r.Min.X+rad, r.Max.Y-rad-1
	case x >= r.Max.X-rad && y >= r.Max.Y-rad:
		cx, cy = r.Max.X-rad-1, r.Max.Y-rad-1
	default:
		return color.Alpha{A: 0xff}
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy <= rad*rad {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}

// circleMask is an alpha mask for a filled circle.
type circleMask struct {
	center image.Point
	radius int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle {
	r := m.radius
	return image.Rect(m.center.X-r, m.center.Y-r, m.center.X+r+1, m.center.Y+r+1)
}

func (m *circleMask) At(x, y int) color.Color {
	dx, dy := x-m.center.X, y-m.center.Y
	if dx*dx+dy*dy <= m.radius*m.radius {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
