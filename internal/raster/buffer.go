package raster

import (
	"image"
)

// FrameBuffer holds the rendering target as flat slices for cache locality.
// Rows are stored top-down.
type FrameBuffer struct {
	Width  int
	Height int
	Color  []uint16  // RGBA interleaved, len = W*H*4
	Depth  []float64 // window depth in [0,1], cleared to 1
	Object []uint32  // object id per pixel, 0 when empty
	Prim   []uint32  // primitive index + 1 per pixel, 0 when empty
}

// NewFrameBuffer allocates a cleared buffer.
func NewFrameBuffer(w, h int) *FrameBuffer {
	n := w * h
	fb := &FrameBuffer{
		Width:  w,
		Height: h,
		Color:  make([]uint16, n*4),
		Depth:  make([]float64, n),
		Object: make([]uint32, n),
		Prim:   make([]uint32, n),
	}
	fb.Clear()
	return fb
}

// Clear zeroes the color and id planes and resets depth to the far plane.
func (fb *FrameBuffer) Clear() {
	clear(fb.Color)
	clear(fb.Object)
	clear(fb.Prim)
	for i := range fb.Depth {
		fb.Depth[i] = 1
	}
}

// At returns the color of pixel (x, y).
func (fb *FrameBuffer) At(x, y int) [4]uint16 {
	i := (y*fb.Width + x) * 4
	return [4]uint16{fb.Color[i], fb.Color[i+1], fb.Color[i+2], fb.Color[i+3]}
}

// Primitive returns the object id and primitive index drawn at (x, y).
func (fb *FrameBuffer) Primitive(x, y int) (object uint32, prim int, ok bool) {
	i := y*fb.Width + x
	if fb.Prim[i] == 0 {
		return 0, 0, false
	}
	return fb.Object[i], int(fb.Prim[i] - 1), true
}

// NRGBA64 copies the color plane without any conversion, so encoded
// channels survive untouched.
func (fb *FrameBuffer) NRGBA64() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, fb.Width, fb.Height))
	for i, v := range fb.Color {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img
}

// NRGBA reduces the color plane to 8 bits per channel.
func (fb *FrameBuffer) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for i, v := range fb.Color {
		img.Pix[i] = uint8(v >> 8)
	}
	return img
}

// Overlay paints the rectangle [x0,x1)×[y0,y1), clipped to the buffer,
// without touching depth or ids.
func (fb *FrameBuffer) Overlay(x0, y0, x1, y1 int, c [4]float64) {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, fb.Width), min(y1, fb.Height)
	px := [4]uint16{clamp16(c[0]), clamp16(c[1]), clamp16(c[2]), clamp16(c[3])}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			copy(fb.Color[(y*fb.Width+x)*4:], px[:])
		}
	}
}
