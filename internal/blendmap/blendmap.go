// Package blendmap builds the blending map: a 16-bit raster that records,
// per output texel, how many projectors cover it and with what weight.
//
// A texel packs Bias per contributing camera in its upper bits and the sum
// of the smoothed weights (each in [0,256]) in its lower bits.
package blendmap

import (
	"fmt"
	"image"
	"math"
)

const (
	// Bias is added once per camera covering a texel.
	Bias = 4096
	// FullWeight is the weight of a texel far from any image edge.
	FullWeight = 256
	// MaxViewport is the largest render dimension used for the UV pass
	// before the 4x reduction.
	MaxViewport = 4096
)

// Map is a row-major blending map.
type Map struct {
	Width, Height int
	Data          []uint16
}

func New(w, h int) *Map {
	return &Map{Width: w, Height: h, Data: make([]uint16, w*h)}
}

func (m *Map) At(x, y int) uint16 { return m.Data[y*m.Width+x] }

func (m *Map) Set(x, y int, v uint16) { m.Data[y*m.Width+x] = v }

// Reset zeroes every texel.
func (m *Map) Reset() { clear(m.Data) }

func (m *Map) Clone() *Map {
	return &Map{Width: m.Width, Height: m.Height, Data: append([]uint16(nil), m.Data...)}
}

// Projectors returns the number of cameras packed into v.
func Projectors(v uint16) int { return int(v) / Bias }

// WeightOf returns the summed weight packed into v.
func WeightOf(v uint16) int { return int(v) % Bias }

// Coverage counts texels by number of covering projectors.
func (m *Map) Coverage() map[int]int {
	out := make(map[int]int)
	for _, v := range m.Data {
		out[Projectors(v)]++
	}
	return out
}

// EncodeUV packs a texture coordinate in [0,1] into two 16-bit channels:
// the integer part of u·65536 and its fractional part scaled to 256.
func EncodeUV(u float64) (hi, lo uint16) {
	v := math.Max(0, math.Min(1, u)) * 65536
	whole := math.Floor(v)
	if whole > math.MaxUint16 {
		return math.MaxUint16, 255
	}
	return uint16(whole), uint16((v - whole) * 256)
}

// DecodeUV turns an encoded pixel into a map address. The (0,0) address is
// what empty pixels decode to and is never reported.
func DecodeUV(r, g, b, a uint16, mapW, mapH int) (x, y int, ok bool) {
	const inv = 1.0 / 65536
	x = int(math.Floor((float64(r) + float64(g)/256) * inv * float64(mapW)))
	y = int(math.Floor((float64(b) + float64(a)/256) * inv * float64(mapH)))
	if x == 0 && y == 0 {
		return 0, 0, false
	}
	if x < 0 || x >= mapW || y < 0 || y >= mapH {
		return 0, 0, false
	}
	return x, y, true
}

// EdgeWeight is the soft edge weight of pixel (x, y) in a w×h image: the
// harmonic combination of the clamped normalized distances to the nearest
// vertical and horizontal edges, squared and scaled to [0,256]. A zero
// blend width gives the flat FullWeight.
func EdgeWeight(x, y, w, h int, blendWidth float64) uint16 {
	if blendWidth <= 0 {
		return FullWeight
	}
	dx := float64(min(x, w-1-x)) / float64(w) / blendWidth
	dy := float64(min(y, h-1-y)) / float64(h) / blendWidth
	dx = math.Max(0, math.Min(1, dx))
	dy = math.Max(0, math.Min(1, dy))
	weight := 1 / (1/dx + 1/dy)
	weight = math.Max(0, math.Min(1, weight))
	return uint16(weight * weight * FullWeight)
}

// ScreenWeight is EdgeWeight for a point given in normalized screen
// coordinates (sx, sy in [0,1]).
func ScreenWeight(sx, sy, blendWidth float64) uint16 {
	if blendWidth <= 0 {
		return FullWeight
	}
	dx := math.Max(0, math.Min(1, math.Min(sx, 1-sx)/blendWidth))
	dy := math.Max(0, math.Min(1, math.Min(sy, 1-sy)/blendWidth))
	weight := math.Max(0, math.Min(1, 1/(1/dx+1/dy)))
	return uint16(weight * weight * FullWeight)
}

// Factor is the share of a camera of weight own at a texel of value v.
// Texels covered by at most one projector give 1.
func Factor(v, own uint16) float64 {
	total := WeightOf(v)
	if Projectors(v) <= 1 || total == 0 {
		return 1
	}
	return math.Min(1, float64(own)/float64(total))
}

// Lookup returns the texel addressed by the texture coordinate (u, v),
// clamped to the map.
func (m *Map) Lookup(u, v float64) uint16 {
	x := min(max(int(math.Floor(u*float64(m.Width))), 0), m.Width-1)
	y := min(max(int(math.Floor(v*float64(m.Height))), 0), m.Height-1)
	return m.At(x, y)
}

// RenderSize returns the size of the UV pass for a w×h camera: the
// viewport limit with the camera aspect, divided by 4.
func RenderSize(w, h, maxViewport int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	dw, dh := maxViewport, maxViewport
	if w >= h {
		dh = maxViewport * h / w
	} else {
		dw = maxViewport * w / h
	}
	return max(dw/4, 1), max(dh/4, 1)
}

// Layer is the contribution of one camera before merging.
type Layer struct {
	*Map
	IsSet []bool
}

func newLayer(w, h int) *Layer {
	return &Layer{Map: New(w, h), IsSet: make([]bool, w*h)}
}

// Accumulate decodes a UV-encoded render into a layer. Each map texel is
// taken from the first pixel that addresses it.
func Accumulate(img *image.NRGBA64, mapW, mapH int, blendWidth float64) *Layer {
	layer := newLayer(mapW, mapH)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBA64At(bounds.Min.X+x, bounds.Min.Y+y)
			dx, dy, ok := DecodeUV(c.R, c.G, c.B, c.A, mapW, mapH)
			if !ok {
				continue
			}
			i := dy*mapW + dx
			if layer.IsSet[i] {
				continue
			}
			layer.IsSet[i] = true
			layer.Data[i] = EdgeWeight(x, y, w, h, blendWidth) + Bias
		}
	}
	return layer
}

// FillHoles linearly interpolates, row by row, runs of unset texels that
// lie between two set texels. Texels before the first or after the last set
// texel of a row stay empty.
func (l *Layer) FillHoles() {
	w := l.Width
	for y := 0; y < l.Height; y++ {
		row := y * w
		last := -1
		for x := 0; x < w; x++ {
			if !l.IsSet[row+x] {
				continue
			}
			if last >= 0 && x-last > 1 {
				from, to := int(l.Data[row+last]), int(l.Data[row+x])
				span := x - last
				for xx := last + 1; xx < x; xx++ {
					l.Data[row+xx] = uint16(from + (to-from)*(xx-last)/span)
					l.IsSet[row+xx] = true
				}
			}
			last = x
		}
	}
}

// Merge adds layer into dst, saturating at 65535. With legacyTransposed the
// texels are walked with the column-major index y + width·x on both sides,
// which only differs from the row-major walk for non-square maps; indices
// outside the map are skipped.
func Merge(dst *Map, layer *Map, legacyTransposed bool) error {
	if dst.Width != layer.Width || dst.Height != layer.Height {
		return fmt.Errorf("blendmap: merge %dx%d into %dx%d", layer.Width, layer.Height, dst.Width, dst.Height)
	}
	add := func(i int) {
		s := uint32(dst.Data[i]) + uint32(layer.Data[i])
		dst.Data[i] = uint16(min(s, math.MaxUint16))
	}
	if !legacyTransposed {
		for i := range dst.Data {
			add(i)
		}
		return nil
	}
	n := len(dst.Data)
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			if i := y + dst.Width*x; i < n {
				add(i)
			}
		}
	}
	return nil
}

// Dilate replaces every texel with the maximum of its 3x3 neighbourhood.
func Dilate(m *Map) *Map {
	out := New(m.Width, m.Height)
	w, h := m.Width, m.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var best uint16
			for yy := max(y-1, 0); yy <= min(y+1, h-1); yy++ {
				for xx := max(x-1, 0); xx <= min(x+1, w-1); xx++ {
					best = max(best, m.Data[yy*w+xx])
				}
			}
			out.Data[y*w+x] = best
		}
	}
	return out
}
