package geometry

import (
	"encoding/binary"
	"fmt"
	"math"

	"projection-mapper/internal/mathutil"
)

// Binary layout, little endian:
//
//	"PMG" version:u8 vertices:u32 flags:u8
//	per vertex: x y z:f32 [u v:f32] [nx ny nz:f32] blend:f32 count:u16 visible:u8
const (
	codecVersion = 1

	flagUV        = 1 << 0
	flagNormals   = 1 << 1
	flagAlternate = 1 << 2
)

// MarshalBinary encodes the active mesh and its annexe, in the GPU buffer
// precision (float32).
func (g *Geometry) MarshalBinary() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m := g.active()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var flags byte
	if len(m.UVs) > 0 {
		flags |= flagUV
	}
	if len(m.Normals) > 0 {
		flags |= flagNormals
	}
	if g.useAlternate && g.alternate != nil {
		flags |= flagAlternate
	}

	n := m.VertexCount()
	buf := make([]byte, 0, 9+n*43)
	buf = append(buf, 'P', 'M', 'G', codecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	buf = append(buf, flags)
	putF32 := func(v float64) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
	}
	for i := 0; i < n; i++ {
		p := m.Positions[i]
		putF32(p[0])
		putF32(p[1])
		putF32(p[2])
		if flags&flagUV != 0 {
			putF32(m.UVs[i][0])
			putF32(m.UVs[i][1])
		}
		if flags&flagNormals != 0 {
			putF32(m.Normals[i][0])
			putF32(m.Normals[i][1])
			putF32(m.Normals[i][2])
		}
		a := g.annexe[i]
		putF32(a.Blend)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(min(a.Count, math.MaxUint16)))
		visible := byte(0)
		if a.Visible {
			visible = 1
		}
		buf = append(buf, visible)
	}
	return buf, nil
}

// UnmarshalBinary replaces the buffers with an encoded mesh. A mesh encoded
// from alternate buffers becomes the active alternate mesh; otherwise it
// replaces the original.
func (g *Geometry) UnmarshalBinary(data []byte) error {
	m, annexe, alternate, err := decode(data)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if alternate {
		g.alternate = m
		g.useAlternate = true
	} else {
		g.original = m
		g.alternate = nil
		g.useAlternate = false
	}
	g.annexe = annexe
	g.version++
	return nil
}

type reader struct {
	data  []byte
	off   int
	short bool
}

func (r *reader) take(n int) []byte {
	if r.off+n > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) readU32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) readU16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) readF32() float64 {
	return float64(math.Float32frombits(r.readU32()))
}

func (r *reader) readByte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func decode(data []byte) (*Mesh, []Annexe, bool, error) {
	if len(data) < 9 || string(data[:3]) != "PMG" {
		return nil, nil, false, fmt.Errorf("%w: invalid header", ErrMalformed)
	}
	if data[3] != codecVersion {
		return nil, nil, false, fmt.Errorf("%w: unsupported version %d", ErrMalformed, data[3])
	}
	r := &reader{data: data, off: 4}
	n := int(r.readU32())
	flags := r.readByte()

	stride := 12 + 7
	if flags&flagUV != 0 {
		stride += 8
	}
	if flags&flagNormals != 0 {
		stride += 12
	}
	if n%3 != 0 || len(data)-r.off != n*stride {
		return nil, nil, false, fmt.Errorf("%w: %d vertices do not fit %d bytes", ErrMalformed, n, len(data)-r.off)
	}

	m := &Mesh{Positions: make([]mathutil.Vec3, n)}
	if flags&flagUV != 0 {
		m.UVs = make([]mathutil.Vec2, n)
	}
	if flags&flagNormals != 0 {
		m.Normals = make([]mathutil.Vec3, n)
	}
	annexe := make([]Annexe, n)
	for i := 0; i < n; i++ {
		m.Positions[i] = mathutil.Vec3{r.readF32(), r.readF32(), r.readF32()}
		if m.UVs != nil {
			m.UVs[i] = mathutil.Vec2{r.readF32(), r.readF32()}
		}
		if m.Normals != nil {
			m.Normals[i] = mathutil.Vec3{r.readF32(), r.readF32(), r.readF32()}
		}
		annexe[i].Blend = r.readF32()
		annexe[i].Count = int(r.readU16())
		annexe[i].Visible = r.readByte() != 0
	}
	if r.short {
		return nil, nil, false, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	return m, annexe, flags&flagAlternate != 0, nil
}
