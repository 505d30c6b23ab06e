package geometry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"projection-mapper/internal/mathutil"
)

// LoadOBJ reads a Wavefront OBJ file.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geometry: open %s: %w", path, err)
	}
	defer f.Close()
	m, err := ParseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("geometry: %s: %w", path, err)
	}
	return m, nil
}

type objDecoder struct {
	line     int
	vertices []mathutil.Vec3
	uvs      []mathutil.Vec2
	normals  []mathutil.Vec3
	mesh     Mesh
	withUV   bool
	withNorm bool
}

// ParseOBJ decodes positions, texture coordinates, normals and faces.
// Polygons are triangulated as fans; materials, groups and smoothing are
// ignored. UVs and normals are kept only when every face references them.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	dec := &objDecoder{withUV: true, withNorm: true}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		dec.line++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if err := dec.parseLine(strings.Fields(line)); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("geometry: read obj: %w", err)
	}
	if dec.mesh.VertexCount() == 0 {
		return nil, fmt.Errorf("%w: obj has no faces", ErrMalformed)
	}
	if !dec.withUV {
		dec.mesh.UVs = nil
	}
	if !dec.withNorm {
		dec.mesh.Normals = nil
	}
	return &dec.mesh, nil
}

func (dec *objDecoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, dec.line, fmt.Sprintf(format, args...))
}

func (dec *objDecoder) parseLine(fields []string) error {
	switch fields[0] {
	case "v":
		f, err := dec.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.vertices = append(dec.vertices, mathutil.Vec3{f[0], f[1], f[2]})
	case "vt":
		f, err := dec.floats(fields[1:], 2)
		if err != nil {
			return err
		}
		dec.uvs = append(dec.uvs, mathutil.Vec2{f[0], f[1]})
	case "vn":
		f, err := dec.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, mathutil.Vec3{f[0], f[1], f[2]})
	case "f":
		return dec.parseFace(fields[1:])
	}
	return nil
}

func (dec *objDecoder) floats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, dec.errorf("want %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, dec.errorf("%v", err)
		}
		out[i] = v
	}
	return out, nil
}

type objCorner struct {
	v, vt, vn int // -1 when absent
}

func (dec *objDecoder) index(s string, n int) (int, error) {
	if s == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, dec.errorf("bad index %q", s)
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	}
	return 0, dec.errorf("index %d out of range [1, %d]", i, n)
}

func (dec *objDecoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return dec.errorf("face with %d corners", len(fields))
	}
	corners := make([]objCorner, len(fields))
	for i, f := range fields {
		parts := strings.Split(f, "/")
		c := objCorner{vt: -1, vn: -1}
		var err error
		if c.v, err = dec.index(parts[0], len(dec.vertices)); err != nil {
			return err
		}
		if c.v < 0 {
			return dec.errorf("face corner %q without vertex", f)
		}
		if len(parts) > 1 {
			if c.vt, err = dec.index(parts[1], len(dec.uvs)); err != nil {
				return err
			}
		}
		if len(parts) > 2 {
			if c.vn, err = dec.index(parts[2], len(dec.normals)); err != nil {
				return err
			}
		}
		corners[i] = c
	}

	for i := 1; i+1 < len(corners); i++ {
		for _, c := range []objCorner{corners[0], corners[i], corners[i+1]} {
			dec.mesh.Positions = append(dec.mesh.Positions, dec.vertices[c.v])
			if c.vt >= 0 {
				dec.mesh.UVs = append(dec.mesh.UVs, dec.uvs[c.vt])
			} else {
				dec.withUV = false
				dec.mesh.UVs = append(dec.mesh.UVs, mathutil.Vec2{})
			}
			if c.vn >= 0 {
				dec.mesh.Normals = append(dec.mesh.Normals, dec.normals[c.vn])
			} else {
				dec.withNorm = false
				dec.mesh.Normals = append(dec.mesh.Normals, mathutil.Vec3{})
			}
		}
	}
	return nil
}
