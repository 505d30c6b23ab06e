package compute

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"projection-mapper/internal/geometry"
	"projection-mapper/internal/projection"
)

// minChunk is the smallest number of vertices handed to one goroutine.
const minChunk = 4096

// CPU runs the kernels on goroutines, splitting vertex ranges across at most
// Workers of them.
type CPU struct {
	Workers int
}

// NewCPU returns a device using workers goroutines (NumCPU when <= 0).
func NewCPU(workers int) *CPU {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPU{Workers: workers}
}

func (d *CPU) Dispatch(ctx context.Context, phase Phase, g *geometry.Geometry, u Uniforms) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch phase {
	case ResetVisibility:
		g.Update(func(_ *geometry.Mesh, annexe []geometry.Annexe) {
			for i := range annexe {
				annexe[i].Visible = false
			}
		})
		return nil
	case ResetBlending:
		g.Update(func(_ *geometry.Mesh, annexe []geometry.Annexe) {
			for i := range annexe {
				annexe[i].Blend = 0
				annexe[i].Count = 0
			}
		})
		return nil
	case TransferVisibility:
		return d.transfer(g, u)
	case CameraContribution:
		return d.contribute(ctx, g, u)
	case Tessellate:
		return d.tessellate(ctx, g, u)
	}
	return fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
}

// transfer marks visible every vertex of a primitive that owns at least one
// pixel of the id buffer.
func (d *CPU) transfer(g *geometry.Geometry, u Uniforms) error {
	fb := u.IDs
	if fb == nil {
		return ErrNoIDBuffer
	}
	var err error
	g.Update(func(m *geometry.Mesh, annexe []geometry.Annexe) {
		tris := m.TriangleCount()
		seen := make([]bool, tris)
		for i, id := range fb.Prim {
			if id == 0 || fb.Object[i] != u.Object {
				continue
			}
			t := int(id) - 1
			if t >= tris {
				err = fmt.Errorf("compute: primitive %d out of range (%d triangles)", t, tris)
				return
			}
			seen[t] = true
		}
		for t, ok := range seen {
			if !ok {
				continue
			}
			for k := 0; k < 3; k++ {
				annexe[3*t+k].Visible = true
			}
		}
	})
	return err
}

// contribute adds the camera weight of every visible vertex lying in front
// of the camera and inside its frame.
func (d *CPU) contribute(ctx context.Context, g *geometry.Geometry, u Uniforms) error {
	mvp := u.MVP()
	var err error
	g.Update(func(m *geometry.Mesh, annexe []geometry.Annexe) {
		err = d.chunks(ctx, m.VertexCount(), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				a := &annexe[i]
				if !a.Visible {
					continue
				}
				ndc, front := projection.ToNormalized(m.Positions[i], mvp)
				if !front {
					continue
				}
				if u.Sideness != BothSides {
					p := u.Model.MulPoint(m.Positions[i])
					n := u.Model.MulDir(m.Normal(i))
					if !Facing(u.Sideness, p, n, u.Eye) {
						continue
					}
				}
				w := Contribution(ndc[0], ndc[1], u.BlendWidth)
				if w <= 0 {
					continue
				}
				a.Blend += w
				a.Count++
			}
		})
	})
	return err
}

// chunks calls fn over [0,n) split in contiguous ranges.
func (d *CPU) chunks(ctx context.Context, n int, fn func(lo, hi int)) error {
	workers := max(d.Workers, 1)
	size := max((n+workers-1)/workers, minChunk)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return eg.Wait()
}
