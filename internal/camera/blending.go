package camera

import (
	"context"
	"fmt"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/object"
	"projection-mapper/internal/raster"
)

// DefaultTessellationLevels bounds the subdivision passes per camera.
const DefaultTessellationLevels = 3

// BlendingLayer renders the linked objects with the UV encoding fill at the
// upscaled size, decodes it into a per-camera layer of a mapW×mapH map and
// fills its row holes.
func (c *Camera) BlendingLayer(ctx context.Context, mapW, mapH int) (*blendmap.Layer, error) {
	c.mu.Lock()
	rw, rh := blendmap.RenderSize(c.width, c.height, blendmap.MaxViewport)
	fb := raster.NewFrameBuffer(rw, rh)
	v := c.objectView()
	objs := c.objects()
	c.mu.Unlock()

	if rw == 0 || rh == 0 {
		return nil, fmt.Errorf("camera %s: empty output size", c.name)
	}
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.DrawFill(fb, v, raster.FillUV)
	}
	layer := blendmap.Accumulate(fb.NRGBA64(), mapW, mapH, v.BlendWidth)
	layer.FillHoles()
	return layer, nil
}

// ComputeBlendingMap adds the contribution of this camera to m.
func (c *Camera) ComputeBlendingMap(ctx context.Context, m *blendmap.Map) error {
	layer, err := c.BlendingLayer(ctx, m.Width, m.Height)
	if err != nil {
		return err
	}
	return blendmap.Merge(m, layer.Map, c.opts.LegacyTransposedMerge)
}

// ComputeVertexVisibility resets the visibility of the linked objects and
// marks visible the vertices of the primitives this camera sees, without
// frame or markers.
func (c *Camera) ComputeVertexVisibility(ctx context.Context) {
	c.mu.Lock()
	objs := c.objects()
	for _, o := range objs {
		o.ResetVisibility(ctx)
	}
	fb := c.render(func(o *object.Object, fb *raster.FrameBuffer, v object.View) {
		o.DrawFill(fb, v, raster.FillPrimitive)
	})
	c.mu.Unlock()

	for _, o := range objs {
		o.TransferVisibility(ctx, fb)
	}
}

// BlendingTessellateForCurrentCamera subdivides the linked objects near the
// frame edges of this camera.
func (c *Camera) BlendingTessellateForCurrentCamera(ctx context.Context) {
	c.mu.Lock()
	view, proj := c.viewMatrix(), c.projectionMatrix()
	width, precision := c.blendWidth, c.blendPrecision
	objs := c.objects()
	c.mu.Unlock()

	levels := c.opts.TessellationLevels
	if levels <= 0 {
		levels = DefaultTessellationLevels
	}
	for _, o := range objs {
		o.Tessellate(ctx, view, proj, width, precision, levels)
	}
}

// ComputeBlendingContribution adds the contribution of this camera to the
// visible vertices of the linked objects.
func (c *Camera) ComputeBlendingContribution(ctx context.Context) {
	c.mu.Lock()
	view, proj, eye, width := c.viewMatrix(), c.projectionMatrix(), c.eye, c.blendWidth
	objs := c.objects()
	c.mu.Unlock()

	for _, o := range objs {
		o.ComputeCameraContribution(ctx, view, proj, eye, width)
	}
}
