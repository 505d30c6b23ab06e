package object

import (
	"projection-mapper/internal/attribute"
	"projection-mapper/internal/compute"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/raster"
)

// Attributes returns the named parameters of the object.
func (o *Object) Attributes() *attribute.Registry { return o.attrs }

func vec3(vs attribute.Values) mathutil.Vec3 {
	return mathutil.Vec3{vs[0].Float(), vs[1].Float(), vs[2].Float()}
}

func (o *Object) registerAttributes() {
	r := o.attrs

	r.Add("position", attribute.Spec{
		Signature:   attribute.Numbers(3),
		Set:         func(vs attribute.Values) error { o.SetPosition(vec3(vs)); return nil },
		Get:         func() attribute.Values { p := o.Position(); return attribute.Nums(p[:]...) },
		Description: "Object position",
	})
	r.Add("rotation", attribute.Spec{
		Signature:   attribute.Numbers(3),
		Set:         func(vs attribute.Values) error { o.SetRotation(vec3(vs)); return nil },
		Get:         func() attribute.Values { p := o.Rotation(); return attribute.Nums(p[:]...) },
		Description: "Object rotation around x, y and z, in degrees",
	})
	r.Add("scale", attribute.Spec{
		Signature:   attribute.Numbers(3),
		Set:         func(vs attribute.Values) error { o.SetScale(vec3(vs)); return nil },
		Get:         func() attribute.Values { p := o.Scale(); return attribute.Nums(p[:]...) },
		Description: "Object scale along each axis",
	})
	r.Add("fill", attribute.Spec{
		Signature: attribute.Signature{attribute.Text},
		Set: func(vs attribute.Values) error {
			f, err := raster.ParseFill(vs[0].Text())
			if err != nil {
				return err
			}
			o.SetFill(f)
			return nil
		},
		Get:         func() attribute.Values { return attribute.Values{attribute.Str(o.Fill().String())} },
		Description: "Fill mode: color, texture, uv, primitive or blended",
	})
	r.Add("color", attribute.Spec{
		Signature: attribute.Numbers(4),
		Set: func(vs attribute.Values) error {
			fs, err := vs.Floats()
			if err != nil {
				return err
			}
			o.SetColor([4]float64{fs[0], fs[1], fs[2], fs[3]})
			return nil
		},
		Get:         func() attribute.Values { c := o.Color(); return attribute.Nums(c[:]...) },
		Description: "Flat color, RGBA in [0,1]",
	})
	r.Add("sideness", attribute.Spec{
		Signature: attribute.Numbers(1),
		Set: func(vs attribute.Values) error {
			o.SetSideness(compute.Sideness(vs[0].Float()))
			return nil
		},
		Get: func() attribute.Values {
			o.mu.Lock()
			defer o.mu.Unlock()
			return attribute.Nums(float64(o.sideness))
		},
		Description: "Faces receiving a blending contribution: 0 both, 1 front, 2 back",
	})
	r.Add("activateVertexBlending", attribute.Spec{
		Signature:   attribute.Signature{attribute.Bool},
		Set:         func(vs attribute.Values) error { o.SetVertexBlending(vs[0].Bool()); return nil },
		Get:         func() attribute.Values { return attribute.Values{attribute.Flag(o.VertexBlending())} },
		Description: "Shade with the per-vertex blending attributes",
	})
	r.Add("texture", attribute.Spec{
		Get:         func() attribute.Values { return attribute.Values{attribute.Str(o.TextureName())} },
		Description: "Name of the texture image",
	})
	r.Add("vertices", attribute.Spec{
		Get:         func() attribute.Values { return attribute.Nums(float64(o.geom.VertexCount())) },
		Description: "Number of vertices of the active mesh",
	})
}
