package camera

import (
	"fmt"

	"projection-mapper/internal/attribute"
	"projection-mapper/internal/mathutil"
)

// Attributes returns the named parameters and actions of the camera.
func (c *Camera) Attributes() *attribute.Registry { return c.attrs }

func vec3(vs attribute.Values) mathutil.Vec3 {
	return mathutil.Vec3{vs[0].Float(), vs[1].Float(), vs[2].Float()}
}

func (c *Camera) vecAttr(name, desc string, field *mathutil.Vec3) {
	c.attrs.Add(name, attribute.Spec{
		Signature: attribute.Numbers(3),
		Set: func(vs attribute.Values) error {
			c.mu.Lock()
			*field = vec3(vs)
			c.mu.Unlock()
			return nil
		},
		Get: func() attribute.Values {
			c.mu.Lock()
			defer c.mu.Unlock()
			return attribute.Nums(field[:]...)
		},
		Description: desc,
	})
}

func (c *Camera) numAttr(name, desc string, field *float64) {
	c.attrs.Add(name, attribute.Spec{
		Signature: attribute.Numbers(1),
		Set: func(vs attribute.Values) error {
			c.mu.Lock()
			*field = vs[0].Float()
			c.mu.Unlock()
			return nil
		},
		Get: func() attribute.Values {
			c.mu.Lock()
			defer c.mu.Unlock()
			return attribute.Nums(*field)
		},
		Description: desc,
	})
}

func (c *Camera) flagAttr(name, desc string, field *bool) {
	c.attrs.Add(name, attribute.Spec{
		Signature: attribute.Signature{attribute.Bool},
		Set: func(vs attribute.Values) error {
			c.mu.Lock()
			*field = vs[0].Bool()
			c.mu.Unlock()
			return nil
		},
		Get: func() attribute.Values {
			c.mu.Lock()
			defer c.mu.Unlock()
			return attribute.Values{attribute.Flag(*field)}
		},
		Description: desc,
	})
}

func (c *Camera) action(name, desc string, sig attribute.Signature, fn func(attribute.Values)) {
	c.attrs.Add(name, attribute.Spec{
		Signature:   sig,
		Set:         func(vs attribute.Values) error { fn(vs); return nil },
		Description: desc,
	})
}

func (c *Camera) registerAttributes() {
	c.vecAttr("eye", "Camera position", &c.eye)
	c.vecAttr("target", "Camera target position", &c.target)
	c.vecAttr("up", "Camera up vector", &c.up)
	c.numAttr("fov", "Vertical field of view, in degrees", &c.fov)
	c.numAttr("blendWidth", "Projectors blending width, as a fraction of the image", &c.blendWidth)
	c.numAttr("blendPrecision", "Largest screen edge kept by the blending tessellation", &c.blendPrecision)
	c.numAttr("brightness", "Output brightness multiplier", &c.brightness)
	c.flagAttr("weightedCalibrationPoints", "Give more weight to calibration points near the image edges", &c.weighted)
	c.flagAttr("16bits", "Render with 16 bits per channel instead of 8", &c.sixteenBits)
	c.flagAttr("frame", "Draw a frame around the image", &c.frame)
	c.flagAttr("hide", "Draw no object", &c.hidden)
	c.flagAttr("displayCalibration", "Draw the calibration points", &c.showPoints)

	c.attrs.Add("principalPoint", attribute.Spec{
		Signature: attribute.Numbers(2),
		Set: func(vs attribute.Values) error {
			c.SetPrincipalPoint(vs[0].Float(), vs[1].Float())
			return nil
		},
		Get: func() attribute.Values {
			_, cx, cy := c.Intrinsics()
			return attribute.Nums(cx, cy)
		},
		Description: "Principal point of the lens, for lens shifting",
	})
	c.attrs.Add("size", attribute.Spec{
		Signature: attribute.Numbers(2),
		Set: func(vs attribute.Values) error {
			w, h := int(vs[0].Float()), int(vs[1].Float())
			if w <= 0 || h <= 0 {
				return fmt.Errorf("camera %s: invalid size %dx%d", c.name, w, h)
			}
			c.SetSize(w, h)
			return nil
		},
		Get: func() attribute.Values {
			w, h := c.Size()
			return attribute.Nums(float64(w), float64(h))
		},
		Description: "Render size in pixels",
	})
	c.attrs.Add("clip", attribute.Spec{
		Signature: attribute.Numbers(2),
		Set: func(vs attribute.Values) error {
			near, far := vs[0].Float(), vs[1].Float()
			if near <= 0 || far <= near {
				return fmt.Errorf("camera %s: invalid clipping planes %g, %g", c.name, near, far)
			}
			c.mu.Lock()
			c.near, c.far = near, far
			c.mu.Unlock()
			return nil
		},
		Get: func() attribute.Values {
			c.mu.Lock()
			defer c.mu.Unlock()
			return attribute.Nums(c.near, c.far)
		},
		Description: "Near and far clipping planes",
	})
	c.attrs.Add("calibrationPoints", attribute.Spec{
		Signature: attribute.Signature{attribute.Nested},
		Variadic:  true,
		Set: func(vs attribute.Values) error {
			tuples := make([][6]float64, len(vs))
			for i, v := range vs {
				fs, err := v.Values().Floats()
				if err != nil || len(fs) != 6 {
					return fmt.Errorf("camera %s: calibration point %d: want 6 numbers", c.name, i)
				}
				copy(tuples[i][:], fs)
			}
			c.SetCalibrationPoints(tuples)
			return nil
		},
		Get: func() attribute.Values {
			points := c.CalibrationPoints()
			out := make(attribute.Values, len(points))
			for i, p := range points {
				out[i] = attribute.Nest(attribute.Nums(p[:]...)...)
			}
			return out
		},
		Description: "Calibration points, as (world xyz, screen xy, isSet) tuples",
	})

	c.action("moveEye", "Move the eye by the given vector", attribute.Numbers(3),
		func(vs attribute.Values) { c.MoveEye(vec3(vs)) })
	c.action("moveTarget", "Move the target by the given vector", attribute.Numbers(3),
		func(vs attribute.Values) { c.MoveTarget(vec3(vs)) })
	c.action("rotateAroundTarget", "Rotate around the target by yaw and pitch, in radians", attribute.Numbers(3),
		func(vs attribute.Values) { c.RotateAroundTarget(vs[0].Float(), vs[1].Float()) })
	c.action("rotateAroundPoint", "Rotate around a point (last three numbers) by yaw and pitch", attribute.Numbers(6),
		func(vs attribute.Values) { c.RotateAroundPoint(vs[0].Float(), vs[1].Float(), vec3(vs[3:])) })
	c.action("pan", "Move the camera in its focal plane", attribute.Numbers(3),
		func(vs attribute.Values) { c.Pan(vec3(vs)) })
	c.action("forward", "Move the camera along its view axis", attribute.Numbers(1),
		func(vs attribute.Values) { c.Forward(vs[0].Float()) })

	c.action("addCalibrationPoint", "Add a calibration point at the given world position", attribute.Numbers(3),
		func(vs attribute.Values) { c.AddCalibrationPoint(vec3(vs)) })
	c.action("removeCalibrationPoint", "Remove the calibration point at the given world position", attribute.Numbers(3),
		func(vs attribute.Values) { c.RemoveCalibrationPoint(vec3(vs), false) })
	c.action("moveCalibrationPoint", "Move the selected calibration point, in pixels", attribute.Numbers(2),
		func(vs attribute.Values) { c.MoveCalibrationPoint(vs[0].Float(), vs[1].Float()) })
	c.action("selectNextCalibrationPoint", "Select the next calibration point", nil,
		func(attribute.Values) { c.SelectNextCalibrationPoint() })
	c.action("selectPreviousCalibrationPoint", "Select the previous calibration point", nil,
		func(attribute.Values) { c.SelectPreviousCalibrationPoint() })
	c.action("deselectCalibrationPoint", "Deselect any calibration point", nil,
		func(attribute.Values) { c.DeselectCalibrationPoint() })
	c.action("calibrate", "Compute the camera parameters from the calibration points", nil,
		func(attribute.Values) { c.DoCalibration() })

	c.attrs.Add("setCalibrationPoint", attribute.Spec{
		Signature: attribute.Numbers(2),
		Set: func(vs attribute.Values) error {
			if !c.SetCalibrationPoint(mathutil.Vec2{vs[0].Float(), vs[1].Float()}) {
				return fmt.Errorf("camera %s: no calibration point selected", c.name)
			}
			return nil
		},
		Description: "Set the screen position of the selected calibration point",
	})
}
