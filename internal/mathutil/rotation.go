package mathutil

import "math"

// RotX returns a 3×3 rotation matrix around the X axis. Angle in radians.
func RotX(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotY returns a 3×3 rotation matrix around the Y axis.
func RotY(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotZ returns a 3×3 rotation matrix around the Z axis.
func RotZ(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// YawPitchRoll builds the rotation Ry(yaw) · Rx(pitch) · Rz(roll), angles in
// radians. Column 0 is the camera forward direction used during calibration,
// column 2 its up vector.
func YawPitchRoll(yaw, pitch, roll float64) Mat3 {
	ch, sh := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cb, sb := math.Cos(roll), math.Sin(roll)

	return Mat3{
		ch*cb + sh*sp*sb, -ch*sb + sh*sp*cb, sh * cp,
		sb * cp, cb * cp, -sp,
		-sh*cb + ch*sp*sb, sb*sh + ch*sp*cb, ch * cp,
	}
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 {
	return d * math.Pi / 180
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(r float64) float64 {
	return r * 180 / math.Pi
}
