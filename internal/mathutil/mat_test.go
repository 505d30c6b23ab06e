package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const standardTol = 1e-9

func assertVecInDelta(t *testing.T, want, got Vec3, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], tol, "component %d of %v", i, got)
	}
}

func TestYawPitchRollOrder(t *testing.T) {
	yaw, pitch, roll := 0.3, -1.1, 2.4
	want := Mat3Mul(Mat3Mul(RotY(yaw), RotX(pitch)), RotZ(roll))
	got := YawPitchRoll(yaw, pitch, roll)
	for i := range want {
		assert.InDelta(t, want[i], got[i], standardTol)
	}

	// the identity orientation looks down +X with +Z up
	assertVecInDelta(t, Vec3{1, 0, 0}, YawPitchRoll(0, 0, 0).MulVec3(Vec3{1, 0, 0}), standardTol)
	assertVecInDelta(t, Vec3{0, 0, 1}, YawPitchRoll(0, 0, 0).MulVec3(Vec3{0, 0, 1}), standardTol)
}

func TestLookAt(t *testing.T) {
	eye := Vec3{0, 0, 5}
	view := LookAt(eye, Vec3{}, Vec3{0, 1, 0})

	// the eye maps to the origin, the target lies on -Z
	assertVecInDelta(t, Vec3{}, view.MulPoint(eye), standardTol)
	assertVecInDelta(t, Vec3{0, 0, -5}, view.MulPoint(Vec3{}), standardTol)
	assertVecInDelta(t, Vec3{1, 0, -5}, view.MulPoint(Vec3{1, 0, 0}), standardTol)
}

func TestInverse(t *testing.T) {
	view := LookAt(Vec3{3, -4, 2.5}, Vec3{0.5, 0.5, 0.5}, Vec3{0, 0, 1})
	proj := Frustum(-0.1, 0.12, -0.08, 0.09, 0.1, 100)
	m := Mat4Mul(proj, view)

	inv, ok := m.Inverse()
	require.True(t, ok)
	assert.True(t, Mat4Mul(m, inv).ApproxEqual(Mat4Identity(), 1e-9))

	_, ok = Mat4{}.Inverse()
	assert.False(t, ok)
}

func TestRotateAround(t *testing.T) {
	p := RotateAround(Vec3{2, 0, 0}, Vec3{1, 0, 0}, Vec3{0, 0, 1}, math.Pi/2)
	assertVecInDelta(t, Vec3{1, 1, 0}, p, standardTol)

	assert.InDelta(t, math.Pi/2, AngleBetween(Vec3{1, 0, 0}, Vec3{0, 3, 0}), standardTol)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
}
