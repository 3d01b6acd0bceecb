// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pose holds rigid transforms with uncertainty and composes them
// with first-order covariance propagation.
package pose

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Covariance layout: 6x6 row-major over (x, y, z, roll, pitch, yaw).
const (
	CovXX = 0
	CovYY = 7
	CovZZ = 14
	dim   = 6
)

// PoseWithCovariance is a rigid transform from a parent frame to a child
// frame. Orientation uncertainty is a small rotation vector expressed in the
// parent frame. A zero Orientation is treated as the identity rotation.
type PoseWithCovariance struct {
	Position    r3.Vec
	Orientation quat.Number
	Covariance  [36]float64
}

// Stamped is a pose expressed in Frame at Stamp.
type Stamped struct {
	Frame string
	Stamp time.Time
	Pose  PoseWithCovariance
}

// Identity returns the neutral transform.
func Identity() PoseWithCovariance {
	return PoseWithCovariance{Orientation: quat.Number{Real: 1}}
}

// FromXYZW builds a quaternion from ROS-style (x, y, z, w) components.
func FromXYZW(x, y, z, w float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// XYZW returns the ROS-style components of q.
func XYZW(q quat.Number) (x, y, z, w float64) {
	return q.Imag, q.Jmag, q.Kmag, q.Real
}

// SetPositionVariance fills the position diagonal and leaves the rest alone.
func (p *PoseWithCovariance) SetPositionVariance(xx, yy, zz float64) {
	p.Covariance[CovXX] = xx
	p.Covariance[CovYY] = yy
	p.Covariance[CovZZ] = zz
}

// PositionVariance returns the position diagonal.
func (p PoseWithCovariance) PositionVariance() (xx, yy, zz float64) {
	return p.Covariance[CovXX], p.Covariance[CovYY], p.Covariance[CovZZ]
}

// DiagonalNonNegative reports whether every variance on the diagonal is >= 0.
func (p PoseWithCovariance) DiagonalNonNegative() bool {
	for i := 0; i < dim; i++ {
		v := p.Covariance[i*dim+i]
		if v < 0 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Normalize returns q scaled to unit length; a zero quaternion maps to identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the rotation q to v. q is normalized first.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	q = Normalize(q)
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Inverse returns the transform from child back to parent. Covariance is
// not carried over.
func Inverse(p PoseWithCovariance) PoseWithCovariance {
	qi := quat.Conj(Normalize(p.Orientation))
	t := Rotate(qi, p.Position)
	return PoseWithCovariance{
		Position:    r3.Vec{X: -t.X, Y: -t.Y, Z: -t.Z},
		Orientation: qi,
	}
}

// rotationMatrix returns the 3x3 matrix of a unit quaternion.
func rotationMatrix(q quat.Number) [3][3]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}
