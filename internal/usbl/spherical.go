// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package usbl

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerateGeometry means the ray is (close to) horizontal, so the
// depth cannot be projected onto the plane.
var ErrDegenerateGeometry = errors.New("degenerate usbl geometry")

// minTanElevation bounds |tan(elevation)| away from zero.
const minTanElevation = 1e-9

// SphericalToCartesian intersects the ray (bearing, elevation) with the
// plane at depth:
//
//	x = d sin(bearing) / tan(elevation)
//	y = d cos(bearing) / tan(elevation)
//	z = d
func SphericalToCartesian(bearing, elevation, depth float64) (r3.Vec, error) {
	if !finite(bearing) || !finite(elevation) || !finite(depth) {
		return r3.Vec{}, fmt.Errorf("%w: non-finite input", ErrDegenerateGeometry)
	}
	t := math.Tan(elevation)
	if math.Abs(t) < minTanElevation {
		return r3.Vec{}, fmt.Errorf("%w: elevation %.6f rad", ErrDegenerateGeometry, elevation)
	}
	s, c := math.Sincos(bearing)
	return r3.Vec{
		X: depth * s / t,
		Y: depth * c / t,
		Z: depth,
	}, nil
}

// EllipseCovariance estimates the horizontal uncertainty of a spherical fix
// from the extremes of its error ellipse. The fix is re-evaluated at
// elevation±accuracy and bearing±accuracy at the same depth; the planar
// spans of the two pairs are the ellipse axes a >= b, and
//
//	sigmaX = 2 sqrt((a sin θ)² + (b cos θ)²)
//	sigmaY = 2 sqrt((a cos θ)² + (b sin θ)²)
func EllipseCovariance(bearing, elevation, depth, accuracy float64) (sigmaX, sigmaY float64, err error) {
	if !finite(accuracy) {
		return 0, 0, fmt.Errorf("%w: non-finite accuracy", ErrDegenerateGeometry)
	}
	accuracy = math.Abs(accuracy)

	e1, err := SphericalToCartesian(bearing, elevation+accuracy, depth)
	if err != nil {
		return 0, 0, err
	}
	e2, err := SphericalToCartesian(bearing, elevation-accuracy, depth)
	if err != nil {
		return 0, 0, err
	}
	b1, err := SphericalToCartesian(bearing+accuracy, elevation, depth)
	if err != nil {
		return 0, 0, err
	}
	b2, err := SphericalToCartesian(bearing-accuracy, elevation, depth)
	if err != nil {
		return 0, 0, err
	}

	axis1 := math.Hypot(e2.X-e1.X, e2.Y-e1.Y)
	axis2 := math.Hypot(b2.X-b1.X, b2.Y-b1.Y)
	a, b := math.Max(axis1, axis2), math.Min(axis1, axis2)

	s, c := math.Sincos(bearing)
	sigmaX = 2 * math.Hypot(a*s, b*c)
	sigmaY = 2 * math.Hypot(a*c, b*s)
	return sigmaX, sigmaY, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
