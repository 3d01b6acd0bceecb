// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package usbl

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/pose"
)

// ErrInsufficientDepth means the beacon is too shallow for the angular fix
// to be projected reliably.
var ErrInsufficientDepth = errors.New("not enough depth to estimate usbl angles position")

// DefaultMinDepth is the shallowest depth accepted for angular fixes, in metres.
const DefaultMinDepth = 1.0

// MeasurementFromDirect builds the usbl->modem pose of a direct fix.
// The variance on x, y and z is accuracy² unless variance > 0 overrides it.
// Non-finite positions or variances are rejected.
func MeasurementFromDirect(fix DirectFix, variance float64) (pose.PoseWithCovariance, error) {
	if !finite(fix.North) || !finite(fix.East) || !finite(fix.Up) {
		return pose.PoseWithCovariance{}, fmt.Errorf("%w: non-finite position", ErrDegenerateGeometry)
	}
	if !(variance > 0) {
		variance = fix.Accuracy * fix.Accuracy
	}
	if !finite(variance) {
		return pose.PoseWithCovariance{}, fmt.Errorf("%w: non-finite accuracy", ErrDegenerateGeometry)
	}
	m := pose.Identity()
	m.Position = r3.Vec{X: fix.North, Y: fix.East, Z: fix.Up}
	m.SetPositionVariance(variance, variance, variance)
	return m, nil
}

// MeasurementFromAngles builds the usbl->modem pose of an angular fix using
// the paired depth. The z variance is the depth sensor's own.
func MeasurementFromAngles(fix AngularFix, depth DepthSample, minDepth float64) (pose.PoseWithCovariance, error) {
	if !(depth.Depth >= minDepth) {
		return pose.PoseWithCovariance{}, fmt.Errorf("%w: %.2f m < %.2f m", ErrInsufficientDepth, depth.Depth, minDepth)
	}
	p, err := SphericalToCartesian(fix.Bearing, fix.Elevation, depth.Depth)
	if err != nil {
		return pose.PoseWithCovariance{}, err
	}
	sx, sy, err := EllipseCovariance(fix.Bearing, fix.Elevation, depth.Depth, fix.Accuracy)
	if err != nil {
		return pose.PoseWithCovariance{}, err
	}
	zz := depth.Variance
	if zz < 0 {
		zz = 0
	}

	m := pose.Identity()
	m.Position = p
	m.SetPositionVariance(sx, sy, zz)
	return m, nil
}
