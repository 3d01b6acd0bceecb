// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"errors"

	"github.com/relabs-tech/usbl_position/internal/geodesy"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// Per-bundle failure kinds. Every one aborts only the bundle at hand.
var (
	ErrMissingOrigin       = geodesy.ErrMissingOrigin
	ErrMissingStaticOffset = errors.New("static buoy to usbl offset not available")
	ErrQualityRejected     = usbl.ErrQualityRejected
	ErrInsufficientDepth   = usbl.ErrInsufficientDepth
	ErrDegenerateGeometry  = usbl.ErrDegenerateGeometry
	ErrInvalidBuoyFix      = errors.New("buoy gps has no valid fix")
)

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrMissingOrigin):
		return "missing_origin"
	case errors.Is(err, ErrMissingStaticOffset):
		return "missing_static_offset"
	case errors.Is(err, ErrQualityRejected):
		return "quality_rejected"
	case errors.Is(err, ErrInsufficientDepth):
		return "insufficient_depth"
	case errors.Is(err, ErrDegenerateGeometry):
		return "degenerate_geometry"
	case errors.Is(err, ErrInvalidBuoyFix):
		return "invalid_buoy_fix"
	default:
		return "error"
	}
}
