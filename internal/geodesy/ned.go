// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geodesy converts WGS-84 geodetic coordinates into a local
// North-East-Down tangent plane anchored at a fixed origin.
package geodesy

import (
	"errors"
	"fmt"
	"math"
)

// WGS-84 ellipsoid.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
	eccSquared    = flattening * (2 - flattening)
)

// Parameter keys holding the shared NED origin.
const (
	ParamOriginLat = "navigator/ned_origin_lat"
	ParamOriginLon = "navigator/ned_origin_lon"
)

// ErrMissingOrigin is returned when no NED origin is available. Callers skip
// the current input instead of failing.
var ErrMissingOrigin = errors.New("ned origin not available")

// Origin is the geodetic anchor of the local frame. Altitude is always 0.
type Origin struct {
	Latitude  float64 `json:"lat"` // degrees
	Longitude float64 `json:"lon"` // degrees
}

// NED is a position in metres relative to an Origin.
type NED struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
}

// ParamSource is the read-only slice of the parameter store needed here.
type ParamSource interface {
	Float(key string) (float64, bool)
}

// OriginFrom reads the origin from the parameter store.
func OriginFrom(params ParamSource) (Origin, error) {
	if params == nil {
		return Origin{}, ErrMissingOrigin
	}
	lat, okLat := params.Float(ParamOriginLat)
	lon, okLon := params.Float(ParamOriginLon)
	if !okLat || !okLon {
		return Origin{}, ErrMissingOrigin
	}
	o := Origin{Latitude: lat, Longitude: lon}
	if err := o.Validate(); err != nil {
		return Origin{}, fmt.Errorf("%w: %v", ErrMissingOrigin, err)
	}
	return o, nil
}

// Validate checks the origin lies on the ellipsoid's coordinate domain.
func (o Origin) Validate() error {
	if math.IsNaN(o.Latitude) || math.IsNaN(o.Longitude) {
		return fmt.Errorf("origin is NaN")
	}
	if o.Latitude < -90 || o.Latitude > 90 {
		return fmt.Errorf("origin latitude %.6f out of range", o.Latitude)
	}
	if o.Longitude < -180 || o.Longitude > 180 {
		return fmt.Errorf("origin longitude %.6f out of range", o.Longitude)
	}
	return nil
}

// Converter maps geodetic points to NED around a fixed origin.
type Converter struct {
	origin Origin

	// origin in ECEF and the ECEF->NED rotation rows
	x0, y0, z0 float64
	rot        [3][3]float64
}

// NewConverter precomputes the tangent plane at origin.
func NewConverter(origin Origin) *Converter {
	c := &Converter{origin: origin}
	c.x0, c.y0, c.z0 = toECEF(origin.Latitude, origin.Longitude, 0)

	sLat, cLat := math.Sincos(deg2rad(origin.Latitude))
	sLon, cLon := math.Sincos(deg2rad(origin.Longitude))
	c.rot = [3][3]float64{
		{-sLat * cLon, -sLat * sLon, cLat},
		{-sLon, cLon, 0},
		{-cLat * cLon, -cLat * sLon, -sLat},
	}
	return c
}

// Origin returns the anchor of the tangent plane.
func (c *Converter) Origin() Origin { return c.origin }

// ToNED converts a geodetic point (degrees, metres) into the local frame.
func (c *Converter) ToNED(lat, lon, alt float64) NED {
	x, y, z := toECEF(lat, lon, alt)
	dx, dy, dz := x-c.x0, y-c.y0, z-c.z0
	return NED{
		North: c.rot[0][0]*dx + c.rot[0][1]*dy + c.rot[0][2]*dz,
		East:  c.rot[1][0]*dx + c.rot[1][1]*dy + c.rot[1][2]*dz,
		Down:  c.rot[2][0]*dx + c.rot[2][1]*dy + c.rot[2][2]*dz,
	}
}

// ToGeodetic is the inverse of ToNED.
func (c *Converter) ToGeodetic(p NED) (lat, lon, alt float64) {
	// ECEF = origin + rot^T * ned
	x := c.x0 + c.rot[0][0]*p.North + c.rot[1][0]*p.East + c.rot[2][0]*p.Down
	y := c.y0 + c.rot[0][1]*p.North + c.rot[1][1]*p.East + c.rot[2][1]*p.Down
	z := c.z0 + c.rot[0][2]*p.North + c.rot[1][2]*p.East + c.rot[2][2]*p.Down
	return fromECEF(x, y, z)
}

func toECEF(lat, lon, alt float64) (x, y, z float64) {
	sLat, cLat := math.Sincos(deg2rad(lat))
	sLon, cLon := math.Sincos(deg2rad(lon))
	n := semiMajorAxis / math.Sqrt(1-eccSquared*sLat*sLat)
	x = (n + alt) * cLat * cLon
	y = (n + alt) * cLat * sLon
	z = (n*(1-eccSquared) + alt) * sLat
	return x, y, z
}

func fromECEF(x, y, z float64) (lat, lon, alt float64) {
	lon = math.Atan2(y, x)
	p := math.Hypot(x, y)
	phi := math.Atan2(z, p*(1-eccSquared))

	var n float64
	for i := 0; i < 10; i++ {
		s := math.Sin(phi)
		n = semiMajorAxis / math.Sqrt(1-eccSquared*s*s)
		alt = altitude(p, z, phi, n)
		phi = math.Atan2(z, p*(1-eccSquared*n/(n+alt)))
	}
	s := math.Sin(phi)
	n = semiMajorAxis / math.Sqrt(1-eccSquared*s*s)
	alt = altitude(p, z, phi, n)
	return rad2deg(phi), rad2deg(lon), alt
}

func altitude(p, z, phi, n float64) float64 {
	s, c := math.Sincos(phi)
	if math.Abs(c) > 1e-3 {
		return p/c - n
	}
	// close to the poles
	return z/s - n*(1-eccSquared)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }
func rad2deg(r float64) float64 { return r * 180.0 / math.Pi }
