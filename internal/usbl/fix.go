// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package usbl

import "time"

// DirectFix is a USBLLONG fix: the modem position relative to the USBL head
// already resolved into North/East/Up by the interrogator.
type DirectFix struct {
	Stamp           time.Time `json:"stamp"`               // reception time on the buoy
	MeasuredAt      float64   `json:"measured_at"`         // modem clock, seconds
	RemoteAddress   int       `json:"remote_address"`      // acoustic address of the beacon
	North           float64   `json:"north"`               // m
	East            float64   `json:"east"`                // m
	Up              float64   `json:"up"`                  // m
	Roll            float64   `json:"roll"`                // rad, AHRS of the USBL head
	Pitch           float64   `json:"pitch"`               // rad
	Yaw             float64   `json:"yaw"`                 // rad
	PropagationTime float64   `json:"propagation_time"`    // s
	RSSI            *float64  `json:"rssi,omitempty"`      // dB
	Integrity       *float64  `json:"integrity,omitempty"`
	Accuracy        float64   `json:"accuracy"`            // m, one sigma
}

// AngularFix is a USBLANGLES fix: direction of arrival only. Range along
// the ray comes from an independent depth measurement.
type AngularFix struct {
	Stamp          time.Time `json:"stamp"`
	MeasuredAt     float64   `json:"measured_at"`
	RemoteAddress  int       `json:"remote_address"`
	LocalBearing   float64   `json:"local_bearing"`   // rad, head frame
	LocalElevation float64   `json:"local_elevation"` // rad, head frame
	Bearing        float64   `json:"bearing"`         // rad, clockwise from north
	Elevation      float64   `json:"elevation"`       // rad
	Roll           float64   `json:"roll"`
	Pitch          float64   `json:"pitch"`
	Yaw            float64   `json:"yaw"`
	RSSI           *float64  `json:"rssi,omitempty"`
	Integrity      *float64  `json:"integrity,omitempty"`
	Accuracy       float64   `json:"accuracy"` // rad, one sigma
}

// DepthSample is the beacon depth reported by the vehicle.
type DepthSample struct {
	Stamp    time.Time `json:"stamp"`
	Depth    float64   `json:"depth"`    // m, positive down
	Variance float64   `json:"variance"` // m^2
}

func (f DirectFix) Timestamp() time.Time   { return f.Stamp }
func (f AngularFix) Timestamp() time.Time  { return f.Stamp }
func (d DepthSample) Timestamp() time.Time { return d.Stamp }

// Float returns a pointer to v, for the optional quality fields.
func Float(v float64) *float64 { return &v }
