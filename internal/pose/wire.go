// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"encoding/json"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Wire shapes follow geometry_msgs so downstream consumers can reuse their
// decoders.

type wireVec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type wireQuat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type wirePose struct {
	Position    wireVec     `json:"position"`
	Orientation wireQuat    `json:"orientation"`
	Covariance  [36]float64 `json:"covariance"`
}

type wireStamped struct {
	Frame string    `json:"frame_id"`
	Stamp time.Time `json:"stamp"`
	Pose  wirePose  `json:"pose"`
}

func toWire(p PoseWithCovariance) wirePose {
	q := Normalize(p.Orientation)
	x, y, z, w := XYZW(q)
	return wirePose{
		Position:    wireVec{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Orientation: wireQuat{X: x, Y: y, Z: z, W: w},
		Covariance:  p.Covariance,
	}
}

func fromWire(w wirePose) PoseWithCovariance {
	return PoseWithCovariance{
		Position:    r3.Vec{X: w.Position.X, Y: w.Position.Y, Z: w.Position.Z},
		Orientation: Normalize(FromXYZW(w.Orientation.X, w.Orientation.Y, w.Orientation.Z, w.Orientation.W)),
		Covariance:  w.Covariance,
	}
}

func (p PoseWithCovariance) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(p))
}

func (p *PoseWithCovariance) UnmarshalJSON(b []byte) error {
	var w wirePose
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = fromWire(w)
	return nil
}

func (s Stamped) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireStamped{Frame: s.Frame, Stamp: s.Stamp, Pose: toWire(s.Pose)})
}

func (s *Stamped) UnmarshalJSON(b []byte) error {
	var w wireStamped
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Stamped{Frame: w.Frame, Stamp: w.Stamp, Pose: fromWire(w.Pose)}
	return nil
}
