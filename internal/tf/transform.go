// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tf

import (
	"encoding/json"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/pose"
)

// Transform places Child in Parent: a point p in Child is
// Rotation·p + Translation in Parent.
type Transform struct {
	Parent      string
	Child       string
	Stamp       time.Time
	Translation r3.Vec
	Rotation    quat.Number
}

// Pose returns the transform as a pose without covariance.
func (t Transform) Pose() pose.PoseWithCovariance {
	return pose.PoseWithCovariance{
		Position:    t.Translation,
		Orientation: pose.Normalize(t.Rotation),
	}
}

// FromPose builds a Transform from p, dropping its covariance.
func FromPose(parent, child string, stamp time.Time, p pose.PoseWithCovariance) Transform {
	return Transform{
		Parent:      parent,
		Child:       child,
		Stamp:       stamp,
		Translation: p.Position,
		Rotation:    pose.Normalize(p.Orientation),
	}
}

// wireTransform follows geometry_msgs/TransformStamped.
type wireTransform struct {
	Header struct {
		FrameID string    `json:"frame_id"`
		Stamp   time.Time `json:"stamp"`
	} `json:"header"`
	ChildFrameID string `json:"child_frame_id"`
	Transform    struct {
		Translation struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
		} `json:"translation"`
		Rotation struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
			W float64 `json:"w"`
		} `json:"rotation"`
	} `json:"transform"`
}

func (t Transform) MarshalJSON() ([]byte, error) {
	var w wireTransform
	w.Header.FrameID = t.Parent
	w.Header.Stamp = t.Stamp
	w.ChildFrameID = t.Child
	w.Transform.Translation.X = t.Translation.X
	w.Transform.Translation.Y = t.Translation.Y
	w.Transform.Translation.Z = t.Translation.Z
	x, y, z, qw := pose.XYZW(pose.Normalize(t.Rotation))
	w.Transform.Rotation.X = x
	w.Transform.Rotation.Y = y
	w.Transform.Rotation.Z = z
	w.Transform.Rotation.W = qw
	return json.Marshal(w)
}

func (t *Transform) UnmarshalJSON(b []byte) error {
	var w wireTransform
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r := w.Transform.Rotation
	*t = Transform{
		Parent:      w.Header.FrameID,
		Child:       w.ChildFrameID,
		Stamp:       w.Header.Stamp,
		Translation: r3.Vec{X: w.Transform.Translation.X, Y: w.Transform.Translation.Y, Z: w.Transform.Translation.Z},
		Rotation:    pose.Normalize(pose.FromXYZW(r.X, r.Y, r.Z, r.W)),
	}
	return nil
}

// Message is the payload published on the tf topics, after tf2_msgs/TFMessage.
type Message struct {
	Transforms []Transform `json:"transforms"`
}
