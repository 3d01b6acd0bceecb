package gps

import (
	"math"
	"time"
)

// Fix represents a single buoy GPS fix suitable for JSON and MQTT.
type Fix struct {
	Stamp      time.Time `json:"stamp"`      // receive time of the sentence
	Latitude   float64   `json:"lat"`        // decimal degrees
	Longitude  float64   `json:"lon"`        // decimal degrees
	Altitude   float64   `json:"alt"`        // metres above MSL
	Quality    string    `json:"quality"`    // GGA fix quality: "0" invalid, "1" GPS, "2" DGPS, ...
	Satellites int64     `json:"satellites"` // satellites in use
	HDOP       float64   `json:"hdop"`       // horizontal dilution of precision
	Validity   string    `json:"validity"`   // RMC "A" (valid) / "V" (void), empty when unknown
}

// HasFix reports whether the receiver claims a usable position.
func (f Fix) HasFix() bool {
	if f.Quality == "" || f.Quality == "0" {
		return false
	}
	if f.Validity == "V" {
		return false
	}
	return !math.IsNaN(f.Latitude) && !math.IsNaN(f.Longitude) &&
		!math.IsInf(f.Latitude, 0) && !math.IsInf(f.Longitude, 0)
}

// Timestamp returns the receive time.
func (f Fix) Timestamp() time.Time { return f.Stamp }
