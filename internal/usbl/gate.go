// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package usbl

import (
	"errors"
	"fmt"
)

// ErrQualityRejected means a direct fix failed the signal quality gate.
var ErrQualityRejected = errors.New("usbl fix rejected by quality gate")

// Default gate thresholds.
const (
	DefaultRSSIMin      = -100.0
	DefaultRSSIMax      = 0.0
	DefaultIntegrityMin = 100.0
)

// Gate admits direct fixes whose RSSI lies in [RSSIMin, RSSIMax) and whose
// integrity is at least IntegrityMin.
type Gate struct {
	RSSIMin      float64
	RSSIMax      float64
	IntegrityMin float64
}

// DefaultGate returns a gate with the default thresholds.
func DefaultGate() Gate {
	return Gate{RSSIMin: DefaultRSSIMin, RSSIMax: DefaultRSSIMax, IntegrityMin: DefaultIntegrityMin}
}

// Admit returns nil when the fix is acceptable, or an error wrapping
// ErrQualityRejected that names the failing threshold. A fix without RSSI or
// integrity cannot be vouched for and is rejected.
func (g Gate) Admit(fix DirectFix) error {
	if fix.RSSI == nil {
		return fmt.Errorf("%w: rssi not reported", ErrQualityRejected)
	}
	if fix.Integrity == nil {
		return fmt.Errorf("%w: integrity not reported", ErrQualityRejected)
	}
	rssi, integrity := *fix.RSSI, *fix.Integrity
	if !(rssi >= g.RSSIMin && rssi < g.RSSIMax) {
		return fmt.Errorf("%w: rssi %.1f dB outside [%.1f, %.1f)", ErrQualityRejected, rssi, g.RSSIMin, g.RSSIMax)
	}
	if !(integrity >= g.IntegrityMin) {
		return fmt.Errorf("%w: integrity %.1f below %.1f", ErrQualityRejected, integrity, g.IntegrityMin)
	}
	return nil
}
