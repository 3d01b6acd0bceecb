// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package usbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Notification keywords emitted by EvoLogics USBL interrogators.
const (
	KindLong   = "USBLLONG"
	KindAngles = "USBLANGLES"
)

const (
	longFields   = 17
	anglesFields = 14
)

// ErrUnknownSentence is returned for lines that are not USBL notifications.
var ErrUnknownSentence = errors.New("not a usbl notification")

// Sentence is a parsed interrogator notification: DirectFix or AngularFix.
type Sentence interface {
	Kind() string
}

func (DirectFix) Kind() string  { return KindLong }
func (AngularFix) Kind() string { return KindAngles }

// ParseLine decodes one notification line. An optional "+++AT:<n>:" framing
// prefix is stripped. received stamps the resulting fix.
//
//	USBLLONG,<ctime>,<mtime>,<addr>,<x>,<y>,<z>,<e>,<n>,<u>,<roll>,<pitch>,<yaw>,<ptime>,<rssi>,<integrity>,<accuracy>
//	USBLANGLES,<ctime>,<mtime>,<addr>,<lbearing>,<lelevation>,<bearing>,<elevation>,<roll>,<pitch>,<yaw>,<rssi>,<integrity>,<accuracy>
func ParseLine(line string, received time.Time) (Sentence, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "+++AT") {
		// +++AT:<len>:<payload>
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed AT framing %q", line)
		}
		line = parts[2]
	}

	fields := strings.Split(line, ",")
	switch fields[0] {
	case KindLong:
		return parseLong(fields, received)
	case KindAngles:
		return parseAngles(fields, received)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSentence, fields[0])
	}
}

func parseLong(fields []string, received time.Time) (DirectFix, error) {
	if len(fields) != longFields {
		return DirectFix{}, fmt.Errorf("%s: want %d fields, got %d", KindLong, longFields, len(fields))
	}
	p := fieldParser{kind: KindLong, fields: fields}
	fix := DirectFix{
		Stamp:           received,
		MeasuredAt:      p.float(2),
		RemoteAddress:   p.int(3),
		East:            p.float(7),
		North:           p.float(8),
		Up:              p.float(9),
		Roll:            p.float(10),
		Pitch:           p.float(11),
		Yaw:             p.float(12),
		PropagationTime: p.float(13) * 1e-6, // reported in microseconds
		RSSI:            Float(p.float(14)),
		Integrity:       Float(p.float(15)),
		Accuracy:        p.float(16),
	}
	if p.err != nil {
		return DirectFix{}, p.err
	}
	return fix, nil
}

func parseAngles(fields []string, received time.Time) (AngularFix, error) {
	if len(fields) != anglesFields {
		return AngularFix{}, fmt.Errorf("%s: want %d fields, got %d", KindAngles, anglesFields, len(fields))
	}
	p := fieldParser{kind: KindAngles, fields: fields}
	fix := AngularFix{
		Stamp:          received,
		MeasuredAt:     p.float(2),
		RemoteAddress:  p.int(3),
		LocalBearing:   p.float(4),
		LocalElevation: p.float(5),
		Bearing:        p.float(6),
		Elevation:      p.float(7),
		Roll:           p.float(8),
		Pitch:          p.float(9),
		Yaw:            p.float(10),
		RSSI:           Float(p.float(11)),
		Integrity:      Float(p.float(12)),
		Accuracy:       p.float(13),
	}
	if p.err != nil {
		return AngularFix{}, p.err
	}
	return fix, nil
}

// FormatLong renders fix as a USBLLONG notification. The head-frame X/Y/Z
// fields are filled with the N/E/U values since only the resolved frame is
// modelled here.
func FormatLong(fix DirectFix, currentTime float64) string {
	rssi, integrity := 0.0, 0.0
	if fix.RSSI != nil {
		rssi = *fix.RSSI
	}
	if fix.Integrity != nil {
		integrity = *fix.Integrity
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return strings.Join([]string{
		KindLong,
		f(currentTime), f(fix.MeasuredAt), strconv.Itoa(fix.RemoteAddress),
		f(fix.North), f(fix.East), f(-fix.Up),
		f(fix.East), f(fix.North), f(fix.Up),
		f(fix.Roll), f(fix.Pitch), f(fix.Yaw),
		strconv.FormatFloat(fix.PropagationTime*1e6, 'f', 0, 64),
		strconv.FormatFloat(rssi, 'f', 0, 64),
		strconv.FormatFloat(integrity, 'f', 0, 64),
		f(fix.Accuracy),
	}, ",")
}

// fieldParser keeps the first conversion error so field lists read linearly.
type fieldParser struct {
	kind   string
	fields []string
	err    error
}

func (p *fieldParser) float(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.fields[i]), 64)
	if err != nil {
		p.err = fmt.Errorf("%s field %d %q: %w", p.kind, i, p.fields[i], err)
	}
	return v
}

func (p *fieldParser) int(i int) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(p.fields[i]))
	if err != nil {
		p.err = fmt.Errorf("%s field %d %q: %w", p.kind, i, p.fields[i], err)
	}
	return v
}
