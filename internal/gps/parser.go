package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Parser accumulates NMEA sentences from one receiver. GGA carries the
// position and emits a Fix; RMC only refreshes the validity flag.
type Parser struct {
	validity string
}

// Feed parses one line. ok is true when line completed a Fix. Lines that are
// not NMEA, or not GGA/RMC, are ignored without error.
func (p *Parser) Feed(line string, received time.Time) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		p.validity = m.Validity
		return Fix{}, false, nil

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		return Fix{
			Stamp:      received,
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			Altitude:   m.Altitude,
			Quality:    m.FixQuality,
			Satellites: m.NumSatellites,
			HDOP:       m.HDOP,
			Validity:   p.validity,
		}, true, nil

	default:
		// ignore other sentence types (GSA, GSV, VTG, ...)
		return Fix{}, false, nil
	}
}
