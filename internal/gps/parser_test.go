package gps

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaFix   = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaNoFix = "$GPGGA,123520,4807.038,N,01131.000,E,0,00,99.9,0.0,M,0.0,M,,*4F"
	rmcValid = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid  = "$GPRMC,123520,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*77"
)

func TestParser_GGAEmitsFix(t *testing.T) {
	var p Parser
	now := time.Unix(1700000000, 0)

	_, ok, err := p.Feed(rmcValid, now)
	require.NoError(t, err)
	assert.False(t, ok)

	fix, ok, err := p.Feed(ggaFix+"\r\n", now)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, now, fix.Stamp)
	assert.InDelta(t, 48+7.038/60, fix.Latitude, 1e-9)
	assert.InDelta(t, 11+31.0/60, fix.Longitude, 1e-9)
	assert.InDelta(t, 545.4, fix.Altitude, 1e-9)
	assert.Equal(t, "1", fix.Quality)
	assert.EqualValues(t, 8, fix.Satellites)
	assert.InDelta(t, 0.9, fix.HDOP, 1e-9)
	assert.Equal(t, "A", fix.Validity)
	assert.True(t, fix.HasFix())
}

func TestParser_VoidAndNoFix(t *testing.T) {
	var p Parser
	now := time.Now()

	_, _, err := p.Feed(rmcVoid, now)
	require.NoError(t, err)
	fix, ok, err := p.Feed(ggaFix, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "V", fix.Validity)
	assert.False(t, fix.HasFix())

	p = Parser{}
	fix, ok, err = p.Feed(ggaNoFix, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, fix.HasFix())
}

func TestParser_IgnoresNoise(t *testing.T) {
	var p Parser
	for _, line := range []string{"", "garbage", "USBLLONG,1,2,3"} {
		_, ok, err := p.Feed(line, time.Now())
		assert.NoError(t, err, line)
		assert.False(t, ok, line)
	}

	_, ok, err := p.Feed("$GPGGA,123519,4807.038,N*00", time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestFix_HasFixRejectsNonFinite(t *testing.T) {
	f := Fix{Quality: "1", Latitude: math.NaN()}
	assert.False(t, f.HasFix())
	f = Fix{Quality: "1", Longitude: math.Inf(1)}
	assert.False(t, f.HasFix())
	f = Fix{Quality: "2", Latitude: 41, Longitude: 2}
	assert.True(t, f.HasFix())
}
