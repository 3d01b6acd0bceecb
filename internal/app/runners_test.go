package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/bus/bustest"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

var fixedNow = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }

func TestProduceGPS_PublishesRetainedFixes(t *testing.T) {
	input := strings.Join([]string{
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"$GPGGA,123519,4807.038,N*00", // bad checksum, skipped
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"",
	}, "\r\n")
	c := bustest.New()

	err := produceGPS(strings.NewReader(input), c, "sensors/buoy_filtered", fixedNow)
	assert.ErrorIs(t, err, io.EOF)

	got := c.On("sensors/buoy_filtered")
	require.Len(t, got, 1)
	assert.True(t, got[0].Retained)

	var fix gps.Fix
	require.NoError(t, json.Unmarshal(got[0].Payload, &fix))
	assert.Equal(t, fixedNow(), fix.Stamp)
	assert.Equal(t, "A", fix.Validity)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
}

func TestProduceUSBL_RoutesByKind(t *testing.T) {
	input := strings.Join([]string{
		"+++AT:80:USBLLONG,26.0,25.5,2,1.0,2.0,3.0,3.5,4.5,-10.0,0.01,0.02,1.5,50000,-45,180,0.25",
		"RECVIM,5,2,1,ack,100,-50,130,0.1,hello",
		"USBLLONG,1,2,3",
		"USBLANGLES,30.1,29.9,3,0.10,0.20,1.2,0.9,0.0,0.0,0.3,-60,140,0.02",
		"",
	}, "\n")
	c := bustest.New()

	err := produceUSBL(strings.NewReader(input), c, "sensors/usbllong", "sensors/usblangles", fixedNow)
	assert.ErrorIs(t, err, io.EOF)

	long := c.On("sensors/usbllong")
	require.Len(t, long, 1)
	var direct usbl.DirectFix
	require.NoError(t, json.Unmarshal(long[0].Payload, &direct))
	assert.Equal(t, 4.5, direct.North)
	assert.Equal(t, fixedNow(), direct.Stamp)

	angles := c.On("sensors/usblangles")
	require.Len(t, angles, 1)
	var angular usbl.AngularFix
	require.NoError(t, json.Unmarshal(angles[0].Payload, &angular))
	assert.Equal(t, 3, angular.RemoteAddress)
	assert.Len(t, c.Published(), 2)
}

func TestSimulator_StepInvertsMounting(t *testing.T) {
	cfg := config.Default()
	cfg.SimModemNorth = 20
	cfg.SimModemEast = -15
	cfg.SimModemDepth = 30
	cfg.SimNoiseStdDev = 0
	cfg.NEDOriginLat = 41.38
	cfg.NEDOriginLon = 2.17
	cfg.HasStaticTFBuoyUSBL = true
	cfg.StaticTFBuoyUSBL = [7]float64{0.5, 0, 1.2, 0, 0, 0, 1}

	sim := NewSimulator(cfg, 1)
	buoy, depth, fix, ok := sim.Step(fixedNow())
	require.True(t, ok)

	assert.True(t, buoy.HasFix())
	assert.Equal(t, 41.38, buoy.Latitude)
	assert.Equal(t, 30.0, depth.Depth)
	assert.NotNil(t, fix.RSSI)
	assert.NoError(t, usbl.DefaultGate().Admit(fix))

	meas := pose.Identity()
	meas.Position = r3.Vec{X: fix.North, Y: fix.East, Z: fix.Up}
	modem := pose.Compose(sim.Mounting, meas).Position
	assert.InDelta(t, 20, modem.X, 1e-9)
	assert.InDelta(t, -15, modem.Y, 1e-9)
	assert.InDelta(t, -30, modem.Z, 1e-9)
}

func TestSimulator_ShallowModemIsSilent(t *testing.T) {
	cfg := config.Default()
	cfg.SimModemDepth = 0.5
	cfg.SimMinDepth = 1

	_, depth, _, ok := NewSimulator(cfg, 1).Step(fixedNow())
	assert.False(t, ok)
	assert.Equal(t, 0.5, depth.Depth)
}

func TestDelayedPublisher_SkipsAfterCancel(t *testing.T) {
	d := &delayedPublisher{delay: 20 * time.Millisecond}
	var ran atomic.Int32

	d.After(context.Background(), func() { ran.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	d.After(ctx, func() { ran.Add(10) })
	cancel()

	d.Wait()
	assert.Equal(t, int32(1), ran.Load())
}

func TestConsoleHandlers_PrintLines(t *testing.T) {
	cfg := config.Default()
	var out bytes.Buffer
	c := bustest.New()
	for topic, h := range consoleHandlers(cfg, &out) {
		require.NoError(t, c.Subscribe(topic, 0, h).Error())
	}

	modem := pose.Identity()
	modem.Position = r3.Vec{X: 1, Y: 2, Z: -3}
	modem.SetPositionVariance(0.1, 0.2, 0.3)
	deliverJSON(t, c, cfg.TopicModem, pose.Stamped{Frame: "map", Pose: modem})
	deliverJSON(t, c, cfg.TopicBuoy, gps.Fix{Latitude: 41, Longitude: 2, Quality: "1"})
	deliverJSON(t, c, cfg.TopicUSBLLong, usbl.DirectFix{North: 4, RSSI: usbl.Float(-45)})
	deliverJSON(t, c, cfg.TopicUSBLAngles, usbl.AngularFix{LocalBearing: 0.5})
	c.Deliver(cfg.TopicModem, []byte("{"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "[MODEM] frame=map"))
	assert.Contains(t, lines[0], "var=(0.100, 0.200, 0.300)")
	assert.True(t, strings.HasPrefix(lines[1], "[GPS ]"))
	assert.Contains(t, lines[2], "rssi=-45.0 integrity=-")
	assert.True(t, strings.HasPrefix(lines[3], "[ANGL]"))
}
