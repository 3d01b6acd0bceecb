package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_RequiresBroker(t *testing.T) {
	path := writeTempFile(t, "cfg.txt", "# empty\nFRAME_MAP=world\n")
	_, err := Load(path)
	require.EqualError(t, err, "MQTT_BROKER is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempFile(t, "cfg.txt", "MQTT_BROKER=tcp://localhost:1883\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "map", cfg.FrameMap)
	assert.Equal(t, "buoy", cfg.FrameBuoy)
	assert.Equal(t, "usbl", cfg.FrameUSBL)
	assert.Equal(t, 1.0, cfg.USBLMinDepth)
	assert.Equal(t, 2*time.Second, cfg.TFLookupTimeout)
	assert.Equal(t, 70, cfg.SyncQueueSize)
	assert.True(t, cfg.USBLLongCacheStaticOffset)
	assert.False(t, cfg.USBLAnglesCacheStaticOffset)
	assert.False(t, cfg.HasStaticTFBuoyUSBL)
	assert.False(t, cfg.HasNEDOrigin)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeTempFile(t, "cfg.txt", `
MQTT_BROKER = tcp://broker:1883
FRAME_MAP=world
USBL_MIN_DEPTH=2.5
USBL_RSSI_MIN=-80
USBL_RSSI_MAX=-10
USBL_INTEGRITY_MIN=50
USBL_ANGLES_CACHE_STATIC_OFFSET=true
TF_LOOKUP_TIMEOUT_MS=500
SYNC_SLOP_MS=100
STATIC_TF_BUOY_USBL=0.1, 0, 1.5, 0, 0, 0, 1
NED_ORIGIN_LAT=41.5
NED_ORIGIN_LON=2.1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "world", cfg.FrameMap)
	assert.Equal(t, 2.5, cfg.USBLMinDepth)
	assert.Equal(t, -80.0, cfg.USBLRSSIMin)
	assert.Equal(t, -10.0, cfg.USBLRSSIMax)
	assert.Equal(t, 50.0, cfg.USBLIntegrityMin)
	assert.True(t, cfg.USBLAnglesCacheStaticOffset)
	assert.Equal(t, 500*time.Millisecond, cfg.TFLookupTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.SyncSlop)
	assert.True(t, cfg.HasStaticTFBuoyUSBL)
	assert.Equal(t, [7]float64{0.1, 0, 1.5, 0, 0, 0, 1}, cfg.StaticTFBuoyUSBL)
	assert.True(t, cfg.HasNEDOrigin)
	assert.Equal(t, 41.5, cfg.NEDOriginLat)
	assert.Equal(t, 2.1, cfg.NEDOriginLon)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		want     string
	}{
		{"unknown key", "MQTT_BROKER=x\nBOGUS=1\n", `config line 2: unknown config key: "BOGUS"`},
		{"no equals", "MQTT_BROKER\n", `invalid config line 1: "MQTT_BROKER"`},
		{"negative depth", "MQTT_BROKER=x\nUSBL_MIN_DEPTH=-1\n", "config line 2: USBL_MIN_DEPTH must be >= 0, got -1"},
		{"rssi band", "MQTT_BROKER=x\nUSBL_RSSI_MIN=0\nUSBL_RSSI_MAX=0\n", "USBL_RSSI_MIN (0) must be below USBL_RSSI_MAX (0)"},
		{"short transform", "MQTT_BROKER=x\nSTATIC_TF_BUOY_USBL=1,2,3\n", `config line 2: STATIC_TF_BUOY_USBL must be x,y,z,qx,qy,qz,qw, got "1,2,3"`},
		{"zero quaternion", "MQTT_BROKER=x\nSTATIC_TF_BUOY_USBL=1,2,3,0,0,0,0\n", "config line 2: STATIC_TF_BUOY_USBL quaternion is zero"},
		{"zero queue", "MQTT_BROKER=x\nSYNC_QUEUE_SIZE=0\n", "config line 2: SYNC_QUEUE_SIZE must be >= 1, got 0"},
		{"zero display interval", "MQTT_BROKER=x\nDISPLAY_UPDATE_INTERVAL_MS=0\n", "SIM_PERIOD_MS and DISPLAY_UPDATE_INTERVAL_MS must be > 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, "cfg.txt", tc.contents)
			_, err := Load(path)
			require.EqualError(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParams_LoadFileFlattens(t *testing.T) {
	path := writeTempFile(t, "params.yaml", `
navigator:
  ned_origin_lat: 41.38
  ned_origin_lon: 2
usbl:
  name: evologics
`)
	p := NewParams()
	require.NoError(t, p.LoadParamsFile(path))

	lat, ok := p.Float(ParamNEDOriginLat)
	require.True(t, ok)
	assert.Equal(t, 41.38, lat)

	lon, ok := p.Float(ParamNEDOriginLon)
	require.True(t, ok)
	assert.Equal(t, 2.0, lon)

	name, ok := p.String("usbl/name")
	require.True(t, ok)
	assert.Equal(t, "evologics", name)

	_, ok = p.Float("usbl/name")
	assert.False(t, ok)
	_, ok = p.Float("navigator")
	assert.False(t, ok)
	assert.Len(t, p.Keys(), 3)
}

func TestParams_BadYAML(t *testing.T) {
	path := writeTempFile(t, "params.yaml", "navigator: [unterminated\n")
	require.Error(t, NewParams().LoadParamsFile(path))
}

func TestNewParamsFromConfig_OverridesFile(t *testing.T) {
	path := writeTempFile(t, "params.yaml", "navigator:\n  ned_origin_lat: 10\n  ned_origin_lon: 20\n")
	cfg := Default()
	cfg.ParamsFile = path
	cfg.HasNEDOrigin = true
	cfg.NEDOriginLat = 1
	cfg.NEDOriginLon = 2

	p, err := NewParamsFromConfig(cfg)
	require.NoError(t, err)
	lat, _ := p.Float(ParamNEDOriginLat)
	lon, _ := p.Float(ParamNEDOriginLon)
	assert.Equal(t, 1.0, lat)
	assert.Equal(t, 2.0, lon)
}

func TestParams_SetString(t *testing.T) {
	p := NewParams()
	p.Set("a", "1.5")
	v, ok := p.Float("a")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	p.Set("b", 3)
	s, ok := p.String("b")
	require.True(t, ok)
	assert.Equal(t, "3", s)
}
