// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDPosition string
	MQTTClientIDGPS      string
	MQTTClientIDUSBL     string
	MQTTClientIDWeb      string
	MQTTClientIDConsole  string
	MQTTClientIDSim      string
	MQTTClientIDTF       string
	MQTTClientIDDisplay  string

	// Topics
	TopicUSBLLong   string
	TopicUSBLAngles string
	TopicDepth      string
	TopicBuoy       string
	TopicModem      string
	TopicTF         string
	TopicTFStatic   string
	TopicNEDOrigin  string

	// Frames
	FrameMap   string
	FrameBuoy  string
	FrameUSBL  string
	FrameModem string

	// USBL processing
	USBLMinDepth                float64
	USBLRSSIMin                 float64
	USBLRSSIMax                 float64
	USBLIntegrityMin            float64
	USBLLongVariance            float64 // 0 = use accuracy²
	USBLLongCacheStaticOffset   bool
	USBLAnglesCacheStaticOffset bool
	USBLSubtractPropagation     bool

	// Timing
	TFLookupTimeout time.Duration
	SyncSlop        time.Duration
	SyncQueueSize   int

	// Serial devices
	GPSSerialPort  string
	GPSBaudRate    int
	USBLSerialPort string
	USBLBaudRate   int

	// Static buoy->usbl transform: x,y,z,qx,qy,qz,qw
	StaticTFBuoyUSBL    [7]float64
	HasStaticTFBuoyUSBL bool

	// Parameter store
	ParamsFile   string
	NEDOriginLat float64
	NEDOriginLon float64
	HasNEDOrigin bool

	// Web Server
	WebServerPort int

	// Buoy status display (SSD1306 over I2C)
	DisplayI2CBus         string // "" = first available bus
	DisplayUpdateInterval time.Duration

	// Prometheus endpoint of the positioner, empty disables
	MetricsAddr string

	// Recorder
	RecordDBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Simulator
	SimPeriod      time.Duration
	SimModemNorth  float64
	SimModemEast   float64
	SimModemDepth  float64
	SimNoiseStdDev float64
	SimAccuracy    float64
	SimDelay       time.Duration
	SimMinDepth    float64
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal/Get.
//   - configOnce: InitGlobal only loads once.
//   - configMu: write lock for initialization, read lock for Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		MQTTClientIDPosition: "usbl-position",
		MQTTClientIDGPS:      "usbl-gps-producer",
		MQTTClientIDUSBL:     "usbl-producer",
		MQTTClientIDWeb:      "usbl-web",
		MQTTClientIDConsole:  "usbl-console",
		MQTTClientIDSim:      "usbl-sim",
		MQTTClientIDTF:       "usbl-static-tf",
		MQTTClientIDDisplay:  "usbl-display",

		TopicUSBLLong:   "sensors/usbllong",
		TopicUSBLAngles: "sensors/usblangles",
		TopicDepth:      "sensors/depth_raw",
		TopicBuoy:       "sensors/buoy_filtered",
		TopicModem:      "usbl/modem_delayed",
		TopicTF:         "tf",
		TopicTFStatic:   "tf_static",
		TopicNEDOrigin:  "navigator/ned_origin",

		FrameMap:   "map",
		FrameBuoy:  "buoy",
		FrameUSBL:  "usbl",
		FrameModem: "modem",

		USBLMinDepth:                1.0,
		USBLRSSIMin:                 -100,
		USBLRSSIMax:                 0,
		USBLIntegrityMin:            100,
		USBLLongCacheStaticOffset:   true,
		USBLAnglesCacheStaticOffset: false,

		TFLookupTimeout: 2 * time.Second,
		SyncSlop:        500 * time.Millisecond,
		SyncQueueSize:   70,

		GPSBaudRate:  9600,
		USBLBaudRate: 19200,

		WebServerPort: 8080,
		MetricsAddr:   ":9102",

		DisplayUpdateInterval: 500 * time.Millisecond,

		LogLevel:  "info",
		LogFormat: "text",

		SimPeriod:      2 * time.Second,
		SimModemNorth:  20,
		SimModemEast:   -15,
		SimModemDepth:  30,
		SimNoiseStdDev: 0.5,
		SimAccuracy:    0.5,
		SimDelay:       0,
		SimMinDepth:    1.0,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_POSITION":
		c.MQTTClientIDPosition = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_USBL":
		c.MQTTClientIDUSBL = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_SIM":
		c.MQTTClientIDSim = value
	case "MQTT_CLIENT_ID_TF":
		c.MQTTClientIDTF = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_USBLLONG":
		c.TopicUSBLLong = value
	case "TOPIC_USBLANGLES":
		c.TopicUSBLAngles = value
	case "TOPIC_DEPTH":
		c.TopicDepth = value
	case "TOPIC_BUOY":
		c.TopicBuoy = value
	case "TOPIC_MODEM":
		c.TopicModem = value
	case "TOPIC_TF":
		c.TopicTF = value
	case "TOPIC_TF_STATIC":
		c.TopicTFStatic = value
	case "TOPIC_NED_ORIGIN":
		c.TopicNEDOrigin = value

	// Frames
	case "FRAME_MAP":
		c.FrameMap = value
	case "FRAME_BUOY":
		c.FrameBuoy = value
	case "FRAME_USBL":
		c.FrameUSBL = value
	case "FRAME_MODEM":
		c.FrameModem = value

	// USBL processing
	case "USBL_MIN_DEPTH":
		c.USBLMinDepth, err = parseFloat(key, value)
		if err == nil && c.USBLMinDepth < 0 {
			err = fmt.Errorf("USBL_MIN_DEPTH must be >= 0, got %v", c.USBLMinDepth)
		}
	case "USBL_RSSI_MIN":
		c.USBLRSSIMin, err = parseFloat(key, value)
	case "USBL_RSSI_MAX":
		c.USBLRSSIMax, err = parseFloat(key, value)
	case "USBL_INTEGRITY_MIN":
		c.USBLIntegrityMin, err = parseFloat(key, value)
	case "USBL_LONG_VARIANCE":
		c.USBLLongVariance, err = parseFloat(key, value)
		if err == nil && c.USBLLongVariance < 0 {
			err = fmt.Errorf("USBL_LONG_VARIANCE must be >= 0, got %v", c.USBLLongVariance)
		}
	case "USBL_LONG_CACHE_STATIC_OFFSET":
		c.USBLLongCacheStaticOffset, err = parseBool(key, value)
	case "USBL_ANGLES_CACHE_STATIC_OFFSET":
		c.USBLAnglesCacheStaticOffset, err = parseBool(key, value)
	case "USBL_SUBTRACT_PROPAGATION":
		c.USBLSubtractPropagation, err = parseBool(key, value)

	// Timing
	case "TF_LOOKUP_TIMEOUT_MS":
		c.TFLookupTimeout, err = parseMillis(key, value)
	case "SYNC_SLOP_MS":
		c.SyncSlop, err = parseMillis(key, value)
	case "SYNC_QUEUE_SIZE":
		c.SyncQueueSize, err = parseInt(key, value)
		if err == nil && c.SyncQueueSize < 1 {
			err = fmt.Errorf("SYNC_QUEUE_SIZE must be >= 1, got %d", c.SyncQueueSize)
		}

	// Serial devices
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value)
	case "USBL_SERIAL_PORT":
		c.USBLSerialPort = value
	case "USBL_BAUD_RATE":
		c.USBLBaudRate, err = parseInt(key, value)

	// Static transform
	case "STATIC_TF_BUOY_USBL":
		c.StaticTFBuoyUSBL, err = parseTransform(key, value)
		c.HasStaticTFBuoyUSBL = err == nil

	// Parameter store
	case "PARAMS_FILE":
		c.ParamsFile = value
	case "NED_ORIGIN_LAT":
		c.NEDOriginLat, err = parseFloat(key, value)
		c.HasNEDOrigin = err == nil
	case "NED_ORIGIN_LON":
		c.NEDOriginLon, err = parseFloat(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "METRICS_ADDR":
		c.MetricsAddr = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL_MS":
		c.DisplayUpdateInterval, err = parseMillis(key, value)

	// Recorder
	case "RECORD_DB_PATH":
		c.RecordDBPath = value

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	// Simulator
	case "SIM_PERIOD_MS":
		c.SimPeriod, err = parseMillis(key, value)
	case "SIM_MODEM_NORTH":
		c.SimModemNorth, err = parseFloat(key, value)
	case "SIM_MODEM_EAST":
		c.SimModemEast, err = parseFloat(key, value)
	case "SIM_MODEM_DEPTH":
		c.SimModemDepth, err = parseFloat(key, value)
	case "SIM_NOISE_STDDEV":
		c.SimNoiseStdDev, err = parseFloat(key, value)
	case "SIM_ACCURACY":
		c.SimAccuracy, err = parseFloat(key, value)
	case "SIM_DELAY_MS":
		c.SimDelay, err = parseMillis(key, value)
	case "SIM_MIN_DEPTH":
		c.SimMinDepth, err = parseFloat(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.USBLRSSIMin >= c.USBLRSSIMax {
		return fmt.Errorf("USBL_RSSI_MIN (%v) must be below USBL_RSSI_MAX (%v)", c.USBLRSSIMin, c.USBLRSSIMax)
	}
	if c.TFLookupTimeout <= 0 {
		return fmt.Errorf("TF_LOOKUP_TIMEOUT_MS must be > 0")
	}
	if c.SyncSlop <= 0 {
		return fmt.Errorf("SYNC_SLOP_MS must be > 0")
	}
	if c.SimPeriod <= 0 || c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("SIM_PERIOD_MS and DISPLAY_UPDATE_INTERVAL_MS must be > 0")
	}
	return nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseTransform reads "x,y,z,qx,qy,qz,qw".
func parseTransform(key, value string) ([7]float64, error) {
	var out [7]float64
	parts := strings.Split(value, ",")
	if len(parts) != len(out) {
		return out, fmt.Errorf("%s must be x,y,z,qx,qy,qz,qw, got %q", key, value)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid %s component %d %q: %w", key, i, p, err)
		}
		out[i] = v
	}
	if out[3] == 0 && out[4] == 0 && out[5] == 0 && out[6] == 0 {
		return out, fmt.Errorf("%s quaternion is zero", key)
	}
	return out, nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
