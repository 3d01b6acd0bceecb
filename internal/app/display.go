package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/pose"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	modem     pose.Stamped
	haveModem bool
	buoy      gps.Fix
	haveBuoy  bool
}

// displaySnapshot is a lock-free copy of DisplayData.
type displaySnapshot struct {
	modem     pose.Stamped
	haveModem bool
	buoy      gps.Fix
	haveBuoy  bool
}

func (d *DisplayData) snapshot() displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return displaySnapshot{modem: d.modem, haveModem: d.haveModem, buoy: d.buoy, haveBuoy: d.haveBuoy}
}

func (d *DisplayData) handleModem(_ mqtt.Client, msg mqtt.Message) {
	var s pose.Stamped
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		log.Printf("display: modem unmarshal error: %v", err)
		return
	}
	d.mu.Lock()
	d.modem = s
	d.haveModem = true
	d.mu.Unlock()
}

func (d *DisplayData) handleBuoy(_ mqtt.Client, msg mqtt.Message) {
	var f gps.Fix
	if err := json.Unmarshal(msg.Payload(), &f); err != nil {
		log.Printf("display: gps unmarshal error: %v", err)
		return
	}
	d.mu.Lock()
	d.buoy = f
	d.haveBuoy = true
	d.mu.Unlock()
}

// statusLines lays out the four text rows of the 128x64 panel, at most 18
// characters each in the 7x13 face.
func statusLines(s displaySnapshot) []string {
	lines := make([]string, 0, 4)
	if s.haveModem {
		p := s.modem.Pose.Position
		xx, yy, _ := s.modem.Pose.PositionVariance()
		lines = append(lines,
			fmt.Sprintf("N%7.1f E%7.1f", p.X, p.Y),
			fmt.Sprintf("Z%7.1f sd%5.2f", p.Z, math.Sqrt(xx+yy)),
		)
	} else {
		lines = append(lines, "Modem", "Waiting...")
	}

	if !s.haveBuoy {
		return append(lines, "GPS", "Waiting...")
	}
	latDir, lat := "N", s.buoy.Latitude
	if lat < 0 {
		latDir, lat = "S", -lat
	}
	lonDir, lon := "E", s.buoy.Longitude
	if lon < 0 {
		lonDir, lon = "W", -lon
	}
	status := "NOFIX"
	if s.buoy.HasFix() {
		status = fmt.Sprintf("%2dsat", s.buoy.Satellites)
	}
	return append(lines,
		fmt.Sprintf("%.5f%s %s", lat, latDir, status),
		fmt.Sprintf("%.5f%s", lon, lonDir),
	)
}

// renderLines draws one row per line into a blank frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay renders the last modem pose and buoy fix on the buoy's
// SSD1306 panel.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	i2cBus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer i2cBus.Close()

	dev, err := ssd1306.NewI2C(i2cBus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Println("display: initialized")

	splash := renderLines([]string{"", " USBL position", "  waiting for", "  modem fixes"})
	if err := dev.Draw(dev.Bounds(), splash, image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	data := &DisplayData{}
	if err := bus.Subscribe(client, cfg.TopicModem, data.handleModem); err != nil {
		return err
	}
	if err := bus.Subscribe(client, cfg.TopicBuoy, data.handleBuoy); err != nil {
		return err
	}
	log.Printf("display: subscribed to %s and %s", cfg.TopicModem, cfg.TopicBuoy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.DisplayUpdateInterval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			log.Println("display: shutting down")
			return nil
		case <-ticker.C:
			img := renderLines(statusLines(data.snapshot()))
			if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}
