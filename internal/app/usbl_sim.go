// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// Simulated link quality, inside the default gate.
const (
	simRSSI      = -40
	simIntegrity = 120
)

// Simulator produces the inputs of the positioner for a modem held at a
// fixed NED position below a buoy sitting on the origin.
type Simulator struct {
	North, East, Depth float64
	NoiseStdDev        float64
	Accuracy           float64
	MinDepth           float64
	Origin             NEDOrigin
	Mounting           pose.PoseWithCovariance // buoy->usbl

	rng *rand.Rand
}

// NewSimulator reads the SIM_* keys.
func NewSimulator(cfg *config.Config, seed int64) *Simulator {
	s := &Simulator{
		North:       cfg.SimModemNorth,
		East:        cfg.SimModemEast,
		Depth:       cfg.SimModemDepth,
		NoiseStdDev: cfg.SimNoiseStdDev,
		Accuracy:    cfg.SimAccuracy,
		MinDepth:    cfg.SimMinDepth,
		Origin:      NEDOrigin{Latitude: cfg.NEDOriginLat, Longitude: cfg.NEDOriginLon},
		Mounting:    pose.Identity(),
		rng:         rand.New(rand.NewSource(seed)),
	}
	if t, ok := StaticTransform(cfg); ok {
		s.Mounting = t.Pose()
	}
	return s
}

// Step returns the buoy fix, depth and acoustic fix for now. ok is false
// while the modem is too shallow for the interrogator to report.
func (s *Simulator) Step(now time.Time) (buoy gps.Fix, depth usbl.DepthSample, fix usbl.DirectFix, ok bool) {
	buoy = gps.Fix{
		Stamp:      now,
		Latitude:   s.Origin.Latitude,
		Longitude:  s.Origin.Longitude,
		Quality:    "1",
		Satellites: 9,
		HDOP:       0.8,
		Validity:   "A",
	}
	depth = usbl.DepthSample{Stamp: now, Depth: s.Depth, Variance: 0.01}
	if !(s.Depth > s.MinDepth) {
		return buoy, depth, usbl.DirectFix{}, false
	}

	modem := pose.Identity()
	modem.Position = r3.Vec{X: s.North, Y: s.East, Z: -s.Depth}
	p := pose.Compose(pose.Inverse(s.Mounting), modem).Position

	fix = usbl.DirectFix{
		Stamp:     now,
		North:     p.X + s.rng.NormFloat64()*s.NoiseStdDev,
		East:      p.Y + s.rng.NormFloat64()*s.NoiseStdDev,
		Up:        p.Z + s.rng.NormFloat64()*s.NoiseStdDev,
		Accuracy:  s.Accuracy,
		RSSI:      usbl.Float(simRSSI),
		Integrity: usbl.Float(simIntegrity),
	}
	return buoy, depth, fix, true
}

// RunUSBLSim publishes simulated buoy, depth and USBLLONG messages every
// SIM_PERIOD_MS; the acoustic fix is delayed by SIM_DELAY_MS.
func RunUSBLSim() error {
	cfg := config.Get()

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDSim)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("usbl sim: connected to MQTT broker at %s", cfg.MQTTBroker)

	sim := NewSimulator(cfg, time.Now().UnixNano())
	if err := bus.PublishJSON(client, cfg.TopicNEDOrigin, true, sim.Origin); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SimPeriod)
	defer ticker.Stop()

	// runs before Disconnect
	pending := &delayedPublisher{delay: cfg.SimDelay}
	defer pending.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Println("usbl sim: shutting down")
			return nil
		case now := <-ticker.C:
			buoy, depth, fix, ok := sim.Step(now)
			if err := bus.PublishJSON(client, cfg.TopicBuoy, false, buoy); err != nil {
				log.Printf("usbl sim: %v", err)
			}
			if err := bus.PublishJSON(client, cfg.TopicDepth, false, depth); err != nil {
				log.Printf("usbl sim: %v", err)
			}
			if !ok {
				continue
			}
			pending.After(ctx, func() {
				if err := bus.PublishJSON(client, cfg.TopicUSBLLong, false, fix); err != nil {
					log.Printf("usbl sim: %v", err)
				}
			})
		}
	}
}

// delayedPublisher runs publishes after the simulated measurement delay.
type delayedPublisher struct {
	delay time.Duration
	wg    sync.WaitGroup
}

// After schedules fn. It is skipped if ctx is done by then.
func (d *delayedPublisher) After(ctx context.Context, fn func()) {
	d.wg.Add(1)
	time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		if ctx.Err() != nil {
			return
		}
		fn()
	})
}

// Wait blocks until every scheduled publish has run or been skipped.
func (d *delayedPublisher) Wait() {
	d.wg.Wait()
}
