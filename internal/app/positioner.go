// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/fusion"
	"github.com/relabs-tech/usbl_position/internal/logging"
	"github.com/relabs-tech/usbl_position/internal/metrics"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/recorder"
	"github.com/relabs-tech/usbl_position/internal/tf"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// MQTTPublisher publishes fused poses as JSON, fire-and-forget.
type MQTTPublisher struct {
	Client bus.Client
	Topic  string
}

func (p MQTTPublisher) Publish(_ context.Context, s pose.Stamped) error {
	return bus.PublishJSON(p.Client, p.Topic, false, s)
}

// FusionConfig maps the file configuration onto the orchestrator's.
func FusionConfig(cfg *config.Config) fusion.Config {
	return fusion.Config{
		MapFrame:  cfg.FrameMap,
		BuoyFrame: cfg.FrameBuoy,
		USBLFrame: cfg.FrameUSBL,
		MinDepth:  cfg.USBLMinDepth,
		Gate: usbl.Gate{
			RSSIMin:      cfg.USBLRSSIMin,
			RSSIMax:      cfg.USBLRSSIMax,
			IntegrityMin: cfg.USBLIntegrityMin,
		},
		DirectVariance:          cfg.USBLLongVariance,
		Direct:                  fusion.PathConfig{CacheStaticOffset: cfg.USBLLongCacheStaticOffset},
		Angular:                 fusion.PathConfig{CacheStaticOffset: cfg.USBLAnglesCacheStaticOffset},
		LookupTimeout:           cfg.TFLookupTimeout,
		SubtractPropagationTime: cfg.USBLSubtractPropagation,
	}
}

// StaticTransform returns the configured buoy->usbl transform.
func StaticTransform(cfg *config.Config) (tf.Transform, bool) {
	if !cfg.HasStaticTFBuoyUSBL {
		return tf.Transform{}, false
	}
	v := cfg.StaticTFBuoyUSBL
	return tf.Transform{
		Parent:      cfg.FrameBuoy,
		Child:       cfg.FrameUSBL,
		Translation: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
		Rotation:    pose.FromXYZW(v[3], v[4], v[5], v[6]),
	}, true
}

// NewLogger builds the structured logger from LOG_LEVEL/LOG_FORMAT.
func NewLogger(cfg *config.Config) logging.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
}

// RunPositioner subscribes to the acoustic, depth and buoy topics, fuses
// every synchronized bundle and publishes the modem pose.
func RunPositioner() error {
	cfg := config.Get()
	logger := NewLogger(cfg)

	params, err := config.NewParamsFromConfig(cfg)
	if err != nil {
		return err
	}

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDPosition)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("positioner: connected to MQTT broker at %s", cfg.MQTTBroker)

	buf := tf.NewBuffer()
	if t, ok := StaticTransform(cfg); ok {
		if err := buf.SetStatic(t); err != nil {
			return err
		}
		log.Printf("positioner: static transform %s -> %s from config", t.Parent, t.Child)
	}
	bridge := tf.NewBridge(client, buf, cfg.TopicTF, cfg.TopicTFStatic, logger)
	if err := bridge.Start(); err != nil {
		return err
	}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	deps := fusion.Deps{
		Transforms:  bridge,
		Broadcaster: bridge,
		Publisher:   MQTTPublisher{Client: client, Topic: cfg.TopicModem},
		Params:      params,
		Logger:      logger,
		Metrics:     collector,
	}
	if cfg.RecordDBPath != "" {
		rec, err := recorder.Open(cfg.RecordDBPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		deps.Recorder = rec
		log.Printf("positioner: recording fixes to %s", cfg.RecordDBPath)
	}

	orch := fusion.New(FusionConfig(cfg), deps)
	pipeline := NewPipeline(orch, params, cfg.SyncSlop, cfg.SyncQueueSize, collector, logger)
	if err := pipeline.Subscribe(client, Topics{
		USBLLong:   cfg.TopicUSBLLong,
		USBLAngles: cfg.TopicUSBLAngles,
		Depth:      cfg.TopicDepth,
		Buoy:       cfg.TopicBuoy,
		NEDOrigin:  cfg.TopicNEDOrigin,
	}); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			log.Printf("positioner: metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("positioner: metrics server error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warm the cache so the first fix does not pay for the lookup.
	if cfg.USBLLongCacheStaticOffset {
		if _, err := orch.ResolveStaticOffset(ctx); err != nil {
			log.Printf("positioner: %v (will retry on next fix)", err)
		}
	}

	log.Println("positioner: running")
	if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("positioner: shutting down")
	return nil
}
