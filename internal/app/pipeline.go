// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/fusion"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/logging"
	"github.com/relabs-tech/usbl_position/internal/metrics"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/timesync"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// Handler is the fusion side of the pipeline.
type Handler interface {
	HandleDirect(ctx context.Context, b fusion.DirectBundle) (pose.Stamped, error)
	HandleAngular(ctx context.Context, b fusion.AngularBundle) (pose.Stamped, error)
}

// Topics the pipeline listens on.
type Topics struct {
	USBLLong   string
	USBLAngles string
	Depth      string
	Buoy       string
	NEDOrigin  string
}

// NEDOrigin is the payload of the origin topic.
type NEDOrigin struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// event is one decoded MQTT delivery.
type event struct {
	direct  *usbl.DirectFix
	angular *usbl.AngularFix
	depth   *usbl.DepthSample
	buoy    *gps.Fix
}

// Pipeline funnels every subscription into one goroutine that drives the
// synchronizers and the orchestrator, so bundles never overlap.
type Pipeline struct {
	handler Handler
	params  *config.Params
	metrics *metrics.Collector
	log     logging.Logger
	events  chan event
	done    chan struct{} // closed when Run returns
	once    sync.Once

	direct  *timesync.Pair[usbl.DirectFix, gps.Fix]
	angular *timesync.Triple[usbl.AngularFix, usbl.DepthSample, gps.Fix]

	directStats  timesync.Stats
	angularStats timesync.Stats

	now func() time.Time
}

// NewPipeline builds a pipeline; params receives origin updates.
func NewPipeline(h Handler, params *config.Params, slop time.Duration, queueSize int, m *metrics.Collector, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{
		handler: h,
		params:  params,
		metrics: m,
		log:     log.With(logging.String("component", "pipeline")),
		events:  make(chan event, 4*queueSizeOrDefault(queueSize)),
		done:    make(chan struct{}),
		direct:  timesync.NewPair[usbl.DirectFix, gps.Fix](slop, queueSize),
		angular: timesync.NewTriple[usbl.AngularFix, usbl.DepthSample, gps.Fix](slop, queueSize),
		now:     time.Now,
	}
}

func queueSizeOrDefault(n int) int {
	if n <= 0 {
		return timesync.DefaultQueueSize
	}
	return n
}

// Subscribe registers the MQTT handlers. An empty topic is skipped.
func (p *Pipeline) Subscribe(client bus.Client, t Topics) error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{t.USBLLong, p.decode(func(b []byte) (event, error) {
			var f usbl.DirectFix
			err := json.Unmarshal(b, &f)
			return event{direct: &f}, err
		})},
		{t.USBLAngles, p.decode(func(b []byte) (event, error) {
			var f usbl.AngularFix
			err := json.Unmarshal(b, &f)
			return event{angular: &f}, err
		})},
		{t.Depth, p.decode(func(b []byte) (event, error) {
			var d usbl.DepthSample
			err := json.Unmarshal(b, &d)
			return event{depth: &d}, err
		})},
		{t.Buoy, p.decode(func(b []byte) (event, error) {
			var f gps.Fix
			err := json.Unmarshal(b, &f)
			return event{buoy: &f}, err
		})},
		{t.NEDOrigin, p.originHandler},
	}
	for _, s := range subs {
		if s.topic == "" {
			continue
		}
		if err := bus.Subscribe(client, s.topic, s.handler); err != nil {
			return err
		}
		p.log.Info(context.Background(), "subscribed", logging.String("topic", s.topic))
	}
	return nil
}

func (p *Pipeline) decode(fn func([]byte) (event, error)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := fn(msg.Payload())
		if err != nil {
			p.log.Warn(context.Background(), "payload unmarshal error",
				logging.String("topic", msg.Topic()), logging.Err(err))
			return
		}
		select {
		case p.events <- ev:
		case <-p.done:
		}
	}
}

// originHandler writes straight to the parameter store; Params is safe for
// concurrent use.
func (p *Pipeline) originHandler(_ mqtt.Client, msg mqtt.Message) {
	var o NEDOrigin
	if err := json.Unmarshal(msg.Payload(), &o); err != nil {
		p.log.Warn(context.Background(), "ned origin unmarshal error", logging.Err(err))
		return
	}
	p.params.Set(config.ParamNEDOriginLat, o.Latitude)
	p.params.Set(config.ParamNEDOriginLon, o.Longitude)
	p.log.Info(context.Background(), "ned origin set",
		logging.Float("lat", o.Latitude), logging.Float("lon", o.Longitude))
}

// Run processes events until ctx is done. Deliveries arriving after Run
// returns are discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.once.Do(func() { close(p.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			p.process(ctx, ev)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, ev event) {
	switch {
	case ev.direct != nil:
		f := *ev.direct
		if f.Stamp.IsZero() {
			f.Stamp = p.now()
		}
		p.runDirect(ctx, p.direct.PushA(f))
	case ev.angular != nil:
		f := *ev.angular
		if f.Stamp.IsZero() {
			f.Stamp = p.now()
		}
		p.runAngular(ctx, p.angular.PushA(f))
	case ev.depth != nil:
		d := *ev.depth
		if d.Stamp.IsZero() {
			d.Stamp = p.now()
		}
		p.runAngular(ctx, p.angular.PushB(d))
	case ev.buoy != nil:
		f := *ev.buoy
		if f.Stamp.IsZero() {
			f.Stamp = p.now()
		}
		p.runDirect(ctx, p.direct.PushB(f))
		p.runAngular(ctx, p.angular.PushC(f))
	}
	p.reportDrops()
}

func (p *Pipeline) runDirect(ctx context.Context, matches []timesync.PairMatch[usbl.DirectFix, gps.Fix]) {
	for _, m := range matches {
		// errors are logged and counted by the orchestrator
		_, _ = p.handler.HandleDirect(ctx, fusion.DirectBundle{Fix: m.A, Buoy: m.B})
	}
}

func (p *Pipeline) runAngular(ctx context.Context, matches []timesync.TripleMatch[usbl.AngularFix, usbl.DepthSample, gps.Fix]) {
	for _, m := range matches {
		_, _ = p.handler.HandleAngular(ctx, fusion.AngularBundle{Fix: m.A, Depth: m.B, Buoy: m.C})
	}
}

func (p *Pipeline) reportDrops() {
	d := p.direct.Stats()
	p.metrics.AddSyncDropped(fusion.PathDirect, "unmatched", d.Unmatched-p.directStats.Unmatched)
	p.metrics.AddSyncDropped(fusion.PathDirect, "overflow", d.Overflow-p.directStats.Overflow)
	p.directStats = d

	a := p.angular.Stats()
	p.metrics.AddSyncDropped(fusion.PathAngular, "unmatched", a.Unmatched-p.angularStats.Unmatched)
	p.metrics.AddSyncDropped(fusion.PathAngular, "overflow", a.Overflow-p.angularStats.Overflow)
	p.angularStats = a
}
