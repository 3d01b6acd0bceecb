// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion turns time-aligned acoustic, GPS and depth inputs into a
// modem pose in the map frame.
package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/geodesy"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/logging"
	"github.com/relabs-tech/usbl_position/internal/metrics"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/recorder"
	"github.com/relabs-tech/usbl_position/internal/tf"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// Processing paths.
const (
	PathDirect  = "direct"
	PathAngular = "angular"
)

// TransformLookup resolves the static buoy->usbl offset.
type TransformLookup interface {
	Lookup(ctx context.Context, target, source string) (tf.Transform, error)
}

// Broadcaster shares the buoy pose with the transform tree.
type Broadcaster interface {
	Broadcast(t tf.Transform) error
}

// Publisher emits the fused pose. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, p pose.Stamped) error
}

// Recorder stores fused poses; optional.
type Recorder interface {
	Record(ctx context.Context, e recorder.Entry) error
}

// PathConfig holds per-path options.
type PathConfig struct {
	// CacheStaticOffset keeps the first successful offset lookup for the
	// process lifetime. When false the offset is looked up on every bundle.
	CacheStaticOffset bool
}

// Config parameterizes an Orchestrator.
type Config struct {
	MapFrame  string
	BuoyFrame string
	USBLFrame string

	MinDepth       float64   // angular path, metres
	Gate           usbl.Gate // direct path
	DirectVariance float64   // 0 = accuracy²

	Direct  PathConfig
	Angular PathConfig

	LookupTimeout           time.Duration
	SubtractPropagationTime bool
}

// DefaultConfig returns the stock thresholds and cache flags.
func DefaultConfig() Config {
	return Config{
		MapFrame:      "map",
		BuoyFrame:     "buoy",
		USBLFrame:     "usbl",
		MinDepth:      usbl.DefaultMinDepth,
		Gate:          usbl.DefaultGate(),
		Direct:        PathConfig{CacheStaticOffset: true},
		Angular:       PathConfig{CacheStaticOffset: false},
		LookupTimeout: 2 * time.Second,
	}
}

// Deps are the collaborators of an Orchestrator. Transforms, Publisher and
// Params are required; the rest may be nil.
type Deps struct {
	Transforms  TransformLookup
	Broadcaster Broadcaster
	Publisher   Publisher
	Params      geodesy.ParamSource
	Logger      logging.Logger
	Metrics     *metrics.Collector
	Recorder    Recorder
}

// DirectBundle is a USBLLONG fix with the buoy fix closest in time.
type DirectBundle struct {
	Fix  usbl.DirectFix
	Buoy gps.Fix
}

// AngularBundle is a USBLANGLES fix with the depth and buoy fix closest in time.
type AngularBundle struct {
	Fix   usbl.AngularFix
	Depth usbl.DepthSample
	Buoy  gps.Fix
}

// State of the cached offset.
type State int

const (
	StateAwaitingOffset State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingOffset:
		return "awaiting_offset"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Orchestrator fuses one bundle at a time.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  logging.Logger

	mu     sync.Mutex
	offset *pose.PoseWithCovariance // set once, never refreshed
}

// New returns an orchestrator in StateAwaitingOffset.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Noop()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultConfig().LookupTimeout
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(logging.String("component", "fusion")),
	}
}

// State reports whether the static offset has been cached.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offset == nil {
		return StateAwaitingOffset
	}
	return StateReady
}

// ResolveStaticOffset returns the cached buoy->usbl offset, looking it up
// and caching it on first success.
func (o *Orchestrator) ResolveStaticOffset(ctx context.Context) (pose.PoseWithCovariance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offset != nil {
		return *o.offset, nil
	}
	p, err := o.lookupOffset(ctx)
	if err != nil {
		return pose.PoseWithCovariance{}, err
	}
	o.offset = &p
	o.deps.Metrics.SetStaticOffsetCached(true)
	o.log.Info(ctx, "static offset cached",
		logging.String("parent", o.cfg.BuoyFrame), logging.String("child", o.cfg.USBLFrame),
		logging.Float("x", p.Position.X), logging.Float("y", p.Position.Y), logging.Float("z", p.Position.Z))
	return p, nil
}

func (o *Orchestrator) lookupOffset(ctx context.Context) (pose.PoseWithCovariance, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LookupTimeout)
	defer cancel()
	t, err := o.deps.Transforms.Lookup(ctx, o.cfg.BuoyFrame, o.cfg.USBLFrame)
	if err != nil {
		return pose.PoseWithCovariance{}, fmt.Errorf("%w: %s -> %s: %v", ErrMissingStaticOffset, o.cfg.BuoyFrame, o.cfg.USBLFrame, err)
	}
	// Zero covariance: the mounting is treated as exact.
	return t.Pose(), nil
}

func (o *Orchestrator) staticOffset(ctx context.Context, pc PathConfig) (pose.PoseWithCovariance, error) {
	if pc.CacheStaticOffset {
		return o.ResolveStaticOffset(ctx)
	}
	return o.lookupOffset(ctx)
}

// buoyPose converts the buoy fix into the map->buoy pose and broadcasts it.
// The buoy sits on the surface: altitude and down are forced to zero.
func (o *Orchestrator) buoyPose(ctx context.Context, log logging.Logger, fix gps.Fix) (pose.PoseWithCovariance, error) {
	if !fix.HasFix() {
		return pose.PoseWithCovariance{}, fmt.Errorf("%w: quality=%q validity=%q", ErrInvalidBuoyFix, fix.Quality, fix.Validity)
	}
	origin, err := geodesy.OriginFrom(o.deps.Params)
	if err != nil {
		return pose.PoseWithCovariance{}, err
	}
	ned := geodesy.NewConverter(origin).ToNED(fix.Latitude, fix.Longitude, 0)

	p := pose.Identity()
	p.Position = r3.Vec{X: ned.North, Y: ned.East, Z: 0}

	if o.deps.Broadcaster != nil {
		t := tf.FromPose(o.cfg.MapFrame, o.cfg.BuoyFrame, fix.Stamp, p)
		if err := o.deps.Broadcaster.Broadcast(t); err != nil {
			log.Warn(ctx, "buoy transform broadcast failed", logging.Err(err))
		}
	}
	return p, nil
}

// HandleDirect fuses a USBLLONG bundle.
func (o *Orchestrator) HandleDirect(ctx context.Context, b DirectBundle) (pose.Stamped, error) {
	start := time.Now()
	ctx, log, id := logging.WithBundle(ctx, o.log)
	log = log.With(logging.String("path", PathDirect))

	out, err := o.handleDirect(ctx, log, b)
	o.finish(ctx, log, PathDirect, start, err)
	if err != nil {
		return pose.Stamped{}, err
	}
	o.emit(ctx, log, PathDirect, id, out, b.Buoy, b.Fix)
	return out, nil
}

func (o *Orchestrator) handleDirect(ctx context.Context, log logging.Logger, b DirectBundle) (pose.Stamped, error) {
	buoy, err := o.buoyPose(ctx, log, b.Buoy)
	if err != nil {
		return pose.Stamped{}, err
	}
	offset, err := o.staticOffset(ctx, o.cfg.Direct)
	if err != nil {
		return pose.Stamped{}, err
	}
	if err := o.cfg.Gate.Admit(b.Fix); err != nil {
		return pose.Stamped{}, err
	}

	meas, err := usbl.MeasurementFromDirect(b.Fix, o.cfg.DirectVariance)
	if err != nil {
		return pose.Stamped{}, err
	}
	stamp := b.Fix.Stamp
	if o.cfg.SubtractPropagationTime && b.Fix.PropagationTime > 0 {
		stamp = stamp.Add(-time.Duration(b.Fix.PropagationTime * float64(time.Second)))
	}
	return pose.Stamped{
		Frame: o.cfg.MapFrame,
		Stamp: stamp,
		Pose:  pose.Chain(buoy, offset, meas),
	}, nil
}

// HandleAngular fuses a USBLANGLES bundle.
func (o *Orchestrator) HandleAngular(ctx context.Context, b AngularBundle) (pose.Stamped, error) {
	start := time.Now()
	ctx, log, id := logging.WithBundle(ctx, o.log)
	log = log.With(logging.String("path", PathAngular))

	out, err := o.handleAngular(ctx, log, b)
	o.finish(ctx, log, PathAngular, start, err)
	if err != nil {
		return pose.Stamped{}, err
	}
	o.emit(ctx, log, PathAngular, id, out, b.Buoy, b.Fix)
	return out, nil
}

func (o *Orchestrator) handleAngular(ctx context.Context, log logging.Logger, b AngularBundle) (pose.Stamped, error) {
	buoy, err := o.buoyPose(ctx, log, b.Buoy)
	if err != nil {
		return pose.Stamped{}, err
	}
	offset, err := o.staticOffset(ctx, o.cfg.Angular)
	if err != nil {
		return pose.Stamped{}, err
	}
	meas, err := usbl.MeasurementFromAngles(b.Fix, b.Depth, o.cfg.MinDepth)
	if err != nil {
		return pose.Stamped{}, err
	}
	return pose.Stamped{
		Frame: o.cfg.MapFrame,
		Stamp: b.Fix.Stamp,
		Pose:  pose.Chain(buoy, offset, meas),
	}, nil
}

func (o *Orchestrator) finish(ctx context.Context, log logging.Logger, path string, start time.Time, err error) {
	outcome := Outcome(err)
	o.deps.Metrics.ObserveBundle(path, outcome, time.Since(start))
	switch outcome {
	case "accepted":
	case "missing_origin":
		log.Error(ctx, "impossible to get the ned origin", logging.Err(err))
	case "error":
		log.Error(ctx, "bundle failed", logging.Err(err))
	default:
		log.Warn(ctx, "bundle dropped", logging.String("reason", outcome), logging.Err(err))
	}
}

func (o *Orchestrator) emit(ctx context.Context, log logging.Logger, path, id string, out pose.Stamped, buoy gps.Fix, raw any) {
	if err := o.deps.Publisher.Publish(ctx, out); err != nil {
		log.Warn(ctx, "publish failed", logging.Err(err))
	}

	xx, yy, zz := out.Pose.PositionVariance()
	o.deps.Metrics.SetPositionVariance(xx, yy, zz)
	log.Debug(ctx, "modem pose",
		logging.Float("x", out.Pose.Position.X), logging.Float("y", out.Pose.Position.Y), logging.Float("z", out.Pose.Position.Z),
		logging.Float("var_x", xx), logging.Float("var_y", yy), logging.Float("var_z", zz))

	if o.deps.Recorder == nil {
		return
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		log.Warn(ctx, "raw fix marshal failed", logging.Err(err))
	}
	entry := recorder.Entry{
		BundleID: id,
		Path:     path,
		Stamp:    out.Stamp,
		Frame:    out.Frame,
		Position: out.Pose.Position,
		Variance: r3.Vec{X: xx, Y: yy, Z: zz},
		BuoyLat:  buoy.Latitude,
		BuoyLon:  buoy.Longitude,
		RawFix:   rawJSON,
	}
	if err := o.deps.Recorder.Record(ctx, entry); err != nil {
		log.Warn(ctx, "record failed", logging.Err(err))
	}
}
