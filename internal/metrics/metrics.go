// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the positioning metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Bundles          *prometheus.CounterVec
	BundleDurations  *prometheus.HistogramVec
	SyncDropped      *prometheus.CounterVec
	StaticOffsetSet  prometheus.Gauge
	PositionVariance *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	bundles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_bundles_total",
		Help: "Processed measurement bundles, labeled by path (direct, angular) and outcome.",
	}, []string{"path", "outcome"}), "usbl_bundles_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usbl_bundle_duration_seconds",
		Help:    "Time spent fusing one bundle, including transform lookups.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"path"}), "usbl_bundle_duration_seconds")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usbl_sync_dropped_total",
		Help: "Messages discarded by the time synchronizers, labeled by path and reason.",
	}, []string{"path", "reason"}), "usbl_sync_dropped_total")
	if err != nil {
		return nil, err
	}

	offset, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "usbl_static_offset_cached",
		Help: "1 once the buoy to usbl offset has been resolved and cached.",
	}), "usbl_static_offset_cached")
	if err != nil {
		return nil, err
	}

	variance, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "usbl_modem_position_variance",
		Help: "Position variance of the last published modem pose, m².",
	}, []string{"axis"}), "usbl_modem_position_variance")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Bundles:          bundles,
		BundleDurations:  durations,
		SyncDropped:      dropped,
		StaticOffsetSet:  offset,
		PositionVariance: variance,
	}, nil
}

// ObserveBundle records one processed bundle.
func (c *Collector) ObserveBundle(path, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Bundles.WithLabelValues(path, outcome).Inc()
	c.BundleDurations.WithLabelValues(path).Observe(elapsed.Seconds())
}

// AddSyncDropped adds n discarded messages.
func (c *Collector) AddSyncDropped(path, reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.SyncDropped.WithLabelValues(path, reason).Add(float64(n))
}

// SetStaticOffsetCached flips the offset gauge.
func (c *Collector) SetStaticOffsetCached(cached bool) {
	if c == nil {
		return
	}
	if cached {
		c.StaticOffsetSet.Set(1)
	} else {
		c.StaticOffsetSet.Set(0)
	}
}

// SetPositionVariance publishes the diagonal of the last output.
func (c *Collector) SetPositionVariance(xx, yy, zz float64) {
	if c == nil {
		return
	}
	c.PositionVariance.WithLabelValues("x").Set(xx)
	c.PositionVariance.WithLabelValues("y").Set(yy)
	c.PositionVariance.WithLabelValues("z").Set(zz)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
