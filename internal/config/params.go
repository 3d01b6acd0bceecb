// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Params is a shared key/value parameter store. Nested keys use "/" as
// separator, e.g. "navigator/ned_origin_lat".
type Params struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewParams returns an empty store.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set stores value under key.
func (p *Params) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Float returns key as a float64. Integers and numeric strings are converted.
func (p *Params) Float(key string) (float64, bool) {
	p.mu.RLock()
	v, ok := p.values[key]
	p.mu.RUnlock()
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String returns key formatted as a string.
func (p *Params) String(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Keys returns a snapshot of the stored keys.
func (p *Params) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	return keys
}

// LoadParamsFile merges a YAML document into p. Nested mappings are
// flattened:
//
//	navigator:
//	  ned_origin_lat: 41.38
//
// becomes "navigator/ned_origin_lat".
func (p *Params) LoadParamsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse params file %s: %w", path, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	flatten("", doc, p.values)
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// NewParamsFromConfig builds the store from PARAMS_FILE and applies the
// NED_ORIGIN_LAT/LON overrides on top.
func NewParamsFromConfig(cfg *Config) (*Params, error) {
	p := NewParams()
	if cfg.ParamsFile != "" {
		if err := p.LoadParamsFile(cfg.ParamsFile); err != nil {
			return nil, err
		}
	}
	if cfg.HasNEDOrigin {
		p.Set(ParamNEDOriginLat, cfg.NEDOriginLat)
		p.Set(ParamNEDOriginLon, cfg.NEDOriginLon)
	}
	return p, nil
}

// Well-known parameter keys.
const (
	ParamNEDOriginLat = "navigator/ned_origin_lat"
	ParamNEDOriginLon = "navigator/ned_origin_lon"
)
