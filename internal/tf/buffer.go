// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/usbl_position/internal/pose"
)

var (
	// ErrNotFound means no chain of transforms connects the two frames.
	ErrNotFound = errors.New("transform not found")
	// ErrTimeout means the lookup context expired before a chain appeared.
	ErrTimeout = errors.New("transform lookup timed out")
	// ErrInvalid rejects transforms that would break the tree.
	ErrInvalid = errors.New("invalid transform")
)

// Buffer is the latest-value transform tree. Each child has exactly one
// parent. Safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	edges   map[string]edge // keyed by child
	changed chan struct{}   // closed and replaced on every update
}

type edge struct {
	t      Transform
	static bool
}

// NewBuffer returns an empty tree.
func NewBuffer() *Buffer {
	return &Buffer{
		edges:   make(map[string]edge),
		changed: make(chan struct{}),
	}
}

// Set stores a dynamic transform, replacing any previous one for the child.
func (b *Buffer) Set(t Transform) error { return b.set(t, false) }

// SetStatic stores a transform that never expires.
func (b *Buffer) SetStatic(t Transform) error { return b.set(t, true) }

func (b *Buffer) set(t Transform, static bool) error {
	if t.Parent == "" || t.Child == "" {
		return fmt.Errorf("%w: empty frame id (%q -> %q)", ErrInvalid, t.Parent, t.Child)
	}
	if t.Parent == t.Child {
		return fmt.Errorf("%w: frame %q is its own parent", ErrInvalid, t.Child)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Reparenting must not close a loop.
	for f := t.Parent; ; {
		if f == t.Child {
			return fmt.Errorf("%w: %q -> %q creates a cycle", ErrInvalid, t.Parent, t.Child)
		}
		e, ok := b.edges[f]
		if !ok {
			break
		}
		f = e.t.Parent
	}

	b.edges[t.Child] = edge{t: t, static: static}
	close(b.changed)
	b.changed = make(chan struct{})
	return nil
}

// Frames returns the known child frames and whether each is static.
func (b *Buffer) Frames() map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]bool, len(b.edges))
	for k, e := range b.edges {
		out[k] = e.static
	}
	return out
}

// Lookup returns the transform placing source in target, waiting for the
// tree to connect them until ctx is done.
func (b *Buffer) Lookup(ctx context.Context, target, source string) (Transform, error) {
	for {
		b.mu.RLock()
		t, err := b.resolve(target, source)
		wait := b.changed
		b.mu.RUnlock()
		if err == nil {
			return t, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return Transform{}, fmt.Errorf("%w: %s -> %s: %v", ErrTimeout, target, source, ctx.Err())
		}
	}
}

// TryLookup is Lookup without waiting.
func (b *Buffer) TryLookup(target, source string) (Transform, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolve(target, source)
}

// resolve walks both frames up to their first common ancestor. Must hold mu.
func (b *Buffer) resolve(target, source string) (Transform, error) {
	if target == source {
		return FromPose(target, source, time.Time{}, pose.Identity()), nil
	}

	// ancestor -> pose of target in ancestor
	up := map[string]pose.PoseWithCovariance{target: pose.Identity()}
	acc := pose.Identity()
	for f := target; ; {
		e, ok := b.edges[f]
		if !ok {
			break
		}
		acc = pose.Compose(e.t.Pose(), acc)
		f = e.t.Parent
		up[f] = acc
	}

	acc = pose.Identity()
	var stamp time.Time
	for f := source; ; {
		if inTarget, ok := up[f]; ok {
			p := pose.Compose(pose.Inverse(inTarget), acc)
			return FromPose(target, source, stamp, p), nil
		}
		e, ok := b.edges[f]
		if !ok {
			return Transform{}, fmt.Errorf("%w: %s -> %s", ErrNotFound, target, source)
		}
		acc = pose.Compose(e.t.Pose(), acc)
		if e.t.Stamp.After(stamp) {
			stamp = e.t.Stamp
		}
		f = e.t.Parent
	}
}
