// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package timesync pairs messages from independent streams by stamp.
//
// The first stream is the pivot. Each pivot message is matched with the
// message of every other stream closest to it within Slop, and each
// message is used at most once. A stream's candidate is final once that
// stream has delivered something stamped at or after the pivot; if it has
// and nothing lies within Slop, the pivot is dropped. Streams are assumed
// to arrive in stamp order.
package timesync

import (
	"time"
)

// DefaultQueueSize bounds each per-stream queue.
const DefaultQueueSize = 70

// Stamped is anything carrying a timestamp.
type Stamped interface {
	Timestamp() time.Time
}

type queue[T Stamped] struct {
	items []T
	max   int
}

func newQueue[T Stamped](n int) queue[T] {
	if n <= 0 {
		n = DefaultQueueSize
	}
	return queue[T]{max: n}
}

func (q *queue[T]) push(v T) (overflow bool) {
	q.items = append(q.items, v)
	if len(q.items) > q.max {
		q.items = q.items[1:]
		return true
	}
	return false
}

// candidate drops items that are too old for t, then returns the index of
// the item nearest to t within slop (-1 if none) and whether the queue has
// reached t.
func (q *queue[T]) candidate(t time.Time, slop time.Duration) (idx int, reached bool) {
	n := 0
	for n < len(q.items) && t.Sub(q.items[n].Timestamp()) > slop {
		n++
	}
	q.items = q.items[n:]
	if len(q.items) == 0 {
		return -1, false
	}

	idx = -1
	var best time.Duration
	for i, v := range q.items {
		d := v.Timestamp().Sub(t)
		if d < 0 {
			d = -d
		}
		if d <= slop && (idx < 0 || d < best) {
			idx, best = i, d
		}
	}
	reached = !q.items[len(q.items)-1].Timestamp().Before(t)
	return idx, reached
}

// take removes and returns items[i] together with everything before it.
func (q *queue[T]) take(i int) T {
	v := q.items[i]
	q.items = q.items[i+1:]
	return v
}

func (q *queue[T]) pop() T {
	return q.take(0)
}

// Stats counts what a synchronizer discarded.
type Stats struct {
	Unmatched int // pivots dropped without a partner
	Overflow  int // messages pushed out of a full queue
}

// Pair synchronizes pivot stream A with stream B. Not safe for concurrent use.
type Pair[A, B Stamped] struct {
	slop  time.Duration
	a     queue[A]
	b     queue[B]
	stats Stats
}

// PairMatch is one synchronized set.
type PairMatch[A, B Stamped] struct {
	A A
	B B
}

// NewPair returns a synchronizer; queueSize <= 0 selects DefaultQueueSize.
func NewPair[A, B Stamped](slop time.Duration, queueSize int) *Pair[A, B] {
	return &Pair[A, B]{slop: slop, a: newQueue[A](queueSize), b: newQueue[B](queueSize)}
}

// PushA adds a pivot message and returns the sets it completed.
func (p *Pair[A, B]) PushA(v A) []PairMatch[A, B] {
	if p.a.push(v) {
		p.stats.Overflow++
	}
	return p.drain()
}

// PushB adds a B message and returns the sets it completed.
func (p *Pair[A, B]) PushB(v B) []PairMatch[A, B] {
	if p.b.push(v) {
		p.stats.Overflow++
	}
	return p.drain()
}

// Stats returns the discard counters.
func (p *Pair[A, B]) Stats() Stats { return p.stats }

func (p *Pair[A, B]) drain() []PairMatch[A, B] {
	var out []PairMatch[A, B]
	for len(p.a.items) > 0 {
		t := p.a.items[0].Timestamp()
		ib, reached := p.b.candidate(t, p.slop)
		if !reached {
			break
		}
		pivot := p.a.pop()
		if ib < 0 {
			p.stats.Unmatched++
			continue
		}
		out = append(out, PairMatch[A, B]{A: pivot, B: p.b.take(ib)})
	}
	return out
}

// Triple synchronizes pivot stream A with streams B and C. Not safe for
// concurrent use.
type Triple[A, B, C Stamped] struct {
	slop  time.Duration
	a     queue[A]
	b     queue[B]
	c     queue[C]
	stats Stats
}

// TripleMatch is one synchronized set.
type TripleMatch[A, B, C Stamped] struct {
	A A
	B B
	C C
}

// NewTriple returns a synchronizer; queueSize <= 0 selects DefaultQueueSize.
func NewTriple[A, B, C Stamped](slop time.Duration, queueSize int) *Triple[A, B, C] {
	return &Triple[A, B, C]{
		slop: slop,
		a:    newQueue[A](queueSize),
		b:    newQueue[B](queueSize),
		c:    newQueue[C](queueSize),
	}
}

func (s *Triple[A, B, C]) PushA(v A) []TripleMatch[A, B, C] {
	if s.a.push(v) {
		s.stats.Overflow++
	}
	return s.drain()
}

func (s *Triple[A, B, C]) PushB(v B) []TripleMatch[A, B, C] {
	if s.b.push(v) {
		s.stats.Overflow++
	}
	return s.drain()
}

func (s *Triple[A, B, C]) PushC(v C) []TripleMatch[A, B, C] {
	if s.c.push(v) {
		s.stats.Overflow++
	}
	return s.drain()
}

// Stats returns the discard counters.
func (s *Triple[A, B, C]) Stats() Stats { return s.stats }

func (s *Triple[A, B, C]) drain() []TripleMatch[A, B, C] {
	var out []TripleMatch[A, B, C]
	for len(s.a.items) > 0 {
		t := s.a.items[0].Timestamp()
		ib, reachedB := s.b.candidate(t, s.slop)
		ic, reachedC := s.c.candidate(t, s.slop)
		switch {
		case (reachedB && ib < 0) || (reachedC && ic < 0):
			s.a.pop()
			s.stats.Unmatched++
			continue
		case !reachedB || !reachedC:
			return out
		}
		out = append(out, TripleMatch[A, B, C]{A: s.a.pop(), B: s.b.take(ib), C: s.c.take(ic)})
	}
	return out
}
