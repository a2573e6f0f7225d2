// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package events defines the address-event record produced by asynchronous
vision sensors and passed between HOTS layers.

An event is a plain value: a timestamp, a pair of pixel coordinates and a
polarity.  Layers re-emit events whose polarity field carries the id of
the extracted feature, so the polarity range grows as events move deeper
into a hierarchy.
*/
package events

import (
	"fmt"
	"math"
)

// Event is a single address-event: activity at pixel (X,Y) at time T on
// polarity (or feature) channel P.  Events are compared field-wise and
// copied freely.
type Event struct {
	T uint64 `desc:"timestamp of the event"`
	X uint16 `desc:"horizontal coordinate of the event"`
	Y uint16 `desc:"vertical coordinate of the event"`
	P uint16 `desc:"polarity (or feature id) of the event"`
}

// Invalid is the reserved sentinel signalling that no output event was
// produced.  It is distinguishable from any event a sensor or layer can
// legitimately emit.
var Invalid = Event{T: math.MaxUint64, X: math.MaxUint16, Y: math.MaxUint16, P: math.MaxUint16}

// IsValid reports whether ev is not the Invalid sentinel.
func (ev Event) IsValid() bool {
	return ev != Invalid
}

// String satisfies fmt.Stringer, printing the event as "(t, x, y, p)".
func (ev Event) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", ev.T, ev.X, ev.Y, ev.P)
}

// Events is an ordered stream of events.
type Events []Event

// Clone returns a copy of the stream.
func (evs Events) Clone() Events {
	cp := make(Events, len(evs))
	copy(cp, evs)
	return cp
}

// MergePolarities returns a copy of the stream with every polarity
// replaced according to mapping, merging or renumbering channels before
// they reach a time surface pool.  An event whose polarity is missing
// from the mapping is an error.
func MergePolarities(evs Events, mapping map[uint16]uint16) (Events, error) {
	out := make(Events, len(evs))
	for i, ev := range evs {
		np, ok := mapping[ev.P]
		if !ok {
			return nil, fmt.Errorf("events: polarity %d of event %v not present in mapping", ev.P, ev)
		}
		ev.P = np
		out[i] = ev
	}
	return out, nil
}
