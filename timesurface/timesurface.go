// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package timesurface implements the time surface computation engine at the
heart of HOTS.

A calculator keeps, for one polarity channel, a temporal context: a 2D
grid holding the last activation time of every pixel, padded by the
window radii so that window extraction never needs boundary checks.  For
each incoming event the context cell is updated, and a window centered on
the event is read out through a monotonically decreasing function of
elapsed time, clipped to [0,1] -- the time surface.  A surface is valid
when enough of its cells have seen recent activity, using the heuristic
min_events = min(2*sqrt(Rx*Ry), 0.25*Wx*Wy) (at least 1), with the 25%
cap forced whenever a radius is 0 and the full dimension is used.

Calculators assume Update is called in chronological (non-decreasing
timestamp) order, and must be Reset between independent event streams to
avoid cross-stream leakage.
*/
package timesurface

import (
	"errors"
	"math"

	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"

	"github.com/neuromorphic-paris/gohots/stream"
)

// Calculator computes time surfaces from a stream of per-pixel updates.
// Concrete variants differ in the decay/activation function applied when
// a surface is read out of the temporal context.
type Calculator interface {
	stream.Streamable

	// Update records activity at (x,y) at time t in the temporal context.
	Update(t uint64, x, y uint16)

	// Compute extracts the decayed window centered at (x,y) at time t,
	// without mutating the context, and reports whether the surface is
	// valid (enough non-zero cells).
	Compute(t uint64, x, y uint16) (*etensor.Float32, bool)

	// UpdateAndCompute updates the context and computes the new surface
	// at the same coordinate -- the common per-event operation.
	UpdateAndCompute(t uint64, x, y uint16) (*etensor.Float32, bool)

	// Context returns the visible (unpadded) temporal context.
	Context() *etensor.Float32

	// FullContext returns the padded temporal context backing the
	// calculator, including the window-radius borders.
	FullContext() *etensor.Float32

	// SampleContext decays the entire visible context to time t and
	// returns it, for diagnostics; it does not mutate state.
	SampleContext(t uint64) *etensor.Float32

	// Reset reinitializes the context to the never-seen sentinel.  It
	// must be called before each independent event stream.
	Reset()

	// Size returns the visible context size as (width, height).
	Size() (w, h uint16)

	// WindowSize returns the surface window size as (Wx, Wy).
	WindowSize() (wx, wy uint16)

	// MinEvents returns the validity threshold derived from the window
	// geometry at construction; it is not reconfigurable.
	MinEvents() uint16

	// Clone returns an independent deep copy of the calculator.
	Clone() Calculator
}

// Serialization tags for the calculator variants.
const (
	LinearTag         = "LINEARTIMESURFACE"
	WeightedLinearTag = "WEIGHTEDLINEARTIMESURFACE"
	DynamicTag        = "DYNAMICTIMESURFACE"
	PoolTag           = "TIMESURFACEPOOL"
)

// ErrPolarity is wrapped by pool errors for out-of-range polarity ids.
var ErrPolarity = errors.New("polarity index exceeded")

// windowGeometry derives the window sizes and the minimum-events validity
// threshold from the context size and window radii.
func windowGeometry(width, height, rx, ry uint16) (wx, wy, minEvents uint16) {
	wx = 2*rx + 1
	wy = 2*ry + 1
	minEvents = uint16(2 * mat32.Sqrt(float32(rx)*float32(ry))) // same as 2R if Rx == Ry

	if rx == 0 {
		wx = width
		minEvents = math.MaxUint16 // force the 25% cap
	}
	if ry == 0 {
		wy = height
		minEvents = math.MaxUint16 // force the 25% cap
	}

	// minimum events should not exceed 25% of the window
	// (maximum of 2R/(2R+1)^2)
	cap25 := uint16(0.25 * float32(wx) * float32(wy))
	if cap25 < minEvents {
		minEvents = cap25
	}
	if minEvents == 0 { // there should be at least one event
		minEvents = 1
	}
	return
}

// cloneGrid copies a 2D grid.
func cloneGrid(g *etensor.Float32) *etensor.Float32 {
	cp := etensor.NewFloat32([]int{g.Dim(0), g.Dim(1)}, nil, []string{"Y", "X"})
	copy(cp.Values, g.Values)
	return cp
}

// fill sets every cell of a grid to v.
func fill(g *etensor.Float32, v float32) {
	for i := range g.Values {
		g.Values[i] = v
	}
}
