// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timesurface

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emer/etable/etensor"

	"github.com/neuromorphic-paris/gohots/events"
	"github.com/neuromorphic-paris/gohots/stream"
)

// Pool maintains one independent time surface calculator per polarity
// channel and dispatches per-event operations to the right one.  All
// calculators in a pool share the same parameters, cloned from a single
// prototype at construction.
type Pool struct {
	Surfaces []Calculator `desc:"one calculator per polarity channel"`
}

// NewPool returns a pool of polarities clones of the prototype
// calculator.
func NewPool(proto Calculator, polarities uint16) (*Pool, error) {
	if proto == nil {
		return nil, fmt.Errorf("timesurface: pool prototype must not be nil")
	}
	if polarities == 0 {
		return nil, fmt.Errorf("timesurface: pool must have at least one polarity")
	}
	p := &Pool{Surfaces: make([]Calculator, polarities)}
	for i := range p.Surfaces {
		p.Surfaces[i] = proto.Clone()
	}
	return p, nil
}

func (p *Pool) surface(pol uint16) (Calculator, error) {
	if int(pol) >= len(p.Surfaces) {
		return nil, fmt.Errorf("%w: polarity %d on a pool of %d", ErrPolarity, pol, len(p.Surfaces))
	}
	return p.Surfaces[pol], nil
}

// Update records activity at (x,y) at time t on polarity pol.
func (p *Pool) Update(t uint64, x, y, pol uint16) error {
	ts, err := p.surface(pol)
	if err != nil {
		return err
	}
	ts.Update(t, x, y)
	return nil
}

// UpdateEvent is Update taking an event record.
func (p *Pool) UpdateEvent(ev events.Event) error {
	return p.Update(ev.T, ev.X, ev.Y, ev.P)
}

// Compute extracts the surface for (t,x,y) on polarity pol without
// mutating the pool.
func (p *Pool) Compute(t uint64, x, y, pol uint16) (*etensor.Float32, bool, error) {
	ts, err := p.surface(pol)
	if err != nil {
		return nil, false, err
	}
	sur, good := ts.Compute(t, x, y)
	return sur, good, nil
}

// ComputeEvent is Compute taking an event record.
func (p *Pool) ComputeEvent(ev events.Event) (*etensor.Float32, bool, error) {
	return p.Compute(ev.T, ev.X, ev.Y, ev.P)
}

// UpdateAndCompute updates polarity pol and computes the new surface.
func (p *Pool) UpdateAndCompute(t uint64, x, y, pol uint16) (*etensor.Float32, bool, error) {
	ts, err := p.surface(pol)
	if err != nil {
		return nil, false, err
	}
	sur, good := ts.UpdateAndCompute(t, x, y)
	return sur, good, nil
}

// UpdateAndComputeEvent is UpdateAndCompute taking an event record.
func (p *Pool) UpdateAndComputeEvent(ev events.Event) (*etensor.Float32, bool, error) {
	return p.UpdateAndCompute(ev.T, ev.X, ev.Y, ev.P)
}

// Surface returns the calculator for polarity pol.
func (p *Pool) Surface(pol uint16) (Calculator, error) {
	return p.surface(pol)
}

// NumSurfaces returns the number of polarity channels.
func (p *Pool) NumSurfaces() int {
	return len(p.Surfaces)
}

// Size returns the visible context size shared by all calculators.
func (p *Pool) Size() (w, h uint16) {
	return p.Surfaces[0].Size()
}

// WindowSize returns the surface window size shared by all calculators.
func (p *Pool) WindowSize() (wx, wy uint16) {
	return p.Surfaces[0].WindowSize()
}

// SampleContexts decays every channel's visible context to time t.
func (p *Pool) SampleContexts(t uint64) []*etensor.Float32 {
	ctxs := make([]*etensor.Float32, len(p.Surfaces))
	for i, ts := range p.Surfaces {
		ctxs[i] = ts.SampleContext(t)
	}
	return ctxs
}

// Reset reinitializes every calculator in the pool.
func (p *Pool) Reset() {
	for _, ts := range p.Surfaces {
		ts.Reset()
	}
}

// Clone returns an independent deep copy of the pool.
func (p *Pool) Clone() *Pool {
	cp := &Pool{Surfaces: make([]Calculator, len(p.Surfaces))}
	for i, ts := range p.Surfaces {
		cp.Surfaces[i] = ts.Clone()
	}
	return cp
}

// ToStream writes the pool: the channel count, then each calculator with
// its own type tag.
func (p *Pool) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, PoolTag); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d\n", len(p.Surfaces)); err != nil {
		return err
	}
	for _, ts := range p.Surfaces {
		if err := ts.ToStream(w); err != nil {
			return err
		}
	}
	return nil
}

// FromStream reads a pool written by ToStream, reconstructing each
// calculator's concrete type from its tag.
func (p *Pool) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, PoolTag); err != nil {
		return err
	}
	n, err := stream.Int(r)
	if err != nil {
		return err
	}
	p.Surfaces = make([]Calculator, n)
	for i := range p.Surfaces {
		ts, err := LoadCalculator(r)
		if err != nil {
			return err
		}
		p.Surfaces[i] = ts
	}
	return nil
}

// LoadCalculator reads the next type tag from the stream and loads the
// matching calculator variant.
func LoadCalculator(r *bufio.Reader) (Calculator, error) {
	tag, err := stream.NextMeta(r)
	if err != nil {
		return nil, err
	}
	var ts Calculator
	switch tag {
	case LinearTag:
		ts = &Linear{}
	case WeightedLinearTag:
		ts = &WeightedLinear{}
	case DynamicTag:
		ts = &Dynamic{}
	default:
		return nil, fmt.Errorf("%w: unknown time surface type %q", stream.ErrWrongMeta, tag)
	}
	if err := ts.FromStream(r); err != nil {
		return nil, err
	}
	return ts, nil
}
