// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timesurface

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emer/etable/etensor"

	"github.com/neuromorphic-paris/gohots/stream"
)

// Linear is the standard HOTS time surface calculator, with the linear
// activation max(0, 1 - (t - last)/Tau).
//
// The padded temporal context is initialized to -Tau, so a cell that was
// never updated reads as activity infinitely long ago and decays to 0.
//
// It is possible to use the whole context in a dimension by setting Rx or
// Ry to 0; this knowingly breaks the assumption that the current event is
// centered in the surface.
type Linear struct {
	Width  uint16 `desc:"width of the full time context"`
	Height uint16 `desc:"height of the full time context"`
	Rx     uint16 `desc:"horizontal radius of the surface window (0 to use the full width)"`
	Ry     uint16 `desc:"vertical radius of the surface window (0 to use the full height)"`

	Wx     uint16 `inactive:"+" desc:"horizontal window size, derived from Rx"`
	Wy     uint16 `inactive:"+" desc:"vertical window size, derived from Ry"`
	MinEvs uint16 `inactive:"+" desc:"minimum non-zero window cells for a surface to be valid, derived from the radii"`

	Tau float32 `min:"0" desc:"time constant of the linear decay"`

	Ctx *etensor.Float32 `view:"-" desc:"padded temporal context, shape (Height+2Ry) x (Width+2Rx), holding last activation times"`
}

// NewLinear returns a linear time surface calculator over a width x
// height context, with window radii rx, ry and time constant tau.
func NewLinear(width, height, rx, ry uint16, tau float32) (*Linear, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("timesurface: context size %dx%d must be positive", width, height)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("timesurface: time constant %g must be positive", tau)
	}
	ts := &Linear{Width: width, Height: height, Rx: rx, Ry: ry, Tau: tau}
	ts.Wx, ts.Wy, ts.MinEvs = windowGeometry(width, height, rx, ry)
	ts.Reset()
	return ts, nil
}

func (ts *Linear) Update(t uint64, x, y uint16) {
	cols := int(ts.Width) + 2*int(ts.Rx)
	ts.Ctx.Values[(int(y)+int(ts.Ry))*cols+int(x)+int(ts.Rx)] = float32(t)
}

func (ts *Linear) Compute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	// override for the full context
	if ts.Rx == 0 {
		x = 0
	}
	if ts.Ry == 0 {
		y = 0
	}

	wy, wx := int(ts.Wy), int(ts.Wx)
	cols := int(ts.Width) + 2*int(ts.Rx)
	sur := etensor.NewFloat32([]int{wy, wx}, nil, []string{"Y", "X"})

	// window starts at (y, x) in the padded context, not (y-Ry, x-Rx)
	nz := 0
	for iy := 0; iy < wy; iy++ {
		row := (int(y) + iy) * cols
		for ix := 0; ix < wx; ix++ {
			v := 1 - (float32(t)-ts.Ctx.Values[row+int(x)+ix])/ts.Tau
			if v > 0 {
				sur.Values[iy*wx+ix] = v
				nz++
			}
		}
	}
	return sur, nz >= int(ts.MinEvs)
}

func (ts *Linear) UpdateAndCompute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	ts.Update(t, x, y)
	return ts.Compute(t, x, y)
}

// Context returns the visible context, without the window padding.
func (ts *Linear) Context() *etensor.Float32 {
	h, w := int(ts.Height), int(ts.Width)
	cols := w + 2*int(ts.Rx)
	ctx := etensor.NewFloat32([]int{h, w}, nil, []string{"Y", "X"})
	for y := 0; y < h; y++ {
		row := (y + int(ts.Ry)) * cols
		copy(ctx.Values[y*w:(y+1)*w], ts.Ctx.Values[row+int(ts.Rx):row+int(ts.Rx)+w])
	}
	return ctx
}

func (ts *Linear) FullContext() *etensor.Float32 {
	return ts.Ctx
}

func (ts *Linear) SampleContext(t uint64) *etensor.Float32 {
	ctx := ts.Context()
	for i, last := range ctx.Values {
		v := 1 - (float32(t)-last)/ts.Tau
		if v <= 0 {
			v = 0
		}
		ctx.Values[i] = v
	}
	return ctx
}

func (ts *Linear) Reset() {
	ts.Ctx = etensor.NewFloat32([]int{int(ts.Height) + 2*int(ts.Ry), int(ts.Width) + 2*int(ts.Rx)}, nil, []string{"Y", "X"})
	fill(ts.Ctx, -ts.Tau) // never-seen sentinel: infinitely long ago
}

func (ts *Linear) Size() (w, h uint16)       { return ts.Width, ts.Height }
func (ts *Linear) WindowSize() (wx, wy uint16) { return ts.Wx, ts.Wy }
func (ts *Linear) MinEvents() uint16         { return ts.MinEvs }

func (ts *Linear) Clone() Calculator {
	cp := *ts
	cp.Ctx = cloneGrid(ts.Ctx)
	return &cp
}

// ToStream writes the calculator parameters, leaving out the context.
func (ts *Linear) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, LinearTag); err != nil {
		return err
	}
	return ts.paramsToStream(w)
}

func (ts *Linear) paramsToStream(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d %d %d %d %d %g %d\n",
		ts.Width, ts.Height, ts.Rx, ts.Ry, ts.Wx, ts.Wy, ts.Tau, ts.MinEvs)
	return err
}

// FromStream reads the calculator parameters, overwriting the previous
// ones, and resets the context.
func (ts *Linear) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, LinearTag); err != nil {
		return err
	}
	if err := ts.paramsFromStream(r); err != nil {
		return err
	}
	ts.Reset()
	return nil
}

func (ts *Linear) paramsFromStream(r *bufio.Reader) error {
	var err error
	if ts.Width, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Height, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Rx, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Ry, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Wx, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Wy, err = stream.Uint16(r); err != nil {
		return err
	}
	if ts.Tau, err = stream.Float32(r); err != nil {
		return err
	}
	if ts.MinEvs, err = stream.Uint16(r); err != nil {
		return err
	}
	return nil
}
