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

// Dynamic is a time surface calculator whose decay rate adapts to the
// event rate instead of using a fixed time constant.  Each update folds
// the inter-event interval into the rate estimate M, and surfaces decay
// as 1/((t-last)*M+1), so dense activity yields slow decay and sparse
// activity fast decay.
//
// There is no fixed time constant, so the never-seen sentinel is 0 and
// cells still at 0 always read as fully decayed.
type Dynamic struct {
	Linear

	InitM float32 `min:"0" desc:"initial decay rate estimate, restored on reset"`
	M     float32 `inactive:"+" desc:"current decay rate estimate"`
	LastT uint64  `inactive:"+" desc:"timestamp of the last update folded into M"`
}

// NewDynamic returns a dynamic time surface calculator over a width x
// height context, with window radii rx, ry and initial rate estimate
// initM.
func NewDynamic(width, height, rx, ry uint16, initM float32) (*Dynamic, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("timesurface: context size %dx%d must be positive", width, height)
	}
	if initM <= 0 {
		return nil, fmt.Errorf("timesurface: initial rate estimate %g must be positive", initM)
	}
	ts := &Dynamic{InitM: initM}
	ts.Width, ts.Height, ts.Rx, ts.Ry = width, height, rx, ry
	ts.Wx, ts.Wy, ts.MinEvs = windowGeometry(width, height, rx, ry)
	ts.Reset()
	return ts, nil
}

func (ts *Dynamic) Update(t uint64, x, y uint16) {
	ts.Linear.Update(t, x, y)
	d := 1 / (float32(t-ts.LastT)*ts.M + 1)
	ts.M = d*ts.M + 1e-6
	ts.LastT = t
}

func (ts *Dynamic) Compute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	if ts.Rx == 0 {
		x = 0
	}
	if ts.Ry == 0 {
		y = 0
	}

	wy, wx := int(ts.Wy), int(ts.Wx)
	cols := int(ts.Width) + 2*int(ts.Rx)
	sur := etensor.NewFloat32([]int{wy, wx}, nil, []string{"Y", "X"})

	// validity counts cells that have seen activity, not the decayed values
	nz := 0
	for iy := 0; iy < wy; iy++ {
		row := (int(y) + iy) * cols
		for ix := 0; ix < wx; ix++ {
			last := ts.Ctx.Values[row+int(x)+ix]
			if last <= 0 {
				continue
			}
			nz++
			sur.Values[iy*wx+ix] = 1 / ((float32(t)-last)*ts.M + 1)
		}
	}
	return sur, nz >= int(ts.MinEvs)
}

func (ts *Dynamic) UpdateAndCompute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	ts.Update(t, x, y)
	return ts.Compute(t, x, y)
}

func (ts *Dynamic) SampleContext(t uint64) *etensor.Float32 {
	ctx := ts.Context()
	for i, last := range ctx.Values {
		if last <= 0 {
			ctx.Values[i] = 0
			continue
		}
		ctx.Values[i] = 1 / ((float32(t)-last)*ts.M + 1)
	}
	return ctx
}

// Reset reinitializes the context and restores the rate estimate.
func (ts *Dynamic) Reset() {
	ts.Linear.Reset() // Tau is 0, so the sentinel is 0
	ts.M = ts.InitM
	ts.LastT = 0
}

func (ts *Dynamic) Clone() Calculator {
	cp := *ts
	cp.Ctx = cloneGrid(ts.Ctx)
	return &cp
}

// ToStream writes the calculator parameters, leaving out the context.
func (ts *Dynamic) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, DynamicTag); err != nil {
		return err
	}
	if err := ts.paramsToStream(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d %g %g\n", ts.LastT, ts.InitM, ts.M)
	return err
}

// FromStream reads the calculator parameters and the rate estimate,
// overwriting the previous ones, and resets the context.
func (ts *Dynamic) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, DynamicTag); err != nil {
		return err
	}
	if err := ts.paramsFromStream(r); err != nil {
		return err
	}
	lastT, err := stream.Uint64(r)
	if err != nil {
		return err
	}
	initM, err := stream.Float32(r)
	if err != nil {
		return err
	}
	m, err := stream.Float32(r)
	if err != nil {
		return err
	}
	ts.Reset()
	ts.LastT, ts.InitM, ts.M = lastT, initM, m
	return nil
}
