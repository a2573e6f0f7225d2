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

// WeightedLinear is a linear time surface modulated by a fixed per-pixel
// weight matrix, used to suppress known-dead or over-active regions of
// the sensor.  Computed surfaces and sampled contexts are multiplied
// elementwise by the weights; validity is still decided on the unweighted
// surface.
type WeightedLinear struct {
	Linear

	W *etensor.Float32 `view:"no-inline" desc:"per-pixel weight matrix, shape Height x Width"`

	padW *etensor.Float32 // weights padded by the window radii, zero border
}

// NewWeightedLinear returns a weighted linear time surface calculator.
// The weight matrix must have the visible context shape (height, width).
func NewWeightedLinear(width, height, rx, ry uint16, tau float32, weights *etensor.Float32) (*WeightedLinear, error) {
	lin, err := NewLinear(width, height, rx, ry, tau)
	if err != nil {
		return nil, err
	}
	ts := &WeightedLinear{Linear: *lin}
	if err := ts.setWeights(weights); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *WeightedLinear) setWeights(weights *etensor.Float32) error {
	if weights == nil || weights.NumDims() != 2 ||
		weights.Dim(0) != int(ts.Height) || weights.Dim(1) != int(ts.Width) {
		return fmt.Errorf("timesurface: weight matrix shape must be %dx%d", ts.Height, ts.Width)
	}
	ts.W = cloneGrid(weights)
	ts.padWeights()
	return nil
}

// padWeights embeds the visible weights in a zero border of the window
// radii, mirroring the context layout.
func (ts *WeightedLinear) padWeights() {
	h, w := int(ts.Height), int(ts.Width)
	cols := w + 2*int(ts.Rx)
	ts.padW = etensor.NewFloat32([]int{h + 2*int(ts.Ry), cols}, nil, []string{"Y", "X"})
	for y := 0; y < h; y++ {
		row := (y + int(ts.Ry)) * cols
		copy(ts.padW.Values[row+int(ts.Rx):row+int(ts.Rx)+w], ts.W.Values[y*w:(y+1)*w])
	}
}

func (ts *WeightedLinear) Compute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	sur, good := ts.Linear.Compute(t, x, y)

	if ts.Rx == 0 {
		x = 0
	}
	if ts.Ry == 0 {
		y = 0
	}
	wy, wx := int(ts.Wy), int(ts.Wx)
	cols := int(ts.Width) + 2*int(ts.Rx)
	for iy := 0; iy < wy; iy++ {
		row := (int(y) + iy) * cols
		for ix := 0; ix < wx; ix++ {
			sur.Values[iy*wx+ix] *= ts.padW.Values[row+int(x)+ix]
		}
	}
	return sur, good
}

// UpdateAndCompute must go through the weighted Compute.
func (ts *WeightedLinear) UpdateAndCompute(t uint64, x, y uint16) (*etensor.Float32, bool) {
	ts.Update(t, x, y)
	return ts.Compute(t, x, y)
}

func (ts *WeightedLinear) SampleContext(t uint64) *etensor.Float32 {
	ctx := ts.Linear.SampleContext(t)
	for i := range ctx.Values {
		ctx.Values[i] *= ts.W.Values[i]
	}
	return ctx
}

func (ts *WeightedLinear) Clone() Calculator {
	cp := &WeightedLinear{Linear: *ts.Linear.Clone().(*Linear)}
	cp.W = cloneGrid(ts.W)
	cp.padW = cloneGrid(ts.padW)
	return cp
}

// ToStream writes the parameters and the weight matrix, leaving out the
// context.
func (ts *WeightedLinear) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, WeightedLinearTag); err != nil {
		return err
	}
	if err := ts.paramsToStream(w); err != nil {
		return err
	}
	return stream.WriteMatrix(w, ts.W)
}

// FromStream reads the parameters and the weight matrix, overwriting the
// previous ones, and resets the context.
func (ts *WeightedLinear) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, WeightedLinearTag); err != nil {
		return err
	}
	if err := ts.paramsFromStream(r); err != nil {
		return err
	}
	weights, err := stream.ReadMatrix(r, int(ts.Height), int(ts.Width))
	if err != nil {
		return err
	}
	ts.W = weights
	ts.padWeights()
	ts.Reset()
	return nil
}
