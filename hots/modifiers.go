// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hots

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/emer/etable/etensor"

	"github.com/neuromorphic-paris/gohots/events"
	"github.com/neuromorphic-paris/gohots/stream"
)

// EventRemapper rewrites the events a layer emits, folding the assigned
// feature id into the coordinate fields instead of the polarity.
type EventRemapper interface {
	stream.Streamable

	// Remap builds the output event from the input event (with the
	// output cell coordinates) and the assigned feature id k.
	Remap(ev events.Event, k uint16) (events.Event, error)

	// Clone returns an independent copy of the remapper.
	Clone() EventRemapper
}

// Serialization tags for the layer modifiers.
const (
	ArrayRemapperTag       = "ARRAYREMAPPER"
	SerializingRemapperTag = "SERIALIZINGREMAPPER"
	SuperCellTag           = "SUPERCELL"
	SuperCellAverageTag    = "SUPERCELLAVERAGE"
)

// ArrayRemapper emits events for a downstream 1D sensor array: the
// feature id becomes the horizontal coordinate and the polarity
// collapses to 0.
type ArrayRemapper struct{}

func (ar *ArrayRemapper) Remap(ev events.Event, k uint16) (events.Event, error) {
	return events.Event{T: ev.T, X: k, Y: ev.Y, P: 0}, nil
}

func (ar *ArrayRemapper) Clone() EventRemapper { return &ArrayRemapper{} }

func (ar *ArrayRemapper) ToStream(w io.Writer) error {
	return stream.WriteMeta(w, ArrayRemapperTag)
}

func (ar *ArrayRemapper) FromStream(r *bufio.Reader) error {
	return stream.MatchOptional(r, ArrayRemapperTag)
}

// SerializingRemapper flattens feature id and coordinates into a single
// scalar, W*H*k + W*y + x, emitted as the horizontal coordinate of a 1D
// event.  The flattened value must fit the coordinate field.
type SerializingRemapper struct {
	W uint16 `desc:"width of the emitting layer's context"`
	H uint16 `desc:"height of the emitting layer's context"`
}

// NewSerializingRemapper returns a remapper flattening (k,y,x) over a
// width x height context.
func NewSerializingRemapper(width, height uint16) (*SerializingRemapper, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("hots: remapper context size %dx%d must be positive", width, height)
	}
	return &SerializingRemapper{W: width, H: height}, nil
}

func (sr *SerializingRemapper) Remap(ev events.Event, k uint16) (events.Event, error) {
	v := uint64(sr.W)*uint64(sr.H)*uint64(k) + uint64(sr.W)*uint64(ev.Y) + uint64(ev.X)
	if v > math.MaxUint16 {
		return events.Invalid, fmt.Errorf("hots: flattened coordinate %d exceeds the event coordinate range", v)
	}
	return events.Event{T: ev.T, X: uint16(v), Y: 0, P: 0}, nil
}

func (sr *SerializingRemapper) Clone() EventRemapper {
	cp := *sr
	return &cp
}

func (sr *SerializingRemapper) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, SerializingRemapperTag); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d %d\n", sr.W, sr.H)
	return err
}

func (sr *SerializingRemapper) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, SerializingRemapperTag); err != nil {
		return err
	}
	var err error
	if sr.W, err = stream.Uint16(r); err != nil {
		return err
	}
	sr.H, err = stream.Uint16(r)
	return err
}

// Cell addresses one spatial cell of a supercell grid.
type Cell struct {
	X uint16 `desc:"horizontal cell coordinate"`
	Y uint16 `desc:"vertical cell coordinate"`
}

// SuperCells tiles the context into K x K cells and pools the surfaces
// of all pixels falling in a cell, so a layer emits cell-resolution
// events.  Overlapping tilings map one pixel to several cells.
type SuperCells interface {
	stream.Streamable

	// FindCells returns the cells covering pixel (x,y), or nil if the
	// pixel falls outside the tiled area.
	FindCells(x, y uint16) []Cell

	// ProcessSurface folds the surface into cell c's pooled state and
	// returns the surface to cluster for that cell.
	ProcessSurface(sur *etensor.Float32, c Cell) *etensor.Float32

	// GridSize returns the cell grid dimensions.
	GridSize() (w, h uint16)

	// Reset clears any pooled per-cell state.
	Reset()

	// Clone returns an independent deep copy.
	Clone() SuperCells
}

// SuperCellGrid is the plain tiling: surfaces pass through unpooled and
// only the event coordinates are rescaled to cell coordinates.
type SuperCellGrid struct {
	Width   uint16 `desc:"width of the tiled context"`
	Height  uint16 `desc:"height of the tiled context"`
	K       uint16 `min:"1" desc:"cell side length"`
	Overlap uint16 `desc:"horizontal and vertical overlap between neighboring cells"`

	Wcell uint16 `inactive:"+" desc:"cell grid width"`
	Hcell uint16 `inactive:"+" desc:"cell grid height"`
	Wmax  uint16 `inactive:"+" desc:"tiled area width, pixels at or past it are dropped"`
	Hmax  uint16 `inactive:"+" desc:"tiled area height, pixels at or past it are dropped"`
}

// NewSuperCellGrid returns a tiling of a width x height context into
// cells of side k overlapping by overlap pixels.
func NewSuperCellGrid(width, height, k, overlap uint16) (*SuperCellGrid, error) {
	sc := &SuperCellGrid{Width: width, Height: height, K: k, Overlap: overlap}
	if err := sc.geometry(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *SuperCellGrid) geometry() error {
	if sc.K == 0 || sc.K > sc.Width || sc.K > sc.Height {
		return fmt.Errorf("hots: cell size %d must be positive and fit the %dx%d context", sc.K, sc.Width, sc.Height)
	}
	if sc.Overlap >= sc.K {
		return fmt.Errorf("hots: overlap %d must be smaller than the cell size %d", sc.Overlap, sc.K)
	}
	stride := sc.K - sc.Overlap
	sc.Wcell = (sc.Width-sc.K)/stride + 1
	sc.Hcell = (sc.Height-sc.K)/stride + 1
	sc.Wmax = sc.K + (sc.Wcell-1)*stride
	sc.Hmax = sc.K + (sc.Hcell-1)*stride
	return nil
}

// cellRange returns the cell index range [lo,hi] covering coordinate v.
func (sc *SuperCellGrid) cellRange(v, ncells uint16) (lo, hi uint16) {
	stride := sc.K - sc.Overlap
	if v >= sc.K {
		lo = (v-sc.K)/stride + 1
	}
	hi = v / stride
	if hi > ncells-1 {
		hi = ncells - 1
	}
	return
}

func (sc *SuperCellGrid) FindCells(x, y uint16) []Cell {
	if x >= sc.Wmax || y >= sc.Hmax {
		return nil
	}
	xlo, xhi := sc.cellRange(x, sc.Wcell)
	ylo, yhi := sc.cellRange(y, sc.Hcell)
	cells := make([]Cell, 0, (xhi-xlo+1)*(yhi-ylo+1))
	for cy := ylo; cy <= yhi; cy++ {
		for cx := xlo; cx <= xhi; cx++ {
			cells = append(cells, Cell{X: cx, Y: cy})
		}
	}
	return cells
}

func (sc *SuperCellGrid) ProcessSurface(sur *etensor.Float32, c Cell) *etensor.Float32 {
	return sur
}

func (sc *SuperCellGrid) GridSize() (w, h uint16) { return sc.Wcell, sc.Hcell }

func (sc *SuperCellGrid) Reset() {}

func (sc *SuperCellGrid) Clone() SuperCells {
	cp := *sc
	return &cp
}

func (sc *SuperCellGrid) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, SuperCellTag); err != nil {
		return err
	}
	return sc.paramsToStream(w)
}

func (sc *SuperCellGrid) paramsToStream(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d %d %d\n", sc.Width, sc.Height, sc.K, sc.Overlap)
	return err
}

func (sc *SuperCellGrid) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, SuperCellTag); err != nil {
		return err
	}
	return sc.paramsFromStream(r)
}

func (sc *SuperCellGrid) paramsFromStream(r *bufio.Reader) error {
	var err error
	if sc.Width, err = stream.Uint16(r); err != nil {
		return err
	}
	if sc.Height, err = stream.Uint16(r); err != nil {
		return err
	}
	if sc.K, err = stream.Uint16(r); err != nil {
		return err
	}
	if sc.Overlap, err = stream.Uint16(r); err != nil {
		return err
	}
	return sc.geometry()
}

// SuperCellAverage pools by running average: each cell accumulates the
// surfaces of its pixels and hands the mean surface to the clusterer.
type SuperCellAverage struct {
	SuperCellGrid

	sums   []*etensor.Float32
	counts []uint64
}

// NewSuperCellAverage returns an averaging tiling of a width x height
// context into cells of side k overlapping by overlap pixels.
func NewSuperCellAverage(width, height, k, overlap uint16) (*SuperCellAverage, error) {
	grid, err := NewSuperCellGrid(width, height, k, overlap)
	if err != nil {
		return nil, err
	}
	sc := &SuperCellAverage{SuperCellGrid: *grid}
	sc.Reset()
	return sc, nil
}

func (sc *SuperCellAverage) ProcessSurface(sur *etensor.Float32, c Cell) *etensor.Float32 {
	i := int(c.Y)*int(sc.Wcell) + int(c.X)
	if sc.sums[i] == nil {
		sc.sums[i] = etensor.NewFloat32([]int{sur.Dim(0), sur.Dim(1)}, nil, []string{"Y", "X"})
	}
	sum := sc.sums[i]
	for j, v := range sur.Values {
		sum.Values[j] += v
	}
	sc.counts[i]++

	avg := etensor.NewFloat32([]int{sum.Dim(0), sum.Dim(1)}, nil, []string{"Y", "X"})
	inv := 1 / float32(sc.counts[i])
	for j, v := range sum.Values {
		avg.Values[j] = v * inv
	}
	return avg
}

func (sc *SuperCellAverage) Reset() {
	n := int(sc.Wcell) * int(sc.Hcell)
	sc.sums = make([]*etensor.Float32, n)
	sc.counts = make([]uint64, n)
}

func (sc *SuperCellAverage) Clone() SuperCells {
	cp := &SuperCellAverage{SuperCellGrid: sc.SuperCellGrid}
	cp.sums = make([]*etensor.Float32, len(sc.sums))
	for i, s := range sc.sums {
		if s != nil {
			c := etensor.NewFloat32([]int{s.Dim(0), s.Dim(1)}, nil, []string{"Y", "X"})
			copy(c.Values, s.Values)
			cp.sums[i] = c
		}
	}
	cp.counts = append([]uint64(nil), sc.counts...)
	return cp
}

func (sc *SuperCellAverage) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, SuperCellAverageTag); err != nil {
		return err
	}
	return sc.paramsToStream(w)
}

// FromStream reads the tiling parameters and clears the pooled state.
func (sc *SuperCellAverage) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, SuperCellAverageTag); err != nil {
		return err
	}
	if err := sc.paramsFromStream(r); err != nil {
		return err
	}
	sc.Reset()
	return nil
}
