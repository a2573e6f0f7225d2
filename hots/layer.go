// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package hots composes the time surface and clustering stages into layers
and stacks layers into networks, implementing the Hierarchy Of
event-based Time-Surfaces architecture.

A layer owns a per-polarity time surface pool and a clusterer, plus the
optional modifiers: a supercell tiling that pools surfaces into spatial
cells before clustering, and an event remapper that rewrites the emitted
events for a downstream consumer.  Each input event yields zero or more
output events whose polarity (or remapped coordinate) carries the
assigned feature id, so stacking layers grows increasingly abstract
features out of raw polarity events.
*/
package hots

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emer/etable/etensor"

	"github.com/neuromorphic-paris/gohots/clustering"
	"github.com/neuromorphic-paris/gohots/events"
	"github.com/neuromorphic-paris/gohots/stream"
	"github.com/neuromorphic-paris/gohots/timesurface"
)

// Serialization tags for the layer sections.
const (
	LayerBeginTag = "LAYERBEGIN"
	LayerEndTag   = "LAYEREND"
	PoolTag       = "POOL"
	ClustTag      = "CLUST"
	RemapperTag   = "REMAPPER"
	CellsTag      = "SUPERCELLS"
	SkipTag       = "SKIP"
)

// Layer is one stage of a HOTS hierarchy: a time surface pool feeding a
// clusterer, with the optional supercell and remapper modifiers.
type Layer struct {
	Pool  *timesurface.Pool    `desc:"per-polarity time surface pool"`
	Clust clustering.Clusterer `desc:"feature clusterer"`
	Remap EventRemapper        `desc:"optional output event remapper"`
	Cells SuperCells           `desc:"optional supercell tiling"`

	SkipCheck bool `desc:"emit events even for surfaces that fail the validity check"`
}

// NewLayer returns a layer over the pool and clusterer.  Modifiers are
// attached through the fields.
func NewLayer(pool *timesurface.Pool, clust clustering.Clusterer) *Layer {
	return &Layer{Pool: pool, Clust: clust}
}

// surface pairs a candidate surface with its output coordinates.
type surface struct {
	sur  *etensor.Float32
	x, y uint16
}

// Process runs one event through the layer and returns the emitted
// events.  An empty result is not an error: the surface failed the
// validity check or the event fell outside the supercell tiling.
func (ly *Layer) Process(ev events.Event) (events.Events, error) {
	if ly.Pool == nil || ly.Clust == nil {
		return nil, fmt.Errorf("hots: layer needs both a pool and a clusterer to process events")
	}

	sur, good, err := ly.Pool.UpdateAndComputeEvent(ev)
	if err != nil {
		return nil, err
	}
	if !good && !ly.SkipCheck {
		return events.Events{}, nil
	}

	var cands []surface
	if ly.Cells != nil {
		cells := ly.Cells.FindCells(ev.X, ev.Y)
		if len(cells) == 0 {
			return events.Events{}, nil
		}
		cands = make([]surface, len(cells))
		for i, c := range cells {
			cands[i] = surface{sur: ly.Cells.ProcessSurface(sur, c), x: c.X, y: c.Y}
		}
	} else {
		cands = []surface{{sur: sur, x: ev.X, y: ev.Y}}
	}

	out := make(events.Events, 0, len(cands))
	for _, cand := range cands {
		k, err := ly.Clust.Cluster(cand.sur)
		if err != nil {
			return nil, err
		}
		oev := events.Event{T: ev.T, X: cand.x, Y: cand.y, P: k}
		if ly.Remap != nil {
			oev, err = ly.Remap.Remap(events.Event{T: ev.T, X: cand.x, Y: cand.y, P: ev.P}, k)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, oev)
	}
	return out, nil
}

// ProcessStream runs a whole event stream through the layer, dropping
// the events that produce no output.
func (ly *Layer) ProcessStream(evs events.Events) (events.Events, error) {
	out := make(events.Events, 0, len(evs))
	for _, ev := range evs {
		oevs, err := ly.Process(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, oevs...)
	}
	return out, nil
}

// ProcessStreams runs several independent event streams through the
// layer, one output stream per input stream.  With reset set, the
// per-stream state is cleared before each stream so they do not bleed
// into each other.
func (ly *Layer) ProcessStreams(streams []events.Events, reset bool) ([]events.Events, error) {
	out := make([]events.Events, len(streams))
	for i, evs := range streams {
		if reset {
			ly.Reset()
		}
		oevs, err := ly.ProcessStream(evs)
		if err != nil {
			return nil, err
		}
		out[i] = oevs
	}
	return out, nil
}

// collectSurfaces resets the layer and runs the events through the
// pool, keeping either every surface or only the valid ones.
func (ly *Layer) collectSurfaces(evs events.Events, validOnly bool, surs []*etensor.Float32) ([]*etensor.Float32, error) {
	ly.Reset()
	for _, ev := range evs {
		sur, good, err := ly.Pool.UpdateAndComputeEvent(ev)
		if err != nil {
			return nil, err
		}
		if good || !validOnly {
			surs = append(surs, sur)
		}
	}
	return surs, nil
}

// SeedCentroids resets the layer, runs the events through the pool and
// seeds the clusterer's centroids from the collected (optionally only
// valid) surfaces with the given strategy.
func (ly *Layer) SeedCentroids(seed clustering.Seeding, evs events.Events, validOnly bool) error {
	if ly.Pool == nil || ly.Clust == nil {
		return fmt.Errorf("hots: layer needs both a pool and a clusterer to seed centroids")
	}
	surs, err := ly.collectSurfaces(evs, validOnly, make([]*etensor.Float32, 0, len(evs)))
	if err != nil {
		return err
	}
	return seed(ly.Clust, surs)
}

// SeedCentroidsStreams seeds the centroids from several independent
// event streams, resetting the layer before each one.
func (ly *Layer) SeedCentroidsStreams(seed clustering.Seeding, streams []events.Events, validOnly bool) error {
	if ly.Pool == nil || ly.Clust == nil {
		return fmt.Errorf("hots: layer needs both a pool and a clusterer to seed centroids")
	}
	var surs []*etensor.Float32
	var err error
	for _, evs := range streams {
		if surs, err = ly.collectSurfaces(evs, validOnly, surs); err != nil {
			return err
		}
	}
	return seed(ly.Clust, surs)
}

// ToggleLearning enables or disables learning on the clusterer,
// returning the previous state.
func (ly *Layer) ToggleLearning(learn bool) (bool, error) {
	if ly.Clust == nil {
		return false, fmt.Errorf("hots: layer has no clusterer")
	}
	return ly.Clust.ToggleLearning(learn)
}

// Histogram returns the clusterer's assignment histogram.
func (ly *Layer) Histogram() clustering.Features {
	if ly.Clust == nil {
		return nil
	}
	return ly.Clust.Histogram()
}

// Reset clears the per-stream state: the pool contexts, the assignment
// histogram and the pooled supercell state.  Centroids are kept.
func (ly *Layer) Reset() {
	if ly.Pool != nil {
		ly.Pool.Reset()
	}
	if ly.Clust != nil {
		ly.Clust.Reset()
	}
	if ly.Cells != nil {
		ly.Cells.Reset()
	}
}

// Clone returns an independent deep copy of the layer.
func (ly *Layer) Clone() *Layer {
	cp := &Layer{SkipCheck: ly.SkipCheck}
	if ly.Pool != nil {
		cp.Pool = ly.Pool.Clone()
	}
	if ly.Clust != nil {
		cp.Clust = ly.Clust.Clone()
	}
	if ly.Remap != nil {
		cp.Remap = ly.Remap.Clone()
	}
	if ly.Cells != nil {
		cp.Cells = ly.Cells.Clone()
	}
	return cp
}

// ToStream writes the layer as a LAYERBEGIN..LAYEREND block, with one
// section marker per present component.
func (ly *Layer) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, LayerBeginTag); err != nil {
		return err
	}
	if ly.Pool != nil {
		if err := stream.WriteMeta(w, PoolTag); err != nil {
			return err
		}
		if err := ly.Pool.ToStream(w); err != nil {
			return err
		}
	}
	if ly.Clust != nil {
		if err := stream.WriteMeta(w, ClustTag); err != nil {
			return err
		}
		if err := ly.Clust.ToStream(w); err != nil {
			return err
		}
	}
	if ly.Remap != nil {
		if err := stream.WriteMeta(w, RemapperTag); err != nil {
			return err
		}
		if err := ly.Remap.ToStream(w); err != nil {
			return err
		}
	}
	if ly.Cells != nil {
		if err := stream.WriteMeta(w, CellsTag); err != nil {
			return err
		}
		if err := ly.Cells.ToStream(w); err != nil {
			return err
		}
	}
	if ly.SkipCheck {
		if err := stream.WriteMeta(w, SkipTag); err != nil {
			return err
		}
	}
	return stream.WriteMeta(w, LayerEndTag)
}

// FromStream reads a LAYERBEGIN..LAYEREND block, reconstructing each
// component's concrete type from its tag.
func (ly *Layer) FromStream(r *bufio.Reader) error {
	if err := stream.MatchRequired(r, LayerBeginTag); err != nil {
		return err
	}
	*ly = Layer{}
	for {
		tag, err := stream.NextMeta(r)
		if err != nil {
			return err
		}
		switch tag {
		case LayerEndTag:
			return nil
		case PoolTag:
			ly.Pool = &timesurface.Pool{}
			if err := ly.Pool.FromStream(r); err != nil {
				return err
			}
		case ClustTag:
			if ly.Clust, err = clustering.LoadClusterer(r); err != nil {
				return err
			}
		case RemapperTag:
			if ly.Remap, err = LoadRemapper(r); err != nil {
				return err
			}
		case CellsTag:
			if ly.Cells, err = LoadSuperCells(r); err != nil {
				return err
			}
		case SkipTag:
			ly.SkipCheck = true
		default:
			return fmt.Errorf("%w: unexpected layer section %q", stream.ErrWrongMeta, tag)
		}
	}
}
