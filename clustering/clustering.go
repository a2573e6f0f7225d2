// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package clustering implements the vector quantization stage of HOTS:
time surfaces are assigned to one of K learned centroids, and the
centroid index becomes the feature id carried by re-emitted events.

Clusterers are either online (the cosine clusterer updates its centroids
on every assignment while learning) or offline (k-means and the Gaussian
mixture variants buffer surfaces while learning and fit when learning is
toggled off, returning a placeholder id of 0 in the meantime).  All of
them keep a histogram of the assignments made since the last reset.

Centroids are seeded separately, through the Seeding strategies, before
any learning takes place.
*/
package clustering

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/floats"

	"github.com/neuromorphic-paris/gohots/stream"
)

// Clusterer assigns time surfaces to learned centroids.
type Clusterer interface {
	stream.Streamable

	// Cluster assigns the surface to a centroid and returns its index.
	// Offline clusterers return 0 while learning, buffering the surface
	// for the fit that runs when learning is toggled off.
	Cluster(sur *etensor.Float32) (uint16, error)

	// NumClusters returns the configured number of centroids K.
	NumClusters() int

	// AddCentroid seeds one centroid.  Seeding a full clusterer is an
	// error.
	AddCentroid(c *etensor.Float32) error

	// Centroids returns the current centroids.
	Centroids() []*etensor.Float32

	// HasCentroids reports whether all K centroids have been seeded.
	HasCentroids() bool

	// ClearCentroids removes all centroids so the clusterer can be
	// reseeded.
	ClearCentroids()

	// ToggleLearning enables or disables learning, returning the
	// previous state.  Disabling it on an offline clusterer with
	// buffered surfaces triggers the fit.
	ToggleLearning(learn bool) (bool, error)

	// IsLearning reports whether learning is enabled.
	IsLearning() bool

	// IsOnline reports whether centroids are updated per assignment.
	IsOnline() bool

	// Train fits the centroids to a batch of surfaces.
	Train(surs []*etensor.Float32) error

	// Histogram returns the per-centroid assignment counts since the
	// last reset.
	Histogram() Features

	// Reset clears the assignment histogram.  Centroids are kept.
	Reset()

	// Clone returns an independent deep copy of the clusterer.
	Clone() Clusterer
}

// Features is a per-centroid histogram of assignment counts.
type Features []uint32

// Clone returns a copy of the histogram.
func (f Features) Clone() Features {
	cp := make(Features, len(f))
	copy(cp, f)
	return cp
}

// Sum returns the total number of assignments.
func (f Features) Sum() uint64 {
	var s uint64
	for _, v := range f {
		s += uint64(v)
	}
	return s
}

// Errors shared by the clusterer implementations.
var (
	ErrNotSeeded = errors.New("not all centroids seeded")
	ErrCapacity  = errors.New("all centroids already seeded")
	ErrShape     = errors.New("surface shape does not match centroids")
	ErrNoData    = errors.New("no surfaces to train on")
)

// histogramState is the assignment histogram shared by all clusterers.
type histogramState struct {
	Hist Features `view:"no-inline" desc:"per-centroid assignment counts since the last reset"`
}

func (hs *histogramState) Histogram() Features {
	return hs.Hist
}

func (hs *histogramState) resetHist(k int) {
	hs.Hist = make(Features, k)
}

func (hs *histogramState) countHist(k uint16) {
	hs.Hist[k]++
}

// centroidSet holds the seeded centroids and their common shape.
type centroidSet struct {
	K    int                `min:"1" desc:"number of centroids"`
	Cs   []*etensor.Float32 `view:"no-inline" desc:"seeded centroids"`
	Rows int                `inactive:"+" desc:"centroid rows, fixed by the first seed"`
	Cols int                `inactive:"+" desc:"centroid cols, fixed by the first seed"`
}

func (cs *centroidSet) NumClusters() int {
	return cs.K
}

func (cs *centroidSet) Centroids() []*etensor.Float32 {
	return cs.Cs
}

func (cs *centroidSet) HasCentroids() bool {
	return len(cs.Cs) == cs.K
}

func (cs *centroidSet) ClearCentroids() {
	cs.Cs = nil
	cs.Rows, cs.Cols = 0, 0
}

func (cs *centroidSet) AddCentroid(c *etensor.Float32) error {
	if len(cs.Cs) >= cs.K {
		return fmt.Errorf("clustering: %w (K = %d)", ErrCapacity, cs.K)
	}
	if c == nil || c.NumDims() != 2 {
		return fmt.Errorf("clustering: %w: centroid must be a 2D grid", ErrShape)
	}
	if len(cs.Cs) == 0 {
		cs.Rows, cs.Cols = c.Dim(0), c.Dim(1)
	} else if c.Dim(0) != cs.Rows || c.Dim(1) != cs.Cols {
		return fmt.Errorf("clustering: %w: got %dx%d, want %dx%d", ErrShape, c.Dim(0), c.Dim(1), cs.Rows, cs.Cols)
	}
	cs.Cs = append(cs.Cs, cloneGrid(c))
	return nil
}

func (cs *centroidSet) checkReady(sur *etensor.Float32) error {
	if !cs.HasCentroids() {
		return fmt.Errorf("clustering: %w (%d of %d)", ErrNotSeeded, len(cs.Cs), cs.K)
	}
	if sur.Len() != cs.Rows*cs.Cols {
		return fmt.Errorf("clustering: %w: got %d values, want %dx%d", ErrShape, sur.Len(), cs.Rows, cs.Cols)
	}
	return nil
}

func (cs *centroidSet) clone() centroidSet {
	cp := *cs
	cp.Cs = make([]*etensor.Float32, len(cs.Cs))
	for i, c := range cs.Cs {
		cp.Cs[i] = cloneGrid(c)
	}
	return cp
}

// centroidsToStream writes each centroid with WriteMatrix, in order.
func (cs *centroidSet) centroidsToStream(w io.Writer) error {
	for _, c := range cs.Cs {
		if err := stream.WriteMatrix(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (cs *centroidSet) centroidsFromStream(r *bufio.Reader, n int) error {
	cs.Cs = make([]*etensor.Float32, n)
	for i := range cs.Cs {
		c, err := stream.ReadMatrix(r, cs.Rows, cs.Cols)
		if err != nil {
			return err
		}
		cs.Cs[i] = c
	}
	return nil
}

// cloneGrid copies a 2D grid.
func cloneGrid(g *etensor.Float32) *etensor.Float32 {
	cp := etensor.NewFloat32([]int{g.Dim(0), g.Dim(1)}, nil, []string{"Y", "X"})
	copy(cp.Values, g.Values)
	return cp
}

// asF64 widens a grid's values for the gonum float helpers.
func asF64(g *etensor.Float32) []float64 {
	out := make([]float64, len(g.Values))
	for i, v := range g.Values {
		out[i] = float64(v)
	}
	return out
}

// euclidean returns the Euclidean distance between two same-shape grids.
func euclidean(a, b *etensor.Float32) float64 {
	return floats.Distance(asF64(a), asF64(b), 2)
}

// nearestCentroid returns the index of the centroid closest to sur in
// Euclidean distance, ties going to the lowest index.
func nearestCentroid(cs []*etensor.Float32, sur *etensor.Float32) uint16 {
	s := asF64(sur)
	best, bestD := uint16(0), floats.Distance(asF64(cs[0]), s, 2)
	for i := 1; i < len(cs); i++ {
		if d := floats.Distance(asF64(cs[i]), s, 2); d < bestD {
			best, bestD = uint16(i), d
		}
	}
	return best
}

// Serialization tags for the clusterer variants.
const (
	CosineTag = "COSINECLUSTERER"
	KMeansTag = "KMEANSCLUSTERER"
	GMMTag    = "GMMCLUSTERER"
)

// LoadClusterer reads the next type tag from the stream and loads the
// matching clusterer variant.
func LoadClusterer(r *bufio.Reader) (Clusterer, error) {
	tag, err := stream.NextMeta(r)
	if err != nil {
		return nil, err
	}
	var cl Clusterer
	switch tag {
	case CosineTag:
		cl = &Cosine{}
	case KMeansTag:
		cl = &KMeans{}
	case GMMTag:
		cl = &GMM{}
	default:
		return nil, fmt.Errorf("%w: unknown clusterer type %q", stream.ErrWrongMeta, tag)
	}
	if err := cl.FromStream(r); err != nil {
		return nil, err
	}
	return cl, nil
}
