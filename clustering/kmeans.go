// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clustering

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emer/etable/etensor"

	"github.com/neuromorphic-paris/gohots/stream"
)

// KMeansMaxIterDef is the default iteration cap for the k-means fit.
const KMeansMaxIterDef = 1000

// KMeans is an offline clusterer running Lloyd's algorithm.  While
// learning it only buffers the surfaces it is given and returns a
// placeholder id of 0; the fit runs when learning is toggled off.
// Centroids must be seeded before the fit and serve as its starting
// point.
type KMeans struct {
	centroidSet
	histogramState

	MaxIterations int  `min:"1" desc:"iteration cap for the fit"`
	Learning      bool `desc:"whether surfaces are being buffered for the next fit"`

	buf []*etensor.Float32
}

// NewKMeans returns a k-means clusterer with k centroids to be seeded.
// A maxIterations of 0 selects the default cap.
func NewKMeans(k, maxIterations int) (*KMeans, error) {
	if k < 1 {
		return nil, fmt.Errorf("clustering: number of centroids %d must be positive", k)
	}
	if maxIterations < 0 {
		return nil, fmt.Errorf("clustering: iteration cap %d must not be negative", maxIterations)
	}
	if maxIterations == 0 {
		maxIterations = KMeansMaxIterDef
	}
	cl := &KMeans{MaxIterations: maxIterations}
	cl.K = k
	cl.resetHist(k)
	return cl, nil
}

// Cluster buffers the surface and returns the placeholder id 0 while
// learning.  The placeholder is not counted in the histogram.
func (cl *KMeans) Cluster(sur *etensor.Float32) (uint16, error) {
	if cl.Learning {
		cl.buf = append(cl.buf, cloneGrid(sur))
		return 0, nil
	}
	if err := cl.checkReady(sur); err != nil {
		return 0, err
	}
	k := nearestCentroid(cl.Cs, sur)
	cl.countHist(k)
	return k, nil
}

// ToggleLearning enables or disables buffering, returning the previous
// state.  Disabling it fits the centroids to the buffered surfaces, if
// any, and drops the buffer.
func (cl *KMeans) ToggleLearning(learn bool) (bool, error) {
	prev := cl.Learning
	if !learn && cl.Learning && len(cl.buf) > 0 {
		err := cl.Train(cl.buf)
		cl.buf = nil
		if err != nil {
			return prev, err
		}
	}
	cl.Learning = learn
	return prev, nil
}

func (cl *KMeans) IsLearning() bool { return cl.Learning }
func (cl *KMeans) IsOnline() bool   { return false }

// Train runs Lloyd's algorithm on the surfaces, starting from the seeded
// centroids.  It stops on convergence, including the two-step cycles the
// assignment ties can produce, or at the iteration cap.
func (cl *KMeans) Train(surs []*etensor.Float32) error {
	if len(surs) == 0 {
		return fmt.Errorf("clustering: %w", ErrNoData)
	}
	if !cl.HasCentroids() {
		return fmt.Errorf("clustering: %w (%d of %d)", ErrNotSeeded, len(cl.Cs), cl.K)
	}
	for _, s := range surs {
		if s.Len() != cl.Rows*cl.Cols {
			return fmt.Errorf("clustering: %w: got %d values, want %dx%d", ErrShape, s.Len(), cl.Rows, cl.Cols)
		}
	}

	var old, oldold []*etensor.Float32
	for it := 0; it < cl.MaxIterations; it++ {
		sums := make([][]float64, cl.K)
		counts := make([]int, cl.K)
		for i := range sums {
			sums[i] = make([]float64, cl.Rows*cl.Cols)
		}
		for _, s := range surs {
			k := nearestCentroid(cl.Cs, s)
			counts[k]++
			for i, v := range s.Values {
				sums[k][i] += float64(v)
			}
		}

		next := make([]*etensor.Float32, cl.K)
		for k := range next {
			if counts[k] == 0 {
				// empty cluster keeps its centroid
				next[k] = cloneGrid(cl.Cs[k])
				continue
			}
			c := etensor.NewFloat32([]int{cl.Rows, cl.Cols}, nil, []string{"Y", "X"})
			for i := range c.Values {
				c.Values[i] = float32(sums[k][i] / float64(counts[k]))
			}
			next[k] = c
		}

		oldold, old, cl.Cs = old, cl.Cs, next
		if equalCentroids(cl.Cs, old) || equalCentroids(cl.Cs, oldold) {
			break
		}
	}
	return nil
}

func equalCentroids(a, b []*etensor.Float32) bool {
	if b == nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		for j, v := range a[i].Values {
			if v != b[i].Values[j] {
				return false
			}
		}
	}
	return true
}

// Reset clears the assignment histogram.  Centroids are kept.
func (cl *KMeans) Reset() {
	cl.resetHist(cl.K)
}

func (cl *KMeans) Clone() Clusterer {
	cp := *cl
	cp.centroidSet = cl.centroidSet.clone()
	cp.Hist = cl.Hist.Clone()
	cp.buf = make([]*etensor.Float32, len(cl.buf))
	for i, s := range cl.buf {
		cp.buf[i] = cloneGrid(s)
	}
	return &cp
}

func (cl *KMeans) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, KMeansTag); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d %d %d %d %d\n", cl.K, cl.MaxIterations,
		len(cl.Cs), cl.Rows, cl.Cols); err != nil {
		return err
	}
	return cl.centroidsToStream(w)
}

func (cl *KMeans) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, KMeansTag); err != nil {
		return err
	}
	var err error
	if cl.K, err = stream.Int(r); err != nil {
		return err
	}
	if cl.MaxIterations, err = stream.Int(r); err != nil {
		return err
	}
	n, err := stream.Int(r)
	if err != nil {
		return err
	}
	if cl.Rows, err = stream.Int(r); err != nil {
		return err
	}
	if cl.Cols, err = stream.Int(r); err != nil {
		return err
	}
	if err := cl.centroidsFromStream(r, n); err != nil {
		return err
	}
	cl.Learning = false
	cl.buf = nil
	cl.resetHist(cl.K)
	return nil
}
