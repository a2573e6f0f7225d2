// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clustering

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/floats"

	"github.com/neuromorphic-paris/gohots/stream"
)

// Cosine is the online clusterer of the original HOTS architecture.
// Assignment is by Euclidean distance to the nearest centroid; while
// learning, the winning centroid is pulled toward the surface with a
// learning rate that shrinks with its activation count, scaled by the
// cosine similarity between centroid and surface.
//
// The optional homeostatic regularization penalizes over-active
// centroids during learning by rescaling their distances, keeping the
// centroid activations balanced.
type Cosine struct {
	centroidSet
	histogramState

	Learning    bool    `desc:"whether centroids are updated on assignment"`
	Homeostasis float32 `max:"0" desc:"homeostatic regularization strength, 0 to disable (more negative is stronger)"`

	Tot  uint64   `inactive:"+" desc:"total activations while learning"`
	Acts []uint32 `view:"no-inline" desc:"per-centroid activations while learning, one per seeded centroid"`
}

// NewCosine returns a cosine clusterer with k centroids to be seeded and
// the given homeostasis strength (0 disables it, positive is an error).
func NewCosine(k int, homeostasis float32) (*Cosine, error) {
	if k < 1 {
		return nil, fmt.Errorf("clustering: number of centroids %d must be positive", k)
	}
	if homeostasis > 0 {
		return nil, fmt.Errorf("clustering: homeostasis strength %g must not be positive", homeostasis)
	}
	cl := &Cosine{Homeostasis: homeostasis}
	cl.K = k
	cl.resetHist(k)
	return cl, nil
}

// AddCentroid seeds one centroid with a fresh activation counter.
func (cl *Cosine) AddCentroid(c *etensor.Float32) error {
	if err := cl.centroidSet.AddCentroid(c); err != nil {
		return err
	}
	cl.Acts = append(cl.Acts, 0)
	return nil
}

// ClearCentroids removes the centroids and the activation statistics, so
// a reseeded clusterer learns from a clean slate.
func (cl *Cosine) ClearCentroids() {
	cl.centroidSet.ClearCentroids()
	cl.Acts = nil
	cl.Tot = 0
}

func (cl *Cosine) Cluster(sur *etensor.Float32) (uint16, error) {
	if err := cl.checkReady(sur); err != nil {
		return 0, err
	}

	s := asF64(sur)
	best, bestD := uint16(0), math.Inf(1)
	for i, c := range cl.Cs {
		d := floats.Distance(asF64(c), s, 2)
		if cl.Learning && cl.Tot > 0 {
			share := float64(cl.Acts[i]) / float64(cl.Tot)
			d /= math.Exp(float64(cl.Homeostasis) * (share*float64(cl.K) - 1))
		}
		if d < bestD {
			best, bestD = uint16(i), d
		}
	}

	if cl.Learning {
		cl.Acts[best]++
		cl.Tot++
		cl.pull(best, sur)
	}
	cl.countHist(best)
	return best, nil
}

// pull moves centroid k toward the surface by alpha*beta*(sur-c), where
// beta is the cosine similarity and alpha = 1/(1+activations).
func (cl *Cosine) pull(k uint16, sur *etensor.Float32) {
	c := cl.Cs[k]
	var dot, cn, sn float32
	for i, cv := range c.Values {
		sv := sur.Values[i]
		dot += cv * sv
		cn += cv * cv
		sn += sv * sv
	}
	beta := dot / (math32.Sqrt(cn) * math32.Sqrt(sn))
	alpha := 1 / (1 + float32(cl.Acts[k]))
	ab := alpha * beta
	for i := range c.Values {
		c.Values[i] += ab * (sur.Values[i] - c.Values[i])
	}
}

func (cl *Cosine) ToggleLearning(learn bool) (bool, error) {
	prev := cl.Learning
	cl.Learning = learn
	return prev, nil
}

func (cl *Cosine) IsLearning() bool { return cl.Learning }
func (cl *Cosine) IsOnline() bool   { return true }

// Train runs one online pass over the surfaces with learning enabled,
// leaving learning disabled afterwards.
func (cl *Cosine) Train(surs []*etensor.Float32) error {
	cl.Learning = true
	for _, s := range surs {
		if _, err := cl.Cluster(s); err != nil {
			cl.Learning = false
			return err
		}
	}
	cl.Learning = false
	return nil
}

// Reset clears the assignment histogram.  Centroids and activation
// statistics are kept.
func (cl *Cosine) Reset() {
	cl.resetHist(cl.K)
}

func (cl *Cosine) Clone() Clusterer {
	cp := *cl
	cp.centroidSet = cl.centroidSet.clone()
	cp.Hist = cl.Hist.Clone()
	cp.Acts = make([]uint32, len(cl.Acts))
	copy(cp.Acts, cl.Acts)
	return &cp
}

func (cl *Cosine) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, CosineTag); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d %d %d %d %d %g %d\n", cl.K, stream.BoolDigit(cl.Learning),
		len(cl.Cs), cl.Rows, cl.Cols, cl.Homeostasis, cl.Tot); err != nil {
		return err
	}
	for i, a := range cl.Acts {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%d", a); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return cl.centroidsToStream(w)
}

func (cl *Cosine) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, CosineTag); err != nil {
		return err
	}
	var err error
	if cl.K, err = stream.Int(r); err != nil {
		return err
	}
	if cl.Learning, err = stream.Bool(r); err != nil {
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
	if cl.Homeostasis, err = stream.Float32(r); err != nil {
		return err
	}
	if cl.Tot, err = stream.Uint64(r); err != nil {
		return err
	}
	cl.Acts = make([]uint32, n)
	for i := range cl.Acts {
		if cl.Acts[i], err = stream.Uint32(r); err != nil {
			return err
		}
	}
	if err := cl.centroidsFromStream(r, n); err != nil {
		return err
	}
	cl.resetHist(cl.K)
	return nil
}
