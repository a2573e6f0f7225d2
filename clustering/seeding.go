// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clustering

import (
	"fmt"
	"math/rand"

	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/floats"
)

// Seeding initializes the K centroids of a clusterer from a batch of
// surfaces.  The clusterer must be empty (freshly constructed or after
// ClearCentroids).
type Seeding func(cl Clusterer, surs []*etensor.Float32) error

var rng = rand.New(rand.NewSource(1))

// SeedRand reseeds the random source shared by the seeding strategies,
// for reproducible runs.
func SeedRand(seed int64) {
	rng = rand.New(rand.NewSource(seed))
}

func checkSeedable(cl Clusterer, surs []*etensor.Float32) error {
	if len(cl.Centroids()) > 0 {
		return fmt.Errorf("clustering: %w: clusterer already seeded", ErrCapacity)
	}
	if len(surs) < cl.NumClusters() {
		return fmt.Errorf("clustering: cannot seed %d centroids from %d surfaces", cl.NumClusters(), len(surs))
	}
	return nil
}

// UniformSeeding seeds the centroids with surfaces sampled uniformly
// without replacement.
func UniformSeeding(cl Clusterer, surs []*etensor.Float32) error {
	if err := checkSeedable(cl, surs); err != nil {
		return err
	}
	for _, i := range rng.Perm(len(surs))[:cl.NumClusters()] {
		if err := cl.AddCentroid(surs[i]); err != nil {
			return err
		}
	}
	return nil
}

// minSqDist returns the squared distance from each sample to its nearest
// already-chosen sample.
func minSqDist(xs [][]float64, chosen []int) []float64 {
	d2 := make([]float64, len(xs))
	for i, x := range xs {
		best := -1.0
		for _, c := range chosen {
			d := floats.Distance(xs[c], x, 2)
			if best < 0 || d*d < best {
				best = d * d
			}
		}
		d2[i] = best
	}
	return d2
}

// PlusPlusSeeding seeds the centroids with the k-means++ strategy: the
// first centroid uniformly, each following one by roulette on the
// squared distance to the nearest centroid chosen so far.
func PlusPlusSeeding(cl Clusterer, surs []*etensor.Float32) error {
	if err := checkSeedable(cl, surs); err != nil {
		return err
	}
	xs := make([][]float64, len(surs))
	for i, s := range surs {
		xs[i] = asF64(s)
	}

	chosen := []int{rng.Intn(len(surs))}
	for len(chosen) < cl.NumClusters() {
		d2 := minSqDist(xs, chosen)
		for _, c := range chosen {
			d2[c] = 0
		}
		tot := floats.Sum(d2)
		if tot <= 0 {
			return fmt.Errorf("clustering: k-means++ ran out of distinct surfaces after %d centroids", len(chosen))
		}
		u := rng.Float64() * tot
		next := -1
		for i, d := range d2 {
			u -= d
			if u <= 0 && d > 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := len(d2) - 1; i >= 0; i-- {
				if d2[i] > 0 {
					next = i
					break
				}
			}
		}
		chosen = append(chosen, next)
	}

	for _, i := range chosen {
		if err := cl.AddCentroid(surs[i]); err != nil {
			return err
		}
	}
	return nil
}

// AFKMC2Seeding returns a seeding strategy running the assumption-free
// k-MC2 approximation of k-means++: each centroid after the first is
// drawn by a Markov chain of the given length over a proposal mixing the
// squared distance to the first centroid with a uniform term.
func AFKMC2Seeding(chain int) Seeding {
	return func(cl Clusterer, surs []*etensor.Float32) error {
		if chain < 1 {
			return fmt.Errorf("clustering: chain length %d must be positive", chain)
		}
		if err := checkSeedable(cl, surs); err != nil {
			return err
		}
		xs := make([][]float64, len(surs))
		for i, s := range surs {
			xs[i] = asF64(s)
		}
		n := len(xs)

		first := rng.Intn(n)
		chosen := []int{first}
		inSet := map[int]bool{first: true}

		// proposal from the squared distances to the first centroid
		q := make([]float64, n)
		for i, x := range xs {
			d := floats.Distance(xs[first], x, 2)
			q[i] = d * d
		}
		if tot := floats.Sum(q); tot > 0 {
			floats.Scale(0.5/tot, q)
		} else {
			for i := range q {
				q[i] = 0
			}
		}
		floats.AddConst(0.5/float64(n), q)

		draw := func() int {
			u := rng.Float64()
			for i, p := range q {
				u -= p
				if u <= 0 {
					return i
				}
			}
			return n - 1
		}

		for len(chosen) < cl.NumClusters() {
			x := draw()
			dx := minSqDist(xs, chosen)[x]
			for s := 1; s < chain; s++ {
				y := draw()
				dy := minSqDist(xs, chosen)[y]
				if dx == 0 || (dy/q[y])/(dx/q[x]) > rng.Float64() {
					x, dx = y, dy
				}
			}
			if inSet[x] {
				// the chain can land on an already-chosen point; redraw so
				// exactly K distinct centroids come out
				ok := false
				for i := 0; i < n; i++ {
					if cand := draw(); !inSet[cand] {
						x, ok = cand, true
						break
					}
				}
				if !ok {
					for i := 0; i < n && !ok; i++ {
						if !inSet[i] {
							x, ok = i, true
						}
					}
				}
				if !ok {
					return fmt.Errorf("clustering: AFK-MC2 ran out of distinct surfaces after %d centroids", len(chosen))
				}
			}
			chosen = append(chosen, x)
			inSet[x] = true
		}

		for _, i := range chosen {
			if err := cl.AddCentroid(surs[i]); err != nil {
				return err
			}
		}
		return nil
	}
}

// RandomSeeding returns a seeding strategy that ignores the surfaces and
// seeds width x height centroids with uniform random values in [0,1).
func RandomSeeding(width, height uint16) Seeding {
	return func(cl Clusterer, surs []*etensor.Float32) error {
		if len(cl.Centroids()) > 0 {
			return fmt.Errorf("clustering: %w: clusterer already seeded", ErrCapacity)
		}
		for k := 0; k < cl.NumClusters(); k++ {
			c := etensor.NewFloat32([]int{int(height), int(width)}, nil, []string{"Y", "X"})
			for i := range c.Values {
				c.Values[i] = rng.Float32()
			}
			if err := cl.AddCentroid(c); err != nil {
				return err
			}
		}
		return nil
	}
}
