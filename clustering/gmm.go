// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clustering

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
	"gonum.org/v1/gonum/floats"

	"github.com/neuromorphic-paris/gohots/stream"
)

// GMMType selects the Gaussian mixture variant fitted by the GMM
// clusterer.
type GMMType int32

const (
	// SGMM is a spherical mixture with uniform component weights.
	SGMM GMMType = iota

	// USGMM is a mixture with learned component weights and a diagonal
	// covariance tied across components.
	USGMM

	GMMTypeN
)

var KiT_GMMType = kit.Enums.AddEnum(GMMTypeN, kit.NotBitFlag, nil)

func (gt GMMType) String() string {
	switch gt {
	case SGMM:
		return "SGMM"
	case USGMM:
		return "USGMM"
	}
	return fmt.Sprintf("GMMType(%d)", int32(gt))
}

// gmmMaxIterDef caps the EM loop when running to convergence.
const gmmMaxIterDef = 1000

// varFloor keeps the fitted variances away from zero.
const varFloor = 1e-6

// GMM is an offline clusterer fitting a Gaussian mixture by
// expectation-maximization, with the mixture shape selected by Type.
// Like KMeans it buffers surfaces while learning, returns the
// placeholder id 0 in the meantime, and fits when learning is toggled
// off.  The seeded centroids become the initial component means.
//
// Eps below 1 is a relative log-likelihood convergence threshold; Eps of
// 1 or above is truncated to a fixed number of EM epochs.
type GMM struct {
	centroidSet
	histogramState

	Type     GMMType `desc:"mixture variant to fit"`
	Eps      float32 `desc:"convergence threshold (below 1) or epoch count (1 and above)"`
	Learning bool    `desc:"whether surfaces are being buffered for the next fit"`

	weights []float64 // per-component, USGMM only
	vars    []float64 // tied covariance diagonal (USGMM) or a single spherical variance (SGMM)
	buf     []*etensor.Float32
}

// NewGMM returns a Gaussian mixture clusterer of the given variant with
// k component means to be seeded.
func NewGMM(typ GMMType, k int, eps float32) (*GMM, error) {
	if typ < 0 || typ >= GMMTypeN {
		return nil, fmt.Errorf("clustering: unknown mixture variant %d", typ)
	}
	if k < 1 {
		return nil, fmt.Errorf("clustering: number of centroids %d must be positive", k)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("clustering: convergence parameter %g must be positive", eps)
	}
	cl := &GMM{Type: typ, Eps: eps}
	cl.K = k
	cl.resetHist(k)
	return cl, nil
}

// Cluster buffers the surface and returns the placeholder id 0 while
// learning.  The placeholder is not counted in the histogram.
func (cl *GMM) Cluster(sur *etensor.Float32) (uint16, error) {
	if cl.Learning {
		cl.buf = append(cl.buf, cloneGrid(sur))
		return 0, nil
	}
	if err := cl.checkReady(sur); err != nil {
		return 0, err
	}
	k := cl.predict(asF64(sur))
	cl.countHist(k)
	return k, nil
}

// predict returns the most likely component for the sample.  For SGMM
// the components are equally weighted and spherical, so this is the
// nearest mean; for USGMM it is the smallest Mahalanobis distance
// penalized by the component weight.
func (cl *GMM) predict(x []float64) uint16 {
	if cl.Type == SGMM || cl.vars == nil {
		best, bestD := uint16(0), math.Inf(1)
		for i, c := range cl.Cs {
			if d := floats.Distance(asF64(c), x, 2); d < bestD {
				best, bestD = uint16(i), d
			}
		}
		return best
	}
	best, bestS := uint16(0), math.Inf(1)
	for i, c := range cl.Cs {
		m := asF64(c)
		var d2 float64
		for j, v := range x {
			dv := v - m[j]
			d2 += dv * dv / cl.vars[j]
		}
		s := d2 - 2*math.Log(cl.weights[i])
		if s < bestS {
			best, bestS = uint16(i), s
		}
	}
	return best
}

// ToggleLearning enables or disables buffering, returning the previous
// state.  Disabling it fits the mixture to the buffered surfaces, if
// any, and drops the buffer.
func (cl *GMM) ToggleLearning(learn bool) (bool, error) {
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

func (cl *GMM) IsLearning() bool { return cl.Learning }
func (cl *GMM) IsOnline() bool   { return false }

// Train fits the mixture to the surfaces by EM, starting from the
// seeded means.
func (cl *GMM) Train(surs []*etensor.Float32) error {
	if len(surs) == 0 {
		return fmt.Errorf("clustering: %w", ErrNoData)
	}
	if !cl.HasCentroids() {
		return fmt.Errorf("clustering: %w (%d of %d)", ErrNotSeeded, len(cl.Cs), cl.K)
	}
	d := cl.Rows * cl.Cols
	xs := make([][]float64, len(surs))
	for i, s := range surs {
		if s.Len() != d {
			return fmt.Errorf("clustering: %w: got %d values, want %dx%d", ErrShape, s.Len(), cl.Rows, cl.Cols)
		}
		xs[i] = asF64(s)
	}

	means := make([][]float64, cl.K)
	for k, c := range cl.Cs {
		means[k] = asF64(c)
	}
	cl.weights = make([]float64, cl.K)
	for k := range cl.weights {
		cl.weights[k] = 1 / float64(cl.K)
	}
	cl.vars = cl.initVars(xs, means, d)

	epochs, relEps := gmmMaxIterDef, float64(cl.Eps)
	if cl.Eps >= 1 {
		epochs, relEps = int(cl.Eps), 0
	}

	logp := make([]float64, cl.K)
	resp := make([][]float64, len(xs))
	for i := range resp {
		resp[i] = make([]float64, cl.K)
	}

	prevLL := math.Inf(-1)
	for it := 0; it < epochs; it++ {
		// E step
		var ll float64
		for i, x := range xs {
			for k := range means {
				logp[k] = cl.logComponent(x, means[k], k)
			}
			lse := floats.LogSumExp(logp)
			ll += lse
			for k := range means {
				resp[i][k] = math.Exp(logp[k] - lse)
			}
		}

		// M step
		for k := range means {
			var rk float64
			mean := make([]float64, d)
			for i, x := range xs {
				r := resp[i][k]
				rk += r
				floats.AddScaled(mean, r, x)
			}
			if rk > 0 {
				floats.Scale(1/rk, mean)
				means[k] = mean
			}
			if cl.Type == USGMM {
				cl.weights[k] = rk / float64(len(xs))
			}
		}
		cl.updateVars(xs, means, resp, d)

		if relEps > 0 && it > 0 && math.Abs(ll-prevLL) <= relEps*math.Abs(prevLL) {
			break
		}
		prevLL = ll
	}

	for k, m := range means {
		for i, v := range m {
			cl.Cs[k].Values[i] = float32(v)
		}
	}
	return nil
}

// initVars seeds the covariance from the spread of the samples around
// their nearest mean.
func (cl *GMM) initVars(xs, means [][]float64, d int) []float64 {
	if cl.Type == SGMM {
		var s2 float64
		for _, x := range xs {
			best := math.Inf(1)
			for _, m := range means {
				if dd := floats.Distance(m, x, 2); dd < best {
					best = dd
				}
			}
			s2 += best * best
		}
		v := s2 / float64(len(xs)*d)
		if v < varFloor {
			v = varFloor
		}
		return []float64{v}
	}
	vars := make([]float64, d)
	mean := make([]float64, d)
	for _, x := range xs {
		floats.Add(mean, x)
	}
	floats.Scale(1/float64(len(xs)), mean)
	for _, x := range xs {
		for j, v := range x {
			dv := v - mean[j]
			vars[j] += dv * dv
		}
	}
	for j := range vars {
		vars[j] /= float64(len(xs))
		if vars[j] < varFloor {
			vars[j] = varFloor
		}
	}
	return vars
}

// logComponent is the unnormalized log density of component k at x,
// including the component weight.
func (cl *GMM) logComponent(x, mean []float64, k int) float64 {
	if cl.Type == SGMM {
		v := cl.vars[0]
		d2 := floats.Distance(mean, x, 2)
		return -math.Log(float64(cl.K)) - 0.5*float64(len(x))*math.Log(2*math.Pi*v) - d2*d2/(2*v)
	}
	lp := math.Log(cl.weights[k])
	for j, xv := range x {
		dv := xv - mean[j]
		lp -= 0.5 * (math.Log(2*math.Pi*cl.vars[j]) + dv*dv/cl.vars[j])
	}
	return lp
}

func (cl *GMM) updateVars(xs, means [][]float64, resp [][]float64, d int) {
	if cl.Type == SGMM {
		var s2 float64
		for i, x := range xs {
			for k, m := range means {
				dd := floats.Distance(m, x, 2)
				s2 += resp[i][k] * dd * dd
			}
		}
		v := s2 / float64(len(xs)*d)
		if v < varFloor {
			v = varFloor
		}
		cl.vars[0] = v
		return
	}
	for j := range cl.vars {
		cl.vars[j] = 0
	}
	for i, x := range xs {
		for k, m := range means {
			r := resp[i][k]
			for j, xv := range x {
				dv := xv - m[j]
				cl.vars[j] += r * dv * dv
			}
		}
	}
	for j := range cl.vars {
		cl.vars[j] /= float64(len(xs))
		if cl.vars[j] < varFloor {
			cl.vars[j] = varFloor
		}
	}
}

// Reset clears the assignment histogram.  Centroids are kept.
func (cl *GMM) Reset() {
	cl.resetHist(cl.K)
}

func (cl *GMM) Clone() Clusterer {
	cp := *cl
	cp.centroidSet = cl.centroidSet.clone()
	cp.Hist = cl.Hist.Clone()
	cp.weights = append([]float64(nil), cl.weights...)
	cp.vars = append([]float64(nil), cl.vars...)
	cp.buf = make([]*etensor.Float32, len(cl.buf))
	for i, s := range cl.buf {
		cp.buf[i] = cloneGrid(s)
	}
	return &cp
}

// ToStream writes the mixture parameters and means.  The fitted
// covariance is not persisted; a loaded clusterer assigns by nearest
// mean until it is trained again.
func (cl *GMM) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, GMMTag); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d %d %g %d %d %d\n", cl.Type, cl.K, cl.Eps,
		len(cl.Cs), cl.Rows, cl.Cols); err != nil {
		return err
	}
	return cl.centroidsToStream(w)
}

func (cl *GMM) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, GMMTag); err != nil {
		return err
	}
	typ, err := stream.Int(r)
	if err != nil {
		return err
	}
	cl.Type = GMMType(typ)
	if cl.K, err = stream.Int(r); err != nil {
		return err
	}
	if cl.Eps, err = stream.Float32(r); err != nil {
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
	cl.weights, cl.vars, cl.buf = nil, nil, nil
	cl.resetHist(cl.K)
	return nil
}
