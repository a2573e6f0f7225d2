// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clustering

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// fourBlobs is 400 scalar samples in four tight groups whose means are
// 25, 50, 75 and 100.
func fourBlobs() []*etensor.Float32 {
	surs := make([]*etensor.Float32, 0, 400)
	for _, pair := range [][2]float32{{20, 30}, {45, 55}, {70, 80}, {95, 105}} {
		for i := 0; i < 50; i++ {
			surs = append(surs, scalar(pair[0]), scalar(pair[1]))
		}
	}
	return surs
}

func seedFour(t *testing.T, cl Clusterer) {
	t.Helper()
	for _, v := range []float32{22, 48, 73, 99} {
		if err := cl.AddCentroid(scalar(v)); err != nil {
			t.Fatalf("AddCentroid: %v", err)
		}
	}
}

func TestNewKMeansValidation(t *testing.T) {
	if _, err := NewKMeans(0, 0); err == nil {
		t.Errorf("expected error for zero centroids")
	}
	if _, err := NewKMeans(4, -1); err == nil {
		t.Errorf("expected error for negative iteration cap")
	}
	cl, err := NewKMeans(4, 0)
	if err != nil {
		t.Fatalf("NewKMeans: %v", err)
	}
	if cl.MaxIterations != KMeansMaxIterDef {
		t.Errorf("default iteration cap = %d, want %d", cl.MaxIterations, KMeansMaxIterDef)
	}
}

func TestKMeansFit(t *testing.T) {
	cl, _ := NewKMeans(4, 0)
	seedFour(t, cl)
	if err := cl.Train(fourBlobs()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	want := []float32{25, 50, 75, 100}
	for k, c := range cl.Centroids() {
		if mat32.Abs(c.Values[0]-want[k]) > difTol {
			t.Errorf("centroid %d = %g, want %g", k, c.Values[0], want[k])
		}
	}
}

func TestKMeansPlaceholder(t *testing.T) {
	cl, _ := NewKMeans(4, 0)
	seedFour(t, cl)
	cl.ToggleLearning(true)

	for _, s := range fourBlobs() {
		k, err := cl.Cluster(s)
		if err != nil {
			t.Fatalf("Cluster: %v", err)
		}
		if k != 0 {
			t.Errorf("learning-phase assignment = %d, want placeholder 0", k)
		}
	}
	// placeholders are not real assignments
	if got := cl.Histogram().Sum(); got != 0 {
		t.Errorf("histogram counted %d placeholder assignments", got)
	}

	// toggling learning off runs the fit on the buffered surfaces
	prev, err := cl.ToggleLearning(false)
	if err != nil {
		t.Fatalf("ToggleLearning(false): %v", err)
	}
	if !prev {
		t.Errorf("ToggleLearning(false) reported previous state false, want true")
	}
	want := []float32{25, 50, 75, 100}
	for k, c := range cl.Centroids() {
		if mat32.Abs(c.Values[0]-want[k]) > difTol {
			t.Errorf("centroid %d = %g, want %g", k, c.Values[0], want[k])
		}
	}

	// real assignments after the fit
	for i, s := range []*etensor.Float32{scalar(24), scalar(51), scalar(77), scalar(98)} {
		k, err := cl.Cluster(s)
		if err != nil {
			t.Fatalf("Cluster: %v", err)
		}
		if int(k) != i {
			t.Errorf("assignment of blob %d = %d", i, k)
		}
	}
	hist := cl.Histogram()
	for k, n := range hist {
		if n != 1 {
			t.Errorf("histogram[%d] = %d, want 1", k, n)
		}
	}
}

func TestKMeansToggleEmptyBuffer(t *testing.T) {
	cl, _ := NewKMeans(4, 0)
	seedFour(t, cl)
	cl.ToggleLearning(true)
	if _, err := cl.ToggleLearning(false); err != nil {
		t.Errorf("ToggleLearning with an empty buffer: %v", err)
	}
}

func TestKMeansTrainErrors(t *testing.T) {
	cl, _ := NewKMeans(4, 0)
	if err := cl.Train(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("Train on no data: got %v, want ErrNoData", err)
	}
	if err := cl.Train([]*etensor.Float32{scalar(1)}); !errors.Is(err, ErrNotSeeded) {
		t.Errorf("Train without centroids: got %v, want ErrNotSeeded", err)
	}
}

func TestKMeansEmptyClusterKeepsCentroid(t *testing.T) {
	cl, _ := NewKMeans(2, 0)
	cl.AddCentroid(scalar(0))
	cl.AddCentroid(scalar(1000))
	if err := cl.Train([]*etensor.Float32{scalar(1), scalar(2), scalar(3)}); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if got := cl.Centroids()[1].Values[0]; got != 1000 {
		t.Errorf("empty cluster's centroid moved to %g, want 1000", got)
	}
	if got := cl.Centroids()[0].Values[0]; mat32.Abs(got-2) > difTol {
		t.Errorf("centroid 0 = %g, want 2", got)
	}
}

func TestKMeansStreamRoundTrip(t *testing.T) {
	cl, _ := NewKMeans(4, 250)
	seedFour(t, cl)
	cl.Train(fourBlobs())

	var buf bytes.Buffer
	if err := cl.ToStream(&buf); err != nil {
		t.Fatalf("ToStream: %v", err)
	}
	ld, err := LoadClusterer(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("LoadClusterer: %v", err)
	}
	got, ok := ld.(*KMeans)
	if !ok {
		t.Fatalf("loaded clusterer has type %T, want *KMeans", ld)
	}
	if got.K != 4 || got.MaxIterations != 250 {
		t.Errorf("loaded parameters (K %d, max iters %d), want (4, 250)", got.K, got.MaxIterations)
	}
	for _, v := range []float32{26, 52, 74, 101} {
		want, _ := cl.Cluster(scalar(v))
		k, _ := got.Cluster(scalar(v))
		if k != want {
			t.Errorf("loaded clusterer assigned %g to %d, original %d", v, k, want)
		}
	}
}
