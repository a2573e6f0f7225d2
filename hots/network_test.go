// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hots

import (
	"bytes"
	"strings"
	"testing"

	"github.com/neuromorphic-paris/gohots/clustering"
	"github.com/neuromorphic-paris/gohots/events"
	"github.com/neuromorphic-paris/gohots/timesurface"
)

// newTestNetwork stacks two skip-check layers: 3 features out of the
// first, 4 out of the second.
func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	ly1 := NewLayer(newTestPool(t, 10, 10, 1), newCycleClusterer(3))
	ly1.SkipCheck = true
	ly2 := NewLayer(newTestPool(t, 10, 10, 3), newCycleClusterer(4))
	ly2.SkipCheck = true
	return NewNetwork(ly1, ly2)
}

func TestNetworkEmpty(t *testing.T) {
	net := NewNetwork()
	if _, err := net.Process(events.Event{T: 1, X: 1, Y: 1, P: 0}); err == nil {
		t.Errorf("expected error processing with no layers")
	}
}

func TestNetworkProcess(t *testing.T) {
	net := newTestNetwork(t)
	out, err := net.Process(events.Event{T: 1, X: 2, Y: 2, P: 0})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d events, want 1", len(out))
	}
	// both cycling clusterers start at feature 0
	want := events.Event{T: 1, X: 2, Y: 2, P: 0}
	if out[0] != want {
		t.Errorf("emitted %v, want %v", out[0], want)
	}
}

func TestNetworkShortCircuit(t *testing.T) {
	ly1 := NewLayer(newTestPool(t, 10, 10, 1), newCycleClusterer(3))
	ly2cc := newCycleClusterer(4)
	ly2 := NewLayer(newTestPool(t, 10, 10, 3), ly2cc)
	ly2.SkipCheck = true
	net := NewNetwork(ly1, ly2)

	// the first event fails layer 1's validity check
	out, err := net.Process(events.Event{T: 1, X: 2, Y: 2, P: 0})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("short-circuited event emitted %d events", len(out))
	}
	if ly2cc.calls != 0 {
		t.Errorf("layer 2 was reached after layer 1 emitted nothing")
	}
}

func TestNetworkProcessStream(t *testing.T) {
	net := newTestNetwork(t)
	evs := events.Events{
		{T: 1, X: 2, Y: 2, P: 0},
		{T: 2, X: 3, Y: 2, P: 0},
		{T: 3, X: 2, Y: 3, P: 0},
	}
	out, err := net.ProcessStream(evs)
	if err != nil {
		t.Fatalf("ProcessStream: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("emitted %d events, want 3", len(out))
	}
	hist := net.LastHistogram()
	if hist.Sum() != 3 {
		t.Errorf("last histogram counted %d assignments, want 3", hist.Sum())
	}
}

func TestNetworkProcessStreams(t *testing.T) {
	ly1 := NewLayer(newTestPool(t, 10, 10, 1), newCycleClusterer(3))
	ly2 := NewLayer(newTestPool(t, 10, 10, 3), newCycleClusterer(4))
	ly2.SkipCheck = true
	net := NewNetwork(ly1, ly2)

	evs := events.Events{
		{T: 1, X: 2, Y: 2, P: 0},
		{T: 2, X: 3, Y: 2, P: 0},
	}
	streams := []events.Events{evs, evs}

	out, err := net.ProcessStreams(streams, true)
	if err != nil {
		t.Fatalf("ProcessStreams: %v", err)
	}
	if len(out) != 2 || len(out[0]) != 1 || len(out[1]) != 1 {
		t.Fatalf("with resets emitted %d and %d events, want 1 and 1", len(out[0]), len(out[1]))
	}

	// without resets the first layer's context carries over
	net.Reset()
	out, err = net.ProcessStreams(streams, false)
	if err != nil {
		t.Fatalf("ProcessStreams: %v", err)
	}
	if len(out[0]) != 1 || len(out[1]) != 2 {
		t.Errorf("without resets emitted %d and %d events, want 1 and 2", len(out[0]), len(out[1]))
	}
}

func TestToggleLearningLayerExclusive(t *testing.T) {
	net := newTestNetwork(t)
	if err := net.ToggleLearningLayer(1, true); err != nil {
		t.Fatalf("ToggleLearningLayer: %v", err)
	}
	if net.Layer(0).Clust.IsLearning() {
		t.Errorf("layer 0 learning after selecting layer 1")
	}
	if !net.Layer(1).Clust.IsLearning() {
		t.Errorf("layer 1 not learning after selecting it")
	}

	if err := net.ToggleLearningAll(true); err != nil {
		t.Fatalf("ToggleLearningAll: %v", err)
	}
	if !net.Layer(0).Clust.IsLearning() || !net.Layer(1).Clust.IsLearning() {
		t.Errorf("ToggleLearningAll(true) left a layer not learning")
	}

	if err := net.ToggleLearningLayer(5, true); err == nil {
		t.Errorf("expected error for an out-of-range layer")
	}
}

func TestNetworkReset(t *testing.T) {
	net := newTestNetwork(t)
	net.Process(events.Event{T: 1, X: 2, Y: 2, P: 0})
	net.Reset()
	if net.LastHistogram().Sum() != 0 {
		t.Errorf("reset did not clear the last histogram")
	}
}

func TestSubnetwork(t *testing.T) {
	net := newTestNetwork(t)
	sub, err := net.Subnetwork(1, -1)
	if err != nil {
		t.Fatalf("Subnetwork: %v", err)
	}
	if sub.NumLayers() != 1 {
		t.Fatalf("subnetwork has %d layers, want 1", sub.NumLayers())
	}
	// the subnetwork is a deep copy
	sub.Layer(0).Process(events.Event{T: 1, X: 2, Y: 2, P: 0})
	if net.Layer(1).Clust.(*cycleClusterer).calls != 0 {
		t.Errorf("processing on the subnetwork reached the original")
	}

	if _, err := net.Subnetwork(2, 1); err == nil {
		t.Errorf("expected error for an inverted layer range")
	}
	if _, err := net.Subnetwork(0, 5); err == nil {
		t.Errorf("expected error for an out-of-range end")
	}
}

func TestConcat(t *testing.T) {
	a := newTestNetwork(t)
	b := newTestNetwork(t)
	cat := a.Concat(b)
	if cat.NumLayers() != 4 {
		t.Fatalf("concatenated network has %d layers, want 4", cat.NumLayers())
	}
	cat.Layer(0).Process(events.Event{T: 1, X: 2, Y: 2, P: 0})
	if a.Layer(0).Clust.(*cycleClusterer).calls != 0 {
		t.Errorf("processing on the concatenation reached an original")
	}
}

func TestSizeReport(t *testing.T) {
	net := newTestNetwork(t)
	rep := net.SizeReport()
	if !strings.Contains(rep, "layer 0") || !strings.Contains(rep, "total") {
		t.Errorf("size report misses sections:\n%s", rep)
	}
}

func TestNetworkStreamRoundTrip(t *testing.T) {
	proto, _ := timesurface.NewLinear(10, 10, 1, 1, 100)
	pool1, _ := timesurface.NewPool(proto, 2)
	cl1, _ := clustering.NewCosine(3, 0)
	cl1.AddCentroid(scalarGrid(3, 3, 0.1))
	cl1.AddCentroid(scalarGrid(3, 3, 0.5))
	cl1.AddCentroid(scalarGrid(3, 3, 0.9))
	ly1 := NewLayer(pool1, cl1)

	pool2, _ := timesurface.NewPool(proto, 3)
	cl2, _ := clustering.NewKMeans(4, 0)
	ly2 := NewLayer(pool2, cl2)
	ly2.SkipCheck = true

	net := NewNetwork(ly1, ly2)
	var buf bytes.Buffer
	if err := net.ToStream(&buf); err != nil {
		t.Fatalf("ToStream: %v", err)
	}
	got, err := LoadNetwork(&buf)
	if err != nil {
		t.Fatalf("LoadNetwork: %v", err)
	}
	if got.NumLayers() != 2 {
		t.Fatalf("loaded network has %d layers, want 2", got.NumLayers())
	}
	if _, ok := got.Layer(0).Clust.(*clustering.Cosine); !ok {
		t.Errorf("layer 0 clusterer has type %T, want *clustering.Cosine", got.Layer(0).Clust)
	}
	if _, ok := got.Layer(1).Clust.(*clustering.KMeans); !ok {
		t.Errorf("layer 1 clusterer has type %T, want *clustering.KMeans", got.Layer(1).Clust)
	}
	if !got.Layer(1).SkipCheck {
		t.Errorf("layer 1 lost the skip flag")
	}
	if got.Layer(0).Pool.NumSurfaces() != 2 || got.Layer(1).Pool.NumSurfaces() != 3 {
		t.Errorf("loaded pools have %d and %d surfaces, want 2 and 3",
			got.Layer(0).Pool.NumSurfaces(), got.Layer(1).Pool.NumSurfaces())
	}
}
