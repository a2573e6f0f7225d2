// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hots

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/neuromorphic-paris/gohots/clustering"
	"github.com/neuromorphic-paris/gohots/events"
	"github.com/neuromorphic-paris/gohots/stream"
)

// Serialization tags for the network block.
const (
	NetworkBeginTag = "NETWORKBEGIN"
	NetworkEndTag   = "NETWORKEND"
)

// Network is an ordered stack of layers.  Events flow through the
// layers in order, each layer re-emitting events whose polarity range is
// the previous layer's feature count.
type Network struct {
	Layers []*Layer `desc:"layers in processing order"`
}

// NewNetwork returns a network over the layers, in processing order.
func NewNetwork(layers ...*Layer) *Network {
	return &Network{Layers: layers}
}

// NumLayers returns the number of layers.
func (net *Network) NumLayers() int {
	return len(net.Layers)
}

// Layer returns layer l.
func (net *Network) Layer(l int) *Layer {
	return net.Layers[l]
}

// Process runs one event through the whole stack and returns the events
// emitted by the last layer.  Processing short-circuits as soon as a
// layer emits nothing.
func (net *Network) Process(ev events.Event) (events.Events, error) {
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("hots: network has no layers")
	}
	evs := events.Events{ev}
	for _, ly := range net.Layers {
		next := make(events.Events, 0, len(evs))
		for _, e := range evs {
			oevs, err := ly.Process(e)
			if err != nil {
				return nil, err
			}
			next = append(next, oevs...)
		}
		if len(next) == 0 {
			return events.Events{}, nil
		}
		evs = next
	}
	return evs, nil
}

// ProcessStream runs a whole event stream through the stack.
func (net *Network) ProcessStream(evs events.Events) (events.Events, error) {
	out := make(events.Events, 0, len(evs))
	for _, ev := range evs {
		oevs, err := net.Process(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, oevs...)
	}
	return out, nil
}

// ProcessStreams runs several independent event streams through the
// stack, one output stream per input stream.  With reset set, the
// per-stream state of every layer is cleared before each stream.
func (net *Network) ProcessStreams(streams []events.Events, reset bool) ([]events.Events, error) {
	out := make([]events.Events, len(streams))
	for i, evs := range streams {
		if reset {
			net.Reset()
		}
		oevs, err := net.ProcessStream(evs)
		if err != nil {
			return nil, err
		}
		out[i] = oevs
	}
	return out, nil
}

// ToggleLearningAll enables or disables learning on every layer.
func (net *Network) ToggleLearningAll(learn bool) error {
	for l, ly := range net.Layers {
		if _, err := ly.ToggleLearning(learn); err != nil {
			return fmt.Errorf("hots: layer %d: %w", l, err)
		}
	}
	return nil
}

// ToggleLearningLayer enables learning on layer l only, disabling it
// everywhere else.  This is the usual layer-by-layer training schedule.
func (net *Network) ToggleLearningLayer(l int, learn bool) error {
	if l < 0 || l >= len(net.Layers) {
		return fmt.Errorf("hots: layer %d out of range (%d layers)", l, len(net.Layers))
	}
	for i, ly := range net.Layers {
		if _, err := ly.ToggleLearning(i == l && learn); err != nil {
			return fmt.Errorf("hots: layer %d: %w", i, err)
		}
	}
	return nil
}

// LastHistogram returns the last layer's assignment histogram, the
// feature descriptor of the stream processed since the last reset.
func (net *Network) LastHistogram() clustering.Features {
	if len(net.Layers) == 0 {
		return nil
	}
	return net.Layers[len(net.Layers)-1].Histogram()
}

// Reset clears the per-stream state of every layer.
func (net *Network) Reset() {
	for _, ly := range net.Layers {
		ly.Reset()
	}
}

// Clone returns an independent deep copy of the network.
func (net *Network) Clone() *Network {
	cp := &Network{Layers: make([]*Layer, len(net.Layers))}
	for i, ly := range net.Layers {
		cp.Layers[i] = ly.Clone()
	}
	return cp
}

// Subnetwork returns a deep copy of the layer range [from,to).  A
// negative to selects all remaining layers.
func (net *Network) Subnetwork(from, to int) (*Network, error) {
	if to < 0 {
		to = len(net.Layers)
	}
	if from < 0 || from > to || to > len(net.Layers) {
		return nil, fmt.Errorf("hots: layer range [%d,%d) out of range (%d layers)", from, to, len(net.Layers))
	}
	sub := &Network{Layers: make([]*Layer, to-from)}
	for i, ly := range net.Layers[from:to] {
		sub.Layers[i] = ly.Clone()
	}
	return sub, nil
}

// Concat returns a new network stacking deep copies of net's layers
// followed by other's.
func (net *Network) Concat(other *Network) *Network {
	cp := net.Clone()
	for _, ly := range other.Layers {
		cp.Layers = append(cp.Layers, ly.Clone())
	}
	return cp
}

// SizeReport returns a human-readable per-layer account of the memory
// held in time surface contexts and centroids.
func (net *Network) SizeReport() string {
	var sb strings.Builder
	var tot uint64
	for l, ly := range net.Layers {
		var sz uint64
		if ly.Pool != nil {
			for _, ts := range ly.Pool.Surfaces {
				sz += uint64(ts.FullContext().Len()) * 4
			}
		}
		if ly.Clust != nil {
			for _, c := range ly.Clust.Centroids() {
				sz += uint64(c.Len()) * 4
			}
		}
		tot += sz
		fmt.Fprintf(&sb, "layer %d: %s\n", l, datasize.ByteSize(sz).HumanReadable())
	}
	fmt.Fprintf(&sb, "total: %s\n", datasize.ByteSize(tot).HumanReadable())
	return sb.String()
}

// ToStream writes the network as a NETWORKBEGIN..NETWORKEND block of
// layer blocks.
func (net *Network) ToStream(w io.Writer) error {
	if err := stream.WriteMeta(w, NetworkBeginTag); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d\n", len(net.Layers)); err != nil {
		return err
	}
	for _, ly := range net.Layers {
		if err := ly.ToStream(w); err != nil {
			return err
		}
	}
	return stream.WriteMeta(w, NetworkEndTag)
}

// FromStream reads a network written by ToStream.
func (net *Network) FromStream(r *bufio.Reader) error {
	if err := stream.MatchOptional(r, NetworkBeginTag); err != nil {
		return err
	}
	n, err := stream.Int(r)
	if err != nil {
		return err
	}
	net.Layers = make([]*Layer, n)
	for i := range net.Layers {
		ly := &Layer{}
		if err := ly.FromStream(r); err != nil {
			return err
		}
		net.Layers[i] = ly
	}
	return stream.MatchRequired(r, NetworkEndTag)
}
