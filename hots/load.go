// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hots

import (
	"bufio"
	"fmt"
	"io"

	"github.com/neuromorphic-paris/gohots/stream"
)

// LoadRemapper reads the next type tag from the stream and loads the
// matching remapper variant.
func LoadRemapper(r *bufio.Reader) (EventRemapper, error) {
	tag, err := stream.NextMeta(r)
	if err != nil {
		return nil, err
	}
	var rm EventRemapper
	switch tag {
	case ArrayRemapperTag:
		rm = &ArrayRemapper{}
	case SerializingRemapperTag:
		rm = &SerializingRemapper{}
	default:
		return nil, fmt.Errorf("%w: unknown remapper type %q", stream.ErrWrongMeta, tag)
	}
	if err := rm.FromStream(r); err != nil {
		return nil, err
	}
	return rm, nil
}

// LoadSuperCells reads the next type tag from the stream and loads the
// matching supercell variant.
func LoadSuperCells(r *bufio.Reader) (SuperCells, error) {
	tag, err := stream.NextMeta(r)
	if err != nil {
		return nil, err
	}
	var sc SuperCells
	switch tag {
	case SuperCellTag:
		sc = &SuperCellGrid{}
	case SuperCellAverageTag:
		sc = &SuperCellAverage{}
	default:
		return nil, fmt.Errorf("%w: unknown supercell type %q", stream.ErrWrongMeta, tag)
	}
	if err := sc.FromStream(r); err != nil {
		return nil, err
	}
	return sc, nil
}

// LoadLayer reads one layer block from the reader.
func LoadLayer(rd io.Reader) (*Layer, error) {
	ly := &Layer{}
	if err := ly.FromStream(bufio.NewReader(rd)); err != nil {
		return nil, err
	}
	return ly, nil
}

// LoadNetwork reads one network block from the reader.
func LoadNetwork(rd io.Reader) (*Network, error) {
	net := &Network{}
	if err := net.FromStream(bufio.NewReader(rd)); err != nil {
		return nil, err
	}
	return net, nil
}
