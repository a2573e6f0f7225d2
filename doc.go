// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package gohots is the overall repository for the Go implementation of the
Hierarchy Of event-based Time-Surfaces (HOTS) feature extraction
architecture for event-camera data streams.

This top-level of the repository has no functional code -- everything is
organized into the following sub-packages:

* events: the basic address-event record (timestamp, x, y, polarity) that
flows through every stage of the hierarchy, with the reserved invalid
sentinel and polarity merging utilities.

* timesurface: the time surface computation engine -- per-pixel temporal
context grids with linear, weighted-linear and dynamic (adaptive decay
rate) activation functions, and the per-polarity dispatch pool.

* clustering: vector quantization of time surfaces into discrete feature
ids -- the online cosine-similarity clusterer with homeostatic
regularization, batch k-means, a Gaussian mixture variant, and the
centroid seeding algorithms (uniform, k-means++, AFK-MC2, random).

* hots: the layer and network composition logic that wires a time surface
pool, a clusterer and the optional event remapping / spatial pooling
modifiers into a per-event transform, and stacks such layers into a
multi-layer feature hierarchy.

* stream: the tagged textual serialization scheme shared by all
components, which lets a generic loader reconstruct the correct concrete
variant of a saved component purely from its !TAGNAME marker.
*/
package gohots
