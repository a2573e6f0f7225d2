// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package events

import "testing"

func TestInvalidSentinel(t *testing.T) {
	if Invalid.IsValid() {
		t.Errorf("Invalid sentinel reported as valid")
	}
	ev := Event{T: 100, X: 3, Y: 4, P: 1}
	if !ev.IsValid() {
		t.Errorf("ordinary event %v reported as invalid", ev)
	}
	if got, want := ev.String(), "(100, 3, 4, 1)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestClone(t *testing.T) {
	evs := Events{{T: 1, X: 2, Y: 3, P: 0}, {T: 2, X: 4, Y: 5, P: 1}}
	cp := evs.Clone()
	cp[0].T = 99
	if evs[0].T != 1 {
		t.Errorf("Clone shares backing storage with the original")
	}
}

func TestMergePolarities(t *testing.T) {
	evs := Events{{T: 1, X: 0, Y: 0, P: 0}, {T: 2, X: 1, Y: 1, P: 1}, {T: 3, X: 2, Y: 2, P: 0}}
	merged, err := MergePolarities(evs, map[uint16]uint16{0: 0, 1: 0})
	if err != nil {
		t.Fatalf("MergePolarities: %v", err)
	}
	for i, ev := range merged {
		if ev.P != 0 {
			t.Errorf("event %d: polarity = %d, want 0", i, ev.P)
		}
	}
	if evs[1].P != 1 {
		t.Errorf("MergePolarities mutated its input")
	}

	if _, err := MergePolarities(evs, map[uint16]uint16{0: 0}); err == nil {
		t.Errorf("expected error for polarity missing from the mapping")
	}
}
