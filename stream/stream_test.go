// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/emer/etable/etensor"
)

func rd(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestWriteMeta(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMeta(&buf, "somecmd"); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	if got, want := buf.String(), "!SOMECMD\n"; got != want {
		t.Errorf("WriteMeta wrote %q, want %q", got, want)
	}
}

func TestNextMeta(t *testing.T) {
	meta, err := NextMeta(rd("  \n!FOO\n1 2 3\n"))
	if err != nil {
		t.Fatalf("NextMeta: %v", err)
	}
	if meta != "FOO" {
		t.Errorf("NextMeta = %q, want FOO", meta)
	}

	meta, err = NextMeta(rd("1 2 3\n"))
	if err != nil {
		t.Fatalf("NextMeta without tag: %v", err)
	}
	if meta != "" {
		t.Errorf("NextMeta = %q on an untagged stream, want empty", meta)
	}

	meta, err = NextMeta(rd(""))
	if err != nil || meta != "" {
		t.Errorf("NextMeta at EOF = (%q, %v), want (\"\", nil)", meta, err)
	}
}

func TestMatchOptional(t *testing.T) {
	if err := MatchOptional(rd("!FOO\n1\n"), "foo"); err != nil {
		t.Errorf("MatchOptional with matching tag: %v", err)
	}
	if err := MatchOptional(rd("1 2 3\n"), "foo"); err != nil {
		t.Errorf("MatchOptional with missing tag: %v", err)
	}
	err := MatchOptional(rd("!BAR\n1\n"), "foo")
	if !errors.Is(err, ErrWrongMeta) {
		t.Errorf("MatchOptional with wrong tag: got %v, want ErrWrongMeta", err)
	}
}

func TestMatchRequired(t *testing.T) {
	if err := MatchRequired(rd("!FOO\n"), "foo"); err != nil {
		t.Errorf("MatchRequired with matching tag: %v", err)
	}
	if err := MatchRequired(rd("1 2 3\n"), "foo"); !errors.Is(err, ErrWrongMeta) {
		t.Errorf("MatchRequired with missing tag: got %v, want ErrWrongMeta", err)
	}
}

func TestScanners(t *testing.T) {
	r := rd("42 -7 3.5 1 0 true\n")
	if v, err := Uint64(r); err != nil || v != 42 {
		t.Errorf("Uint64 = (%d, %v), want 42", v, err)
	}
	if v, err := Int(r); err != nil || v != -7 {
		t.Errorf("Int = (%d, %v), want -7", v, err)
	}
	if v, err := Float32(r); err != nil || v != 3.5 {
		t.Errorf("Float32 = (%g, %v), want 3.5", v, err)
	}
	if v, err := Bool(r); err != nil || v != true {
		t.Errorf("Bool = (%v, %v), want true", v, err)
	}
	if v, err := Bool(r); err != nil || v != false {
		t.Errorf("Bool = (%v, %v), want false", v, err)
	}
	if v, err := Bool(r); err != nil || v != true {
		t.Errorf("Bool = (%v, %v), want true", v, err)
	}
	if BoolDigit(true) != 1 || BoolDigit(false) != 0 {
		t.Errorf("BoolDigit broken")
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	m := etensor.NewFloat32([]int{2, 3}, nil, []string{"Y", "X"})
	copy(m.Values, []float32{1, 2.5, -3, 0, 1e-4, 42})

	var buf bytes.Buffer
	if err := WriteMatrix(&buf, m); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}
	got, err := ReadMatrix(bufio.NewReader(&buf), 2, 3)
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	for i := range m.Values {
		if got.Values[i] != m.Values[i] {
			t.Errorf("value %d: got %g, want %g", i, got.Values[i], m.Values[i])
		}
	}
}
