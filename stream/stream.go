// Copyright (c) 2026, The GoHOTS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package stream implements the tagged textual serialization scheme used to
persist HOTS components.

Each serializable component writes an uppercase "!TAGNAME" metacommand
line identifying its concrete type, followed by its scalar parameters and
bulk array data as space-separated text.  Readers tolerate a missing
metacommand (the tag is optional) but reject a present-but-wrong one, so
a generic loader can reconstruct the correct concrete variant from the
tag alone while hand-written files without tags still load.
*/
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emer/etable/etensor"
)

// Streamable is implemented by all components that can be saved to and
// loaded from a textual stream.  FromStream overwrites the receiver's
// parameters and invalidates its transient state.
type Streamable interface {
	ToStream(w io.Writer) error
	FromStream(r *bufio.Reader) error
}

// ErrWrongMeta is wrapped by errors reporting an unexpected metacommand.
var ErrWrongMeta = errors.New("wrong metacommand")

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// skipSpace consumes whitespace; io.EOF is returned as-is.
func skipSpace(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(b) {
			return r.UnreadByte()
		}
	}
}

// WriteMeta writes the metacommand cmd, prepending '!' and upper-casing.
func WriteMeta(w io.Writer, cmd string) error {
	_, err := fmt.Fprintf(w, "!%s\n", strings.ToUpper(cmd))
	return err
}

// NextMeta returns the next metacommand in the stream, consuming it, or
// an empty string if the stream does not start with one.
func NextMeta(r *bufio.Reader) (string, error) {
	if err := skipSpace(r); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	b, err := r.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	if b[0] != '!' {
		return "", nil
	}
	r.ReadByte() // consume '!'
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// MatchOptional matches the metacommand cmd if one is present.  A stream
// with no metacommand matches; a different metacommand is an error.
func MatchOptional(r *bufio.Reader, cmd string) error {
	meta, err := NextMeta(r)
	if err != nil {
		return err
	}
	if meta == "" {
		return nil
	}
	if meta != strings.ToUpper(cmd) {
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongMeta, strings.ToUpper(cmd), meta)
	}
	return nil
}

// MatchRequired matches the metacommand cmd, erroring both on a missing
// and on a different metacommand.
func MatchRequired(r *bufio.Reader, cmd string) error {
	meta, err := NextMeta(r)
	if err != nil {
		return err
	}
	if meta == "" {
		return fmt.Errorf("%w: expected %q, nothing found", ErrWrongMeta, strings.ToUpper(cmd))
	}
	if meta != strings.ToUpper(cmd) {
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongMeta, strings.ToUpper(cmd), meta)
	}
	return nil
}

// Token returns the next whitespace-delimited token.
func Token(r *bufio.Reader) (string, error) {
	if err := skipSpace(r); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		if isSpace(b) {
			r.UnreadByte()
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

// Uint64 scans the next token as an unsigned 64-bit integer.
func Uint64(r *bufio.Reader) (uint64, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(tok, 10, 64)
}

// Uint32 scans the next token as an unsigned 32-bit integer.
func Uint32(r *bufio.Reader) (uint32, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, 10, 32)
	return uint32(v), err
}

// Uint16 scans the next token as an unsigned 16-bit integer.
func Uint16(r *bufio.Reader) (uint16, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, 10, 16)
	return uint16(v), err
}

// Int scans the next token as a signed integer.
func Int(r *bufio.Reader) (int, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	return int(v), err
}

// Float32 scans the next token as a 32-bit float.
func Float32(r *bufio.Reader) (float32, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 32)
	return float32(v), err
}

// Float64 scans the next token as a 64-bit float.
func Float64(r *bufio.Reader) (float64, error) {
	tok, err := Token(r)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(tok, 64)
}

// Bool scans the next token as a boolean; both 0/1 and true/false forms
// are accepted.
func Bool(r *bufio.Reader) (bool, error) {
	tok, err := Token(r)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(tok)
}

// BoolDigit renders a boolean in the 0/1 form used throughout the format.
func BoolDigit(v bool) int {
	if v {
		return 1
	}
	return 0
}

// WriteMatrix writes a 2D grid row-major, one space-separated row per
// line, without a size header.
func WriteMatrix(w io.Writer, m *etensor.Float32) error {
	rows, cols := m.Dim(0), m.Dim(1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if x > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "%g", m.Values[y*cols+x]); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// ReadMatrix reads a rows x cols grid written by WriteMatrix.
func ReadMatrix(r *bufio.Reader, rows, cols int) (*etensor.Float32, error) {
	m := etensor.NewFloat32([]int{rows, cols}, nil, []string{"Y", "X"})
	for i := 0; i < rows*cols; i++ {
		v, err := Float32(r)
		if err != nil {
			return nil, err
		}
		m.Values[i] = v
	}
	return m, nil
}
