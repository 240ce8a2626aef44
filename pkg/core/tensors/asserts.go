// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// UncheckedAxis can be used in CheckDims or AssertDims for an axis whose dimension doesn't matter.
const UncheckedAxis = int(-1)

// CheckDims checks that t (named `name` in the diagnostic) is rows×cols. A value of UncheckedAxis
// means the axis can take any dimension.
//
// It returns an error identifying the offending axis if they don't match.
func CheckDims(name string, t mat.Matrix, rows, cols int) error {
	if t == nil {
		return errors.Errorf("%s: tensor is nil, wanted shape [%d %d]", name, rows, cols)
	}
	r, c := t.Dims()
	if rows != UncheckedAxis && r != rows {
		return errors.Errorf("%s: shape [%d %d] axis 0 has dimension %d, wanted %d", name, r, c, r, rows)
	}
	if cols != UncheckedAxis && c != cols {
		return errors.Errorf("%s: shape [%d %d] axis 1 has dimension %d, wanted %d", name, r, c, c, cols)
	}
	return nil
}

// AssertDims checks that t (named `name` in the diagnostic) is rows×cols. A value of UncheckedAxis
// means the axis can take any dimension.
//
// It panics if it doesn't match.
func AssertDims(name string, t mat.Matrix, rows, cols int) {
	if err := CheckDims(name, t, rows, cols); err != nil {
		exceptions.Panicf("tensors.AssertDims: %v", err)
	}
}

// AssertSameShape checks that t0 and t1 have the same shape, and panics otherwise.
func AssertSameShape(name0 string, t0 mat.Matrix, name1 string, t1 mat.Matrix) {
	if t0 == nil || t1 == nil {
		exceptions.Panicf("tensors.AssertSameShape: %s=%s, %s=%s: nil tensor", name0, ShapeString(t0), name1, ShapeString(t1))
	}
	r0, c0 := t0.Dims()
	r1, c1 := t1.Dims()
	if r0 != r1 {
		exceptions.Panicf("tensors.AssertSameShape: %s=[%d %d] and %s=[%d %d] differ on axis 0", name0, r0, c0, name1, r1, c1)
	}
	if c0 != c1 {
		exceptions.Panicf("tensors.AssertSameShape: %s=[%d %d] and %s=[%d %d] differ on axis 1", name0, r0, c0, name1, r1, c1)
	}
}

// AssertArity checks that a block received the expected number of tensors, and panics otherwise.
func AssertArity(blockName, what string, got []*mat.Dense, want int) {
	if len(got) != want {
		exceptions.Panicf("%s: expected %d %s, got %d", blockName, want, what, len(got))
	}
	for ii, t := range got {
		if t == nil {
			exceptions.Panicf("%s: %s #%d is nil", blockName, what, ii)
		}
	}
}
